// Package codec converts caller values to the payload bytes stored inside a
// cache envelope and back.
package codec

// Codec encodes/decodes values V to []byte for storage.
// Decode must accept exactly what Encode produced.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
