// Package wire frames cache entries as they are stored on disk.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"math"
)

// Strategy is the invalidation policy recorded in an envelope.
type Strategy uint8

const (
	StrategyExpire  Strategy = 1
	StrategyVersion Strategy = 2
)

func (s Strategy) String() string {
	switch s {
	case StrategyExpire:
		return "expire"
	case StrategyVersion:
		return "version"
	default:
		return "unknown"
	}
}

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool { return s == StrategyExpire || s == StrategyVersion }

const (
	version byte = 1

	maxKeyLen = 0xFFFF
	// magic | ver | strategy | meta | keyLen | ... | plen | ... | crc
	fixedLen = 4 + 1 + 1 + 8 + 2 + 4 + 4
)

var (
	ErrCorrupt       = errors.New("filecache: corrupt entry")
	ErrKeyLength     = errors.New("filecache: key length out of range")
	ErrBadStrategy   = errors.New("filecache: unknown strategy")
	ErrPayloadLength = errors.New("filecache: payload too large for envelope")

	// maxPayloadLen is the largest payload the u32 length field can frame.
	maxPayloadLen uint64 = math.MaxUint32

	magic4   = [...]byte{'F', 'C', 'H', 'E'}
	crcTable = crc32.MakeTable(crc32.Castagnoli)
)

// Envelope is one decoded entry. Only the metadata field selected by
// Strategy is meaningful; the other is zero.
type Envelope struct {
	Key      string
	Strategy Strategy
	ExpireAt int64 // unix milliseconds
	Version  int64
	Payload  []byte
}

func (e Envelope) meta() int64 {
	if e.Strategy == StrategyExpire {
		return e.ExpireAt
	}
	return e.Version
}

// Encode frames e as:
//
//	magic(4) | ver(1) | strategy(1) | meta(i64 be) | keyLen(u16 be) | key | plen(u32 be) | payload | crc32c(u32 be)
//
// meta is ExpireAt for StrategyExpire and Version for StrategyVersion. The
// checksum covers every byte before it.
func Encode(e Envelope) ([]byte, error) {
	if l := len(e.Key); l == 0 || l > maxKeyLen {
		return nil, ErrKeyLength
	}
	if !e.Strategy.Valid() {
		return nil, ErrBadStrategy
	}
	if uint64(len(e.Payload)) > maxPayloadLen {
		return nil, ErrPayloadLength
	}

	var buf bytes.Buffer
	buf.Grow(fixedLen + len(e.Key) + len(e.Payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(byte(e.Strategy))

	var u8 [8]byte
	var u4 [4]byte
	var u2 [2]byte

	binary.BigEndian.PutUint64(u8[:], uint64(e.meta()))
	buf.Write(u8[:])

	binary.BigEndian.PutUint16(u2[:], uint16(len(e.Key)))
	buf.Write(u2[:])
	buf.WriteString(e.Key)

	binary.BigEndian.PutUint32(u4[:], uint32(len(e.Payload)))
	buf.Write(u4[:])
	buf.Write(e.Payload)

	binary.BigEndian.PutUint32(u4[:], checksum(buf.Bytes()))
	buf.Write(u4[:])
	return buf.Bytes(), nil
}

// Decode parses bytes produced by Encode. The returned payload aliases b.
func Decode(b []byte) (Envelope, error) {
	if len(b) < fixedLen || !bytes.Equal(b[:4], magic4[:]) || b[4] != version {
		return Envelope{}, ErrCorrupt
	}
	body, sum := b[:len(b)-4], b[len(b)-4:]
	if checksum(body) != binary.BigEndian.Uint32(sum) {
		return Envelope{}, ErrCorrupt
	}

	e := Envelope{Strategy: Strategy(b[5])}
	if !e.Strategy.Valid() {
		return Envelope{}, ErrCorrupt
	}
	off := 6

	meta := int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8
	if e.Strategy == StrategyExpire {
		e.ExpireAt = meta
	} else {
		e.Version = meta
	}

	klen := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2
	if klen == 0 || klen > len(body)-off-4 {
		return Envelope{}, ErrCorrupt
	}
	e.Key = string(b[off : off+klen])
	off += klen

	plen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	// payload must end exactly at the checksum
	if plen != len(body)-off {
		return Envelope{}, ErrCorrupt
	}
	e.Payload = b[off : off+plen]
	return e, nil
}

func checksum(b []byte) uint32 { return crc32.Checksum(b, crcTable) }
