// Package resolve maps cache keys to storage locations.
//
// A key's file name is the 64-bit xxhash of the key in hex. Distinct keys
// that hash alike share a file; the envelope carries the original key so the
// read path can tell them apart.
package resolve

import (
	"fmt"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Dir is the subdirectory of the storage root holding entry files.
const Dir = "cache"

// DefaultIndexSize is used when New is given a non-positive size.
const DefaultIndexSize = 1024

// Handle identifies the storage location of a single key.
type Handle struct {
	Key  string
	Name string // file name inside Dir
	Path string // Dir/Name, relative to the storage root
}

// Name derives the file name for key.
func Name(key string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(key))
}

// Derive computes the handle for key without consulting any index.
func Derive(key string) Handle {
	n := Name(key)
	return Handle{Key: key, Name: n, Path: filepath.Join(Dir, n)}
}

// Resolver derives handles and keeps the most recently resolved ones in a
// fixed-capacity LRU index. Safe for concurrent use.
type Resolver struct {
	idx *lru.Cache[string, Handle]
}

func New(size int) (*Resolver, error) {
	if size <= 0 {
		size = DefaultIndexSize
	}
	idx, err := lru.New[string, Handle](size)
	if err != nil {
		return nil, fmt.Errorf("resolve: index: %w", err)
	}
	return &Resolver{idx: idx}, nil
}

// Resolve returns the handle for key. Evicted or unseen keys are derived
// again and re-inserted; the result is identical either way.
func (r *Resolver) Resolve(key string) Handle {
	if h, ok := r.idx.Get(key); ok {
		return h
	}
	h := Derive(key)
	r.idx.Add(key, h)
	return h
}

// Forget drops key from the index.
func (r *Resolver) Forget(key string) { r.idx.Remove(key) }

// Purge empties the index.
func (r *Resolver) Purge() { r.idx.Purge() }

// Indexed reports whether key currently has an index entry.
func (r *Resolver) Indexed(key string) bool { return r.idx.Contains(key) }

func (r *Resolver) Len() int { return r.idx.Len() }
