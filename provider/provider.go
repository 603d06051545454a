// Package provider defines the optional in-memory (or shared) tier that the
// disk cache consults before touching the filesystem.
//
// A tier holds exact copies of the envelope bytes stored on disk, keyed by
// the entry's storage path. The disk stays authoritative: the cache writes
// through, deletes from both places and evaluates freshness on every read,
// so a tier may drop entries at any time without affecting correctness.
//
// Implementations MUST be byte-for-byte transparent: Get returns exactly the
// bytes previously passed to Set.
package provider

import (
	"context"
	"time"
)

// Provider is a minimal byte store with TTLs. Must be safe for concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value. ttl <= 0 means no expiry. ok=false reports that the
	// store declined the write (admission, pressure).
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) (ok bool, err error)

	// Del removes a key; missing keys are not an error.
	Del(ctx context.Context, key string) error

	// Clear drops every entry owned by this provider.
	Clear(ctx context.Context) error

	// Close releases resources.
	Close(ctx context.Context) error
}
