// Package versionstore keeps the current version number of a logical scope
// (a table, a tenant, a whole dataset). Entries written with
// PutWithCurrentVersion carry the scope's version at write time; bumping the
// scope makes every older entry stale for GetOrCurrentVersion readers.
package versionstore

import "context"

// Store abstracts where versions live. Local keeps them in-process; Redis
// shares them across processes and restarts.
type Store interface {
	// Current returns the version of scope; an unknown scope is at 0.
	Current(ctx context.Context, scope string) (int64, error)
	// Bump atomically increments scope and returns the new version.
	Bump(ctx context.Context, scope string) (int64, error)
	// Close releases resources (no-op ok).
	Close(ctx context.Context) error
}
