// Package filecache implements a disk-backed, key-addressed object cache with
// two invalidation strategies:
//
//   - Expire: an entry is served until an absolute deadline (unix ms).
//   - Version: an entry is served while its version is >= the reader's
//     minimum version.
//
// Puts and gets never block the caller. They run on a bounded scheduler and
// report through a callback invoked exactly once per call, on a goroutine the
// embedder picks with a scheduler.Dispatcher. Remove and Clear are
// synchronous.
//
// Layout:
//
//	<root>/cache/<16 hex digits of xxhash64(key)>
//
// Each file holds one envelope: the original key, the strategy, its metadata,
// the codec-encoded value and a CRC32-C checksum. Entries that are expired,
// outdated or unreadable are deleted by the read that finds them.
//
// Usage:
//
//	c, err := filecache.New(filecache.Options[User]{
//		Root:  dir,
//		Codec: codec.JSON[User]{},
//	})
//	...
//	c.PutWithExpireTime("user:1", u, time.Minute, func(err error) { ... })
//	c.GetOrExpire("user:1", func(u User, ok bool, err error) { ... })
//
// An optional memory tier (see package provider) can sit in front of the
// disk. It holds copies of envelope bytes only; freshness is always decided
// from the envelope.
package filecache
