package filecache

import (
	"context"
	"time"

	"github.com/go-git/go-billy/v5"

	c "github.com/unkn0wn-root/filecache/codec"
	pr "github.com/unkn0wn-root/filecache/provider"
	"github.com/unkn0wn-root/filecache/scheduler"
	"github.com/unkn0wn-root/filecache/versionstore"
)

// PutCallback receives the outcome of a put. err == nil means stored.
type PutCallback func(err error)

// GetCallback receives the outcome of a get. ok=false with err=nil is a
// miss (absent, expired or outdated); err != nil is a failure.
type GetCallback[V any] func(v V, ok bool, err error)

// VersionSource names the scope whose current version a put is stamped with,
// or a get requires. An empty Scope uses the key itself.
type VersionSource struct {
	Store versionstore.Store
	Scope string
}

// Cache is the public API. V is the caller's value type; serialization is
// handled by the Codec in Options.
type Cache[V any] interface {
	// PutWithExpireTime stores value until now+d. With d <= 0 the entry is
	// stored already expired.
	PutWithExpireTime(key string, value V, d time.Duration, cb PutCallback)
	// PutWithVersion stores value tagged with version. Any int64 is a
	// valid version.
	PutWithVersion(key string, value V, version int64, cb PutCallback)
	// PutWithCurrentVersion stores value tagged with the source's current
	// version, read inside the background task.
	PutWithCurrentVersion(key string, value V, src VersionSource, cb PutCallback)

	// GetOrExpire serves an Expire entry whose deadline has not passed.
	GetOrExpire(key string, cb GetCallback[V])
	// GetOrOldVersion serves a Version entry with version >= minVersion.
	GetOrOldVersion(key string, minVersion int64, cb GetCallback[V])
	// GetOrCurrentVersion serves a Version entry at or above the source's
	// current version.
	GetOrCurrentVersion(key string, src VersionSource, cb GetCallback[V])

	// Remove deletes key and reports whether a file was removed.
	Remove(key string) (bool, error)
	// Clear deletes every entry. A failure to enumerate is returned.
	Clear() error
	// Len counts entry files on disk.
	Len() (int, error)

	// Close stops accepting work and waits for scheduled operations, and
	// the callbacks the dispatcher runs inline for them, or ctx.
	Close(ctx context.Context) error
}

// Options configure a Cache. Root (or Filesystem) and Codec are required;
// everything else has a default.
type Options[V any] struct {
	// Required
	Root  string // storage root, created if missing
	Codec c.Codec[V]

	// Filesystem replaces the osfs rooted at Root (memfs in tests).
	Filesystem billy.Filesystem

	IndexSize    int  // resolver LRU capacity; 0 => 1024
	AtomicWrites bool // temp file + rename instead of overwrite in place

	// Pool sizing, ignored when Scheduler is set.
	Workers    int     // 0 => GOMAXPROCS
	QueueDepth int     // 0 => 1024
	RatePerSec float64 // 0 => unlimited
	Burst      int

	Scheduler  scheduler.Scheduler  // nil => owned scheduler.Pool
	Dispatcher scheduler.Dispatcher // nil => scheduler.Inline

	Tier pr.Provider // optional memory tier

	// BackendTimeout bounds each tier and version store call; 0 => 250ms.
	BackendTimeout time.Duration

	Logger Logger // nil => NopLogger
	Hooks  Hooks  // nil => NopHooks

	// Now overrides the clock used for expiry (tests).
	Now func() time.Time
}

func New[V any](opts Options[V]) (Cache[V], error) {
	cc, err := newCache[V](opts)
	if err != nil {
		return nil, err
	}
	return cc, nil
}
