package filecache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	c "github.com/unkn0wn-root/filecache/codec"
	"github.com/unkn0wn-root/filecache/internal/keylock"
	"github.com/unkn0wn-root/filecache/internal/policy"
	"github.com/unkn0wn-root/filecache/internal/resolve"
	"github.com/unkn0wn-root/filecache/internal/wire"
	pr "github.com/unkn0wn-root/filecache/provider"
	"github.com/unkn0wn-root/filecache/scheduler"
	"github.com/unkn0wn-root/filecache/storage"
)

const (
	defaultBackendTimeout = 250 * time.Millisecond

	sourceTier = "tier"
	sourceDisk = "disk"
)

var errEmptyKey = errors.New("key is empty")

type cache[V any] struct {
	codec c.Codec[V]
	store *storage.Engine
	res   *resolve.Resolver
	tier  pr.Provider

	sched    scheduler.Scheduler
	ownSched bool
	disp     scheduler.Dispatcher

	log     Logger
	hooks   Hooks
	now     func() time.Time
	timeout time.Duration

	// Locks, always taken in this order:
	//   - clearMu is held shared by every entry operation and exclusively
	//     by Clear, so no write lands in the middle of a clear.
	//   - entries is the facade's per-path lock. It spans the whole
	//     read-evaluate-heal or write-then-tier sequence of one operation,
	//     so disk and tier always hold the same bytes.
	//   - storage.Engine takes its own per-path lock inside each single
	//     Read, Write or Delete. That lock alone guarantees no torn file and
	//     read-after-write for callers of storage used directly.
	clearMu sync.RWMutex
	entries keylock.Table

	mu       sync.RWMutex
	closed   bool
	inflight sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

func newCache[V any](opts Options[V]) (*cache[V], error) {
	if opts.Codec == nil {
		return nil, fmt.Errorf("filecache: codec is required")
	}

	var sopts []storage.Option
	if opts.AtomicWrites {
		sopts = append(sopts, storage.WithAtomicWrites(true))
	}
	var (
		store *storage.Engine
		err   error
	)
	switch {
	case opts.Filesystem != nil:
		store, err = storage.New(opts.Filesystem, sopts...)
	case opts.Root != "":
		store, err = storage.NewOS(opts.Root, sopts...)
	default:
		return nil, fmt.Errorf("filecache: root is required")
	}
	if err != nil {
		return nil, fmt.Errorf("filecache: %w", err)
	}
	if err := store.Init(resolve.Dir); err != nil {
		return nil, fmt.Errorf("filecache: %w", err)
	}

	res, err := resolve.New(opts.IndexSize)
	if err != nil {
		return nil, fmt.Errorf("filecache: %w", err)
	}

	cc := &cache[V]{
		codec: opts.Codec,
		store: store,
		res:   res,
		tier:  opts.Tier,
		now:   opts.Now,
	}
	cc.log = coalesce[Logger](opts.Logger, NopLogger{})
	cc.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	cc.disp = coalesce[scheduler.Dispatcher](opts.Dispatcher, scheduler.Inline{})
	cc.timeout = coalesce(opts.BackendTimeout, defaultBackendTimeout)
	if cc.now == nil {
		cc.now = time.Now
	}

	if opts.Scheduler != nil {
		cc.sched = opts.Scheduler
	} else {
		cc.sched = scheduler.NewPool(scheduler.Config{
			Workers:    opts.Workers,
			QueueDepth: opts.QueueDepth,
			RatePerSec: opts.RatePerSec,
			Burst:      opts.Burst,
			OnPanic: func(r any) {
				cc.log.Error("filecache: worker panic", Fields{"panic": r})
			},
		})
		cc.ownSched = true
	}
	return cc, nil
}

func (cc *cache[V]) PutWithExpireTime(key string, value V, d time.Duration, cb PutCallback) {
	if key == "" {
		cc.failPut(key, cb, opErr("put", key, ErrInvalidArgument, errEmptyKey))
		return
	}
	env := wire.Envelope{Strategy: wire.StrategyExpire, ExpireAt: cc.now().Add(d).UnixMilli()}
	cc.schedulePut(key, value, func() (wire.Envelope, error) { return env, nil }, cb)
}

func (cc *cache[V]) PutWithVersion(key string, value V, version int64, cb PutCallback) {
	if key == "" {
		cc.failPut(key, cb, opErr("put", key, ErrInvalidArgument, errEmptyKey))
		return
	}
	env := wire.Envelope{Strategy: wire.StrategyVersion, Version: version}
	cc.schedulePut(key, value, func() (wire.Envelope, error) { return env, nil }, cb)
}

func (cc *cache[V]) GetOrExpire(key string, cb GetCallback[V]) {
	if key == "" {
		cc.failGet(key, cb, opErr("get", key, ErrInvalidArgument, errEmptyKey))
		return
	}
	cc.scheduleGet(key, func() (policy.Query, error) { return policy.Expire(cc.now()), nil }, cb)
}

func (cc *cache[V]) GetOrOldVersion(key string, minVersion int64, cb GetCallback[V]) {
	if key == "" {
		cc.failGet(key, cb, opErr("get", key, ErrInvalidArgument, errEmptyKey))
		return
	}
	q := policy.Version(minVersion)
	cc.scheduleGet(key, func() (policy.Query, error) { return q, nil }, cb)
}

// Remove deletes the entry for key from disk, tier and index. It runs on
// the caller and returns true only if a file was deleted.
func (cc *cache[V]) Remove(key string) (bool, error) {
	if key == "" {
		return false, opErr("remove", key, ErrInvalidArgument, errEmptyKey)
	}
	if cc.isClosed() {
		return false, opErr("remove", key, ErrClosed, nil)
	}

	cc.clearMu.RLock()
	defer cc.clearMu.RUnlock()

	h := cc.res.Resolve(key)
	unlock := cc.entries.Lock(h.Path)
	defer unlock()

	removed, err := cc.store.Delete(h.Path)
	cc.tierDel(h.Path)
	if err != nil {
		return false, opErr("remove", key, ErrIO, err)
	}
	cc.res.Forget(key)
	return removed, nil
}

// Clear deletes every entry file, empties the tier and purges the index.
// In-flight puts and gets finish before it starts; new ones wait for it.
func (cc *cache[V]) Clear() error {
	if cc.isClosed() {
		return opErr("clear", "", ErrClosed, nil)
	}

	cc.clearMu.Lock()
	defer cc.clearMu.Unlock()

	var errs []error
	n, err := cc.store.DeleteAll(resolve.Dir)
	if err != nil {
		kind := ErrIO
		if errors.Is(err, storage.ErrEnumerate) {
			kind = ErrEnumerate
		}
		errs = append(errs, opErr("clear", "", kind, err))
	}
	if cc.tier != nil {
		ctx, cancel := context.WithTimeout(context.Background(), cc.timeout)
		if err := cc.tier.Clear(ctx); err != nil {
			cc.hooks.TierError("clear", "", err)
			errs = append(errs, opErr("clear", "", ErrIO, fmt.Errorf("tier: %w", err)))
		}
		cancel()
	}
	cc.res.Purge()

	cc.log.Info("filecache: cleared", Fields{"removed": n, "errors": len(errs)})
	if len(errs) == 1 {
		return errs[0]
	}
	return errors.Join(errs...)
}

func (cc *cache[V]) Len() (int, error) {
	names, err := cc.store.List(resolve.Dir)
	if err != nil {
		return 0, opErr("len", "", ErrEnumerate, err)
	}
	return len(names), nil
}

// Close rejects new operations with ErrClosed and waits for scheduled ones,
// including their delivery: callbacks run by the Inline dispatcher have
// returned by the time Close does, whichever Scheduler ran them. Calling
// Close from such a callback therefore waits until ctx is done.
// An owned scheduler is shut down; a *scheduler.Queue dispatcher is closed
// so a running Queue.Run returns once pending completions are delivered.
// The tier, if any, is closed last.
func (cc *cache[V]) Close(ctx context.Context) error {
	cc.closeOnce.Do(func() {
		cc.mu.Lock()
		cc.closed = true
		cc.mu.Unlock()

		if err := cc.wait(ctx); err != nil {
			cc.closeErr = err
			return
		}
		var errs []error
		if cc.ownSched {
			if err := cc.sched.Close(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		if q, ok := cc.disp.(*scheduler.Queue); ok {
			q.Close()
		}
		if cc.tier != nil {
			if err := cc.tier.Close(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tier: %w", err))
			}
		}
		cc.closeErr = errors.Join(errs...)
	})
	return cc.closeErr
}

func (cc *cache[V]) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		cc.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (cc *cache[V]) isClosed() bool {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return cc.closed
}

// ---- background work ----

func (cc *cache[V]) schedulePut(key string, value V, stamp func() (wire.Envelope, error), cb PutCallback) {
	cc.submit("put", key, func() func() {
		err := cc.guard("put", key, func() error {
			env, err := stamp()
			if err != nil {
				return err
			}
			return cc.put(key, value, env)
		})
		return func() { cc.deliverPut(key, cb, err) }
	}, func(err error) { cc.deliverPut(key, cb, err) })
}

func (cc *cache[V]) scheduleGet(key string, query func() (policy.Query, error), cb GetCallback[V]) {
	cc.submit("get", key, func() func() {
		var (
			v  V
			ok bool
		)
		err := cc.guard("get", key, func() error {
			q, err := query()
			if err != nil {
				return err
			}
			var gerr error
			v, ok, gerr = cc.get(key, q)
			return gerr
		})
		if err != nil {
			var zero V
			v, ok = zero, false
		}
		return func() { cc.deliverGet(key, cb, v, ok, err) }
	}, func(err error) {
		var zero V
		cc.deliverGet(key, cb, zero, false, err)
	})
}

// submit hands task to the scheduler. task does the work and returns the
// delivery of its result; the operation counts as in flight until that
// delivery has been dispatched. When the cache is closed or the scheduler refuses, fail
// receives the error on a fresh goroutine so the callback never runs on the
// caller's stack.
func (cc *cache[V]) submit(op, key string, task func() (deliver func()), fail func(error)) {
	cc.mu.RLock()
	if cc.closed {
		cc.mu.RUnlock()
		cc.rejected(op, key, scheduler.ErrClosed, fail)
		return
	}
	cc.inflight.Add(1)
	cc.mu.RUnlock()

	err := cc.sched.Submit(func() {
		defer cc.inflight.Done()
		deliver := task()
		deliver()
	})
	if err != nil {
		cc.inflight.Done()
		cc.rejected(op, key, err, fail)
	}
}

func (cc *cache[V]) rejected(op, key string, err error, fail func(error)) {
	cc.hooks.SubmitRejected(op, key, err)
	cc.log.Warn("filecache: operation rejected", Fields{"op": op, "key": key, "err": err})
	e := opErr(op, key, submitKind(err), err)
	go fail(e)
}

func (cc *cache[V]) failPut(key string, cb PutCallback, err error) {
	go cc.deliverPut(key, cb, err)
}

func (cc *cache[V]) failGet(key string, cb GetCallback[V], err error) {
	var zero V
	go cc.deliverGet(key, cb, zero, false, err)
}

// guard turns a panic inside fn into an ErrPanic failure for the callback.
func (cc *cache[V]) guard(op, key string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			cc.log.Error("filecache: task panic", Fields{"op": op, "key": key, "panic": r})
			err = opErr(op, key, ErrPanic, fmt.Errorf("%v", r))
		}
	}()
	return fn()
}

func (cc *cache[V]) deliverPut(key string, cb PutCallback, err error) {
	if cb == nil {
		return
	}
	cc.deliver("put", key, func() { cb(err) })
}

func (cc *cache[V]) deliverGet(key string, cb GetCallback[V], v V, ok bool, err error) {
	if cb == nil {
		return
	}
	cc.deliver("get", key, func() { cb(v, ok, err) })
}

func (cc *cache[V]) deliver(op, key string, fn func()) {
	cc.disp.Dispatch(func() {
		defer func() {
			if r := recover(); r != nil {
				cc.hooks.CallbackPanic(op, key, r)
				cc.log.Error("filecache: callback panic", Fields{"op": op, "key": key, "panic": r})
			}
		}()
		fn()
	})
}

// ---- entry operations (worker goroutines) ----

func (cc *cache[V]) put(key string, value V, env wire.Envelope) error {
	payload, err := cc.codec.Encode(value)
	if err != nil {
		return opErr("put", key, ErrInvalidArgument, fmt.Errorf("encode value: %w", err))
	}
	env.Key = key
	env.Payload = payload
	raw, err := wire.Encode(env)
	if err != nil {
		return opErr("put", key, ErrInvalidArgument, err)
	}

	cc.clearMu.RLock()
	defer cc.clearMu.RUnlock()

	h := cc.res.Resolve(key)
	unlock := cc.entries.Lock(h.Path)
	defer unlock()

	if err := cc.store.Write(h.Path, raw); err != nil {
		cc.hooks.Outcome("put", OutcomeError, "")
		return opErr("put", key, ErrIO, err)
	}
	cc.tierSet(h.Path, raw, cc.tierTTL(env))
	cc.hooks.Outcome("put", OutcomeStored, "")
	return nil
}

func (cc *cache[V]) get(key string, q policy.Query) (V, bool, error) {
	var zero V

	cc.clearMu.RLock()
	defer cc.clearMu.RUnlock()

	h := cc.res.Resolve(key)
	unlock := cc.entries.Lock(h.Path)
	defer unlock()

	raw, src, err := cc.load(h.Path)
	if err != nil {
		cc.hooks.Outcome("get", OutcomeError, sourceDisk)
		return zero, false, opErr("get", key, ErrIO, err)
	}
	if raw == nil {
		cc.hooks.Outcome("get", OutcomeMiss, "")
		return zero, false, nil
	}

	env, err := wire.Decode(raw)
	if err != nil {
		cc.heal(h, ReasonCorrupt)
		cc.hooks.Outcome("get", OutcomeError, src)
		return zero, false, opErr("get", key, ErrDecode, err)
	}
	if env.Key != key {
		cc.hooks.KeyCollision(key, env.Key, h.Path)
		cc.hooks.Outcome("get", OutcomeCollision, src)
		cc.log.Warn("filecache: key hash collision", Fields{"key": key, "stored_key": env.Key, "path": h.Path})
		return zero, false, nil
	}

	verdict, err := policy.Evaluate(env, q)
	if err != nil {
		cc.hooks.Outcome("get", OutcomeError, src)
		kind := ErrDecode
		if errors.Is(err, policy.ErrStrategyMismatch) {
			kind = ErrStrategyMismatch
		}
		return zero, false, opErr("get", key, kind, err)
	}
	if verdict == policy.Stale {
		reason := ReasonExpired
		if env.Strategy == wire.StrategyVersion {
			reason = ReasonOldVersion
		}
		cc.heal(h, reason)
		cc.hooks.Outcome("get", OutcomeStale, src)
		return zero, false, nil
	}

	v, err := cc.codec.Decode(env.Payload)
	if err != nil {
		cc.heal(h, ReasonValueDecode)
		cc.hooks.Outcome("get", OutcomeError, src)
		return zero, false, opErr("get", key, ErrDecode, fmt.Errorf("decode value: %w", err))
	}
	if src == sourceDisk {
		cc.tierSet(h.Path, raw, cc.tierTTL(env))
	}
	cc.hooks.Outcome("get", OutcomeHit, src)
	return v, true, nil
}

// load returns the envelope bytes for path, trying the tier first. A tier
// failure is reported and falls through to disk. (nil, "", nil) is absent.
func (cc *cache[V]) load(path string) ([]byte, string, error) {
	if cc.tier != nil {
		ctx, cancel := context.WithTimeout(context.Background(), cc.timeout)
		raw, ok, err := cc.tier.Get(ctx, path)
		cancel()
		if err != nil {
			cc.hooks.TierError("get", path, err)
			cc.log.Warn("filecache: tier get failed", Fields{"path": path, "err": err})
		} else if ok {
			return raw, sourceTier, nil
		}
	}
	raw, ok, err := cc.store.Read(path)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return nil, "", nil
	}
	return raw, sourceDisk, nil
}

// heal deletes an entry the read path refused to serve.
func (cc *cache[V]) heal(h resolve.Handle, reason string) {
	if _, err := cc.store.Delete(h.Path); err != nil {
		cc.log.Warn("filecache: self-heal delete failed", Fields{"key": h.Key, "path": h.Path, "err": err})
	}
	cc.tierDel(h.Path)
	cc.res.Forget(h.Key)
	cc.hooks.SelfHeal(h.Key, h.Path, reason)
	cc.log.Debug("filecache: self-heal", Fields{"key": h.Key, "path": h.Path, "reason": reason})
}

// tierTTL bounds a tier copy by the entry's own deadline. Version entries
// never expire by time. A negative result means the entry is already stale.
func (cc *cache[V]) tierTTL(env wire.Envelope) time.Duration {
	if env.Strategy != wire.StrategyExpire {
		return 0
	}
	ttl := time.UnixMilli(env.ExpireAt).Sub(cc.now())
	if ttl <= 0 {
		return -1
	}
	return ttl
}

func (cc *cache[V]) tierSet(path string, raw []byte, ttl time.Duration) {
	if cc.tier == nil || ttl < 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cc.timeout)
	defer cancel()
	ok, err := cc.tier.Set(ctx, path, bytes.Clone(raw), ttl)
	switch {
	case err != nil:
		cc.hooks.TierError("set", path, err)
		cc.log.Warn("filecache: tier set failed", Fields{"path": path, "err": err})
	case !ok:
		cc.hooks.TierError("set", path, errTierRejected)
	}
}

var errTierRejected = errors.New("tier declined write")

func (cc *cache[V]) tierDel(path string) {
	if cc.tier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cc.timeout)
	defer cancel()
	if err := cc.tier.Del(ctx, path); err != nil {
		cc.hooks.TierError("del", path, err)
		cc.log.Warn("filecache: tier delete failed", Fields{"path": path, "err": err})
	}
}
