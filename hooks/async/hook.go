// Package asynchook moves hook calls off the cache's worker goroutines.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{SelfHealEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	cache, _ := filecache.New[User](filecache.Options[User]{
//	    Root:  dir,
//	    Codec: codec.JSON[User]{},
//	    Hooks: hooks, // or `raw` if you don't want async
//	})
//
// Events are dropped, never blocked on, when the queue is full.
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/filecache"
)

type Hooks struct {
	inner filecache.Hooks

	mu      sync.RWMutex
	closed  bool
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	dropped atomic.Uint64
}

var _ filecache.Hooks = (*Hooks)(nil)

func New(inner filecache.Hooks, workers, qlen int) *Hooks {
	if inner == nil {
		inner = filecache.NopHooks{}
	}
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close delivers queued events and stops the workers. Events arriving after
// Close are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped returns how many events were discarded.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) SelfHeal(k, p, r string) { h.try(func() { h.inner.SelfHeal(k, p, r) }) }
func (h *Hooks) KeyCollision(k, sk, p string) {
	h.try(func() { h.inner.KeyCollision(k, sk, p) })
}
func (h *Hooks) SubmitRejected(op, k string, err error) {
	h.try(func() { h.inner.SubmitRejected(op, k, err) })
}
func (h *Hooks) CallbackPanic(op, k string, r any) {
	h.try(func() { h.inner.CallbackPanic(op, k, r) })
}
func (h *Hooks) TierError(op, p string, err error) { h.try(func() { h.inner.TierError(op, p, err) }) }
func (h *Hooks) Outcome(op, o, src string)         { h.try(func() { h.inner.Outcome(op, o, src) }) }
