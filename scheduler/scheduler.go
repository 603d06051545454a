// Package scheduler runs cache work off the caller's goroutine and delivers
// completions on a context chosen by the embedder.
//
// Pool is a fixed set of workers draining a bounded queue. Submit never
// blocks: when the queue is full (or the optional rate limit is exhausted)
// the task is rejected and the caller decides what to do.
package scheduler

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"golang.org/x/time/rate"
)

var (
	ErrQueueFull   = errors.New("scheduler: queue full")
	ErrRateLimited = errors.New("scheduler: rate limited")
	ErrClosed      = errors.New("scheduler: closed")
)

// Scheduler accepts units of work and returns immediately.
type Scheduler interface {
	// Submit enqueues task. A non-nil error means task will never run.
	Submit(task func()) error
	// Close stops accepting work and waits for queued tasks or ctx.
	Close(ctx context.Context) error
}

// Config sizes a Pool. Zero values pick defaults.
type Config struct {
	Workers    int     // 0 => GOMAXPROCS
	QueueDepth int     // 0 => 1024
	RatePerSec float64 // 0 => unlimited
	Burst      int     // 0 => max(1, RatePerSec)
	// OnPanic receives values recovered from tasks. The worker survives.
	OnPanic func(recovered any)
}

// Pool is the default Scheduler.
type Pool struct {
	q       chan func()
	lim     *rate.Limiter
	onPanic func(any)

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	once   sync.Once
}

var _ Scheduler = (*Pool)(nil)

func NewPool(cfg Config) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	depth := cfg.QueueDepth
	if depth <= 0 {
		depth = 1024
	}

	p := &Pool{q: make(chan func(), depth), onPanic: cfg.OnPanic}
	if cfg.RatePerSec > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = max(1, int(cfg.RatePerSec))
		}
		p.lim = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer p.wg.Done()
			for task := range p.q {
				p.run(task)
			}
		}()
	}
	return p
}

func (p *Pool) run(task func()) {
	defer func() {
		if r := recover(); r != nil && p.onPanic != nil {
			p.onPanic(r)
		}
	}()
	task()
}

func (p *Pool) Submit(task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	if p.lim != nil && !p.lim.Allow() {
		return ErrRateLimited
	}
	select {
	case p.q <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending returns the number of queued, not yet started tasks.
func (p *Pool) Pending() int { return len(p.q) }

func (p *Pool) Close(ctx context.Context) error {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.q)
		p.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
