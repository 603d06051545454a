package scheduler

import (
	"context"
	"sync"
)

// Dispatcher decides where completion callbacks run.
type Dispatcher interface {
	Dispatch(fn func())
}

// Inline runs completions on the goroutine that finished the work.
type Inline struct{}

func (Inline) Dispatch(fn func()) { fn() }

// Go runs every completion on its own goroutine.
type Go struct{}

func (Go) Dispatch(fn func()) { go fn() }

// Queue is an explicit completion queue. Completions accumulate until the
// owner drains them with Drain or Run, which lets an event loop deliver
// callbacks on its own goroutine. The queue is unbounded so workers never
// stall on a slow consumer.
type Queue struct {
	mu     sync.Mutex
	items  []func()
	notify chan struct{}
	closed bool
}

var _ Dispatcher = (*Queue)(nil)

func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

func (q *Queue) Dispatch(fn func()) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		go fn()
		return
	}
	q.items = append(q.items, fn)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Len returns the number of pending completions.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain runs every pending completion on the calling goroutine and returns
// how many ran.
func (q *Queue) Drain() int {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()

	for _, fn := range items {
		fn()
	}
	return len(items)
}

// Run drains completions as they arrive until ctx is done or the queue is
// closed. Completions still pending at close are run before Run returns.
func (q *Queue) Run(ctx context.Context) error {
	for {
		q.Drain()
		q.mu.Lock()
		closed := q.closed
		q.mu.Unlock()
		if closed {
			q.Drain()
			return nil
		}
		select {
		case <-q.notify:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops queueing completions. Pending ones can still be drained;
// completions dispatched after Close run on their own goroutine.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
