package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolRunsTasks(t *testing.T) {
	p := NewPool(Config{Workers: 4, QueueDepth: 64})
	var n atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		if err := p.Submit(func() { defer wg.Done(); n.Add(1) }); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	wg.Wait()
	if got := n.Load(); got != 50 {
		t.Fatalf("ran %d tasks, want 50", got)
	}
	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestPoolRejectsWhenFull(t *testing.T) {
	p := NewPool(Config{Workers: 1, QueueDepth: 1})
	release := make(chan struct{})
	started := make(chan struct{})

	if err := p.Submit(func() { close(started); <-release }); err != nil {
		t.Fatalf("Submit #1: %v", err)
	}
	<-started // worker busy
	if err := p.Submit(func() {}); err != nil {
		t.Fatalf("Submit #2 should fill the queue: %v", err)
	}
	if err := p.Submit(func() {}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("Submit #3: got %v want ErrQueueFull", err)
	}
	if got := p.Pending(); got != 1 {
		t.Fatalf("Pending = %d, want 1", got)
	}

	close(release)
	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := p.Submit(func() {}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Submit after close: got %v want ErrClosed", err)
	}
}

func TestPoolRateLimit(t *testing.T) {
	p := NewPool(Config{Workers: 1, QueueDepth: 16, RatePerSec: 1, Burst: 2})
	defer p.Close(context.Background())

	for i := 0; i < 2; i++ {
		if err := p.Submit(func() {}); err != nil {
			t.Fatalf("Submit within burst: %v", err)
		}
	}
	if err := p.Submit(func() {}); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("got %v want ErrRateLimited", err)
	}
}

func TestPoolSurvivesPanics(t *testing.T) {
	var recovered atomic.Value
	p := NewPool(Config{Workers: 1, OnPanic: func(r any) { recovered.Store(r) }})
	defer p.Close(context.Background())

	if err := p.Submit(func() { panic("boom") }); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	done := make(chan struct{})
	if err := p.Submit(func() { close(done) }); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("worker died after panic")
	}
	if recovered.Load() != "boom" {
		t.Fatalf("OnPanic got %v", recovered.Load())
	}
}

func TestPoolCloseHonorsContext(t *testing.T) {
	p := NewPool(Config{Workers: 1})
	release := make(chan struct{})
	_ = p.Submit(func() { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v want deadline exceeded", err)
	}
	close(release)
	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestQueueDrainRunsOnCaller(t *testing.T) {
	q := NewQueue()
	var ran []int
	for i := 0; i < 3; i++ {
		i := i
		q.Dispatch(func() { ran = append(ran, i) })
	}
	if q.Len() != 3 {
		t.Fatalf("Len = %d, want 3", q.Len())
	}
	if n := q.Drain(); n != 3 {
		t.Fatalf("Drain = %d, want 3", n)
	}
	if len(ran) != 3 || ran[0] != 0 || ran[2] != 2 {
		t.Fatalf("unexpected order %v", ran)
	}
}

func TestQueueRun(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var n atomic.Int32
	errc := make(chan error, 1)
	go func() { errc <- q.Run(ctx) }()

	for i := 0; i < 10; i++ {
		q.Dispatch(func() { n.Add(1) })
	}
	q.Close()
	if err := <-errc; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := n.Load(); got != 10 {
		t.Fatalf("ran %d, want 10", got)
	}

	done := make(chan struct{})
	q.Dispatch(func() { close(done) })
	if q.Len() != 0 {
		t.Fatalf("closed queue accepted work")
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("completion dispatched after close never ran")
	}
}

func TestQueueRunStopsOnContext(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := q.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v want context.Canceled", err)
	}
}
