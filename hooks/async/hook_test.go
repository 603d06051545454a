package asynchook

import (
	"errors"
	"sync"
	"testing"

	"github.com/unkn0wn-root/filecache"
)

type countHooks struct {
	filecache.NopHooks
	mu     sync.Mutex
	events []string
	block  chan struct{}
}

func (c *countHooks) add(ev string) {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

func (c *countHooks) SelfHeal(_, _, reason string)         { c.add("heal:" + reason) }
func (c *countHooks) SubmitRejected(op, _ string, _ error) { c.add("rejected:" + op) }
func (c *countHooks) Outcome(op, o, _ string)              { c.add(op + ":" + o) }

func TestForwardsAndFlushesOnClose(t *testing.T) {
	inner := &countHooks{}
	h := New(inner, 2, 16)

	h.SelfHeal("k", "cache/00", filecache.ReasonExpired)
	h.SubmitRejected("put", "k", errors.New("full"))
	h.Outcome("get", filecache.OutcomeHit, "disk")
	h.Close()

	inner.mu.Lock()
	defer inner.mu.Unlock()
	if len(inner.events) != 3 {
		t.Fatalf("events=%v", inner.events)
	}
	if h.Dropped() != 0 {
		t.Fatalf("dropped=%d", h.Dropped())
	}
}

func TestDropsWhenFullAndAfterClose(t *testing.T) {
	inner := &countHooks{block: make(chan struct{})}
	h := New(inner, 1, 1)

	// The blocked worker holds at most one event and the queue one more.
	h.Outcome("get", "hit", "")
	h.Outcome("get", "hit", "")
	h.Outcome("get", "hit", "")
	h.Outcome("get", "hit", "")
	if h.Dropped() == 0 {
		t.Fatalf("expected drops with a full queue")
	}

	close(inner.block)
	h.Close()
	before := h.Dropped()
	h.SelfHeal("k", "p", "corrupt")
	if h.Dropped() != before+1 {
		t.Fatalf("event after Close not dropped")
	}
	h.Close()
}
