package promhooks

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/unkn0wn-root/filecache"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	h, err := New(reg, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	h.SelfHeal("k", "cache/00", filecache.ReasonExpired)
	h.SelfHeal("k", "cache/00", filecache.ReasonExpired)
	h.SelfHeal("k", "cache/00", filecache.ReasonCorrupt)
	h.KeyCollision("a", "b", "cache/01")
	h.SubmitRejected("put", "k", filecache.ErrQueueFull)
	h.SubmitRejected("get", "k", filecache.ErrClosed)
	h.CallbackPanic("get", "k", "boom")
	h.TierError("set", "cache/00", nil)
	h.Outcome("get", filecache.OutcomeHit, "tier")

	if got := testutil.ToFloat64(h.selfHeals.WithLabelValues(filecache.ReasonExpired)); got != 2 {
		t.Fatalf("expired heals=%v", got)
	}
	if got := testutil.ToFloat64(h.collisions); got != 1 {
		t.Fatalf("collisions=%v", got)
	}
	if got := testutil.ToFloat64(h.rejected.WithLabelValues("put", "queue_full")); got != 1 {
		t.Fatalf("queue_full=%v", got)
	}
	if got := testutil.ToFloat64(h.rejected.WithLabelValues("get", "closed")); got != 1 {
		t.Fatalf("closed=%v", got)
	}
	if got := testutil.ToFloat64(h.outcomes.WithLabelValues("get", "hit", "tier")); got != 1 {
		t.Fatalf("hits=%v", got)
	}
	if n := testutil.CollectAndCount(h.selfHeals); n != 2 {
		t.Fatalf("self heal series=%d", n)
	}
}

func TestDuplicateRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := New(reg, "x"); err != nil {
		t.Fatal(err)
	}
	if _, err := New(reg, "x"); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}
