// Package promhooks exports cache events as Prometheus counters.
package promhooks

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/filecache"
)

// Hooks counts events. Labels never include keys, only bounded values.
type Hooks struct {
	selfHeals  *prometheus.CounterVec
	collisions prometheus.Counter
	rejected   *prometheus.CounterVec
	panics     *prometheus.CounterVec
	tierErrors *prometheus.CounterVec
	outcomes   *prometheus.CounterVec
}

var _ filecache.Hooks = (*Hooks)(nil)

// New registers the collectors on reg under namespace (default "filecache").
func New(reg prometheus.Registerer, namespace string) (*Hooks, error) {
	if namespace == "" {
		namespace = "filecache"
	}
	h := &Hooks{
		selfHeals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "self_heals_total",
			Help:      "Entries deleted by the read that found them unusable.",
		}, []string{"reason"}),
		collisions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "key_collisions_total",
			Help:      "Reads that found another key in the entry file.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_total",
			Help:      "Operations refused by the scheduler.",
		}, []string{"op", "kind"}),
		panics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callback_panics_total",
			Help:      "Completion callbacks that panicked.",
		}, []string{"op"}),
		tierErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tier_errors_total",
			Help:      "Memory tier failures and declined writes.",
		}, []string{"op"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Finished puts and gets by outcome and source.",
		}, []string{"op", "outcome", "source"}),
	}
	for _, c := range []prometheus.Collector{h.selfHeals, h.collisions, h.rejected, h.panics, h.tierErrors, h.outcomes} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *Hooks) SelfHeal(_, _, reason string) { h.selfHeals.WithLabelValues(reason).Inc() }

func (h *Hooks) KeyCollision(string, string, string) { h.collisions.Inc() }

func (h *Hooks) SubmitRejected(op, _ string, err error) {
	h.rejected.WithLabelValues(op, rejectKind(err)).Inc()
}

func (h *Hooks) CallbackPanic(op, _ string, _ any) { h.panics.WithLabelValues(op).Inc() }

func (h *Hooks) TierError(op, _ string, _ error) { h.tierErrors.WithLabelValues(op).Inc() }

func (h *Hooks) Outcome(op, outcome, source string) {
	h.outcomes.WithLabelValues(op, outcome, source).Inc()
}

func rejectKind(err error) string {
	switch {
	case errors.Is(err, filecache.ErrQueueFull):
		return "queue_full"
	case errors.Is(err, filecache.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, filecache.ErrClosed):
		return "closed"
	default:
		return "other"
	}
}
