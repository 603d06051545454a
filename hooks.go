package filecache

// Self-heal reasons passed to Hooks.SelfHeal.
const (
	ReasonExpired     = "expired"
	ReasonOldVersion  = "old_version"
	ReasonCorrupt     = "corrupt"
	ReasonValueDecode = "value_decode"
)

// Outcomes passed to Hooks.Outcome.
const (
	OutcomeHit       = "hit"
	OutcomeMiss      = "miss"
	OutcomeStale     = "stale"
	OutcomeCollision = "collision"
	OutcomeError     = "error"
	OutcomeStored    = "stored"
)

// Hooks receives high-signal cache events.
// Implementations MUST be cheap and non-blocking: they run on worker
// goroutines in the middle of an operation.
type Hooks interface {
	// An entry was deleted on read. reason is one of the Reason* constants.
	SelfHeal(key, path, reason string)

	// The file for key holds another key with the same hash. The entry is
	// left alone and the read reports a miss.
	KeyCollision(key, storedKey, path string)

	// The scheduler refused an operation (queue full, rate limited, closed).
	SubmitRejected(op, key string, err error)

	// A completion callback panicked; the value was recovered.
	CallbackPanic(op, key string, recovered any)

	// The memory tier failed or declined a write. The disk result stands.
	TierError(op, path string, err error)

	// A put or get finished. source is "tier", "disk" or "" for misses and puts.
	Outcome(op, outcome, source string)
}

// NopHooks is the default no-op.
type NopHooks struct{}

func (NopHooks) SelfHeal(string, string, string)      {}
func (NopHooks) KeyCollision(string, string, string)  {}
func (NopHooks) SubmitRejected(string, string, error) {}
func (NopHooks) CallbackPanic(string, string, any)    {}
func (NopHooks) TierError(string, string, error)      {}
func (NopHooks) Outcome(string, string, string)       {}
