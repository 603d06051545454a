// Package policy decides whether a decoded entry may be served.
package policy

import (
	"errors"
	"fmt"
	"time"

	"github.com/unkn0wn-root/filecache/internal/wire"
)

// ErrStrategyMismatch is returned when a query's strategy differs from the
// stored one. It signals caller/storage inconsistency, not a plain miss.
var ErrStrategyMismatch = errors.New("filecache: strategy mismatch")

// Verdict is the outcome of evaluating an entry.
type Verdict uint8

const (
	Hit Verdict = iota + 1
	Stale
)

func (v Verdict) String() string {
	switch v {
	case Hit:
		return "hit"
	case Stale:
		return "stale"
	default:
		return "unknown"
	}
}

// Query carries what a reader is willing to accept.
type Query struct {
	Strategy   wire.Strategy
	Now        time.Time // Expire queries
	MinVersion int64     // Version queries
}

// Expire builds a query against the wall clock.
func Expire(now time.Time) Query { return Query{Strategy: wire.StrategyExpire, Now: now} }

// Version builds a query accepting entries at minVersion or newer.
func Version(minVersion int64) Query {
	return Query{Strategy: wire.StrategyVersion, MinVersion: minVersion}
}

// Evaluate applies q to env. Expire entries are fresh while ExpireAt is
// strictly after q.Now (millisecond precision); version entries while
// Version >= q.MinVersion.
func Evaluate(env wire.Envelope, q Query) (Verdict, error) {
	if env.Strategy != q.Strategy {
		return 0, fmt.Errorf("%w: stored %s, queried %s", ErrStrategyMismatch, env.Strategy, q.Strategy)
	}
	switch q.Strategy {
	case wire.StrategyExpire:
		if env.ExpireAt > q.Now.UnixMilli() {
			return Hit, nil
		}
		return Stale, nil
	case wire.StrategyVersion:
		if env.Version >= q.MinVersion {
			return Hit, nil
		}
		return Stale, nil
	default:
		return 0, fmt.Errorf("%w: %d", wire.ErrBadStrategy, q.Strategy)
	}
}
