package filecache

import (
	"errors"
	"fmt"

	"github.com/unkn0wn-root/filecache/internal/policy"
	"github.com/unkn0wn-root/filecache/scheduler"
	"github.com/unkn0wn-root/filecache/storage"
)

// Kinds of failure. Match with errors.Is; every error the cache reports is an
// *OpError wrapping exactly one of these.
var (
	ErrIO               = errors.New("filecache: i/o failure")
	ErrDecode           = errors.New("filecache: decode failure")
	ErrStrategyMismatch = policy.ErrStrategyMismatch
	ErrInvalidArgument  = errors.New("filecache: invalid argument")
	ErrEnumerate        = storage.ErrEnumerate
	ErrQueueFull        = scheduler.ErrQueueFull
	ErrRateLimited      = scheduler.ErrRateLimited
	ErrClosed           = scheduler.ErrClosed
	ErrPanic            = errors.New("filecache: background task panicked")
)

// OpError describes a failed cache operation.
type OpError struct {
	Op   string // "put", "get", "remove", "clear", "len"
	Key  string // empty for clear and len
	Kind error  // one of the Err* kinds above
	Err  error  // underlying cause, may be nil
}

func (e *OpError) Error() string {
	msg := e.Kind.Error()
	if e.Err != nil && e.Err != e.Kind {
		msg += ": " + e.Err.Error()
	}
	if e.Key != "" {
		return fmt.Sprintf("%s %q: %s", e.Op, e.Key, msg)
	}
	return e.Op + ": " + msg
}

func (e *OpError) Unwrap() []error {
	if e.Err == nil || e.Err == e.Kind {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func opErr(op, key string, kind, cause error) *OpError {
	return &OpError{Op: op, Key: key, Kind: kind, Err: cause}
}

// submitKind maps a scheduler rejection onto an error kind.
func submitKind(err error) error {
	switch {
	case errors.Is(err, scheduler.ErrQueueFull):
		return ErrQueueFull
	case errors.Is(err, scheduler.ErrRateLimited):
		return ErrRateLimited
	case errors.Is(err, scheduler.ErrClosed):
		return ErrClosed
	default:
		return ErrIO
	}
}
