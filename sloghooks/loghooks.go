// Package sloghooks logs cache events with log/slog.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/filecache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery  uint64
	RejectionEvery uint64
	// LogOutcomes logs every put/get outcome at Debug. Off by default.
	LogOutcomes bool
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr atomic.Uint64
	rejectCtr   atomic.Uint64
}

var _ filecache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) SelfHeal(key, path, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("filecache.self_heal",
		"key", h.redact(key),
		"path", path,
		"reason", reason)
}

func (h *Hooks) KeyCollision(key, storedKey, path string) {
	if h.l == nil {
		return
	}
	h.l.Warn("filecache.key_collision",
		"key", h.redact(key),
		"stored_key", h.redact(storedKey),
		"path", path)
}

func (h *Hooks) SubmitRejected(op, key string, err error) {
	if h.l == nil || !sample(h.opts.RejectionEvery, &h.rejectCtr) {
		return
	}
	h.l.Warn("filecache.submit_rejected",
		"op", op,
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) CallbackPanic(op, key string, recovered any) {
	if h.l == nil {
		return
	}
	h.l.Error("filecache.callback_panic",
		"op", op,
		"key", h.redact(key),
		"panic", recovered)
}

func (h *Hooks) TierError(op, path string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("filecache.tier_error",
		"op", op,
		"path", path,
		"err", err)
}

func (h *Hooks) Outcome(op, outcome, source string) {
	if h.l == nil || !h.opts.LogOutcomes {
		return
	}
	h.l.Debug("filecache.outcome",
		"op", op,
		"outcome", outcome,
		"source", source)
}
