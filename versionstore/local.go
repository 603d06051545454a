package versionstore

import (
	"context"
	"sync"
)

// Local keeps versions in-process. They start at 0 on every restart, so
// entries persisted by a previous run are accepted until the first Bump.
// The zero value is ready to use.
type Local struct {
	mu sync.RWMutex
	vs map[string]int64
}

var _ Store = (*Local)(nil)

func NewLocal() *Local { return &Local{vs: make(map[string]int64)} }

func (s *Local) Current(_ context.Context, scope string) (int64, error) {
	s.mu.RLock()
	v := s.vs[scope]
	s.mu.RUnlock()
	return v, nil
}

func (s *Local) Bump(_ context.Context, scope string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vs == nil {
		s.vs = make(map[string]int64)
	}
	s.vs[scope]++
	return s.vs[scope], nil
}

// Set forces scope to v, e.g. when seeding from a database column.
func (s *Local) Set(scope string, v int64) {
	s.mu.Lock()
	if s.vs == nil {
		s.vs = make(map[string]int64)
	}
	s.vs[scope] = v
	s.mu.Unlock()
}

func (s *Local) Close(context.Context) error { return nil }
