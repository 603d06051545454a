// Package keylock provides mutual exclusion keyed by a string, typically a
// cleaned file path. Entries exist only while some goroutine holds or waits
// on them.
package keylock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// Table hands out one mutex per key. The zero value is ready to use.
type Table struct {
	mu sync.Mutex
	m  map[string]*entry
}

// Lock blocks until the lock for key is held and returns its release func.
func (t *Table) Lock(key string) (unlock func()) {
	t.mu.Lock()
	if t.m == nil {
		t.m = make(map[string]*entry)
	}
	e, ok := t.m[key]
	if !ok {
		e = &entry{}
		t.m[key] = e
	}
	e.refs++
	t.mu.Unlock()

	e.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			t.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(t.m, key)
			}
			t.mu.Unlock()
		})
	}
}

// Len returns the number of keys currently held or waited on.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.m)
}
