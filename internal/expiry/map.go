// Package expiry provides a map whose entries disappear after a fixed TTL.
package expiry

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

type entry[V any] struct {
	value V
	gen   uint64
	timer *clock.Timer
}

// Map is a string-keyed map where each key expires independently, ttl after
// it was last inserted.
type Map[V any] struct {
	clock clock.Clock
	ttl   time.Duration

	mu      sync.Mutex
	entries map[string]*entry[V]
	gen     uint64
}

// New creates a map driven by clk. A nil clk uses the wall clock.
func New[V any](clk clock.Clock, ttl time.Duration) *Map[V] {
	if clk == nil {
		clk = clock.New()
	}
	return &Map[V]{
		clock:   clk,
		ttl:     ttl,
		entries: make(map[string]*entry[V]),
	}
}

// Insert stores value under key, replacing and re-arming any previous entry.
// The returned cancel func removes this insertion early; it is a no-op once
// the key has expired or been re-inserted.
func (m *Map[V]) Insert(key string, value V) (cancel func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.entries[key]; ok {
		old.timer.Stop()
	}
	m.gen++
	gen := m.gen
	e := &entry[V]{value: value, gen: gen}
	e.timer = m.clock.AfterFunc(m.ttl, func() { m.expire(key, gen) })
	m.entries[key] = e

	return func() { m.expire(key, gen) }
}

func (m *Map[V]) expire(key string, gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || e.gen != gen {
		return
	}
	e.timer.Stop()
	delete(m.entries, key)
}

// Get returns the live value for key.
func (m *Map[V]) Get(key string) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Snapshot copies the live entries.
func (m *Map[V]) Snapshot() map[string]V {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]V, len(m.entries))
	for k, e := range m.entries {
		out[k] = e.value
	}
	return out
}

// Len returns the number of live entries.
func (m *Map[V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Clear removes every entry.
func (m *Map[V]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, e := range m.entries {
		e.timer.Stop()
		delete(m.entries, k)
	}
}
