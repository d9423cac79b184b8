// Package ticks coalesces high-frequency price and balance ticks into
// periodic commits.
package ticks

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultWindow is how long a buffer collects ticks before it is flushed.
const DefaultWindow = 200 * time.Millisecond

// Scheduler runs at most one pending flush per buffer id.
type Scheduler struct {
	clock clock.Clock

	mu      sync.Mutex
	pending map[string]*clock.Timer
}

// NewScheduler creates a scheduler driven by clk. A nil clk uses the wall
// clock.
func NewScheduler(clk clock.Clock) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	return &Scheduler{
		clock:   clk,
		pending: make(map[string]*clock.Timer),
	}
}

// ScheduleCoalescedFlush arranges for fn to run once, window after the
// first call for bufferID. Calls made while a flush is pending are no-ops.
// It reports whether a new timer was started.
func (s *Scheduler) ScheduleCoalescedFlush(bufferID string, window time.Duration, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pending[bufferID]; ok {
		return false
	}
	s.pending[bufferID] = s.clock.AfterFunc(window, func() {
		s.mu.Lock()
		delete(s.pending, bufferID)
		s.mu.Unlock()
		fn()
	})
	return true
}

// Pending reports whether a flush is outstanding for bufferID.
func (s *Scheduler) Pending(bufferID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[bufferID]
	return ok
}

// Cancel drops the pending flush for bufferID without running it.
func (s *Scheduler) Cancel(bufferID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.pending[bufferID]; ok {
		t.Stop()
		delete(s.pending, bufferID)
	}
}

// Stop cancels every pending flush.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.pending {
		t.Stop()
		delete(s.pending, id)
	}
}
