// Package debounce collapses bursts of triggers into a single deferred call.
package debounce

import (
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// Scheduler runs only the last function scheduled within a quiet window.
// Each instance owns one timer; instances never share state.
type Scheduler struct {
	clock clock.WithDelayedExecution

	mu      sync.Mutex
	timer   clock.Timer
	gen     uint64
	pending bool
}

// New returns a Scheduler driven by clk. A nil clock uses the real clock.
func New(clk clock.WithDelayedExecution) *Scheduler {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Scheduler{clock: clk}
}

// Schedule arranges for fn to run after delay. A call made before the
// previous delay elapsed replaces the pending function and restarts the
// timer.
func (s *Scheduler) Schedule(fn func(), delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	s.gen++
	gen := s.gen
	s.pending = true
	s.timer = s.clock.AfterFunc(delay, func() {
		s.mu.Lock()
		if gen != s.gen || !s.pending {
			s.mu.Unlock()
			return
		}
		s.pending = false
		s.timer = nil
		s.mu.Unlock()
		fn()
	})
}

// Cancel drops the pending call, if any, and reports whether one was
// dropped. A timer that already expired but has not taken the lock yet is
// still suppressed.
func (s *Scheduler) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	was := s.pending
	s.stopLocked()
	s.gen++
	s.pending = false
	return was
}

// Pending reports whether a call is waiting to run.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

func (s *Scheduler) stopLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
