// Package auth – refresh scheduling
//
// This file implements Scheduler, a single-slot deferred task used to renew
// the access token ahead of expiry. Scheduling replaces any pending task, and
// a cancelled or superseded task never runs, even if its timer had already
// fired.
package auth

import (
	"sync"
	"time"
)

type stopper interface{ Stop() bool }

// Scheduler runs at most one deferred task. Scheduling a new task cancels
// the pending one first; a task that lost the race with Cancel or a newer
// Schedule does not run.
type Scheduler struct {
	mu      sync.Mutex
	gen     uint64
	pending stopper
	due     time.Time

	afterFunc func(time.Duration, func()) stopper
	now       func() time.Time
}

// NewScheduler returns a Scheduler backed by time.AfterFunc.
func NewScheduler() *Scheduler {
	return &Scheduler{
		afterFunc: func(d time.Duration, f func()) stopper { return time.AfterFunc(d, f) },
		now:       time.Now,
	}
}

// Schedule cancels any pending task and runs fn after d.
func (s *Scheduler) Schedule(d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	s.gen++
	gen := s.gen
	s.due = s.now().Add(d)
	s.pending = s.afterFunc(d, func() {
		s.mu.Lock()
		if s.gen != gen {
			s.mu.Unlock()
			return
		}
		s.pending = nil
		s.due = time.Time{}
		s.mu.Unlock()
		fn()
	})
}

// Cancel drops the pending task, if any.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.gen++
}

// Due returns when the pending task fires; ok is false when none is pending.
func (s *Scheduler) Due() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.due, s.pending != nil
}

func (s *Scheduler) stopLocked() {
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	s.due = time.Time{}
}
