// Package clocktest provides deterministic time sources and schedulers for tests.
package clocktest

import (
	"sync"
	"time"
)

// ManualSource is a settable time source.
type ManualSource struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualSource returns a source fixed at start.
func NewManualSource(start time.Time) *ManualSource {
	return &ManualSource{now: start}
}

// Now returns the current manual time.
func (s *ManualSource) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Advance moves the manual time forward.
func (s *ManualSource) Advance(delta time.Duration) {
	s.mu.Lock()
	s.now = s.now.Add(delta)
	s.mu.Unlock()
}

// ManualScheduler records registered callbacks and fires them on demand.
type ManualScheduler struct {
	mu     sync.Mutex
	nextID int
	active map[int]func()
}

// NewManualScheduler constructs an empty manual scheduler.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{active: make(map[int]func())}
}

// Every registers fn until cancelled; the interval is ignored.
func (s *ManualScheduler) Every(_ time.Duration, fn func()) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.active[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.active, id)
		s.mu.Unlock()
	}
}

// Fire invokes every active callback once on the calling goroutine.
func (s *ManualScheduler) Fire() {
	s.mu.Lock()
	callbacks := make([]func(), 0, len(s.active))
	for _, fn := range s.active {
		callbacks = append(callbacks, fn)
	}
	s.mu.Unlock()
	for _, fn := range callbacks {
		fn()
	}
}

// Active returns the number of registered callbacks.
func (s *ManualScheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}
