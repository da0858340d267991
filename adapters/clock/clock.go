// Package clock provides Clock implementations.
package clock

import (
	"sync"
	"time"

	"github.com/irusland/pyroto/ports"
)

// Real returns the actual current time.
type Real struct{}

// Now returns the current time in UTC.
func (Real) Now() time.Time {
	return time.Now().UTC()
}

var _ ports.Clock = Real{}

// Stepped is a test clock that starts at a fixed instant and moves forward
// by step on every reading, so consecutive timestamps are strictly ordered.
type Stepped struct {
	mu      sync.Mutex
	current time.Time
	step    time.Duration
}

// NewStepped creates a clock whose first reading is start.
func NewStepped(start time.Time, step time.Duration) *Stepped {
	return &Stepped{current: start, step: step}
}

// Now returns the current reading and advances the clock.
func (s *Stepped) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.current
	s.current = s.current.Add(s.step)
	return now
}

var _ ports.Clock = (*Stepped)(nil)
