// Package clock provides an injectable wall-clock source so idle timers and
// task timing can be driven deterministically in tests.
package clock

import "time"

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// System is the real wall clock.
type System struct{}

// Now returns time.Now().
func (System) Now() time.Time { return time.Now() }

// Manual is a clock that only moves when told to.
// The simulation is single-threaded, so no locking is done.
type Manual struct {
	current time.Time
}

// NewManual creates a manual clock starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{current: start}
}

// Now returns the current manual time.
func (m *Manual) Now() time.Time { return m.current }

// Set jumps the clock to t.
func (m *Manual) Set(t time.Time) { m.current = t }

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) { m.current = m.current.Add(d) }
