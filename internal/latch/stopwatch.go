package latch

import (
	"math"
	"time"

	"k8s.io/utils/clock"
)

// Unbounded is reported by a stopwatch that has never been started.
// It satisfies every minimum dwell threshold.
const Unbounded = time.Duration(math.MaxInt64)

// Stopwatch measures elapsed time on a monotonic clock.
// The zero value is not usable; create one with NewStopwatch.
type Stopwatch struct {
	clock   clock.PassiveClock
	start   time.Time
	frozen  time.Duration
	running bool
	started bool
}

// NewStopwatch creates a stopped stopwatch that has never run.
func NewStopwatch(clk clock.PassiveClock) *Stopwatch {
	return &Stopwatch{clock: clk}
}

// Start resets the stopwatch to zero and begins measuring.
func (s *Stopwatch) Start() {
	s.start = s.clock.Now()
	s.frozen = 0
	s.running = true
	s.started = true
}

// Stop freezes the elapsed time. Calling Stop on a stopped stopwatch is a no-op.
func (s *Stopwatch) Stop() {
	if !s.running {
		return
	}
	s.frozen = s.clock.Since(s.start)
	s.running = false
}

// IsRunning reports whether the stopwatch is measuring.
func (s *Stopwatch) IsRunning() bool {
	return s.running
}

// Elapsed returns the time measured since the last Start.
// A stopwatch that has never been started returns Unbounded.
func (s *Stopwatch) Elapsed() time.Duration {
	if !s.started {
		return Unbounded
	}
	if s.running {
		return s.clock.Since(s.start)
	}
	return s.frozen
}
