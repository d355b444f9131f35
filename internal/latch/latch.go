// Package latch implements a minimum-dwell-time latch for a boolean output.
//
// Requested state changes are recorded immediately but only applied by
// Advance, and only once the output has held its current state for the
// configured minimum time. The dwell runs from the moment the output changed,
// not from when the change was requested.
//
// A Latch is not safe for concurrent use. It is meant to be owned by a single
// polling loop; timing resolution is bounded by how often Advance is called.
package latch

import (
	"time"

	"k8s.io/utils/clock"
)

// StateChanger receives the new output state whenever the output transitions.
type StateChanger interface {
	OnStateChanged(on bool)
}

// StateChangerFunc adapts a plain function to StateChanger.
type StateChangerFunc func(on bool)

// OnStateChanged calls f(on).
func (f StateChangerFunc) OnStateChanged(on bool) {
	f(on)
}

// Option configures a Latch.
type Option func(*Latch)

// WithClock sets the clock used by the latch stopwatches.
func WithClock(clk clock.PassiveClock) Option {
	return func(l *Latch) {
		l.clock = clk
	}
}

// Latch holds a boolean output for at least a minimum time in each state.
//
// A new Latch has both input and output false, and no dwell in force: the
// first requested change is applied on the next Advance.
type Latch struct {
	minimumTimeOn  time.Duration
	minimumTimeOff time.Duration

	targetState  bool
	currentState bool

	timeSinceOn  *Stopwatch
	timeSinceOff *Stopwatch

	changer StateChanger
	clock   clock.PassiveClock
}

// New creates a latch with the given minimum on/off dwell times.
// changer is called synchronously from Advance on every output transition.
func New(minimumTimeOn, minimumTimeOff time.Duration, changer StateChanger, opts ...Option) *Latch {
	l := &Latch{
		minimumTimeOn:  minimumTimeOn,
		minimumTimeOff: minimumTimeOff,
		changer:        changer,
		clock:          clock.RealClock{},
	}
	for _, opt := range opts {
		opt(l)
	}
	l.timeSinceOn = NewStopwatch(l.clock)
	l.timeSinceOff = NewStopwatch(l.clock)
	return l
}

// TurnOn requests the output on. Equivalent to SetInputState(true).
func (l *Latch) TurnOn() {
	l.SetInputState(true)
}

// TurnOff requests the output off. Equivalent to SetInputState(false).
func (l *Latch) TurnOff() {
	l.SetInputState(false)
}

// SetInputState records the requested output state.
// The output does not change until a later call to Advance.
func (l *Latch) SetInputState(requestedState bool) {
	l.targetState = requestedState
}

// InputState returns the most recently requested state.
func (l *Latch) InputState() bool {
	return l.targetState
}

// OutputState returns the latched output state.
func (l *Latch) OutputState() bool {
	return l.currentState
}

// Pending reports whether a requested change has not been applied yet.
func (l *Latch) Pending() bool {
	return l.targetState != l.currentState
}

// SetLatchTimes replaces both minimum dwell times. The new values take effect
// on the next Advance; an already elapsed dwell is not reset.
func (l *Latch) SetLatchTimes(minimumTimeOn, minimumTimeOff time.Duration) {
	l.minimumTimeOn = minimumTimeOn
	l.minimumTimeOff = minimumTimeOff
}

// LatchTimes returns the configured minimum on and off dwell times.
func (l *Latch) LatchTimes() (minimumTimeOn, minimumTimeOff time.Duration) {
	return l.minimumTimeOn, l.minimumTimeOff
}

// TimeInState returns how long the output has held its current state.
// Before the first transition it returns Unbounded.
func (l *Latch) TimeInState() time.Duration {
	return l.sinceCurrent().Elapsed()
}

// Advance applies a pending change if the output has held its current state
// for at least the minimum time for that state. It must be called
// periodically.
func (l *Latch) Advance() {
	if l.targetState == l.currentState {
		return
	}
	if l.sinceCurrent().Elapsed() < l.dwellTime() {
		return
	}

	l.currentState = l.targetState
	if l.currentState {
		l.timeSinceOff.Stop()
		l.timeSinceOn.Start()
	} else {
		l.timeSinceOn.Stop()
		l.timeSinceOff.Start()
	}
	l.changer.OnStateChanged(l.currentState)
}

// dwellTime returns the minimum time the output must hold its current state.
func (l *Latch) dwellTime() time.Duration {
	if l.currentState {
		return l.minimumTimeOn
	}
	return l.minimumTimeOff
}

func (l *Latch) sinceCurrent() *Stopwatch {
	if l.currentState {
		return l.timeSinceOn
	}
	return l.timeSinceOff
}
