package logic

import (
	"time"

	"github.com/sweeney/relay-latch/internal/latch"
)

// sampleClock reports the time of the most recent input sample, so the latch
// measures dwell in the same timeline as the caller's samples.
type sampleClock struct {
	now time.Time
}

func (c *sampleClock) Now() time.Time                  { return c.now }
func (c *sampleClock) Since(t time.Time) time.Duration { return c.now.Sub(t) }

// Controller feeds input samples through a hysteresis latch and drives the
// actuator on every output transition.
type Controller struct {
	latch    *latch.Latch
	clock    *sampleClock
	actuator Actuator

	startTime     time.Time
	eventCounts   EventCounts
	lastHeartbeat time.Time

	// events produced by the latch callback during the current Process call
	events []Event
}

// NewController creates a controller with the given minimum dwell times.
// The startTime is used for calculating uptime in heartbeat events.
func NewController(times LatchTimes, actuator Actuator, startTime time.Time) *Controller {
	c := &Controller{
		clock:         &sampleClock{now: startTime},
		actuator:      actuator,
		startTime:     startTime,
		lastHeartbeat: startTime,
	}
	c.latch = latch.New(times.MinimumOn, times.MinimumOff,
		latch.StateChangerFunc(c.onStateChanged), latch.WithClock(c.clock))
	return c
}

// Process takes a new input sample and returns any events that should be emitted.
// At most one event is returned per sample.
func (c *Controller) Process(input Input) []Event {
	if input.Time.After(c.clock.now) {
		c.clock.now = input.Time
	}
	c.latch.SetInputState(input.On)
	c.latch.Advance()

	events := c.events
	c.events = nil
	return events
}

// onStateChanged actuates the output and records the transition.
func (c *Controller) onStateChanged(on bool) {
	event := Event{
		Timestamp: c.clock.now,
		Type:      eventTypeFor(on),
		Input:     boolToState(c.latch.InputState()),
		Output:    boolToState(on),
	}
	if c.actuator != nil {
		event.Err = c.actuator.SetOutput(on)
	}
	if on {
		c.eventCounts.On++
	} else {
		c.eventCounts.Off++
	}
	c.events = append(c.events, event)
}

// SetLatchTimes reconfigures the minimum dwell times. It never causes a
// transition by itself; the new times apply from the next Process call.
func (c *Controller) SetLatchTimes(times LatchTimes) {
	c.latch.SetLatchTimes(times.MinimumOn, times.MinimumOff)
}

// LatchTimes returns the configured dwell times.
func (c *Controller) LatchTimes() LatchTimes {
	on, off := c.latch.LatchTimes()
	return LatchTimes{MinimumOn: on, MinimumOff: off}
}

// CurrentState returns the requested input and latched output states.
func (c *Controller) CurrentState() (input State, output State) {
	return boolToState(c.latch.InputState()), boolToState(c.latch.OutputState())
}

// Pending reports whether a requested change is being held back.
func (c *Controller) Pending() bool {
	return c.latch.Pending()
}

// TimeInState returns how long the output has held its state, as of the
// latest sample. Returns 0 before the first transition.
func (c *Controller) TimeInState() time.Duration {
	d := c.latch.TimeInState()
	if d == latch.Unbounded {
		return 0
	}
	return d
}

// EventCountsSnapshot returns a copy of the transition counters.
func (c *Controller) EventCountsSnapshot() EventCounts {
	return c.eventCounts
}

func boolToState(b bool) State {
	if b {
		return StateOn
	}
	return StateOff
}

func eventTypeFor(on bool) EventType {
	if on {
		return EventOutputOn
	}
	return EventOutputOff
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if the interval has not elapsed,
// or if interval is <= 0 (disabled).
func (c *Controller) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}

	if now.Sub(c.lastHeartbeat) < interval {
		return nil
	}

	c.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(c.startTime),
		Counts:    c.eventCounts,
	}
}
