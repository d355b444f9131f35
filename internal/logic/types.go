// Package logic contains the pure control logic for the latched output.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// State represents the logical state of the input or output.
type State string

const (
	StateOn  State = "ON"
	StateOff State = "OFF"
)

// EventType represents an output transition event.
type EventType string

const (
	EventOutputOn  EventType = "OUTPUT_ON"
	EventOutputOff EventType = "OUTPUT_OFF"
)

// Event represents an output transition to be published.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Input     State
	Output    State
	// Err is set when the actuator failed to apply the new output.
	// The latched state has changed regardless.
	Err error
}

// Input represents a single sample of the input line.
type Input struct {
	On   bool // true = ON (already inverted from raw GPIO if active-low)
	Time time.Time
}

// Actuator applies the latched output to the outside world.
type Actuator interface {
	SetOutput(on bool) error
}

// EventCounts tracks the number of each event type since startup.
type EventCounts struct {
	On  int
	Off int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    EventCounts
}

// LatchTimes holds the minimum dwell in each output state.
type LatchTimes struct {
	MinimumOn  time.Duration
	MinimumOff time.Duration
}
