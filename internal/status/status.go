// Package status provides a thread-safe status tracker for the relay-latch daemon.
// It is written by the poll loop and read by HTTP handlers and MQTT status events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/relay-latch/internal/logic"
)

// NetworkInfo contains network state as reported by the host.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	PollMs       int64
	HeartbeatMs  int64
	InputDriver  string
	OutputDriver string
	Broker       string
	HTTPAddr     string
	WSBroker     string // Websocket broker URL for browser MQTT (empty = disabled)
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Input         logic.State
	Output        logic.State
	Pending       bool
	TimeInState   time.Duration
	Ready         bool // at least one input sample has been processed
	Counts        logic.EventCounts
	LatchTimes    logic.LatchTimes
	Reloads       int
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time, config and dwell times.
func NewTracker(startTime time.Time, cfg Config, times logic.LatchTimes) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime:  startTime,
			Config:     cfg,
			LatchTimes: times,
		},
		now: time.Now,
	}
}

// Update records the latest controller state.
// Called from runLoop on every processed sample.
func (t *Tracker) Update(c *logic.Controller) {
	input, output := c.CurrentState()
	t.mu.Lock()
	t.snap.Input = input
	t.snap.Output = output
	t.snap.Pending = c.Pending()
	t.snap.TimeInState = c.TimeInState()
	t.snap.Counts = c.EventCountsSnapshot()
	t.snap.LatchTimes = c.LatchTimes()
	t.snap.Ready = true
	t.mu.Unlock()
}

// SetLatchTimes records reconfigured dwell times.
func (t *Tracker) SetLatchTimes(times logic.LatchTimes) {
	t.mu.Lock()
	t.snap.LatchTimes = times
	t.snap.Reloads++
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
