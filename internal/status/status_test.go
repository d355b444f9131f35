package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/relay-latch/internal/logic"
)

var testStart = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newController(t *testing.T) *logic.Controller {
	t.Helper()
	return logic.NewController(logic.LatchTimes{MinimumOn: 5 * time.Second}, nil, testStart)
}

func TestNewTracker(t *testing.T) {
	cfg := Config{PollMs: 100, Broker: "tcp://localhost:1883", HTTPAddr: ":80"}
	tr := NewTracker(testStart, cfg, logic.LatchTimes{MinimumOn: time.Minute})

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(testStart) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, testStart)
	}
	if snap.Config.PollMs != 100 {
		t.Errorf("Config.PollMs: got %d, want 100", snap.Config.PollMs)
	}
	if snap.LatchTimes.MinimumOn != time.Minute {
		t.Errorf("LatchTimes.MinimumOn: got %v, want 1m", snap.LatchTimes.MinimumOn)
	}
	if snap.Ready {
		t.Error("expected Ready=false initially")
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
}

func TestUpdateFromController(t *testing.T) {
	tr := NewTracker(testStart, Config{}, logic.LatchTimes{})
	c := newController(t)

	c.Process(logic.Input{On: true, Time: testStart})
	c.Process(logic.Input{On: false, Time: testStart.Add(2 * time.Second)})
	tr.Update(c)

	snap := tr.Snapshot()
	if snap.Input != logic.StateOff {
		t.Errorf("Input: got %q, want OFF", snap.Input)
	}
	if snap.Output != logic.StateOn {
		t.Errorf("Output: got %q, want ON", snap.Output)
	}
	if !snap.Pending {
		t.Error("expected Pending=true while minimum on time holds")
	}
	if snap.TimeInState != 2*time.Second {
		t.Errorf("TimeInState: got %v, want 2s", snap.TimeInState)
	}
	if !snap.Ready {
		t.Error("expected Ready=true")
	}
	if snap.Counts.On != 1 {
		t.Errorf("Counts.On: got %d, want 1", snap.Counts.On)
	}
	if snap.LatchTimes.MinimumOn != 5*time.Second {
		t.Errorf("LatchTimes.MinimumOn: got %v, want 5s", snap.LatchTimes.MinimumOn)
	}
}

func TestSetLatchTimesCountsReloads(t *testing.T) {
	tr := NewTracker(testStart, Config{}, logic.LatchTimes{})

	tr.SetLatchTimes(logic.LatchTimes{MinimumOn: time.Second, MinimumOff: 2 * time.Second})
	tr.SetLatchTimes(logic.LatchTimes{MinimumOn: 3 * time.Second})

	snap := tr.Snapshot()
	if snap.Reloads != 2 {
		t.Errorf("Reloads: got %d, want 2", snap.Reloads)
	}
	if snap.LatchTimes.MinimumOn != 3*time.Second || snap.LatchTimes.MinimumOff != 0 {
		t.Errorf("LatchTimes: got %+v", snap.LatchTimes)
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(testStart, Config{}, logic.LatchTimes{})

	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}

	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSetNetwork(t *testing.T) {
	tr := NewTracker(testStart, Config{}, logic.LatchTimes{})

	if tr.Snapshot().Network != nil {
		t.Error("expected nil Network initially")
	}

	tr.SetNetwork(&NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected"})

	snap := tr.Snapshot()
	if snap.Network == nil {
		t.Fatal("expected non-nil Network")
	}
	if snap.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want %q", snap.Network.IP, "192.168.1.42")
	}
}

func TestSnapshotUptime(t *testing.T) {
	snap := Snapshot{
		StartTime: testStart,
		Now:       testStart.Add(15 * time.Minute),
	}

	if snap.Uptime() != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", snap.Uptime())
	}
}

func TestSnapshotNowIsSet(t *testing.T) {
	tr := NewTracker(testStart, Config{}, logic.LatchTimes{})
	tr.now = func() time.Time { return testStart.Add(time.Hour) }

	if got := tr.Snapshot().Now; !got.Equal(testStart.Add(time.Hour)) {
		t.Errorf("Now: got %v", got)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(testStart, Config{}, logic.LatchTimes{})
	c := logic.NewController(logic.LatchTimes{}, nil, testStart)
	c.Process(logic.Input{On: true, Time: testStart})
	tr.Update(c)

	snap1 := tr.Snapshot()

	c.Process(logic.Input{On: false, Time: testStart.Add(time.Second)})
	tr.Update(c)

	if snap1.Output != logic.StateOn {
		t.Error("snapshot should be a copy; Output was modified")
	}
}

func TestFormatJSON(t *testing.T) {
	snap := Snapshot{
		Input:       logic.StateOff,
		Output:      logic.StateOn,
		Pending:     true,
		TimeInState: 1500 * time.Millisecond,
		Ready:       true,
		Counts:      logic.EventCounts{On: 5, Off: 4},
		LatchTimes:  logic.LatchTimes{MinimumOn: 5 * time.Minute, MinimumOff: 10 * time.Second},
		StartTime:   testStart,
		Now:         testStart.Add(15 * time.Minute),
		Config: Config{
			PollMs:       100,
			HeartbeatMs:  900000,
			InputDriver:  "gpio",
			OutputDriver: "modbus",
			Broker:       "tcp://192.168.1.200:1883",
			HTTPAddr:     ":80",
		},
	}

	var sj StatusJSON
	if err := json.Unmarshal(FormatJSON(snap), &sj); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	s := sj.Status
	if s.Input != "OFF" || s.Output != "ON" {
		t.Errorf("Input/Output: got %s/%s", s.Input, s.Output)
	}
	if !s.Pending {
		t.Error("expected pending")
	}
	if s.TimeInStateMs != 1500 {
		t.Errorf("TimeInStateMs: got %d", s.TimeInStateMs)
	}
	if s.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", s.UptimeSeconds)
	}
	if s.Counts.On != 5 || s.Counts.Off != 4 {
		t.Errorf("Counts: got %+v", s.Counts)
	}
	if s.Latch.MinimumOnMs != 300000 || s.Latch.MinimumOffMs != 10000 {
		t.Errorf("Latch: got %+v", s.Latch)
	}
	if s.Config.OutputDriver != "modbus" {
		t.Errorf("Config.OutputDriver: got %q", s.Config.OutputDriver)
	}
	if s.Event != "" || s.Reason != "" {
		t.Errorf("web JSON should carry no event/reason, got %q/%q", s.Event, s.Reason)
	}
	if s.Network != nil {
		t.Error("expected network omitted")
	}
}

func TestFormatJSONUnknownBeforeReady(t *testing.T) {
	snap := Snapshot{StartTime: testStart, Now: testStart}

	var sj StatusJSON
	json.Unmarshal(FormatJSON(snap), &sj)
	if sj.Status.Input != "UNKNOWN" || sj.Status.Output != "UNKNOWN" {
		t.Errorf("expected UNKNOWN states, got %s/%s", sj.Status.Input, sj.Status.Output)
	}
}

func TestFormatStatusEvent(t *testing.T) {
	snap := Snapshot{
		Ready:     true,
		Input:     logic.StateOn,
		Output:    logic.StateOn,
		StartTime: testStart,
		Now:       testStart.Add(time.Minute),
		Network:   &NetworkInfo{Type: "ethernet", IP: "10.0.0.2", Status: "connected"},
	}

	var sj StatusJSON
	if err := json.Unmarshal(FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM"), &sj); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if sj.Status.Event != "SHUTDOWN" || sj.Status.Reason != "SIGTERM" {
		t.Errorf("event/reason: got %q/%q", sj.Status.Event, sj.Status.Reason)
	}
	if sj.Status.Network == nil || sj.Status.Network.IP != "10.0.0.2" {
		t.Errorf("network: got %+v", sj.Status.Network)
	}
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	data := FormatStatusEvent(Snapshot{StartTime: testStart, Now: testStart}, "STARTUP", "")

	var raw map[string]map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if _, ok := raw["status"]["reason"]; ok {
		t.Error("reason should be omitted when empty")
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(testStart, Config{}, logic.LatchTimes{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.SetMQTTConnected(j%2 == 0)
				tr.SetLatchTimes(logic.LatchTimes{MinimumOn: time.Duration(j)})
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = FormatJSON(tr.Snapshot())
			}
		}()
	}
	wg.Wait()
}
