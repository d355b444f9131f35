package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Input         string       `json:"input"`
	Output        string       `json:"output"`
	Pending       bool         `json:"pending"`
	TimeInStateMs int64        `json:"time_in_state_ms"`
	Ready         bool         `json:"ready"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"event_counts"`
	Latch         LatchJSON    `json:"latch"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	On  int `json:"output_on"`
	Off int `json:"output_off"`
}

// LatchJSON is the JSON representation of the live dwell times.
type LatchJSON struct {
	MinimumOnMs  int64 `json:"minimum_on_ms"`
	MinimumOffMs int64 `json:"minimum_off_ms"`
	Reloads      int   `json:"reloads"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs       int64  `json:"poll_ms"`
	HeartbeatMs  int64  `json:"heartbeat_ms"`
	InputDriver  string `json:"input_driver"`
	OutputDriver string `json:"output_driver"`
	Broker       string `json:"broker"`
	HTTPAddr     string `json:"http_addr"`
	WSBroker     string `json:"ws_broker,omitempty"`
}

func stateOrUnknown(s string, ready bool) string {
	if !ready || s == "" {
		return "UNKNOWN"
	}
	return s
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Input:         stateOrUnknown(string(snap.Input), snap.Ready),
		Output:        stateOrUnknown(string(snap.Output), snap.Ready),
		Pending:       snap.Pending,
		TimeInStateMs: snap.TimeInState.Milliseconds(),
		Ready:         snap.Ready,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			On:  snap.Counts.On,
			Off: snap.Counts.Off,
		},
		Latch: LatchJSON{
			MinimumOnMs:  snap.LatchTimes.MinimumOn.Milliseconds(),
			MinimumOffMs: snap.LatchTimes.MinimumOff.Milliseconds(),
			Reloads:      snap.Reloads,
		},
		Config: ConfigJSON{
			PollMs:       snap.Config.PollMs,
			HeartbeatMs:  snap.Config.HeartbeatMs,
			InputDriver:  snap.Config.InputDriver,
			OutputDriver: snap.Config.OutputDriver,
			Broker:       snap.Config.Broker,
			HTTPAddr:     snap.Config.HTTPAddr,
			WSBroker:     snap.Config.WSBroker,
		},
	}
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
