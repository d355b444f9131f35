// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sweeney/relay-latch/internal/logic"
)

// Topic is the MQTT topic for output transition events.
const Topic = "relay/latch/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "relay/latch/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends an output transition event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT", "RELOAD"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Latch LatchPayload `json:"latch"`
}

// LatchPayload contains the transition details.
type LatchPayload struct {
	Timestamp string    `json:"timestamp"`
	Event     string    `json:"event"`
	Input     LineState `json:"input"`
	Output    LineState `json:"output"`
	Error     string    `json:"error,omitempty"`
}

// LineState represents the state of the input or output line.
type LineState struct {
	State string `json:"state"`
}

// FormatPayload creates the JSON payload for a transition event.
func FormatPayload(event logic.Event) ([]byte, error) {
	payload := Payload{
		Latch: LatchPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     string(event.Type),
			Input:     LineState{State: string(event.Input)},
			Output:    LineState{State: string(event.Output)},
		},
	}
	if event.Err != nil {
		payload.Latch.Error = event.Err.Error()
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp,omitempty"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	inner := SystemPayloadInner{
		Event:  event.Event,
		Reason: event.Reason,
	}
	if !event.Timestamp.IsZero() {
		inner.Timestamp = event.Timestamp.UTC().Format(time.RFC3339)
	}
	return json.Marshal(SystemPayload{System: inner})
}

// Message is a serialized MQTT message ready to send.
type Message struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// EventMessage builds the message for a transition event. Transitions drive
// downstream automations, so they go out at QoS 1.
func EventMessage(event logic.Event) (Message, error) {
	payload, err := FormatPayload(event)
	if err != nil {
		return Message{}, fmt.Errorf("format payload: %w", err)
	}
	return Message{Topic: Topic, Payload: payload, QoS: 1}, nil
}

// SystemMessage builds the message for a system event.
func SystemMessage(event SystemEvent) (Message, error) {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return Message{}, fmt.Errorf("format system payload: %w", err)
	}
	return Message{Topic: TopicSystem, Payload: payload, QoS: 1, Retained: event.Retained}, nil
}

// willPayload is the last-will message the broker publishes if the
// connection drops without a clean disconnect. It carries no timestamp since
// it is registered at connect time.
func willPayload() []byte {
	data, _ := FormatSystemPayload(SystemEvent{Event: "OFFLINE", Reason: "CONNECTION_LOST"})
	return data
}
