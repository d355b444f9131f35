package mqtt

import (
	"github.com/sweeney/relay-latch/internal/logic"
)

// FakePublisher records what would have been sent to the broker.
type FakePublisher struct {
	Events       []logic.Event
	SystemEvents []SystemEvent

	// Messages holds every message in send order, as RealPublisher would
	// hand them to the client.
	Messages []Message

	PublishError       error // returned by Publish, nothing recorded
	PublishSystemError error // returned by PublishSystem, nothing recorded

	Closed    bool
	Connected bool // returned by IsConnected
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Publish records the transition event and its message.
func (f *FakePublisher) Publish(event logic.Event) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	msg, err := EventMessage(event)
	if err != nil {
		return err
	}
	f.Events = append(f.Events, event)
	f.Messages = append(f.Messages, msg)
	return nil
}

// PublishSystem records the system event and its message.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}
	msg, err := SystemMessage(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.Messages = append(f.Messages, msg)
	return nil
}

// Payloads returns the payloads sent to the transition topic.
func (f *FakePublisher) Payloads() [][]byte {
	return f.payloadsOn(Topic)
}

// SystemPayloads returns the payloads sent to the system topic.
func (f *FakePublisher) SystemPayloads() [][]byte {
	return f.payloadsOn(TopicSystem)
}

func (f *FakePublisher) payloadsOn(topic string) [][]byte {
	var out [][]byte
	for _, m := range f.Messages {
		if m.Topic == topic {
			out = append(out, m.Payload)
		}
	}
	return out
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}

// IsConnected reports the Connected field.
func (f *FakePublisher) IsConnected() bool {
	return f.Connected
}

// Reset clears recorded messages and injected errors.
func (f *FakePublisher) Reset() {
	*f = FakePublisher{}
}
