package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/sweeney/relay-latch/internal/logic"
)

const (
	bufferCapacity = 256
	publishTimeout = 5 * time.Second
)

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the broker is unreachable are buffered and replayed on reconnect.
type RealPublisher struct {
	client paho.Client

	mu        sync.Mutex
	buffer    *ringBuffer
	online    bool // onConnect has replayed the buffer; sends go straight out
	connected bool // at least one successful connection
}

// DefaultClientID returns a client ID unique to this process.
func DefaultClientID() string {
	return "relay-latch-" + uuid.NewString()[:8]
}

// NewRealPublisher creates a publisher for the given broker. The connection is
// retried in the background; it is not an error for the broker to be down at
// startup.
func NewRealPublisher(broker, clientID string) (*RealPublisher, error) {
	if clientID == "" {
		clientID = DefaultClientID()
	}
	p := &RealPublisher{buffer: newRingBuffer(bufferCapacity)}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetBinaryWill(TopicSystem, willPayload(), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if token.WaitTimeout(10*time.Second) && token.Error() != nil {
		return nil, fmt.Errorf("connect to broker: %w", token.Error())
	}
	if !p.client.IsConnectionOpen() {
		log.Printf("mqtt: broker %s not reachable yet, buffering until connected", broker)
	}
	return p, nil
}

// onConnect replays buffered messages and announces reconnection. Paho
// reports the connection open before calling this, so sends keep buffering
// until the buffer is found empty under the lock.
func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	reconnect := p.connected
	p.connected = true
	p.mu.Unlock()

	replayed := 0
	for {
		p.mu.Lock()
		pending := p.buffer.drainAll()
		if len(pending) == 0 {
			p.online = true
			p.mu.Unlock()
			break
		}
		p.mu.Unlock()

		for _, msg := range pending {
			token := c.Publish(msg.Topic, msg.QoS, msg.Retained, msg.Payload)
			if !token.WaitTimeout(publishTimeout) || token.Error() != nil {
				log.Printf("mqtt: replay to %s failed: %v", msg.Topic, token.Error())
			}
		}
		replayed += len(pending)
	}
	log.WithFields(log.Fields{"replay": replayed, "reconnect": reconnect}).Info("mqtt: connected")

	if reconnect {
		payload, _ := FormatSystemPayload(SystemEvent{
			Timestamp: time.Now(),
			Event:     "RECONNECTED",
		})
		c.Publish(TopicSystem, 1, true, payload)
	}
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	p.mu.Lock()
	p.online = false
	p.mu.Unlock()
	log.Printf("mqtt: connection lost: %v", err)
}

// Publish sends a transition event to the MQTT broker.
func (p *RealPublisher) Publish(event logic.Event) error {
	msg, err := EventMessage(event)
	if err != nil {
		return err
	}
	return p.send(msg)
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	msg, err := SystemMessage(event)
	if err != nil {
		return err
	}
	return p.send(msg)
}

func (p *RealPublisher) send(msg Message) error {
	p.mu.Lock()
	if !p.online || !p.client.IsConnectionOpen() {
		p.buffer.push(msg)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	token := p.client.Publish(msg.Topic, msg.QoS, msg.Retained, msg.Payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s: timeout", msg.Topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", msg.Topic, err)
	}
	return nil
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
