// Package mqtt bridges the broadcast radio to a broker topic, for hubs
// reached through an IP backhaul instead of a local modem.
package mqtt

import (
	"context"
	"time"

	"github.com/robotalks/sensorgw/pkg/broadcast"
)

// DefaultTopic receives broadcast frames.
const DefaultTopic = "hub/frames"

// Broker is the part of mqtt.Queue used by the radio.
type Broker interface {
	Connected() bool
	Connect(timeout time.Duration) error
	PubWait(topic string, payload []byte, retain bool, timeout time.Duration) error
}

// Radio publishes each frame as one message.
type Radio struct {
	broadcast.FrameBuffer

	Broker  Broker
	Topic   string
	Timeout time.Duration
}

// New creates a Radio.
func New(broker Broker, topic string) *Radio {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Radio{Broker: broker, Topic: topic, Timeout: 2 * time.Second}
}

// Start connects the broker if needed.
func (r *Radio) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.Broker.Connected() {
		return nil
	}
	return r.Broker.Connect(r.Timeout)
}

// End publishes the frame.
func (r *Radio) End() error {
	payload, err := r.Take()
	if err != nil {
		return err
	}
	return r.Broker.PubWait(r.Topic, payload, false, r.Timeout)
}
