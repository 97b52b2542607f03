// Package telemetry publishes the gateway state to the broker as a
// protobuf Struct and accepts remote broadcast triggers.
package telemetry

import (
	"context"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"
	"github.com/golang/protobuf/proto"
	structpb "github.com/golang/protobuf/ptypes/struct"

	"github.com/robotalks/sensorgw/pkg/event"
	fx "github.com/robotalks/sensorgw/pkg/framework"
	"github.com/robotalks/sensorgw/pkg/mqtt"
	"github.com/robotalks/sensorgw/pkg/state"
)

// Topic suffixes under the gateway base topic.
const (
	StateTopic   = "/telemetry"
	TriggerTopic = "/trigger"
)

// Broker is the part of mqtt.Queue used here.
type Broker interface {
	Sub(filter string, handler mqtt.Handler) *mqtt.Subscription
	PubWith(topic string, payload []byte, qos byte, retain bool) paho.Token
}

// Trigger accepts events without blocking.
type Trigger interface {
	TryPublish(event.Event) error
}

// CounterFunc reports extra numeric fields.
type CounterFunc func() map[string]float64

// Publisher periodically publishes the state.
type Publisher struct {
	Queue    Broker
	Store    *state.Store
	Events   Trigger
	Base     string
	ID       string
	Interval time.Duration
	Counters CounterFunc
}

// Name implements framework.Named.
func (p *Publisher) Name() string {
	return "telemetry"
}

// PriorityLevel implements framework.Prioritized.
func (p *Publisher) PriorityLevel() int {
	return fx.PrLvLow
}

// Run implements framework.Runnable.
func (p *Publisher) Run(ctx context.Context) error {
	sub := p.Queue.Sub(p.Base+TriggerTopic, func(string, []byte) {
		if err := p.Events.TryPublish(event.Event{Kind: event.BroadcastRequested}); err != nil {
			glog.Warningf("remote trigger: %v", err)
		}
	})
	defer sub.Close()

	interval := p.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.PublishOnce(); err != nil {
				glog.V(1).Infof("telemetry: %v", err)
			}
		}
	}
}

// PublishOnce publishes the current state as a retained message.
func (p *Publisher) PublishOnce() error {
	snap, err := p.Store.Snapshot()
	if err != nil {
		return err
	}
	links, err := p.Store.Links()
	if err != nil {
		return err
	}
	var counters map[string]float64
	if p.Counters != nil {
		counters = p.Counters()
	}
	payload, err := proto.Marshal(Encode(p.ID, snap, links, counters, time.Now()))
	if err != nil {
		return err
	}
	p.Queue.PubWith(p.Base+StateTopic, payload, 0, true)
	glog.V(1).Infof("NETWORK_EVENT mqtt telemetry %d bytes", len(payload))
	return nil
}

func number(v float64) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_NumberValue{NumberValue: v}}
}

func text(v string) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_StringValue{StringValue: v}}
}

func boolean(v bool) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_BoolValue{BoolValue: v}}
}

func millis(t time.Time) *structpb.Value {
	if t.IsZero() {
		return number(0)
	}
	return number(float64(t.UnixNano() / int64(time.Millisecond)))
}

// Encode builds the telemetry message.
func Encode(id string, snap state.Snapshot, links state.Links, counters map[string]float64, at time.Time) *structpb.Struct {
	fields := map[string]*structpb.Value{
		"id":                  text(id),
		"time":                millis(at),
		"temperature":         number(float64(snap.Temperature)),
		"humidity":            number(snap.Humidity),
		"illuminance":         number(float64(snap.Illuminance)),
		"distance":            number(snap.Distance),
		"lastEnvUpdate":       millis(snap.LastEnvUpdate),
		"lastDistanceUpdate":  millis(snap.LastDistanceUpdate),
		"lastBroadcast":       millis(snap.LastBroadcast),
		"peerLinkActive":      boolean(links.PeerLinkActive),
		"broadcastLinkActive": boolean(links.BroadcastLinkActive),
	}
	if links.AddressConfigured {
		fields["peerAddress"] = text(links.PeerAddress.String())
	}
	for name, v := range counters {
		fields[name] = number(v)
	}
	return &structpb.Struct{Fields: fields}
}

// Decode parses a telemetry payload.
func Decode(payload []byte) (*structpb.Struct, error) {
	msg := &structpb.Struct{}
	if err := proto.Unmarshal(payload, msg); err != nil {
		return nil, err
	}
	return msg, nil
}
