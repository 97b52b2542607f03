package mqtt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/sensorgw/pkg/broadcast"
	"github.com/robotalks/sensorgw/pkg/event"
	"github.com/robotalks/sensorgw/pkg/state"
)

type fakeBroker struct {
	connected  bool
	connectErr error
	pubErr     error
	topics     []string
	payloads   []string
}

func (b *fakeBroker) Connected() bool { return b.connected }

func (b *fakeBroker) Connect(time.Duration) error {
	if b.connectErr != nil {
		return b.connectErr
	}
	b.connected = true
	return nil
}

func (b *fakeBroker) PubWait(topic string, payload []byte, retain bool, timeout time.Duration) error {
	if b.pubErr != nil {
		return b.pubErr
	}
	b.topics = append(b.topics, topic)
	b.payloads = append(b.payloads, string(payload))
	return nil
}

func TestRadioPublishesFrames(t *testing.T) {
	b := &fakeBroker{}
	r := New(b, "")
	store := state.NewStore()
	h := broadcast.NewHandler(store, event.NewQueue(event.DefaultCapacity), r)
	require.NoError(t, h.Init(context.Background()))
	_, err := h.PushReading("Barn")
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultTopic, DefaultTopic}, b.topics)
	assert.Equal(t, "    CH>Greenhouse:Temperature,Humidity,Lux,Distance:1,2,1,2", b.payloads[0])
	assert.Equal(t, "    PD>Barn:0,0.0,0,0.00,", b.payloads[1])
}

func TestRadioFailures(t *testing.T) {
	b := &fakeBroker{connectErr: errors.New("refused")}
	r := New(b, "t")
	assert.Error(t, r.Start(context.Background()))

	b.connectErr, b.pubErr = nil, errors.New("timeout")
	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, r.Begin())
	_, err := r.Write([]byte("x"))
	require.NoError(t, err)
	assert.Error(t, r.End())
}
