package sh

import (
	"testing"

	"github.com/abiosoft/ishell"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/sensorgw/pkg/mqtt"
)

type fakeBroker struct {
	subs      map[string]mqtt.Handler
	published map[string][]string
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{subs: make(map[string]mqtt.Handler), published: make(map[string][]string)}
}

func (b *fakeBroker) Sub(filter string, handler mqtt.Handler) *mqtt.Subscription {
	b.subs[filter] = handler
	return &mqtt.Subscription{}
}

func (b *fakeBroker) Pub(topic string, payload []byte) paho.Token {
	b.published[topic] = append(b.published[topic], string(payload))
	return nil
}

func newTestShell() (*Shell, *fakeBroker, *[]string) {
	broker := newFakeBroker()
	s := New(broker)
	var out []string
	s.Output = func(text string) { out = append(out, text) }
	return s, broker, &out
}

func TestForwardRequiresConnection(t *testing.T) {
	s, _, _ := newTestShell()
	assert.ErrorIs(t, s.Forward("show-status"), ErrNotConnected)
}

func TestForwardAndReplies(t *testing.T) {
	s, broker, out := newTestShell()
	s.Connect(mqtt.Meta{ID: "gw1"})
	require.Contains(t, broker.subs, "gw1/console/out")

	require.NoError(t, s.Shell.Process("send-now", "Barn"))
	require.NoError(t, s.Shell.Process("input", "AA:BB:CC:DD:EE:FF"))
	assert.Equal(t, []string{"send-now Barn", "AA:BB:CC:DD:EE:FF"}, broker.published["gw1/console/in"])

	broker.subs["gw1/console/out"]("gw1/console/out", []byte("Peer link: active\n"))
	assert.Equal(t, []string{"Peer link: active\n"}, *out)

	s.Disconnect()
	assert.Nil(t, s.Conn)
}

func TestForwardCmds(t *testing.T) {
	cmds := ForwardCmds("show-status", "restart")
	require.Len(t, cmds, 2)
	assert.Equal(t, "show-status", cmds[0].Name)
	assert.IsType(t, &ishell.Cmd{}, cmds[1])
}

func TestFormatMeta(t *testing.T) {
	assert.Equal(t, "gw1", FormatMeta(mqtt.Meta{ID: "gw1"}))
	assert.Equal(t, "gw1: hub Barn", FormatMeta(mqtt.Meta{ID: "gw1", Hub: "Barn"}))
}
