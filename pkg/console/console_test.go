package console

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/sensorgw/pkg/mqtt"
)

func TestStreamLines(t *testing.T) {
	var out bytes.Buffer
	s := NewStream(strings.NewReader("help\r\nshow-status\n"), &out)
	ctx := context.Background()
	line, err := s.ReadLine(ctx)
	require.NoError(t, err)
	assert.Equal(t, "help", line)
	line, err = s.ReadLine(ctx)
	require.NoError(t, err)
	assert.Equal(t, "show-status", line)
	_, err = s.ReadLine(ctx)
	assert.Equal(t, io.EOF, err)

	Printf(s, "a%d\n", 1)
	assert.Equal(t, "a1\n", out.String())
}

func TestStreamDropsOverlongLine(t *testing.T) {
	input := strings.Repeat("x", 70*1024) + "\nshow-status\n"
	s := NewStream(strings.NewReader(input), io.Discard)
	ctx := context.Background()
	line, err := s.ReadLine(ctx)
	require.NoError(t, err)
	assert.Equal(t, "show-status", line)
	_, err = s.ReadLine(ctx)
	assert.Equal(t, io.EOF, err)
}

func TestStreamCRLF(t *testing.T) {
	var out bytes.Buffer
	s := NewStream(strings.NewReader(""), &out).WithCRLF()
	Println(s, "ok")
	assert.Equal(t, "ok\r\n", out.String())
}

func TestReadLineDeadline(t *testing.T) {
	r, _ := io.Pipe()
	s := NewStream(r, io.Discard)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := s.ReadLine(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type fakePubSub struct {
	handlers map[string]mqtt.Handler
	pubs     []string
}

func (f *fakePubSub) Sub(filter string, handler mqtt.Handler) *mqtt.Subscription {
	f.handlers[filter] = handler
	return &mqtt.Subscription{}
}

func (f *fakePubSub) Pub(topic string, payload []byte) paho.Token {
	f.pubs = append(f.pubs, topic+"="+string(payload))
	return &paho.DummyToken{}
}

func TestRemote(t *testing.T) {
	ps := &fakePubSub{handlers: make(map[string]mqtt.Handler)}
	r := NewRemote(ps, "gw/1")
	h := ps.handlers["gw/1/console/in"]
	require.NotNil(t, h)
	h("gw/1/console/in", []byte("send-now Barn\nshow-status\n"))

	ctx := context.Background()
	line, err := r.ReadLine(ctx)
	require.NoError(t, err)
	assert.Equal(t, "send-now Barn", line)
	line, err = r.ReadLine(ctx)
	require.NoError(t, err)
	assert.Equal(t, "show-status", line)

	Println(r, "OK")
	assert.Equal(t, []string{"gw/1/console/out=OK\n"}, ps.pubs)
	require.NoError(t, r.Close())
	_, err = r.ReadLine(ctx)
	assert.Equal(t, io.EOF, err)
}
