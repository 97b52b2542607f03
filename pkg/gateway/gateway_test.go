package gateway

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/sensorgw/pkg/broadcast"
	"github.com/robotalks/sensorgw/pkg/event"
	"github.com/robotalks/sensorgw/pkg/hwaddr"
	"github.com/robotalks/sensorgw/pkg/nvstore"
	"github.com/robotalks/sensorgw/pkg/peerlink"
)

type scriptConsole struct {
	lines chan string
	lock  sync.Mutex
	out   bytes.Buffer
}

func newScriptConsole() *scriptConsole {
	return &scriptConsole{lines: make(chan string, 16)}
}

func (c *scriptConsole) ReadLine(ctx context.Context) (string, error) {
	select {
	case l, ok := <-c.lines:
		if !ok {
			return "", io.EOF
		}
		return l, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *scriptConsole) Write(p []byte) (int, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.out.Write(p)
}

func (c *scriptConsole) take() string {
	c.lock.Lock()
	defer c.lock.Unlock()
	s := c.out.String()
	c.out.Reset()
	return s
}

type fakeRadio struct {
	broadcast.FrameBuffer
	startErr error
	lock     sync.Mutex
	frames   []string
}

func (r *fakeRadio) Start(context.Context) error { return r.startErr }

func (r *fakeRadio) End() error {
	frame, err := r.Take()
	if err != nil {
		return err
	}
	r.lock.Lock()
	r.frames = append(r.frames, string(frame))
	r.lock.Unlock()
	return nil
}

func (r *fakeRadio) sent() []string {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]string(nil), r.frames...)
}

type fixedSensors struct{}

func (fixedSensors) ReadClimate() (float64, float64, error) { return 23.7, 45.5, nil }
func (fixedSensors) ReadLux() (float64, error)              { return 800.4, nil }

type restartCounter struct{ calls int }

func (r *restartCounter) Restart() error {
	r.calls++
	return nil
}

type gatewayTestEnv struct {
	t       *testing.T
	console *scriptConsole
	radio   *fakeRadio
	nv      *nvstore.Image
	pipe    *peerlink.Pipe
	dials   []hwaddr.Addr
	restart *restartCounter
	g       *Gateway
}

func newGatewayTestEnv(t *testing.T) *gatewayTestEnv {
	env := &gatewayTestEnv{
		t:       t,
		console: newScriptConsole(),
		radio:   &fakeRadio{},
		nv:      nvstore.NewImage(),
		restart: &restartCounter{},
	}
	env.g = New(Components{
		ID:    "gw-test",
		Radio: env.radio,
		Dialer: peerlink.DialFunc(func(ctx context.Context, addr hwaddr.Addr) (peerlink.Conn, error) {
			env.dials = append(env.dials, addr)
			env.pipe = peerlink.NewPipe(0)
			return env.pipe, nil
		}),
		Climate:   fixedSensors{},
		Light:     fixedSensors{},
		NV:        env.nv,
		Console:   env.console,
		Restarter: env.restart,
	})
	return env
}

func (env *gatewayTestEnv) boot() *gatewayTestEnv {
	env.g.Boot(context.Background())
	return env
}

func (env *gatewayTestEnv) run(lines ...string) string {
	for _, l := range lines[1:] {
		env.console.lines <- l
	}
	env.console.take()
	env.g.Commands.Dispatch(context.Background(), lines[0])
	return env.console.take()
}

func (env *gatewayTestEnv) waitFor(kind event.Kind) (event.Event, bool) {
	for {
		ev, ok := env.g.Events.Consume(context.Background(), 0)
		if !ok {
			return ev, false
		}
		if ev.Kind == kind {
			return ev, true
		}
	}
}

func TestBootWithoutPeer(t *testing.T) {
	env := newGatewayTestEnv(t).boot()
	out := env.console.take()
	assert.Contains(t, out, "WARNING: No peer configured")
	assert.NotContains(t, out, "Broadcast link NOT ready")
	assert.Contains(t, out, "configure-peer")
	assert.Empty(t, env.dials)
	assert.Equal(t, []string{"    CH>Greenhouse:Temperature,Humidity,Lux,Distance:1,2,1,2"}, env.radio.sent())

	snap, err := env.g.Store.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 23, snap.Temperature)
	assert.Equal(t, 800, snap.Illuminance)
	_, ok := env.waitFor(event.SensorReady)
	assert.True(t, ok)
}

func TestBootRadioFailure(t *testing.T) {
	env := newGatewayTestEnv(t)
	env.radio.startErr = errors.New("no modem")
	env.boot()
	assert.Contains(t, env.console.take(), "WARNING: Broadcast link NOT ready")
	assert.Contains(t, env.run("show-status"), "Broadcast link: inactive")
	assert.Empty(t, env.radio.sent())
}

func TestBootRestoresPeer(t *testing.T) {
	env := newGatewayTestEnv(t)
	addr := hwaddr.MustParse("01:02:03:04:05:06")
	require.NoError(t, nvstore.SavePeer(env.nv, addr))
	env.boot()
	assert.Equal(t, []hwaddr.Addr{addr}, env.dials)
	assert.NotContains(t, env.console.take(), "No peer configured")
	out := env.run("status")
	assert.Contains(t, out, "Peer address: 01:02:03:04:05:06")
	assert.Contains(t, out, "Peer link: active")
}

func TestConfigurePeerEndToEnd(t *testing.T) {
	env := newGatewayTestEnv(t).boot()
	out := env.run("show-status")
	assert.Contains(t, out, "Gateway: gw-test")
	assert.Contains(t, out, "Peer address: not set")
	assert.Contains(t, out, "Peer link: inactive")

	out = env.run("configure-peer", "AA:BB:CC:DD:EE:FF")
	assert.Contains(t, out, "Peer address saved: AA:BB:CC:DD:EE:FF")

	out = env.run("show-status")
	assert.Contains(t, out, "Peer link: active")
	img := env.nv.Committed()
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}, img[0:6])
	assert.Equal(t, byte(0xAA), img[48])
	_, ok := env.waitFor(event.ConfigChanged)
	assert.True(t, ok)
}

func TestDistanceEndToEnd(t *testing.T) {
	env := newGatewayTestEnv(t).boot()
	env.run("config", "aa-bb-cc-dd-ee-ff")
	require.NotNil(t, env.pipe)
	_, err := env.pipe.Write([]byte("DIST:12.5\n"))
	require.NoError(t, err)
	env.g.Peer.Poll()

	d, err := env.g.Store.Distance()
	require.NoError(t, err)
	assert.Equal(t, 12.5, d)
	ev, ok := env.waitFor(event.DistanceUpdated)
	require.True(t, ok)
	assert.Equal(t, int32(1250), ev.Value)
}

func TestSendNowDefaultHub(t *testing.T) {
	env := newGatewayTestEnv(t).boot()
	out := env.run("send-now")
	assert.Contains(t, out, "sent:")
	assert.Contains(t, out, "Broadcast link: active")
	frames := env.radio.sent()
	require.Len(t, frames, 2)
	assert.Contains(t, frames[1], "PD")
	assert.Contains(t, frames[1], "Greenhouse")

	env.run("send Barn")
	frames = env.radio.sent()
	assert.Contains(t, frames[2], "PD>Barn:")
}

func TestSendNowInactive(t *testing.T) {
	env := newGatewayTestEnv(t)
	env.radio.startErr = errors.New("no modem")
	env.boot()
	assert.Contains(t, env.run("send-now"), "send failed")
	assert.Empty(t, env.radio.sent())
}

func TestRetryRadio(t *testing.T) {
	env := newGatewayTestEnv(t)
	env.radio.startErr = errors.New("no modem")
	env.boot()
	assert.Contains(t, env.run("retry-radio-init"), "init failed")
	env.radio.startErr = nil
	assert.Contains(t, env.run("lora"), "Broadcast link ready")
	assert.Contains(t, env.run("status"), "Broadcast link: active")
}

func TestReadSensorsNow(t *testing.T) {
	env := newGatewayTestEnv(t).boot()
	out := env.run("READ-SENSORS-NOW")
	assert.Contains(t, out, "Temperature: 23 C")
	assert.Contains(t, out, "Illuminance: 800 lux")
}

func TestRestartCommand(t *testing.T) {
	env := newGatewayTestEnv(t).boot()
	assert.Contains(t, env.run("reset"), "Restarting")
	assert.Equal(t, 1, env.restart.calls)
}

func TestUnknownCommand(t *testing.T) {
	env := newGatewayTestEnv(t).boot()
	out := env.run("frobnicate now")
	assert.Contains(t, out, "unknown command: frobnicate")
	assert.Contains(t, out, "show-status")
}

func TestCommStepAnswersBroadcastRequest(t *testing.T) {
	env := newGatewayTestEnv(t).boot()
	env.g.lastPushAttempt = time.Now()
	for env.g.Events.Len() > 0 {
		env.g.Events.Consume(context.Background(), 0)
	}
	require.NoError(t, env.g.Events.TryPublish(event.Event{Kind: event.BroadcastRequested}))
	require.NoError(t, env.g.commStep(context.Background()))
	frames := env.radio.sent()
	require.Len(t, frames, 2)
	assert.Contains(t, frames[1], "PD>Greenhouse:")
}

func TestCommStepPeriodicPush(t *testing.T) {
	env := newGatewayTestEnv(t).boot()
	env.g.Timing.EventConsume = time.Millisecond
	now := time.Unix(1000, 0)
	env.g.Store.Now = func() time.Time { return now }
	require.NoError(t, env.g.commStep(context.Background()))
	assert.Len(t, env.radio.sent(), 2)
	require.NoError(t, env.g.commStep(context.Background()))
	assert.Len(t, env.radio.sent(), 2)

	now = now.Add(env.g.Timing.Broadcast - time.Millisecond)
	require.NoError(t, env.g.commStep(context.Background()))
	assert.Len(t, env.radio.sent(), 2)
	now = now.Add(time.Millisecond)
	require.NoError(t, env.g.commStep(context.Background()))
	assert.Len(t, env.radio.sent(), 3)
}

func TestRunStopsOnCancel(t *testing.T) {
	env := newGatewayTestEnv(t)
	close(env.console.lines)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)
	assert.NoError(t, env.g.Run(ctx))
	assert.True(t, env.g.consoleClosed)
}
