package gateway

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/sensorgw/pkg/broadcast"
	mqttradio "github.com/robotalks/sensorgw/pkg/broadcast/mqtt"
	serialradio "github.com/robotalks/sensorgw/pkg/broadcast/serial"
	"github.com/robotalks/sensorgw/pkg/config"
	"github.com/robotalks/sensorgw/pkg/console"
	fx "github.com/robotalks/sensorgw/pkg/framework"
	"github.com/robotalks/sensorgw/pkg/mqtt"
	"github.com/robotalks/sensorgw/pkg/nvstore"
	mqttpeer "github.com/robotalks/sensorgw/pkg/peerlink/mqtt"
	"github.com/robotalks/sensorgw/pkg/peerlink/ws"
	"github.com/robotalks/sensorgw/pkg/sensors"
	"github.com/robotalks/sensorgw/pkg/sensors/modbus"
	"github.com/robotalks/sensorgw/pkg/telemetry"
)

const brokerTimeout = 5 * time.Second

// Env is the process environment a Gateway is built in.
type Env struct {
	Stdin  io.Reader
	Stdout io.Writer
}

// Built is a Gateway with the resources Build opened.
type Built struct {
	*Gateway
	Queue   *mqtt.Queue
	closers []io.Closer
}

// Close releases everything Build opened.
func (b *Built) Close() error {
	var errs fx.AggregatedError
	if b.Queue != nil && b.Gateway != nil && b.Queue.Connected() {
		errs.Add(b.Queue.Withdraw(b.ID, time.Second))
	}
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs.Add(b.closers[i].Close())
	}
	return errs.Aggregate()
}

func (b *Built) track(c io.Closer) {
	if c != nil {
		b.closers = append(b.closers, c)
	}
}

// needsBroker reports whether any component talks to the broker.
func needsBroker(conf *config.Config) bool {
	return conf.Console.Kind == config.KindMQTT ||
		conf.Radio.Kind == config.KindMQTT ||
		conf.Peer.Kind == config.KindMQTT ||
		conf.Telemetry.Interval > 0
}

// Build opens the transports selected by conf and creates the Gateway.
func Build(conf *config.Config, env Env) (_ *Built, err error) {
	b := &Built{}
	defer func() {
		if err != nil {
			b.Close()
		}
	}()

	id := conf.GatewayID()
	c := Components{ID: id, Hub: conf.Hub, Timing: conf.Timing}

	if needsBroker(conf) && conf.MQTTURL != "" {
		meta := mqtt.Meta{ID: id, Hub: conf.Hub.Name, Commands: CommandNames()}
		if b.Queue, err = mqtt.NewAnnouncedQueue(conf.MQTTURL, meta); err != nil {
			return nil, err
		}
		if err = b.Queue.Connect(brokerTimeout); err != nil {
			glog.Warningf("mqtt %s: %v", conf.MQTTURL, err)
			err = nil
		}
		b.track(b.Queue)
	}
	needQueue := func(what string) error {
		if b.Queue == nil {
			return fmt.Errorf("%s over mqtt requires a broker URL", what)
		}
		return nil
	}

	if c.NV, err = openNV(conf.NVPath); err != nil {
		return nil, err
	}

	switch conf.Console.Kind {
	case config.KindStdio, "":
		c.Console = console.NewStream(env.Stdin, env.Stdout)
	case config.KindSerial:
		var stream *console.Stream
		var closer io.Closer
		if stream, closer, err = console.OpenSerial(conf.Console.Device, conf.Console.Baud); err != nil {
			return nil, err
		}
		b.track(closer)
		c.Console = stream
	case config.KindMQTT:
		if err = needQueue("console"); err != nil {
			return nil, err
		}
		remote := console.NewRemote(b.Queue, id)
		b.track(remote)
		c.Console = remote
	default:
		return nil, fmt.Errorf("unknown console kind %q", conf.Console.Kind)
	}

	switch conf.Radio.Kind {
	case config.KindSerial:
		radio := serialradio.New(conf.Radio.Serial)
		b.track(radio)
		c.Radio = radio
	case config.KindMQTT:
		if err = needQueue("radio"); err != nil {
			return nil, err
		}
		c.Radio = mqttradio.New(b.Queue, conf.Radio.Topic)
	case config.KindNone, "":
		c.Radio = broadcast.Disabled{}
	default:
		return nil, fmt.Errorf("unknown radio kind %q", conf.Radio.Kind)
	}

	switch conf.Peer.Kind {
	case config.KindWebsocket:
		c.Dialer = &ws.Dialer{URL: conf.Peer.URL, Timeout: conf.Peer.Timeout}
	case config.KindMQTT:
		if err = needQueue("peer link"); err != nil {
			return nil, err
		}
		c.Dialer = &mqttpeer.Dialer{Queue: b.Queue, Topic: conf.Peer.Topic, Timeout: conf.Peer.Timeout}
	case config.KindNone, "":
	default:
		return nil, fmt.Errorf("unknown peer kind %q", conf.Peer.Kind)
	}

	switch conf.Sensors.Kind {
	case config.KindSim, "":
		sim := sensors.NewSimulated()
		c.Climate, c.Light = sim, sim
	case config.KindModbus:
		var dev *modbus.Device
		if dev, err = modbus.Open(conf.Sensors.Modbus); err != nil {
			return nil, err
		}
		b.track(dev)
		c.Climate = dev
		if conf.Sensors.Modbus.Lux != nil {
			c.Light = dev
		}
	case config.KindNone:
	default:
		return nil, fmt.Errorf("unknown sensors kind %q", conf.Sensors.Kind)
	}

	b.Gateway = New(c)
	if b.Queue != nil && conf.Telemetry.Interval > 0 {
		b.Extra = append(b.Extra, &telemetry.Publisher{
			Queue:    b.Queue,
			Store:    b.Store,
			Events:   b.Events,
			Base:     id,
			ID:       id,
			Interval: conf.Telemetry.Interval,
			Counters: b.Counters,
		})
	}
	return b, nil
}

func openNV(path string) (nvstore.Store, error) {
	if path == "" || strings.EqualFold(path, config.KindNone) {
		glog.Warning("no nv path, peer address will not survive restart")
		return nvstore.NewImage(), nil
	}
	f, err := nvstore.OpenFile(path)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Counters reports the health counters shown by show-status.
func (g *Gateway) Counters() map[string]float64 {
	peer := g.Peer.Stats()
	return map[string]float64{
		"peer_frames":        float64(peer.Frames),
		"peer_malformed":     float64(peer.Malformed),
		"peer_overflows":     float64(peer.Overflows),
		"broadcasts":         float64(g.Broadcast.Sent()),
		"broadcast_failures": float64(g.Broadcast.Failures()),
		"dropped_events":     float64(g.Events.Dropped()),
		"lock_timeouts":      float64(g.Store.LockTimeouts()),
	}
}

// CommandNames lists the console commands, without aliases.
func CommandNames() []string {
	var names []string
	for _, cmd := range (&Gateway{}).commandTable() {
		names = append(names, cmd.Name)
	}
	return names
}

// Stdio is the Env of the running process.
func Stdio() Env {
	return Env{Stdin: os.Stdin, Stdout: os.Stdout}
}
