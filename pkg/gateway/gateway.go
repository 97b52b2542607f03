// Package gateway composes the sensor gateway: the shared state, the
// event queue, both radio links, and the three scheduled tasks.
package gateway

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/sensorgw/pkg/broadcast"
	"github.com/robotalks/sensorgw/pkg/command"
	"github.com/robotalks/sensorgw/pkg/config"
	"github.com/robotalks/sensorgw/pkg/console"
	"github.com/robotalks/sensorgw/pkg/event"
	fx "github.com/robotalks/sensorgw/pkg/framework"
	"github.com/robotalks/sensorgw/pkg/nvstore"
	"github.com/robotalks/sensorgw/pkg/peerlink"
	"github.com/robotalks/sensorgw/pkg/sensors"
	"github.com/robotalks/sensorgw/pkg/state"
)

// Task names.
const (
	TaskSampling = "sampling"
	TaskComm     = "comm"
	TaskCommand  = "command"
)

// Gateway owns every component. It is built once at startup.
type Gateway struct {
	ID        string
	Hub       config.Hub
	Timing    config.Timing
	Store     *state.Store
	Events    *event.Queue
	Peer      *peerlink.Handler
	Broadcast *broadcast.Handler
	Sampler   *sensors.Sampler
	NV        nvstore.Store
	Console   console.Console
	Commands  *command.Dispatcher
	Restarter Restarter
	// Extra runs alongside the tasks, e.g. telemetry.
	Extra []fx.Runnable

	lastPushAttempt time.Time
	consoleClosed   bool
}

// Components are the collaborators New wires together.
type Components struct {
	ID        string
	Hub       config.Hub
	Timing    config.Timing
	Radio     broadcast.Radio
	Dialer    peerlink.Dialer
	Climate   sensors.Climate
	Light     sensors.Light
	NV        nvstore.Store
	Console   console.Console
	Restarter Restarter
}

// New creates a Gateway with zero-state store and empty event queue.
func New(c Components) *Gateway {
	timing := c.Timing
	defaults := config.Builtin().Timing
	fill := func(d *time.Duration, def time.Duration) {
		if *d <= 0 {
			*d = def
		}
	}
	fill(&timing.Sample, defaults.Sample)
	fill(&timing.Comm, defaults.Comm)
	fill(&timing.Command, defaults.Command)
	fill(&timing.Broadcast, defaults.Broadcast)
	fill(&timing.Lock, defaults.Lock)
	fill(&timing.EventWait, defaults.EventWait)
	fill(&timing.EventConsume, defaults.EventConsume)
	fill(&timing.Pairing, defaults.Pairing)

	hub := c.Hub
	if hub.Name == "" {
		hub = config.Builtin().Hub
	}
	radio := c.Radio
	if radio == nil {
		radio = broadcast.Disabled{}
	}
	restarter := c.Restarter
	if restarter == nil {
		restarter = RestartFunc(ExecRestart)
	}

	store := state.NewStore()
	store.Timeout = timing.Lock
	events := event.NewQueue(event.DefaultCapacity)
	events.Wait = timing.EventWait

	g := &Gateway{
		ID:        c.ID,
		Hub:       hub,
		Timing:    timing,
		Store:     store,
		Events:    events,
		Peer:      peerlink.NewHandler(store, events, c.Dialer),
		Broadcast: broadcast.NewHandler(store, events, radio),
		Sampler:   &sensors.Sampler{Climate: c.Climate, Light: c.Light, Now: func() time.Time { return store.Now() }},
		NV:        c.NV,
		Console:   c.Console,
		Restarter: restarter,
	}
	g.Broadcast.Schema = broadcast.Schema{Hub: hub.Name, Fields: hub.Fields, Types: hub.Types}
	g.Commands = command.NewDispatcher(c.Console)
	g.Commands.Add(g.commandTable()...)
	return g
}

// Boot resets the state, brings up the links and takes the first sample.
// Link failures are reported and leave the link inactive.
func (g *Gateway) Boot(ctx context.Context) {
	g.Store.Reset()
	if err := g.Broadcast.Init(ctx); err != nil {
		glog.Warningf("broadcast link not ready: %v", err)
	}
	g.restorePeer(ctx)
	g.printStartup()
	g.sample(ctx)
}

func (g *Gateway) restorePeer(ctx context.Context) {
	addr, ok, err := nvstore.LoadPeer(g.NV)
	if err != nil {
		glog.Errorf("load peer address: %v", err)
		return
	}
	if !ok {
		glog.Info("no peer address configured")
		return
	}
	if err = g.Store.SetPeer(addr); err != nil {
		glog.Errorf("restore peer address: %v", err)
		return
	}
	if err = g.Peer.Activate(ctx, addr); err != nil {
		glog.Warningf("peer link %s not started: %v", addr, err)
	}
}

// Tasks returns the three scheduled tasks.
func (g *Gateway) Tasks() []fx.Runnable {
	return []fx.Runnable{
		&fx.Task{
			TaskName:    TaskSampling,
			Priority:    fx.PrLvSense,
			Period:      g.Timing.Sample,
			PhaseLocked: true,
			Step:        g.sample,
		},
		&fx.Task{
			TaskName: TaskComm,
			Priority: fx.PrLvComm,
			Period:   g.Timing.Comm,
			Step:     g.commStep,
		},
		&fx.Task{
			TaskName: TaskCommand,
			Priority: fx.PrLvComm,
			Period:   g.Timing.Command,
			Step:     g.commandStep,
		},
	}
}

// Run boots the gateway and runs all tasks until ctx is done.
func (g *Gateway) Run(ctx context.Context) error {
	g.Boot(ctx)
	runner := fx.NewRunnerWith(ctx)
	runner.Go(g.Tasks()...)
	runner.Go(g.Extra...)
	return runner.Wait()
}

// sample is one sampling pass. The sampling task is the lock's primary
// owner and waits for it indefinitely.
func (g *Gateway) sample(context.Context) error {
	var snap state.Snapshot
	g.Store.UpdateWait(func(s *state.Snapshot) {
		g.Sampler.Sample(s)
		snap = *s
	})
	sensors.Log(snap)
	return g.Events.Publish(event.Event{Kind: event.SensorReady})
}

func (g *Gateway) commStep(ctx context.Context) error {
	g.Peer.Poll()
	if ev, ok := g.Events.Consume(ctx, g.Timing.EventConsume); ok {
		g.react(ev)
	}
	now := g.Store.Now()
	if now.Sub(g.lastPushAttempt) >= g.Timing.Broadcast {
		g.lastPushAttempt = now
		g.push(g.Hub.Name)
	}
	return nil
}

func (g *Gateway) react(ev event.Event) {
	glog.V(4).Infof("event %v", ev)
	switch ev.Kind {
	case event.BroadcastRequested:
		g.push(g.Hub.Name)
	case event.DistanceUpdated:
		glog.V(2).Infof("distance %.2f", float64(ev.Value)/100)
	case event.ConfigChanged:
		glog.Info("configuration changed")
	case event.SystemError:
		glog.Warning("system error reported")
	}
}

func (g *Gateway) push(hub string) {
	if _, err := g.Broadcast.PushReading(hub); err != nil && !errors.Is(err, broadcast.ErrLinkInactive) {
		glog.V(1).Infof("push reading: %v", err)
	}
}

func (g *Gateway) commandStep(ctx context.Context) error {
	if g.consoleClosed {
		<-ctx.Done()
		return ctx.Err()
	}
	line, err := g.Console.ReadLine(ctx)
	if err != nil {
		if errors.Is(err, io.EOF) {
			glog.Info("console closed")
			g.consoleClosed = true
			return nil
		}
		return err
	}
	g.Commands.Dispatch(ctx, line)
	return nil
}
