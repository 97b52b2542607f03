package gateway

import (
	"context"

	"github.com/golang/glog"

	"github.com/robotalks/sensorgw/pkg/command"
	"github.com/robotalks/sensorgw/pkg/console"
	"github.com/robotalks/sensorgw/pkg/pairing"
)

func (g *Gateway) commandTable() []*command.Command {
	return []*command.Command{
		{
			Name:    "configure-peer",
			Aliases: []string{"config"},
			Help:    "show, set or clear the peer address",
			Func:    g.cmdConfigurePeer,
		},
		{
			Name:    "read-sensors-now",
			Aliases: []string{"sensors"},
			Help:    "take one sample and print it",
			Func:    g.cmdReadSensors,
		},
		{
			Name:    "send-now",
			Aliases: []string{"send"},
			Args:    "[hub]",
			Help:    "push the current reading over the broadcast link",
			Func:    g.cmdSendNow,
		},
		{
			Name:    "show-status",
			Aliases: []string{"status"},
			Help:    "print link states and the current reading",
			Func:    g.cmdShowStatus,
		},
		{
			Name:    "retry-radio-init",
			Aliases: []string{"lora"},
			Help:    "bring up the broadcast link again",
			Func:    g.cmdRetryRadio,
		},
		{
			Name:    "restart",
			Aliases: []string{"reset"},
			Help:    "restart the gateway",
			Func:    g.cmdRestart,
		},
	}
}

func (g *Gateway) cmdConfigurePeer(ctx context.Context, c console.Console, _ string) {
	m := &pairing.Machine{
		Console: c,
		Store:   g.Store,
		NV:      g.NV,
		Link:    g.Peer,
		Events:  g.Events,
		Timeout: g.Timing.Pairing,
	}
	outcome, err := m.Run(ctx)
	if err != nil {
		glog.Warningf("pairing %v: %v", outcome, err)
		return
	}
	glog.V(1).Infof("pairing %v", outcome)
}

func (g *Gateway) cmdReadSensors(_ context.Context, c console.Console, _ string) {
	err := g.Store.Update(func(s *Snapshot) {
		g.Sampler.Sample(s)
	})
	if err != nil {
		console.Printf(c, "sensor read skipped: %v\n", err)
		return
	}
	g.printSnapshot(c)
}

func (g *Gateway) cmdSendNow(_ context.Context, c console.Console, hub string) {
	if hub == "" {
		hub = g.Hub.Name
	}
	frame, err := g.Broadcast.PushReading(hub)
	if err != nil {
		console.Printf(c, "send failed: %v\n", err)
	} else {
		console.Printf(c, "sent: %s\n", frame)
	}
	g.printSnapshot(c)
	g.printLinks(c)
}

func (g *Gateway) cmdShowStatus(_ context.Context, c console.Console, _ string) {
	g.PrintStatus(c)
}

func (g *Gateway) cmdRetryRadio(ctx context.Context, c console.Console, _ string) {
	if err := g.Broadcast.Init(ctx); err != nil {
		console.Printf(c, "Broadcast link init failed: %v\n", err)
		return
	}
	console.Println(c, "Broadcast link ready")
}

func (g *Gateway) cmdRestart(_ context.Context, c console.Console, _ string) {
	console.Println(c, "Restarting...")
	if err := g.Restarter.Restart(); err != nil {
		console.Printf(c, "restart failed: %v\n", err)
	}
}
