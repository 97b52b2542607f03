package gateway

import (
	"github.com/robotalks/sensorgw/pkg/console"
	"github.com/robotalks/sensorgw/pkg/state"
)

// Snapshot is an alias kept local to the command handlers.
type Snapshot = state.Snapshot

func activeString(active bool) string {
	if active {
		return "active"
	}
	return "inactive"
}

func (g *Gateway) printSnapshot(c console.Console) {
	snap, err := g.Store.Snapshot()
	if err != nil {
		console.Printf(c, "snapshot unavailable: %v\n", err)
		return
	}
	console.Printf(c, "Temperature: %d C\n", snap.Temperature)
	console.Printf(c, "Humidity: %.1f %%\n", snap.Humidity)
	console.Printf(c, "Illuminance: %d lux\n", snap.Illuminance)
	console.Printf(c, "Distance: %.2f\n", snap.Distance)
}

func (g *Gateway) printLinks(c console.Console) {
	links, err := g.Store.Links()
	if err != nil {
		console.Printf(c, "link state unavailable: %v\n", err)
		return
	}
	if links.AddressConfigured {
		console.Printf(c, "Peer address: %s\n", links.PeerAddress)
	} else {
		console.Println(c, "Peer address: not set")
	}
	console.Printf(c, "Peer link: %s\n", activeString(links.PeerLinkActive))
	console.Printf(c, "Broadcast link: %s\n", activeString(links.BroadcastLinkActive))
}

// PrintStatus writes the identity, link states, the snapshot and the
// health counters.
func (g *Gateway) PrintStatus(c console.Console) {
	console.Printf(c, "Gateway: %s\n", g.ID)
	g.printLinks(c)
	g.printSnapshot(c)
	peer := g.Peer.Stats()
	console.Printf(c, "Peer frames: %d (malformed %d, overflow %d)\n",
		peer.Frames, peer.Malformed, peer.Overflows)
	console.Printf(c, "Broadcasts: %d (failed %d)\n", g.Broadcast.Sent(), g.Broadcast.Failures())
	console.Printf(c, "Dropped events: %d\n", g.Events.Dropped())
	console.Printf(c, "Lock timeouts: %d\n", g.Store.LockTimeouts())
}

func (g *Gateway) printStartup() {
	if g.Console == nil {
		return
	}
	console.Printf(g.Console, "Sensor gateway %s\n", g.ID)
	g.Commands.PrintHelp()
	links, err := g.Store.Links()
	if err != nil {
		return
	}
	if !links.AddressConfigured {
		console.Println(g.Console, "WARNING: No peer configured")
	}
	if !links.BroadcastLinkActive {
		console.Println(g.Console, "WARNING: Broadcast link NOT ready")
	}
}
