// Package pairing runs the console workflow that configures the peer
// address.
package pairing

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/sensorgw/pkg/console"
	"github.com/robotalks/sensorgw/pkg/event"
	"github.com/robotalks/sensorgw/pkg/hwaddr"
	"github.com/robotalks/sensorgw/pkg/nvstore"
	"github.com/robotalks/sensorgw/pkg/state"
)

const (
	// DefaultTimeout is the wall-clock deadline of one session.
	DefaultTimeout = 30 * time.Second
	// MaxInput is the longest accepted input line.
	MaxInput = 49
)

// Operator messages.
const (
	MsgPrompt       = "Enter peer MAC address (AA:BB:CC:DD:EE:FF), 'show' or 'clear':"
	MsgNotSet       = "Peer address: not set"
	MsgCleared      = "Peer address cleared"
	MsgInvalid      = "Invalid MAC address format. Use AA:BB:CC:DD:EE:FF"
	MsgTooLong      = "Input too long"
	MsgTimeout      = "Configuration timeout"
	MsgSaved        = "Peer address saved: "
	MsgActivateFail = "Peer link activation failed: "
	MsgNotSaved     = "Peer link active but address NOT saved: "
)

// State is the machine state.
type State int

// States.
const (
	AwaitingInput State = iota
	Showing
	Clearing
	Validating
	Succeeded
	TimedOut
)

// Outcome is how a session ended.
type Outcome int

// Outcomes.
const (
	Success Outcome = iota
	Timeout
	Aborted
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Timeout:
		return "timeout"
	default:
		return "aborted"
	}
}

// Link is the peer link being configured.
type Link interface {
	Activate(ctx context.Context, addr hwaddr.Addr) error
	Deactivate() error
}

// Publisher accepts events.
type Publisher interface {
	Publish(event.Event) error
}

// Machine is one pairing session. It blocks its caller for up to Timeout.
type Machine struct {
	Console console.Console
	Store   *state.Store
	NV      nvstore.Store
	Link    Link
	Events  Publisher
	Timeout time.Duration

	state State
}

// State reports the current state.
func (m *Machine) State() State {
	return m.state
}

// Run runs the session until an address is activated, the deadline
// passes, or the console is closed.
func (m *Machine) Run(ctx context.Context) (Outcome, error) {
	timeout := m.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	sessionCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	console.Println(m.Console, MsgPrompt)
	for {
		m.state = AwaitingInput
		line, err := m.Console.ReadLine(sessionCtx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				m.state = TimedOut
				console.Println(m.Console, MsgTimeout)
				return Timeout, nil
			}
			return Aborted, err
		}
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case len(line) > MaxInput:
			console.Println(m.Console, MsgTooLong)
			continue
		}
		switch strings.ToLower(line) {
		case "show":
			m.state = Showing
			m.show()
		case "clear":
			m.state = Clearing
			m.clear()
		default:
			if m.configure(sessionCtx, line) {
				m.state = Succeeded
				return Success, nil
			}
		}
	}
}

func (m *Machine) show() {
	addr, ok, err := nvstore.LoadPeer(m.NV)
	switch {
	case err != nil:
		console.Printf(m.Console, "Peer address unreadable: %v\n", err)
	case ok:
		console.Printf(m.Console, "Peer address: %s\n", addr)
	default:
		console.Println(m.Console, MsgNotSet)
	}
}

func (m *Machine) clear() {
	if err := nvstore.ClearPeer(m.NV); err != nil {
		glog.Errorf("clear peer address: %v", err)
		console.Printf(m.Console, "Clear failed: %v\n", err)
		return
	}
	if err := m.Link.Deactivate(); err != nil {
		glog.Warningf("deactivate peer link: %v", err)
	}
	if err := m.Store.ClearPeer(); err != nil {
		glog.Warningf("clear peer state: %v", err)
	}
	console.Println(m.Console, MsgCleared)
	m.publish(event.ConfigChanged)
}

func (m *Machine) configure(ctx context.Context, line string) bool {
	addr, err := hwaddr.Parse(line)
	if err != nil {
		console.Println(m.Console, MsgInvalid)
		return false
	}
	m.state = Validating
	if err = m.Link.Activate(ctx, addr); err != nil {
		console.Printf(m.Console, "%s%v\n", MsgActivateFail, err)
		return false
	}
	if err = nvstore.SavePeer(m.NV, addr); err != nil {
		// the active link is kept; it just won't survive a reboot
		glog.Errorf("persist peer address %s: %v", addr, err)
		console.Printf(m.Console, "%s%v\n", MsgNotSaved, err)
		m.publish(event.SystemError)
	} else {
		console.Printf(m.Console, "%s%s\n", MsgSaved, addr)
	}
	m.publish(event.ConfigChanged)
	return true
}

func (m *Machine) publish(kind event.Kind) {
	if m.Events == nil {
		return
	}
	if err := m.Events.Publish(event.Event{Kind: kind}); err != nil {
		glog.Warningf("%v event: %v", kind, err)
	}
}
