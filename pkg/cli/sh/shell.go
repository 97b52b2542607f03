// Package sh is the ishell front end of a gateway's remote console.
package sh

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/abiosoft/ishell"
	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/robotalks/sensorgw/pkg/console"
	"github.com/robotalks/sensorgw/pkg/gateway"
	"github.com/robotalks/sensorgw/pkg/mqtt"
)

// Broker is the part of mqtt.Queue used by the shell.
type Broker interface {
	Sub(filter string, handler mqtt.Handler) *mqtt.Subscription
	Pub(topic string, payload []byte) paho.Token
}

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	// Wait is how long to collect replies in eval-only mode.
	Wait time.Duration

	Shell  *ishell.Shell
	Broker Broker
	Conn   *Conn
	// Output receives console replies; defaults to the ishell.
	Output func(string)
}

// Conn is the attached gateway.
type Conn struct {
	Meta mqtt.Meta
	sub  *mqtt.Subscription
}

const (
	shellKey          = "$shell"
	unconnectedPrompt = "[none] > "
	discoverWait      = 500 * time.Millisecond
)

// ErrNotConnected is returned by commands requiring a gateway.
var ErrNotConnected = errors.New("not connected")

var (
	mqttURL    = "mqtt://localhost:1883/sensorgw/"
	target     string
	evalOnly   bool
	outputJSON bool
	replyWait  = time.Second

	commands = []*ishell.Cmd{
		&DiscoverCmd,
		&ConnectCmd,
		&DisconnectCmd,
		&InputCmd,
	}
)

// SetupFlags registers the shell flags.
func SetupFlags() {
	if val := os.Getenv("SENSORGW_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
	flag.StringVar(&target, "gw", target, "Gateway ID to attach to.")
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print discovery output in JSON.")
	flag.DurationVar(&replyWait, "wait", replyWait, "Time to collect replies in evaluation mode.")
}

// New creates a new shell.
func New(broker Broker) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,
		Wait:        replyWait,

		Shell:  ishell.New(),
		Broker: broker,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	for _, cmd := range ForwardCmds(gateway.CommandNames()...) {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

func (s *Shell) print(text string) {
	if s.Output != nil {
		s.Output(text)
		return
	}
	s.Shell.Print(text)
}

// Connect attaches to gateway id, replacing the current attachment.
func (s *Shell) Connect(meta mqtt.Meta) {
	s.Disconnect()
	conn := &Conn{Meta: meta}
	conn.sub = s.Broker.Sub(meta.ID+console.OutTopic, func(_ string, payload []byte) {
		s.print(string(payload))
	})
	s.Conn = conn
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", meta.ID))
}

// Disconnect detaches from the current gateway.
func (s *Shell) Disconnect() {
	if s.Conn != nil {
		s.Conn.sub.Close()
		s.Conn = nil
		s.Shell.SetPrompt(unconnectedPrompt)
	}
}

// Forward sends one console line to the attached gateway.
func (s *Shell) Forward(line string) error {
	if s.Conn == nil {
		return ErrNotConnected
	}
	s.Broker.Pub(s.Conn.Meta.ID+console.InTopic, []byte(line))
	return nil
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		time.Sleep(s.Wait)
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

// ForwardCmds creates commands which send their line to the gateway.
func ForwardCmds(names ...string) []*ishell.Cmd {
	cmds := make([]*ishell.Cmd, 0, len(names))
	for _, name := range names {
		name := name
		cmds = append(cmds, &ishell.Cmd{
			Name: name,
			Help: "run " + name + " on the gateway",
			Func: func(c *ishell.Context) {
				line := strings.TrimSpace(name + " " + strings.Join(c.Args, " "))
				if err := ShellFrom(c).Forward(line); err != nil {
					c.Err(err)
				}
			},
		})
	}
	return cmds
}

var (
	// DiscoverCmd lists announced gateways.
	DiscoverCmd = ishell.Cmd{
		Name:    "discover",
		Aliases: []string{"list", "l"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			found := mqtt.Discover(s.Broker, discoverWait)
			if s.OutputJSON {
				out, err := json.Marshal(found)
				if err != nil {
					c.Err(err)
					return
				}
				c.Println(string(out))
				return
			}
			if len(found) == 0 {
				c.Println("No gateways found")
				return
			}
			for _, meta := range found {
				c.Println(FormatMeta(meta))
			}
		},
	}

	// ConnectCmd attaches to a gateway.
	ConnectCmd = ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "[ID]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if len(c.Args) > 0 {
				s.Connect(mqtt.Meta{ID: c.Args[0]})
				return
			}
			found := mqtt.Discover(s.Broker, discoverWait)
			switch {
			case len(found) == 0:
				c.Err(fmt.Errorf("no gateway discovered"))
				return
			case len(found) > 1 && !s.Interactive:
				c.Err(fmt.Errorf("more than 1 gateways discovered in non-interactive mode"))
				return
			}
			index := 0
			if len(found) > 1 {
				items := make([]string, len(found))
				for n, meta := range found {
					items[n] = FormatMeta(meta)
				}
				index = s.Shell.MultiChoice(items, "Which one to connect?")
			}
			s.Connect(found[index])
		},
	}

	// DisconnectCmd detaches from the gateway.
	DisconnectCmd = ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Disconnect()
		},
	}

	// InputCmd sends free text, e.g. an answer to the pairing prompt.
	InputCmd = ishell.Cmd{
		Name:    "input",
		Aliases: []string{"i"},
		Help:    "TEXT",
		Func: func(c *ishell.Context) {
			if err := ShellFrom(c).Forward(strings.Join(c.Args, " ")); err != nil {
				c.Err(err)
			}
		},
	}
)

// FormatMeta prints an announcement for display.
func FormatMeta(meta mqtt.Meta) string {
	if meta.Hub == "" {
		return meta.ID
	}
	return meta.ID + ": hub " + meta.Hub
}

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	queue, err := mqtt.NewQueueFromURL(mqttURL, "")
	if err != nil {
		log.Fatalln(err)
	}
	if err = queue.Connect(5 * time.Second); err != nil {
		log.Fatalln(err)
	}
	defer queue.Close()

	s := New(queue)
	if target != "" {
		s.Connect(mqtt.Meta{ID: target})
	}
	s.Run(flag.Args()...)
}

