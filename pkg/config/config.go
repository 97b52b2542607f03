// Package config holds gateway settings from defaults, environment,
// an optional YAML file and command line flags, in increasing precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	serialradio "github.com/robotalks/sensorgw/pkg/broadcast/serial"
	"github.com/robotalks/sensorgw/pkg/sensors/modbus"
)

// Transport kinds.
const (
	KindNone      = "none"
	KindStdio     = "stdio"
	KindSerial    = "serial"
	KindMQTT      = "mqtt"
	KindWebsocket = "websocket"
	KindSim       = "sim"
	KindModbus    = "modbus"
)

// Hub is the receiving hub's schema.
type Hub struct {
	Name   string `yaml:"name"`
	Fields string `yaml:"fields"`
	Types  string `yaml:"types"`
}

// Timing holds every period and timeout.
type Timing struct {
	Sample       time.Duration `yaml:"sample"`
	Comm         time.Duration `yaml:"comm"`
	Command      time.Duration `yaml:"command"`
	Broadcast    time.Duration `yaml:"broadcast"`
	Lock         time.Duration `yaml:"lock"`
	EventWait    time.Duration `yaml:"event_wait"`
	EventConsume time.Duration `yaml:"event_consume"`
	Pairing      time.Duration `yaml:"pairing"`
}

// Console selects the operator console.
type Console struct {
	Kind   string `yaml:"kind"`
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
}

// Radio selects the broadcast radio.
type Radio struct {
	Kind   string             `yaml:"kind"`
	Serial serialradio.Config `yaml:"serial"`
	Topic  string             `yaml:"topic"`
}

// Peer selects the peer link transport.
type Peer struct {
	Kind    string        `yaml:"kind"`
	URL     string        `yaml:"url"`
	Topic   string        `yaml:"topic"`
	Timeout time.Duration `yaml:"timeout"`
}

// Sensors selects the sensor source.
type Sensors struct {
	Kind   string        `yaml:"kind"`
	Modbus modbus.Config `yaml:"modbus"`
}

// Telemetry controls the broker telemetry publisher.
type Telemetry struct {
	Interval time.Duration `yaml:"interval"`
}

// Config is the complete gateway configuration.
type Config struct {
	// ID names the gateway in topics and status; defaults to the machine ID.
	ID string `yaml:"id"`
	// MQTTURL is the broker, e.g. mqtt://localhost:1883/sensorgw/.
	MQTTURL string `yaml:"mqtt"`
	// NVPath is the file emulating non-volatile memory.
	NVPath string `yaml:"nv_path"`

	Hub       Hub       `yaml:"hub"`
	Timing    Timing    `yaml:"timing"`
	Console   Console   `yaml:"console"`
	Radio     Radio     `yaml:"radio"`
	Peer      Peer      `yaml:"peer"`
	Sensors   Sensors   `yaml:"sensors"`
	Telemetry Telemetry `yaml:"telemetry"`
}

// Builtin returns the compiled-in defaults.
func Builtin() Config {
	return Config{
		MQTTURL: "mqtt://localhost:1883/sensorgw/",
		NVPath:  "sensorgw.nv",
		Hub: Hub{
			Name:   "Greenhouse",
			Fields: "Temperature,Humidity,Lux,Distance",
			Types:  "1,2,1,2",
		},
		Timing: Timing{
			Sample:       time.Second,
			Comm:         10 * time.Millisecond,
			Command:      50 * time.Millisecond,
			Broadcast:    time.Second,
			Lock:         100 * time.Millisecond,
			EventWait:    100 * time.Millisecond,
			EventConsume: 10 * time.Millisecond,
			Pairing:      30 * time.Second,
		},
		Console: Console{Kind: KindStdio, Baud: 115200},
		Radio: Radio{
			Kind: KindSerial,
			Serial: serialradio.Config{
				Device:   "/dev/ttyUSB0",
				BaudRate: 115200,
				Band:     915000000,
				HubAddr:  1,
				Timeout:  time.Second,
			},
			Topic: "hub/frames",
		},
		Peer: Peer{
			Kind:    KindMQTT,
			URL:     "ws://localhost:8080/peers/{addr}",
			Topic:   "peers/%s/tx",
			Timeout: 5 * time.Second,
		},
		Sensors:   Sensors{Kind: KindSim},
		Telemetry: Telemetry{Interval: 10 * time.Second},
	}
}

var (
	defaultConfig = Builtin()
	configFile    string
)

func init() {
	if val := os.Getenv("SENSORGW_MQTT_URL"); val != "" {
		defaultConfig.MQTTURL = val
	}
	if val := os.Getenv("SENSORGW_ID"); val != "" {
		defaultConfig.ID = val
	}
	if val := os.Getenv("SENSORGW_CONFIG"); val != "" {
		configFile = val
	}
}

// flagFields copies each flag-bound field; used to re-apply explicitly
// set flags over file values.
var flagFields = map[string]func(dst, src *Config){
	"config":      func(dst, src *Config) {},
	"id":          func(dst, src *Config) { dst.ID = src.ID },
	"mqtt":        func(dst, src *Config) { dst.MQTTURL = src.MQTTURL },
	"nv":          func(dst, src *Config) { dst.NVPath = src.NVPath },
	"hub":         func(dst, src *Config) { dst.Hub.Name = src.Hub.Name },
	"console":     func(dst, src *Config) { dst.Console.Kind = src.Console.Kind },
	"console-dev": func(dst, src *Config) { dst.Console.Device = src.Console.Device },
	"radio":       func(dst, src *Config) { dst.Radio.Kind = src.Radio.Kind },
	"radio-dev":   func(dst, src *Config) { dst.Radio.Serial.Device = src.Radio.Serial.Device },
	"peer":        func(dst, src *Config) { dst.Peer.Kind = src.Peer.Kind },
	"peer-url":    func(dst, src *Config) { dst.Peer.URL = src.Peer.URL },
	"sensors":     func(dst, src *Config) { dst.Sensors.Kind = src.Sensors.Kind },
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	SetupFlagSet(flag.CommandLine)
}

// SetupFlagSet binds the flags to fs.
func SetupFlagSet(fs *flag.FlagSet) {
	c := &defaultConfig
	fs.StringVar(&configFile, "config", configFile, "YAML configuration file.")
	fs.StringVar(&c.ID, "id", c.ID, "Gateway ID, defaults to the machine ID.")
	fs.StringVar(&c.MQTTURL, "mqtt", c.MQTTURL, "MQTT broker URL, empty to disable.")
	fs.StringVar(&c.NVPath, "nv", c.NVPath, "Non-volatile memory image file.")
	fs.StringVar(&c.Hub.Name, "hub", c.Hub.Name, "Default hub name.")
	fs.StringVar(&c.Console.Kind, "console", c.Console.Kind, "Console: stdio, serial or mqtt.")
	fs.StringVar(&c.Console.Device, "console-dev", c.Console.Device, "Serial console device.")
	fs.StringVar(&c.Radio.Kind, "radio", c.Radio.Kind, "Broadcast radio: serial, mqtt or none.")
	fs.StringVar(&c.Radio.Serial.Device, "radio-dev", c.Radio.Serial.Device, "Radio modem device.")
	fs.StringVar(&c.Peer.Kind, "peer", c.Peer.Kind, "Peer link: mqtt, websocket or none.")
	fs.StringVar(&c.Peer.URL, "peer-url", c.Peer.URL, "Peer websocket URL, {addr} is replaced.")
	fs.StringVar(&c.Sensors.Kind, "sensors", c.Sensors.Kind, "Sensors: sim, modbus or none.")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config from defaults and flags, loading the file
// given by -config when set. Flags explicitly set on the command line win
// over the file.
func NewConfig() (*Config, error) {
	conf := defaultConfig
	if configFile == "" {
		return &conf, nil
	}
	loaded, err := Load(configFile, Builtin())
	if err != nil {
		return nil, err
	}
	if flag.Parsed() {
		flag.Visit(func(f *flag.Flag) {
			if apply := flagFields[f.Name]; apply != nil {
				apply(loaded, &conf)
			}
		})
	}
	return loaded, nil
}

// Load reads a YAML file over base. Unknown keys are rejected.
func Load(path string, base Config) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	conf := base
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&conf); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &conf, nil
}

// Validate checks the configuration.
func Validate(c *Config) error {
	var errs []string
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			errs = append(errs, fmt.Sprintf(format, args...))
		}
	}
	oneOf := func(name, val string, kinds ...string) {
		for _, k := range kinds {
			if val == k {
				return
			}
		}
		errs = append(errs, fmt.Sprintf("%s: %q is not one of %s", name, val, strings.Join(kinds, ", ")))
	}

	check(c.Hub.Name != "", "hub.name is required")
	check(!strings.ContainsAny(c.Hub.Name, ":,"), "hub.name %q must not contain ':' or ','", c.Hub.Name)
	check(strings.Count(c.Hub.Fields, ",") == strings.Count(c.Hub.Types, ","),
		"hub.fields and hub.types must have the same length")
	for name, d := range map[string]time.Duration{
		"sample": c.Timing.Sample, "comm": c.Timing.Comm, "command": c.Timing.Command,
		"broadcast": c.Timing.Broadcast, "lock": c.Timing.Lock, "pairing": c.Timing.Pairing,
	} {
		check(d > 0, "timing.%s must be positive", name)
	}
	oneOf("console.kind", c.Console.Kind, KindStdio, KindSerial, KindMQTT)
	oneOf("radio.kind", c.Radio.Kind, KindSerial, KindMQTT, KindNone)
	oneOf("peer.kind", c.Peer.Kind, KindMQTT, KindWebsocket, KindNone)
	oneOf("sensors.kind", c.Sensors.Kind, KindSim, KindModbus, KindNone)

	needsMQTT := c.Console.Kind == KindMQTT || c.Radio.Kind == KindMQTT || c.Peer.Kind == KindMQTT
	check(!needsMQTT || c.MQTTURL != "", "mqtt URL required by an mqtt transport")
	check(c.Console.Kind != KindSerial || c.Console.Device != "", "console.device required for serial console")
	check(c.Radio.Kind != KindSerial || c.Radio.Serial.Device != "", "radio.serial.device required")
	check(c.Peer.Kind != KindWebsocket || c.Peer.URL != "", "peer.url required for websocket peer link")
	check(c.Sensors.Kind != KindModbus || c.Sensors.Modbus.URL != "", "sensors.modbus.url required")

	if len(errs) > 0 {
		return errors.New("invalid configuration: " + strings.Join(errs, "; "))
	}
	return nil
}
