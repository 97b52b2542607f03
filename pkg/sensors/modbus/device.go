// Package modbus reads climate and light sensors over Modbus TCP or RTU.
package modbus

import (
	"encoding/binary"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/goburrow/modbus"
)

// Register locates one value. Scale divides the raw value.
type Register struct {
	Address uint16  `yaml:"address"`
	Signed  bool    `yaml:"signed"`
	Wide    bool    `yaml:"wide"` // 32-bit, high word first
	Scale   float64 `yaml:"scale"`
}

// Config describes a sensor device.
type Config struct {
	// URL is tcp://host:502 or rtu:///dev/ttyUSB0.
	URL         string        `yaml:"url"`
	BaudRate    int           `yaml:"baud"`
	SlaveID     byte          `yaml:"slave_id"`
	Timeout     time.Duration `yaml:"timeout"`
	Holding     bool          `yaml:"holding"`
	Temperature *Register     `yaml:"temperature"`
	Humidity    *Register     `yaml:"humidity"`
	Lux         *Register     `yaml:"lux"`
}

// Registers is the part of modbus.Client used here.
type Registers interface {
	ReadInputRegisters(address, quantity uint16) ([]byte, error)
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
}

// Device implements sensors.Climate and sensors.Light.
type Device struct {
	Config Config

	lock   sync.Mutex
	regs   Registers
	closer io.Closer
}

type handler interface {
	modbus.ClientHandler
	Connect() error
	Close() error
}

// Open connects to the device described by conf.
func Open(conf Config) (*Device, error) {
	u, err := url.Parse(conf.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid modbus URL: %w", err)
	}
	timeout := conf.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}
	var h handler
	switch u.Scheme {
	case "tcp":
		tcp := modbus.NewTCPClientHandler(u.Host)
		tcp.Timeout, tcp.SlaveId = timeout, conf.SlaveID
		h = tcp
	case "rtu":
		rtu := modbus.NewRTUClientHandler(u.Path)
		rtu.BaudRate = conf.BaudRate
		if rtu.BaudRate == 0 {
			rtu.BaudRate = 9600
		}
		rtu.DataBits, rtu.Parity, rtu.StopBits = 8, "N", 1
		rtu.Timeout, rtu.SlaveId = timeout, conf.SlaveID
		h = rtu
	default:
		return nil, fmt.Errorf("unknown modbus URL scheme: %q", u.Scheme)
	}
	if err = h.Connect(); err != nil {
		return nil, err
	}
	return NewDevice(conf, modbus.NewClient(h), h), nil
}

// NewDevice wraps an existing register reader.
func NewDevice(conf Config, regs Registers, closer io.Closer) *Device {
	return &Device{Config: conf, regs: regs, closer: closer}
}

// Close implements io.Closer.
func (d *Device) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}

func (d *Device) read(r *Register) (float64, error) {
	qty := uint16(1)
	if r.Wide {
		qty = 2
	}
	var (
		data []byte
		err  error
	)
	if d.Config.Holding {
		data, err = d.regs.ReadHoldingRegisters(r.Address, qty)
	} else {
		data, err = d.regs.ReadInputRegisters(r.Address, qty)
	}
	if err != nil {
		return 0, err
	}
	if len(data) < int(qty)*2 {
		return 0, fmt.Errorf("register %d: short reply (%d bytes)", r.Address, len(data))
	}
	var v float64
	switch {
	case r.Wide && r.Signed:
		v = float64(int32(binary.BigEndian.Uint32(data)))
	case r.Wide:
		v = float64(binary.BigEndian.Uint32(data))
	case r.Signed:
		v = float64(int16(binary.BigEndian.Uint16(data)))
	default:
		v = float64(binary.BigEndian.Uint16(data))
	}
	if r.Scale != 0 {
		v /= r.Scale
	}
	return v, nil
}

// ReadClimate implements sensors.Climate.
func (d *Device) ReadClimate() (float64, float64, error) {
	if d.Config.Temperature == nil || d.Config.Humidity == nil {
		return 0, 0, fmt.Errorf("climate registers not configured")
	}
	d.lock.Lock()
	defer d.lock.Unlock()
	t, err := d.read(d.Config.Temperature)
	if err != nil {
		return 0, 0, err
	}
	h, err := d.read(d.Config.Humidity)
	if err != nil {
		return 0, 0, err
	}
	return t, h, nil
}

// ReadLux implements sensors.Light.
func (d *Device) ReadLux() (float64, error) {
	if d.Config.Lux == nil {
		return 0, fmt.Errorf("lux register not configured")
	}
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.read(d.Config.Lux)
}
