// Package serial drives an AT command LoRa modem (RYLR896 style) on a
// UART as the broadcast radio.
package serial

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"go.bug.st/serial"

	"github.com/robotalks/sensorgw/pkg/broadcast"
)

// MaxPayload is the modem's largest frame.
const MaxPayload = 240

var (
	// ErrNotStarted is returned before Start succeeds.
	ErrNotStarted = errors.New("radio not started")
	// ErrPayloadTooLong is returned for frames over MaxPayload.
	ErrPayloadTooLong = errors.New("payload too long")
	// ErrNoResponse is returned when the modem doesn't answer in time.
	ErrNoResponse = errors.New("modem not responding")
)

// ModemError is an "+ERR=<code>" reply.
type ModemError struct {
	Code string
}

func (e *ModemError) Error() string {
	return "modem error " + e.Code
}

// Config describes the modem.
type Config struct {
	Device    string        `yaml:"device"`
	BaudRate  int           `yaml:"baud"`
	Band      uint32        `yaml:"band"`
	NetworkID uint8         `yaml:"network_id"`
	Address   uint16        `yaml:"address"`
	HubAddr   uint16        `yaml:"hub_address"`
	Timeout   time.Duration `yaml:"timeout"`
}

// Opener opens the UART.
type Opener func(device string, baud int) (io.ReadWriteCloser, error)

// OpenPort opens a serial port with go.bug.st/serial.
func OpenPort(device string, baud int) (io.ReadWriteCloser, error) {
	port, err := serial.Open(device, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		var portErr *serial.PortError
		if errors.As(err, &portErr) && portErr.Code() == serial.PortNotFound {
			return nil, fmt.Errorf("radio port %s not found", device)
		}
		return nil, err
	}
	return port, nil
}

// Radio implements broadcast.Radio.
type Radio struct {
	broadcast.FrameBuffer

	Config Config
	Open   Opener

	lock  sync.Mutex
	port  io.ReadWriteCloser
	lines chan string
	// stale is set when a command timed out and its reply may still come.
	stale bool
}

// New creates a Radio using the real serial port.
func New(conf Config) *Radio {
	return &Radio{Config: conf, Open: OpenPort}
}

// Start opens the port and configures the modem. Calling it again
// reopens the port.
func (r *Radio) Start(ctx context.Context) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.closePort()
	port, err := r.Open(r.Config.Device, r.Config.BaudRate)
	if err != nil {
		return err
	}
	r.port, r.lines, r.stale = port, make(chan string, 8), false
	go readLines(port, r.lines)

	cmds := []string{"AT"}
	if r.Config.Band != 0 {
		cmds = append(cmds, fmt.Sprintf("AT+BAND=%d", r.Config.Band))
	}
	if r.Config.NetworkID != 0 {
		cmds = append(cmds, fmt.Sprintf("AT+NETWORKID=%d", r.Config.NetworkID))
	}
	cmds = append(cmds, fmt.Sprintf("AT+ADDRESS=%d", r.Config.Address))
	for _, cmd := range cmds {
		if err = ctx.Err(); err == nil {
			err = r.command(cmd)
		}
		if err != nil {
			r.closePort()
			return fmt.Errorf("%s: %w", cmd, err)
		}
	}
	glog.Infof("radio ready on %s", r.Config.Device)
	return nil
}

// End sends the buffered frame to the hub address.
func (r *Radio) End() error {
	payload, err := r.Take()
	if err != nil {
		return err
	}
	if len(payload) > MaxPayload {
		return ErrPayloadTooLong
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.port == nil {
		return ErrNotStarted
	}
	return r.command(fmt.Sprintf("AT+SEND=%d,%d,%s", r.Config.HubAddr, len(payload), payload))
}

// Close releases the port.
func (r *Radio) Close() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.closePort()
	return nil
}

func (r *Radio) closePort() {
	if r.port != nil {
		r.port.Close()
		r.port = nil
	}
}

func (r *Radio) command(cmd string) error {
	timeout := r.Config.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}
	r.flush(timeout)
	glog.V(4).Infof("modem > %s", cmd)
	if _, err := io.WriteString(r.port, cmd+"\r\n"); err != nil {
		return err
	}
	err := r.await(timeout)
	if errors.Is(err, ErrNoResponse) {
		r.stale = true
	}
	return err
}

// flush drops replies left over from earlier commands so they aren't
// taken as the result of the next one. A late reply of a timed out
// command is awaited for up to timeout.
func (r *Radio) flush(timeout time.Duration) {
	if r.stale {
		r.stale = false
		if err := r.await(timeout); !errors.Is(err, ErrNoResponse) {
			glog.V(2).Infof("modem late reply discarded: %v", err)
		}
	}
	for {
		select {
		case line, ok := <-r.lines:
			if !ok {
				return
			}
			glog.V(4).Infof("modem < %s (discarded)", line)
		default:
			return
		}
	}
}

// await waits for the +OK or +ERR= reply.
func (r *Radio) await(timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case line, ok := <-r.lines:
			if !ok {
				return io.ErrUnexpectedEOF
			}
			glog.V(4).Infof("modem < %s", line)
			switch {
			case line == "+OK":
				return nil
			case strings.HasPrefix(line, "+ERR="):
				return &ModemError{Code: strings.TrimPrefix(line, "+ERR=")}
			}
			// unsolicited lines such as +RCV are skipped
		case <-timer.C:
			return ErrNoResponse
		}
	}
}

func readLines(port io.Reader, lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(port)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines <- line
		}
	}
}
