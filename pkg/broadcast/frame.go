package broadcast

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/robotalks/sensorgw/pkg/state"
)

// Frame text layout.
const (
	Preamble   = "    "
	OpRegister = "CH"
	OpPush     = "PD"
)

// Default hub schema.
const (
	DefaultHub    = "Greenhouse"
	DefaultFields = "Temperature,Humidity,Lux,Distance"
	DefaultTypes  = "1,2,1,2"
)

// ErrFrameNotOpen is returned when writing outside Begin/End.
var ErrFrameNotOpen = errors.New("frame not open")

// RegisterFrame encodes the hub schema announcement.
func RegisterFrame(hub, fields, types string) string {
	return Preamble + OpRegister + ">" + hub + ":" + fields + ":" + types
}

// PushFrame encodes one reading.
func PushFrame(hub string, snap state.Snapshot) string {
	return fmt.Sprintf("%s%s>%s:%d,%.1f,%d,%.2f,",
		Preamble, OpPush, hub,
		snap.Temperature, snap.Humidity, snap.Illuminance, snap.Distance)
}

// FrameBuffer collects the bytes of one frame for radios that send a
// frame as a unit.
type FrameBuffer struct {
	buf  bytes.Buffer
	open bool
}

// Begin starts a frame, dropping anything unsent.
func (f *FrameBuffer) Begin() error {
	f.buf.Reset()
	f.open = true
	return nil
}

// Write implements io.Writer.
func (f *FrameBuffer) Write(p []byte) (int, error) {
	if !f.open {
		return 0, ErrFrameNotOpen
	}
	return f.buf.Write(p)
}

// Take closes the frame and returns its bytes.
func (f *FrameBuffer) Take() ([]byte, error) {
	if !f.open {
		return nil, ErrFrameNotOpen
	}
	f.open = false
	return append([]byte(nil), f.buf.Bytes()...), nil
}
