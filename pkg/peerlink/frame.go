package peerlink

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// BufferSize is the receive assembly capacity. A line keeps at most
	// BufferSize-1 bytes.
	BufferSize = 256

	// MinDistance and MaxDistance bound accepted readings.
	MinDistance = 0.0
	MaxDistance = 1000.0

	distancePrefix = "DIST:"
)

var (
	// ErrMalformedFrame indicates the line isn't a distance frame.
	ErrMalformedFrame = errors.New("malformed peer frame")
	// ErrOutOfRange indicates the distance is outside the accepted range.
	ErrOutOfRange = errors.New("distance out of range")
)

// ParseDistance decodes "DIST:<float>". Only CR/LF may follow the number.
func ParseDistance(line string) (float64, error) {
	if !strings.HasPrefix(line, distancePrefix) {
		return 0, fmt.Errorf("%w: missing %q prefix", ErrMalformedFrame, distancePrefix)
	}
	num := strings.TrimRight(line[len(distancePrefix):], "\r\n")
	num = strings.TrimLeft(num, " \t")
	if num == "" {
		return 0, fmt.Errorf("%w: empty value", ErrMalformedFrame)
	}
	d, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedFrame, num)
	}
	if math.IsNaN(d) || d < MinDistance || d > MaxDistance {
		return 0, fmt.Errorf("%w: %v", ErrOutOfRange, d)
	}
	return d, nil
}

// AssemblerState is the line assembly phase.
type AssemblerState int

// Assembler states.
const (
	Idle         AssemblerState = iota // empty buffer
	Accumulating                       // partial line buffered
	LineReady                          // terminator seen, line handed out
)

// Assembler rebuilds newline terminated lines from a byte stream.
type Assembler struct {
	buf   [BufferSize]byte
	n     int
	state AssemblerState
}

// State reports the current phase.
func (a *Assembler) State() AssemblerState {
	return a.state
}

// Len reports buffered bytes.
func (a *Assembler) Len() int {
	return a.n
}

// Reset drops any partial line.
func (a *Assembler) Reset() {
	a.n, a.state = 0, Idle
}

// Feed consumes one byte. line is non-nil when b completes a line and is
// only valid until the next Feed. overflow reports that a partial line was
// discarded because it outgrew the buffer.
func (a *Assembler) Feed(b byte) (line []byte, overflow bool) {
	if a.state == LineReady {
		a.Reset()
	}
	switch {
	case b == '\n':
		if a.n == 0 {
			return nil, false
		}
		line = a.buf[:a.n]
		a.n, a.state = 0, LineReady
		return line, false
	case b < 0x20 || b > 0x7e:
		return nil, false
	case a.n < BufferSize-1:
		a.buf[a.n] = b
		a.n++
		a.state = Accumulating
		return nil, false
	default:
		a.Reset()
		return nil, true
	}
}
