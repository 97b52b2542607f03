package peerlink

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDistanceAccepts(t *testing.T) {
	cases := []struct {
		line     string
		expected float64
	}{
		{"DIST:12.5", 12.5},
		{"DIST:0", 0},
		{"DIST:1000", 1000},
		{"DIST:1e2", 100},
		{"DIST: 7.25", 7.25},
		{"DIST:3.5\r", 3.5},
		{"DIST:3.5\r\n", 3.5},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%q", tc.line), func(t *testing.T) {
			d, err := ParseDistance(tc.line)
			require.NoError(t, err)
			assert.InDelta(t, tc.expected, d, 1e-9)
		})
	}
}

func TestParseDistanceRejects(t *testing.T) {
	cases := []struct {
		line string
		err  error
	}{
		{"DIST:-0.01", ErrOutOfRange},
		{"DIST:1000.5", ErrOutOfRange},
		{"DIST:inf", ErrOutOfRange},
		{"DIST:NaN", ErrOutOfRange},
		{"DIST:12.5cm", ErrMalformedFrame},
		{"DIST:12.5 ", ErrMalformedFrame},
		{"DIST:", ErrMalformedFrame},
		{"TEMP:12", ErrMalformedFrame},
		{"dist:12", ErrMalformedFrame},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%q", tc.line), func(t *testing.T) {
			_, err := ParseDistance(tc.line)
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestParseDistanceRange(t *testing.T) {
	for x := 0.0; x <= 1000; x += 12.25 {
		d, err := ParseDistance(fmt.Sprintf("DIST:%g", x))
		require.NoError(t, err)
		assert.InDelta(t, x, d, 1e-9)
	}
}

func TestAssemblerLines(t *testing.T) {
	var a Assembler
	var lines []string
	for _, b := range []byte("DI\x01ST:1\r\n\n\x7fDIST:2\n") {
		if line, _ := a.Feed(b); line != nil {
			lines = append(lines, string(line))
		}
	}
	assert.Equal(t, []string{"DIST:1", "DIST:2"}, lines)
	assert.Equal(t, LineReady, a.State())
	a.Feed('x')
	assert.Equal(t, Accumulating, a.State())
	assert.Equal(t, 1, a.Len())
}

func TestAssemblerNeverExceedsCapacity(t *testing.T) {
	var a Assembler
	input := strings.Repeat("0123456789", 100)
	overflows := 0
	for i := 0; i < len(input); i++ {
		before := a.Len()
		line, overflow := a.Feed(input[i])
		require.Nil(t, line)
		require.True(t, a.Len() < BufferSize)
		if before == BufferSize-1 {
			require.True(t, overflow)
			require.Equal(t, 0, a.Len())
			overflows++
		}
	}
	assert.Equal(t, len(input)/BufferSize, overflows)
}
