// Package hwaddr handles 6-byte peer hardware addresses.
package hwaddr

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Len is the number of bytes in an address.
const Len = 6

// ErrFormat indicates the text is not a hardware address.
var ErrFormat = errors.New("invalid hardware address format")

// Addr is a peer hardware address.
type Addr [Len]byte

// Parse accepts 12 hex digits, case-insensitive, optionally separated
// by ':' or '-' between the octets.
func Parse(s string) (Addr, error) {
	var a Addr
	digits := strings.Map(func(r rune) rune {
		if r == ':' || r == '-' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
	if len(digits) != Len*2 {
		return a, fmt.Errorf("%w: want %d hex digits, got %d", ErrFormat, Len*2, len(digits))
	}
	raw, err := hex.DecodeString(digits)
	if err != nil {
		return a, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	copy(a[:], raw)
	return a, nil
}

// MustParse is Parse that panics on error.
func MustParse(s string) Addr {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Canonicalize rewrites a valid address string as AA:BB:CC:DD:EE:FF.
func Canonicalize(s string) (string, error) {
	a, err := Parse(s)
	if err != nil {
		return "", err
	}
	return a.String(), nil
}

// String formats as upper-case colon separated octets.
func (a Addr) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[0], a[1], a[2], a[3], a[4], a[5])
}

// Hex formats as 12 lower-case hex digits, as used in topic names.
func (a Addr) Hex() string {
	return hex.EncodeToString(a[:])
}

// IsZero reports whether all bytes are zero.
func (a Addr) IsZero() bool {
	return a == Addr{}
}
