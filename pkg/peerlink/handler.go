// Package peerlink receives distance readings from the paired peer.
package peerlink

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"

	"github.com/robotalks/sensorgw/pkg/event"
	"github.com/robotalks/sensorgw/pkg/hwaddr"
	"github.com/robotalks/sensorgw/pkg/state"
)

// MaxBytesPerPoll bounds how many bytes one Poll consumes, so a flooding
// peer can't starve the calling task.
const MaxBytesPerPoll = 32

// ErrNoDialer is returned by Activate without a configured Dialer.
var ErrNoDialer = errors.New("no peer link transport")

// Source is the receive side of an open peer link.
type Source interface {
	// Buffered reports bytes readable without blocking.
	Buffered() int
	ReadByte() (byte, error)
}

// Conn is an open link to one peer.
type Conn interface {
	Source
	io.Closer
}

// Dialer opens the link to a peer address.
type Dialer interface {
	Dial(ctx context.Context, addr hwaddr.Addr) (Conn, error)
}

// DialFunc is the func form of Dialer.
type DialFunc func(ctx context.Context, addr hwaddr.Addr) (Conn, error)

// Dial implements Dialer.
func (f DialFunc) Dial(ctx context.Context, addr hwaddr.Addr) (Conn, error) {
	return f(ctx, addr)
}

// Publisher accepts events.
type Publisher interface {
	Publish(event.Event) error
}

// Stats are the handler counters.
type Stats struct {
	Frames       uint64
	Malformed    uint64
	Overflows    uint64
	LockFailures uint64
	EventDrops   uint64
}

// Handler owns the peer connection and its receive assembly buffer.
// Poll must only be called from one task; Activate and Deactivate may be
// called from any.
type Handler struct {
	Store  *state.Store
	Events Publisher
	Dialer Dialer

	connLock sync.Mutex
	conn     Conn

	asm      Assembler
	lastConn Conn

	frames, malformed, overflows, lockFailures, eventDrops atomic.Uint64
}

// NewHandler creates a Handler.
func NewHandler(store *state.Store, events Publisher, dialer Dialer) *Handler {
	return &Handler{Store: store, Events: events, Dialer: dialer}
}

// Activate opens the link to addr, replacing any current link. On failure
// the current link is left as it is.
func (h *Handler) Activate(ctx context.Context, addr hwaddr.Addr) error {
	if h.Dialer == nil {
		return ErrNoDialer
	}
	conn, err := h.Dialer.Dial(ctx, addr)
	if err != nil {
		glog.Errorf("peer link %s: %v", addr, err)
		return err
	}
	if err = h.Store.ActivatePeer(addr); err != nil {
		conn.Close()
		return err
	}
	h.swap(conn)
	glog.Infof("peer link active: %s", addr)
	return nil
}

// Deactivate closes the current link.
func (h *Handler) Deactivate() error {
	h.swap(nil)
	return h.Store.SetPeerActive(false)
}

// Active reports whether a link is open.
func (h *Handler) Active() bool {
	h.connLock.Lock()
	defer h.connLock.Unlock()
	return h.conn != nil
}

func (h *Handler) swap(conn Conn) {
	h.connLock.Lock()
	old := h.conn
	h.conn = conn
	h.connLock.Unlock()
	if old != nil {
		old.Close()
	}
}

func (h *Handler) current() Conn {
	h.connLock.Lock()
	defer h.connLock.Unlock()
	return h.conn
}

// Poll drains up to MaxBytesPerPoll bytes from the link and handles every
// completed line. It returns the number of bytes consumed.
func (h *Handler) Poll() int {
	conn := h.current()
	if conn != h.lastConn {
		h.asm.Reset()
		h.lastConn = conn
	}
	if conn == nil {
		return 0
	}
	n := 0
	for n < MaxBytesPerPoll && conn.Buffered() > 0 {
		b, err := conn.ReadByte()
		if err != nil {
			break
		}
		n++
		line, overflow := h.asm.Feed(b)
		if overflow {
			h.overflows.Add(1)
			glog.V(2).Info("peer line overflow, discarded")
		}
		if line != nil {
			h.handleLine(string(line))
		}
	}
	return n
}

func (h *Handler) handleLine(line string) {
	d, err := ParseDistance(line)
	if err != nil {
		h.malformed.Add(1)
		glog.V(2).Infof("drop peer frame %q: %v", line, err)
		return
	}
	if err = h.Store.SetDistance(d); err != nil {
		h.lockFailures.Add(1)
		glog.Warningf("drop distance %.2f: %v", d, err)
		return
	}
	h.frames.Add(1)
	// the store lock is released before publishing
	if err = h.Events.Publish(event.DistanceEvent(d)); err != nil {
		h.eventDrops.Add(1)
		glog.Warningf("distance event: %v", err)
	}
}

// Stats reads the counters.
func (h *Handler) Stats() Stats {
	return Stats{
		Frames:       h.frames.Load(),
		Malformed:    h.malformed.Load(),
		Overflows:    h.overflows.Load(),
		LockFailures: h.lockFailures.Load(),
		EventDrops:   h.eventDrops.Load(),
	}
}
