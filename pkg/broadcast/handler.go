// Package broadcast sends readings to the hub over the long-range link.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"

	"github.com/robotalks/sensorgw/pkg/event"
	"github.com/robotalks/sensorgw/pkg/state"
)

var (
	// ErrLinkInactive is returned when the link isn't up.
	ErrLinkInactive = errors.New("broadcast link inactive")
	// ErrTransmit wraps every frame failure.
	ErrTransmit = errors.New("transmission failed")
)

// Radio is the long-range transmitter. Begin and End bound one frame.
type Radio interface {
	// Start brings the radio up.
	Start(ctx context.Context) error
	Begin() error
	io.Writer
	End() error
}

// Publisher accepts events.
type Publisher interface {
	Publish(event.Event) error
}

// Schema is what Init announces to the hub.
type Schema struct {
	Hub    string
	Fields string
	Types  string
}

// DefaultSchema is the gateway's standard field set.
var DefaultSchema = Schema{Hub: DefaultHub, Fields: DefaultFields, Types: DefaultTypes}

// Handler encodes and transmits frames.
type Handler struct {
	Store  *state.Store
	Events Publisher
	Radio  Radio
	// Schema is announced by Init; DefaultSchema when zero.
	Schema Schema

	// radioLock serializes frames from different tasks. It is never held
	// while the store lock is taken.
	radioLock sync.Mutex
	sent      atomic.Uint64
	failures  atomic.Uint64
}

// NewHandler creates a Handler.
func NewHandler(store *state.Store, events Publisher, radio Radio) *Handler {
	return &Handler{Store: store, Events: events, Radio: radio}
}

// Init brings the radio up and announces the schema. On failure
// the link is marked inactive; it is retried only on request.
func (h *Handler) Init(ctx context.Context) error {
	h.radioLock.Lock()
	err := h.Radio.Start(ctx)
	h.radioLock.Unlock()
	if err != nil {
		glog.Errorf("broadcast link start: %v", err)
		if stateErr := h.Store.SetBroadcastActive(false); stateErr != nil {
			glog.Warningf("broadcast link state: %v", stateErr)
		}
		return err
	}
	if err = h.Store.SetBroadcastActive(true); err != nil {
		return err
	}
	glog.Info("broadcast link active")
	schema := h.Schema
	if schema == (Schema{}) {
		schema = DefaultSchema
	}
	return h.Announce(schema.Hub, schema.Fields, schema.Types)
}

// Announce registers the field schema with hub.
func (h *Handler) Announce(hub, fields, types string) error {
	if err := h.requireActive(); err != nil {
		return err
	}
	return h.transmit(RegisterFrame(hub, fields, types))
}

// PushReading sends the current snapshot to hub and stamps LastBroadcast.
// It returns the frame that was sent.
func (h *Handler) PushReading(hub string) (string, error) {
	if err := h.requireActive(); err != nil {
		return "", err
	}
	snap, err := h.Store.Snapshot()
	if err != nil {
		return "", err
	}
	frame := PushFrame(hub, snap)
	if err = h.transmit(frame); err != nil {
		return "", err
	}
	if err = h.Store.MarkBroadcast(); err != nil {
		glog.Warningf("broadcast timestamp: %v", err)
	}
	if h.Events != nil {
		if err = h.Events.Publish(event.Event{Kind: event.BroadcastComplete}); err != nil {
			glog.V(1).Infof("broadcast complete event: %v", err)
		}
	}
	glog.V(1).Infof("NETWORK_EVENT broadcast push %s", hub)
	return frame, nil
}

func (h *Handler) requireActive() error {
	links, err := h.Store.Links()
	if err != nil {
		return err
	}
	if !links.BroadcastLinkActive {
		return ErrLinkInactive
	}
	return nil
}

func (h *Handler) transmit(frame string) error {
	h.radioLock.Lock()
	defer h.radioLock.Unlock()
	if err := h.Radio.Begin(); err != nil {
		return h.fail("open frame", err)
	}
	if _, err := io.WriteString(h.Radio, frame); err != nil {
		h.Radio.End()
		return h.fail("write frame", err)
	}
	if err := h.Radio.End(); err != nil {
		return h.fail("close frame", err)
	}
	h.sent.Add(1)
	glog.V(2).Infof("TX %q", frame)
	return nil
}

func (h *Handler) fail(op string, err error) error {
	h.failures.Add(1)
	err = fmt.Errorf("%w: %s: %v", ErrTransmit, op, err)
	glog.Errorf("broadcast: %v", err)
	return err
}

// Sent counts transmitted frames.
func (h *Handler) Sent() uint64 {
	return h.sent.Load()
}

// Failures counts failed transmissions.
func (h *Handler) Failures() uint64 {
	return h.failures.Load()
}
