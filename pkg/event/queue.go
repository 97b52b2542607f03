// Package event implements the bounded inter-task notification queue.
package event

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// Kind tags an Event.
type Kind int

// Event kinds.
const (
	SensorReady Kind = iota
	DistanceUpdated
	BroadcastRequested
	BroadcastComplete
	ConfigChanged
	SystemError
)

var kindNames = [...]string{
	SensorReady:        "SensorReady",
	DistanceUpdated:    "DistanceUpdated",
	BroadcastRequested: "BroadcastRequested",
	BroadcastComplete:  "BroadcastComplete",
	ConfigChanged:      "ConfigChanged",
	SystemError:        "SystemError",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Event is a small tagged message. Only DistanceUpdated carries a
// meaningful Value: the distance multiplied by 100.
type Event struct {
	Kind  Kind
	Value int32
}

func (e Event) String() string {
	if e.Kind == DistanceUpdated {
		return fmt.Sprintf("%v(%d)", e.Kind, e.Value)
	}
	return e.Kind.String()
}

// DistanceEvent builds a DistanceUpdated event from a distance.
func DistanceEvent(d float64) Event {
	return Event{Kind: DistanceUpdated, Value: int32(d * 100)}
}

const (
	// DefaultCapacity is the queue length.
	DefaultCapacity = 10
	// DefaultWait bounds Publish when the queue is full.
	DefaultWait = 100 * time.Millisecond
)

// ErrQueueFull is returned when an event is dropped.
var ErrQueueFull = errors.New("event queue full")

// Queue is a bounded FIFO shared by all producers. Each event is delivered
// to exactly one consumer.
type Queue struct {
	// Wait bounds how long Publish waits for room.
	Wait time.Duration

	ch      chan Event
	dropped atomic.Uint64
}

// NewQueue creates a queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{Wait: DefaultWait, ch: make(chan Event, capacity)}
}

// Publish enqueues ev, waiting a bounded time for room. If the queue stays
// full the event is dropped and ErrQueueFull returned.
func (q *Queue) Publish(ev Event) error {
	select {
	case q.ch <- ev:
		return nil
	default:
	}
	if q.Wait > 0 {
		timer := time.NewTimer(q.Wait)
		defer timer.Stop()
		select {
		case q.ch <- ev:
			return nil
		case <-timer.C:
		}
	}
	q.dropped.Add(1)
	return ErrQueueFull
}

// TryPublish enqueues without waiting, suitable for interrupt-style
// callbacks that must never block.
func (q *Queue) TryPublish(ev Event) error {
	select {
	case q.ch <- ev:
		return nil
	default:
		q.dropped.Add(1)
		return ErrQueueFull
	}
}

// Consume dequeues the next event, waiting up to timeout. ok is false on
// timeout or when ctx is done.
func (q *Queue) Consume(ctx context.Context, timeout time.Duration) (ev Event, ok bool) {
	select {
	case ev = <-q.ch:
		return ev, true
	default:
	}
	if timeout <= 0 {
		return
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ev = <-q.ch:
		return ev, true
	case <-timer.C:
	case <-ctx.Done():
	}
	return
}

// Len reports queued events.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Dropped counts events lost to a full queue.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}
