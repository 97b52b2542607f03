package peerlink

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

// ErrPipeFull is returned by Pipe.Write when bytes were dropped.
var ErrPipeFull = errors.New("peer pipe full")

// errNoData is returned by ReadByte when nothing is buffered.
var errNoData = errors.New("no data")

// Pipe buffers bytes delivered by a transport callback until Poll drains
// them. Writers never block.
type Pipe struct {
	ch      chan byte
	done    chan struct{}
	once    sync.Once
	dropped atomic.Uint64
}

// NewPipe creates a Pipe holding up to size bytes.
func NewPipe(size int) *Pipe {
	if size <= 0 {
		size = BufferSize * 4
	}
	return &Pipe{ch: make(chan byte, size), done: make(chan struct{})}
}

// Write implements io.Writer.
func (p *Pipe) Write(data []byte) (int, error) {
	select {
	case <-p.done:
		return 0, io.ErrClosedPipe
	default:
	}
	for n, b := range data {
		select {
		case p.ch <- b:
		default:
			p.dropped.Add(uint64(len(data) - n))
			return n, ErrPipeFull
		}
	}
	return len(data), nil
}

// Buffered implements Source.
func (p *Pipe) Buffered() int {
	return len(p.ch)
}

// ReadByte implements Source. It never blocks; io.EOF is returned once
// the pipe is closed and drained.
func (p *Pipe) ReadByte() (byte, error) {
	select {
	case b := <-p.ch:
		return b, nil
	default:
	}
	select {
	case <-p.done:
		return 0, io.EOF
	default:
		return 0, errNoData
	}
}

// Dropped counts bytes lost to a full pipe.
func (p *Pipe) Dropped() uint64 {
	return p.dropped.Load()
}

// Done is closed when the pipe is closed.
func (p *Pipe) Done() <-chan struct{} {
	return p.done
}

// Close implements io.Closer.
func (p *Pipe) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}
