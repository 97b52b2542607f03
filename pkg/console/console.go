// Package console provides the operator's line oriented terminal.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/golang/glog"
)

// MaxLine is the longest input line kept. Longer lines are dropped.
const MaxLine = 4096

// Console reads command lines and prints output.
type Console interface {
	io.Writer
	// ReadLine blocks until a line is available or ctx is done. It
	// returns io.EOF once the input is closed.
	ReadLine(ctx context.Context) (string, error)
}

// Printf writes formatted output, ignoring errors.
func Printf(c Console, format string, args ...interface{}) {
	fmt.Fprintf(c, format, args...)
}

// Println writes a line, ignoring errors.
func Println(c Console, args ...interface{}) {
	fmt.Fprintln(c, args...)
}

// lineQueue hands lines from a producer goroutine or callback to ReadLine.
type lineQueue struct {
	lines  chan string
	closed chan struct{}
	once   sync.Once
}

func newLineQueue(size int) *lineQueue {
	return &lineQueue{lines: make(chan string, size), closed: make(chan struct{})}
}

// offer queues a line without blocking. False means it was dropped.
func (q *lineQueue) offer(line string) bool {
	select {
	case q.lines <- line:
		return true
	default:
		return false
	}
}

func (q *lineQueue) push(line string) {
	select {
	case q.lines <- line:
	case <-q.closed:
	}
}

func (q *lineQueue) close() {
	q.once.Do(func() { close(q.closed) })
}

func (q *lineQueue) ReadLine(ctx context.Context) (string, error) {
	select {
	case line := <-q.lines:
		return line, nil
	default:
	}
	select {
	case line := <-q.lines:
		return line, nil
	case <-q.closed:
		return "", io.EOF
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Stream is a Console over a byte stream such as stdio or a UART.
type Stream struct {
	*lineQueue

	wlock sync.Mutex
	w     io.Writer
	crlf  bool
}

// NewStream starts reading lines from r. Output goes to w.
func NewStream(r io.Reader, w io.Writer) *Stream {
	s := &Stream{lineQueue: newLineQueue(4), w: w}
	go s.readLoop(r)
	return s
}

// WithCRLF makes output use CR LF line endings, as serial terminals
// expect.
func (s *Stream) WithCRLF() *Stream {
	s.crlf = true
	return s
}

func (s *Stream) readLoop(r io.Reader) {
	defer s.close()
	br := bufio.NewReaderSize(r, MaxLine)
	var line []byte
	overlong := false
	for {
		chunk, isPrefix, err := br.ReadLine()
		if err != nil {
			if err != io.EOF {
				glog.Warningf("console input: %v", err)
			}
			return
		}
		if !overlong && len(line)+len(chunk) <= MaxLine {
			line = append(line, chunk...)
		} else {
			overlong = true
		}
		if isPrefix {
			continue
		}
		if overlong {
			glog.Warningf("console line over %d bytes dropped", MaxLine)
		} else {
			s.push(strings.TrimSuffix(string(line), "\r"))
		}
		line, overlong = line[:0], false
	}
}

// Write implements io.Writer.
func (s *Stream) Write(p []byte) (int, error) {
	s.wlock.Lock()
	defer s.wlock.Unlock()
	if !s.crlf {
		return s.w.Write(p)
	}
	out := strings.Replace(string(p), "\n", "\r\n", -1)
	if _, err := io.WriteString(s.w, out); err != nil {
		return 0, err
	}
	return len(p), nil
}
