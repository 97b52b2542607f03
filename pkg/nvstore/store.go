// Package nvstore emulates the gateway's 64-byte non-volatile memory.
//
// Layout: bytes 0-5 hold the peer address, byte 48 is the presence flag.
// Only FlagValid marks the address valid.
package nvstore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/robotalks/sensorgw/pkg/hwaddr"
)

// Layout constants.
const (
	Size       = 64
	AddrOffset = 0
	FlagOffset = 48

	FlagValid byte = 0xAA
	FlagClear byte = 0x00
)

var (
	// ErrRange is returned for accesses outside the image.
	ErrRange = errors.New("offset out of range")
	// ErrCommit wraps failures making writes durable.
	ErrCommit = errors.New("commit failed")
)

// Store is a small byte addressed memory. Writes become durable on Commit
// and are rolled back when it fails.
type Store interface {
	io.ReaderAt
	io.WriterAt
	Commit() error
}

// Image is an in-memory Store. Committed holds the durable copy.
type Image struct {
	// CommitErr, when set, makes Commit fail.
	CommitErr error

	lock      sync.Mutex
	working   [Size]byte
	committed [Size]byte
	commits   int
}

// NewImage creates an erased Image (all 0xFF, like fresh flash).
func NewImage() *Image {
	m := &Image{}
	m.erase()
	return m
}

func (m *Image) erase() {
	for i := range m.working {
		m.working[i] = 0xff
	}
	m.committed = m.working
}

func checkRange(n int, off int64) error {
	if off < 0 || off+int64(n) > Size {
		return fmt.Errorf("%w: %d+%d", ErrRange, off, n)
	}
	return nil
}

// ReadAt implements io.ReaderAt.
func (m *Image) ReadAt(p []byte, off int64) (int, error) {
	if err := checkRange(len(p), off); err != nil {
		return 0, err
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	return copy(p, m.working[off:]), nil
}

// WriteAt implements io.WriterAt.
func (m *Image) WriteAt(p []byte, off int64) (int, error) {
	if err := checkRange(len(p), off); err != nil {
		return 0, err
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	return copy(m.working[off:], p), nil
}

// Commit implements Store. A failed commit discards the pending writes.
func (m *Image) Commit() error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.CommitErr != nil {
		m.working = m.committed
		return fmt.Errorf("%w: %v", ErrCommit, m.CommitErr)
	}
	m.committed = m.working
	m.commits++
	return nil
}

// Committed returns the durable contents.
func (m *Image) Committed() [Size]byte {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.committed
}

// Commits counts successful commits.
func (m *Image) Commits() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.commits
}

// File is an Image persisted to a file.
type File struct {
	Image
	Path string
}

// OpenFile loads the image at path. A missing file yields an erased image.
func OpenFile(path string) (*File, error) {
	f := &File{Path: path}
	f.erase()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return f, nil
	case err != nil:
		return nil, err
	case len(data) != Size:
		return nil, fmt.Errorf("%s: image is %d bytes, want %d", path, len(data), Size)
	}
	copy(f.working[:], data)
	f.committed = f.working
	return f, nil
}

// Commit writes the image to the file, replacing it atomically.
func (f *File) Commit() error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.CommitErr != nil {
		f.working = f.committed
		return fmt.Errorf("%w: %v", ErrCommit, f.CommitErr)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.Path), ".nvstore-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCommit, err)
	}
	_, err = tmp.Write(f.working[:])
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), f.Path)
	}
	if err != nil {
		os.Remove(tmp.Name())
		f.working = f.committed
		return fmt.Errorf("%w: %v", ErrCommit, err)
	}
	f.committed = f.working
	f.commits++
	return nil
}

// LoadPeer reads the persisted peer address. ok is false when the
// presence flag isn't set.
func LoadPeer(s io.ReaderAt) (addr hwaddr.Addr, ok bool, err error) {
	var flag [1]byte
	if _, err = s.ReadAt(flag[:], FlagOffset); err != nil {
		return
	}
	if flag[0] != FlagValid {
		return
	}
	if _, err = s.ReadAt(addr[:], AddrOffset); err != nil {
		return
	}
	return addr, true, nil
}

// SavePeer writes the address and presence flag, then commits.
func SavePeer(s Store, addr hwaddr.Addr) error {
	if _, err := s.WriteAt(addr[:], AddrOffset); err != nil {
		return err
	}
	if _, err := s.WriteAt([]byte{FlagValid}, FlagOffset); err != nil {
		return err
	}
	return s.Commit()
}

// ClearPeer invalidates the presence flag and commits.
func ClearPeer(s Store) error {
	if _, err := s.WriteAt([]byte{FlagClear}, FlagOffset); err != nil {
		return err
	}
	return s.Commit()
}
