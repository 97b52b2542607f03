// Package state holds the gateway's shared sensor and link state.
//
// Every accessor takes the single store lock with a bounded wait. When the
// lock can't be acquired in time the accessor returns ErrLockTimeout and
// neither reads nor writes anything.
package state

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/robotalks/sensorgw/pkg/hwaddr"
)

// DefaultTimeout is the bounded wait for acquiring the store lock.
const DefaultTimeout = 100 * time.Millisecond

var (
	// ErrLockTimeout indicates the lock wasn't acquired within the wait.
	ErrLockTimeout = errors.New("state lock timeout")
	// ErrNotConfigured rejects activating the peer link without an address.
	ErrNotConfigured = errors.New("peer address not configured")
)

// Snapshot is a point-in-time copy of all sensor fields.
type Snapshot struct {
	Temperature        int       // °C
	Humidity           float64   // %
	Illuminance        int       // lux
	Distance           float64   // inches
	LastEnvUpdate      time.Time
	LastDistanceUpdate time.Time
	LastBroadcast      time.Time
}

// Links is the state of the two radio links.
type Links struct {
	PeerAddress         hwaddr.Addr
	AddressConfigured   bool
	PeerLinkActive      bool
	BroadcastLinkActive bool
}

// Store is the lock guarded state record. It is created once and passed to
// every task that needs it.
type Store struct {
	// Timeout is the bounded wait used by all accessors except UpdateWait.
	Timeout time.Duration
	// Now provides the monotonic clock for timestamps.
	Now func() time.Time

	sem      chan struct{}
	snap     Snapshot
	links    Links
	timeouts atomic.Uint64
}

// NewStore creates a Store in zero state.
func NewStore() *Store {
	return &Store{
		Timeout: DefaultTimeout,
		Now:     time.Now,
		sem:     make(chan struct{}, 1),
	}
}

func (s *Store) acquire(wait time.Duration) bool {
	select {
	case s.sem <- struct{}{}:
		return true
	default:
	}
	if wait <= 0 {
		return false
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case s.sem <- struct{}{}:
		return true
	case <-timer.C:
		return false
	}
}

func (s *Store) release() {
	<-s.sem
}

// locked runs fn while holding the lock, waiting at most wait.
func (s *Store) locked(wait time.Duration, fn func()) error {
	if !s.acquire(wait) {
		s.timeouts.Add(1)
		return ErrLockTimeout
	}
	defer s.release()
	fn()
	return nil
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// LockTimeouts counts failed lock acquisitions.
func (s *Store) LockTimeouts() uint64 {
	return s.timeouts.Load()
}

// Reset puts the store back to zero state.
func (s *Store) Reset() {
	s.UpdateWait(func(snap *Snapshot) {
		*snap = Snapshot{}
		s.links = Links{}
	})
}

// Snapshot copies all sensor fields under one lock acquisition.
func (s *Store) Snapshot() (snap Snapshot, err error) {
	err = s.locked(s.Timeout, func() { snap = s.snap })
	return
}

// TrySnapshot is the non-blocking form of Snapshot.
func (s *Store) TrySnapshot() (snap Snapshot, err error) {
	err = s.locked(0, func() { snap = s.snap })
	return
}

// Links copies the link state.
func (s *Store) Links() (links Links, err error) {
	err = s.locked(s.Timeout, func() { links = s.links })
	return
}

// Temperature reads the temperature.
func (s *Store) Temperature() (v int, err error) {
	err = s.locked(s.Timeout, func() { v = s.snap.Temperature })
	return
}

// Humidity reads the humidity.
func (s *Store) Humidity() (v float64, err error) {
	err = s.locked(s.Timeout, func() { v = s.snap.Humidity })
	return
}

// Illuminance reads the illuminance.
func (s *Store) Illuminance() (v int, err error) {
	err = s.locked(s.Timeout, func() { v = s.snap.Illuminance })
	return
}

// Distance reads the distance.
func (s *Store) Distance() (v float64, err error) {
	err = s.locked(s.Timeout, func() { v = s.snap.Distance })
	return
}

// SetDistance writes the distance and stamps LastDistanceUpdate.
func (s *Store) SetDistance(d float64) error {
	now := s.now()
	return s.locked(s.Timeout, func() {
		s.snap.Distance = d
		s.snap.LastDistanceUpdate = now
	})
}

// MarkBroadcast stamps LastBroadcast.
func (s *Store) MarkBroadcast() error {
	now := s.now()
	return s.locked(s.Timeout, func() { s.snap.LastBroadcast = now })
}

// Update mutates the snapshot with a bounded wait.
func (s *Store) Update(fn func(*Snapshot)) error {
	return s.locked(s.Timeout, func() { fn(&s.snap) })
}

// UpdateWait mutates the snapshot waiting indefinitely for the lock. Only
// the sampling task, being the lock's primary owner, should use it.
func (s *Store) UpdateWait(fn func(*Snapshot)) {
	s.sem <- struct{}{}
	defer s.release()
	fn(&s.snap)
}

// SetPeer records a configured peer address.
func (s *Store) SetPeer(addr hwaddr.Addr) error {
	return s.locked(s.Timeout, func() {
		if s.links.PeerAddress != addr {
			s.links.PeerLinkActive = false
		}
		s.links.PeerAddress = addr
		s.links.AddressConfigured = true
	})
}

// ActivatePeer records addr as the configured peer and marks the peer
// link active, all under one lock. Nothing changes on a lock timeout.
func (s *Store) ActivatePeer(addr hwaddr.Addr) error {
	return s.locked(s.Timeout, func() {
		s.links.PeerAddress = addr
		s.links.AddressConfigured = true
		s.links.PeerLinkActive = true
	})
}

// ClearPeer forgets the configured address. The peer link can't stay
// active without one, so it is marked inactive too.
func (s *Store) ClearPeer() error {
	return s.locked(s.Timeout, func() {
		s.links.AddressConfigured = false
		s.links.PeerLinkActive = false
	})
}

// SetPeerActive marks the peer link active or inactive.
func (s *Store) SetPeerActive(active bool) (err error) {
	if lockErr := s.locked(s.Timeout, func() {
		if active && !s.links.AddressConfigured {
			err = ErrNotConfigured
			return
		}
		s.links.PeerLinkActive = active
	}); lockErr != nil {
		return lockErr
	}
	return
}

// SetBroadcastActive marks the broadcast link active or inactive.
func (s *Store) SetBroadcastActive(active bool) error {
	return s.locked(s.Timeout, func() { s.links.BroadcastLinkActive = active })
}
