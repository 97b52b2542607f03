package state

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/sensorgw/pkg/hwaddr"
)

func TestSnapshotNeverTorn(t *testing.T) {
	s := NewStore()
	s.Timeout = time.Second
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap, err := s.Snapshot()
				if err != nil {
					continue
				}
				v := snap.Temperature
				if snap.Illuminance != v || snap.Humidity != float64(v) || snap.Distance != float64(v)/2 {
					t.Errorf("torn snapshot: %+v", snap)
					return
				}
			}
		}()
	}
	for i := 1; i <= 2000; i++ {
		s.UpdateWait(func(snap *Snapshot) {
			snap.Temperature = i
			snap.Humidity = float64(i)
			snap.Illuminance = i
			snap.Distance = float64(i) / 2
		})
	}
	close(stop)
	wg.Wait()
}

func TestLockTimeoutNoPartialWrite(t *testing.T) {
	s := NewStore()
	s.Timeout = 10 * time.Millisecond
	require.NoError(t, s.SetDistance(1.5))

	held, done := make(chan struct{}), make(chan struct{})
	go s.UpdateWait(func(*Snapshot) {
		close(held)
		<-done
	})
	<-held
	assert.ErrorIs(t, s.SetDistance(9), ErrLockTimeout)
	_, err := s.Snapshot()
	assert.ErrorIs(t, err, ErrLockTimeout)
	_, err = s.TrySnapshot()
	assert.ErrorIs(t, err, ErrLockTimeout)
	close(done)

	d, err := s.Distance()
	require.NoError(t, err)
	assert.Equal(t, 1.5, d)
	assert.Equal(t, uint64(3), s.LockTimeouts())
}

func TestDistanceTimestamp(t *testing.T) {
	now := time.Unix(1000, 0)
	s := NewStore()
	s.Now = func() time.Time { return now }
	require.NoError(t, s.SetDistance(12.5))
	require.NoError(t, s.MarkBroadcast())
	snap, err := s.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 12.5, snap.Distance)
	assert.Equal(t, now, snap.LastDistanceUpdate)
	assert.Equal(t, now, snap.LastBroadcast)
	assert.True(t, snap.LastEnvUpdate.IsZero())
}

func TestPeerLinkRequiresAddress(t *testing.T) {
	s := NewStore()
	assert.ErrorIs(t, s.SetPeerActive(true), ErrNotConfigured)

	addr := hwaddr.MustParse("AA:BB:CC:DD:EE:FF")
	require.NoError(t, s.SetPeer(addr))
	require.NoError(t, s.SetPeerActive(true))
	links, err := s.Links()
	require.NoError(t, err)
	assert.Equal(t, Links{PeerAddress: addr, AddressConfigured: true, PeerLinkActive: true}, links)

	require.NoError(t, s.ClearPeer())
	links, err = s.Links()
	require.NoError(t, err)
	assert.False(t, links.AddressConfigured)
	assert.False(t, links.PeerLinkActive)
}

func TestActivatePeer(t *testing.T) {
	s := NewStore()
	addr := hwaddr.MustParse("AA:BB:CC:DD:EE:FF")
	require.NoError(t, s.ActivatePeer(addr))
	links, err := s.Links()
	require.NoError(t, err)
	assert.Equal(t, Links{PeerAddress: addr, AddressConfigured: true, PeerLinkActive: true}, links)

	s.Timeout = 10 * time.Millisecond
	held, done := make(chan struct{}), make(chan struct{})
	go s.UpdateWait(func(*Snapshot) {
		close(held)
		<-done
	})
	<-held
	assert.ErrorIs(t, s.ActivatePeer(hwaddr.MustParse("11:22:33:44:55:66")), ErrLockTimeout)
	close(done)
	s.Timeout = DefaultTimeout
	links, err = s.Links()
	require.NoError(t, err)
	assert.Equal(t, addr, links.PeerAddress)
	assert.True(t, links.PeerLinkActive)
}

func TestReset(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.SetBroadcastActive(true))
	require.NoError(t, s.Update(func(snap *Snapshot) { snap.Temperature = 20 }))
	s.Reset()
	snap, err := s.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, Snapshot{}, snap)
	links, err := s.Links()
	require.NoError(t, err)
	assert.Equal(t, Links{}, links)
}
