package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wilbur-shi/bufcache/device"
	"github.com/wilbur-shi/bufcache/obslog"
)

func TestFlusherWritesAndClearsDirty(t *testing.T) {
	dev := device.NewMem(512, 2)
	q := newWriteBehindQueue()
	f := newFlusher(q, dev, obslog.Discard(), nilStats{})
	f.start()

	s := newSlot(512)
	s.sectorID = device.SectorID(1)
	s.dirty = true
	s.flushing = true
	for i := range s.data {
		s.data[i] = 0xAB
	}
	q.push(s)

	require.Eventually(t, func() bool {
		s.lock.Lock()
		defer s.lock.Unlock()
		return !s.dirty && !s.flushing
	}, time.Second, time.Millisecond)

	q.close()
	f.join()

	got := make([]byte, 512)
	require.NoError(t, dev.Read(device.SectorID(1), got))
	assert.Equal(t, s.data, got)
}

func TestFlusherRetainsDirtyOnDeviceError(t *testing.T) {
	dev := device.NewMem(512, 2)
	dev.FailWrite = func(device.SectorID) error { return assertErr }

	q := newWriteBehindQueue()
	f := newFlusher(q, dev, obslog.Discard(), nilStats{})
	f.start()

	s := newSlot(512)
	s.sectorID = device.SectorID(0)
	s.dirty = true
	s.flushing = true
	q.push(s)

	require.Eventually(t, func() bool {
		s.lock.Lock()
		defer s.lock.Unlock()
		return !s.flushing
	}, time.Second, time.Millisecond)

	s.lock.Lock()
	assert.True(t, s.dirty, "a failed flush must leave the slot dirty for retry")
	s.lock.Unlock()

	q.close()
	f.join()
}

var assertErr = assertError("injected device write failure")

type assertError string

func (e assertError) Error() string { return string(e) }
