package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wilbur-shi/bufcache/device"
	"github.com/wilbur-shi/bufcache/obslog"
)

func TestTableFindMiss(t *testing.T) {
	tbl := newTable(4, 512)
	tbl.mu.Lock()
	defer tbl.mu.Unlock()

	s := tbl.find(device.SectorID(1), false)
	assert.Nil(t, s)
}

func TestTableFindHitIncrementsWaiter(t *testing.T) {
	tbl := newTable(4, 512)
	tbl.slots[2].sectorID = device.SectorID(7)

	tbl.mu.Lock()
	s := tbl.find(device.SectorID(7), false)
	require.NotNil(t, s)
	assert.Same(t, tbl.slots[2], s)
	assert.EqualValues(t, 1, s.wr)
	s.lock.Unlock()
	tbl.mu.Unlock()
}

func TestTableEvictPrefersUnaccessedOverAccessed(t *testing.T) {
	tbl := newTable(2, 512)
	tbl.slots[0].accessed = true
	tbl.slots[1].accessed = false

	tbl.mu.Lock()
	q := newWriteBehindQueue()
	victim := tbl.evict(q, obslog.Discard(), nilStats{})
	tbl.mu.Unlock()

	assert.Same(t, tbl.slots[1], victim)
	assert.False(t, tbl.slots[0].accessed, "accessed bit should have been cleared on its pass")
	victim.lock.Unlock()
}

func TestTableEvictQueuesDirtySlots(t *testing.T) {
	tbl := newTable(2, 512)
	tbl.slots[0].dirty = true
	tbl.slots[0].sectorID = device.SectorID(5)
	tbl.slots[1].dirty = false

	tbl.mu.Lock()
	q := newWriteBehindQueue()
	victim := tbl.evict(q, obslog.Discard(), nilStats{})
	tbl.mu.Unlock()

	assert.Same(t, tbl.slots[1], victim)
	victim.lock.Unlock()

	require.Equal(t, 1, q.depth())
	flushed, ok := q.pop()
	require.True(t, ok)
	assert.Same(t, tbl.slots[0], flushed)
	assert.True(t, flushed.flushing)
}

func TestTableEvictSkipsBusySlots(t *testing.T) {
	tbl := newTable(2, 512)
	tbl.slots[0].wr = 1 // busy: a reader is waiting on it
	tbl.slots[1].accessed = false

	tbl.mu.Lock()
	q := newWriteBehindQueue()
	victim := tbl.evict(q, obslog.Discard(), nilStats{})
	tbl.mu.Unlock()

	assert.Same(t, tbl.slots[1], victim)
	victim.lock.Unlock()
}
