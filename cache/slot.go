package cache

import (
	"sync"

	"github.com/wilbur-shi/bufcache/device"
)

// slot is one cache entry: a sector-sized payload plus the
// reader/writer state machine guarding it.
//
// Every field below lock is protected by lock; lock never guards
// data itself — data is safe to touch only while the state-machine
// flags (loading, flushing) and counters (ar, aw) guarantee exclusion,
// which is the whole point of the state machine.
type slot struct {
	lock sync.Mutex
	cv   *sync.Cond

	sectorID device.SectorID
	data     []byte

	accessed bool
	dirty    bool
	loading  bool
	flushing bool

	ar uint32 // active readers, copying out of data
	aw uint32 // active writers (0 or 1), copying into data
	wr uint32 // readers waiting to become active
	ww uint32 // writers waiting to become active
}

func newSlot(sectorSize int) *slot {
	s := &slot{
		sectorID: device.NoSector,
		data:     make([]byte, sectorSize),
	}
	s.cv = sync.NewCond(&s.lock)
	return s
}

// busy reports whether the slot has any I/O in flight or any active or
// waiting caller — the eviction-exclusion predicate of spec invariant 4.
// Caller must hold s.lock.
func (s *slot) busy() bool {
	return s.loading || s.flushing || s.ar+s.aw+s.wr+s.ww > 0
}

// waitForRead blocks until reading is admissible, then books the
// caller as an active reader. Caller must hold s.lock and must already
// have incremented s.wr.
func (s *slot) waitForRead() {
	for s.loading || s.flushing || s.ww+s.aw > 0 {
		s.cv.Wait()
	}
	s.wr--
	s.ar++
}

// waitForWrite is waitForRead's writer counterpart. Caller must hold
// s.lock and must already have incremented s.ww.
func (s *slot) waitForWrite() {
	for s.loading || s.flushing || s.ar+s.aw > 0 {
		s.cv.Wait()
	}
	s.ww--
	s.aw++
}

// finishRead un-books an active reader and marks the slot accessed.
// Caller must hold s.lock.
func (s *slot) finishRead() {
	s.ar--
	s.accessed = true
	s.cv.Broadcast()
}

// finishWrite un-books an active writer, marking the slot dirty and
// accessed. Caller must hold s.lock.
func (s *slot) finishWrite() {
	s.aw--
	s.accessed = true
	s.dirty = true
	s.cv.Broadcast()
}
