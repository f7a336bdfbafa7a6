package cache

import (
	"sync"

	"github.com/wilbur-shi/bufcache/device"
	"github.com/wilbur-shi/bufcache/obslog"
)

// table is the fixed array of N slots plus the clock hand, guarded by
// a single global mutex serializing lookup and eviction selection
// (spec.md §3, §5 lock scope 1).
type table struct {
	mu    sync.Mutex
	slots []*slot
	hand  int
}

func newTable(n, sectorSize int) *table {
	t := &table{slots: make([]*slot, n)}
	for i := range t.slots {
		t.slots[i] = newSlot(sectorSize)
	}
	return t
}

func (t *table) advance() {
	t.hand = (t.hand + 1) % len(t.slots)
}

// find scans the array for sector, exactly as spec.md §4.2 describes.
// Caller must hold t.mu. On a hit it pre-increments wr or ww on the
// returned slot and returns it still locked; the caller is responsible
// for releasing t.mu (the global lock) before any further wait and for
// unlocking the slot once done. On a miss it returns nil with no slot
// lock held.
func (t *table) find(sector device.SectorID, forWrite bool) *slot {
	for _, s := range t.slots {
		s.lock.Lock()
		if s.sectorID != sector {
			s.lock.Unlock()
			continue
		}

		// The global lock is held for the duration of this wait by
		// design (spec.md §4.2, §9): the flusher only needs s.lock to
		// finish, so this cannot deadlock, only serialize lookups
		// behind a flush that is already in flight.
		for s.flushing {
			s.cv.Wait()
		}

		if s.sectorID != sector {
			// Flush completed and the slot was reassigned. Invariant 5
			// makes this unreachable, but the original kernel defends
			// against it, so we do too.
			s.lock.Unlock()
			continue
		}

		if forWrite {
			s.ww++
		} else {
			s.wr++
		}
		return s
	}
	return nil
}

// evict runs the clock sweep of spec.md §4.3. Caller must hold t.mu.
// Returns the victim slot, still locked, with sector identity not yet
// reassigned. Dirty slots encountered along the way are handed to q
// for asynchronous flushing.
func (t *table) evict(q *writeBehindQueue, log *obslog.Logger, stats Stats) *slot {
	spins := 0
	for {
		s := t.slots[t.hand]
		s.lock.Lock()

		if s.busy() {
			s.lock.Unlock()
			t.advance()
			spins++
			if spins == len(t.slots)*4 {
				log.Warn("eviction sweep has circled the table repeatedly; all slots busy")
			}
			continue
		}

		if s.accessed {
			s.accessed = false
			s.lock.Unlock()
			t.advance()
			continue
		}

		if s.dirty {
			s.flushing = true
			victimSector := s.sectorID
			s.lock.Unlock()

			q.push(s)
			stats.Eviction(true)
			if debug, ok := log.DEBUGok(); ok {
				debug("queued dirty slot for write-behind flush", "sector", victimSector)
			}

			t.advance()
			continue
		}

		stats.Eviction(false)
		t.advance()
		return s
	}
}
