package cache

import (
	"sync"

	"github.com/wilbur-shi/bufcache/device"
	"github.com/wilbur-shi/bufcache/obslog"
)

// flusher is the background worker draining the write-behind queue
// (spec.md §4.5). It terminates only when the queue is closed and
// drained, at process shutdown.
type flusher struct {
	queue *writeBehindQueue
	dev   device.BlockDevice
	log   *obslog.Logger
	stats Stats

	wg sync.WaitGroup
}

func newFlusher(q *writeBehindQueue, dev device.BlockDevice, log *obslog.Logger, stats Stats) *flusher {
	return &flusher{queue: q, dev: dev, log: log, stats: stats}
}

func (f *flusher) start() {
	f.wg.Add(1)
	go f.run()
}

func (f *flusher) join() {
	f.wg.Wait()
}

func (f *flusher) run() {
	defer f.wg.Done()

	for {
		s, ok := f.queue.pop()
		if !ok {
			return
		}

		f.stats.QueueDepth(f.queue.depth())

		// Write without holding s.lock: flushing already excludes every
		// other operation from touching s.data (spec.md §4.5 step 4).
		err := f.dev.Write(s.sectorID, s.data)

		s.lock.Lock()
		if err != nil {
			// Leave dirty=true, clear flushing: the slot becomes
			// re-evictable and re-enqueueable (spec.md §4.7).
			s.flushing = false
			s.cv.Broadcast()
			sector := s.sectorID
			s.lock.Unlock()

			f.stats.FlushFailed()
			f.log.Error("flush failed, will retry on next eviction", "sector", sector, "err", err)
			continue
		}

		s.dirty = false
		s.flushing = false
		s.cv.Broadcast()
		sector := s.sectorID
		s.lock.Unlock()

		f.stats.FlushOK()
		if debug, ok := f.log.DEBUGok(); ok {
			debug("flushed sector", "sector", sector)
		}
	}
}
