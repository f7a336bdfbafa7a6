// Package cache implements a fixed-size, concurrent sector buffer
// cache sitting between a filesystem-like caller and a block device.
//
// It coalesces repeated access to the same sector, defers device
// writes via a write-behind worker, and evicts cold sectors with a
// clock-sweep replacement policy. Multiple readers and writers,
// potentially on different sectors, may call into the cache
// concurrently; per-sector operations are linearizable while different
// sectors proceed in parallel.
package cache

import (
	"fmt"
	"sync"

	"github.com/wilbur-shi/bufcache/device"
	"github.com/wilbur-shi/bufcache/obslog"
)

// DefaultSectorSize and DefaultCapacity match spec.md's recommended
// tunables (512-byte sectors, a 64-slot table).
const (
	DefaultSectorSize = 512
	DefaultCapacity   = 64
)

// Stats receives cache events for observability. A nil Stats is never
// passed to user code; Options.Stats defaults to a no-op
// implementation if unset. See package statcache for a concrete
// implementation.
type Stats interface {
	Hit()
	Miss()
	Eviction(dirty bool)
	FlushOK()
	FlushFailed()
	QueueDepth(n int)
}

type nilStats struct{}

func (nilStats) Hit()           {}
func (nilStats) Miss()          {}
func (nilStats) Eviction(bool)  {}
func (nilStats) FlushOK()       {}
func (nilStats) FlushFailed()   {}
func (nilStats) QueueDepth(int) {}

// Options configure a Cache. SectorSize and Capacity are read once, at
// Open, and never change for the life of the Cache — the cache does
// not resize (spec.md §1 Non-goals).
type Options struct {
	// Device is the block device the cache loads from and flushes to.
	Device device.BlockDevice

	// Capacity is the number of slots in the cache table (N).
	// Defaults to DefaultCapacity if zero.
	Capacity int

	// Logger receives structured diagnostics. Defaults to a discard
	// logger if nil.
	Logger *obslog.Logger

	// Stats receives cache event counters. Defaults to a no-op
	// implementation if nil.
	Stats Stats
}

// Cache is a fixed-size, concurrent sector buffer cache. The zero
// Cache is not usable; construct one with Open.
type Cache struct {
	dev        device.BlockDevice
	sectorSize int

	table   *table
	queue   *writeBehindQueue
	flusher *flusher

	log   *obslog.Logger
	stats Stats

	shutdownMu sync.Mutex
	shutdown   bool
	inflight   sync.WaitGroup
}

// Open creates a Cache over opts.Device and starts its flusher worker.
// Corresponds to spec.md §6's init(): it must be called exactly once
// per Cache value; two Cache instances are independently valid.
func Open(opts Options) (*Cache, error) {
	if opts.Device == nil {
		return nil, fmt.Errorf("cache: Options.Device is required")
	}

	capacity := opts.Capacity
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("cache: invalid capacity %d", capacity)
	}

	sectorSize := opts.Device.SectorSize()
	if sectorSize <= 0 {
		return nil, fmt.Errorf("cache: device reports invalid sector size %d", sectorSize)
	}

	log := opts.Logger
	if log == nil {
		log = obslog.Discard()
	}
	stats := opts.Stats
	if stats == nil {
		stats = nilStats{}
	}

	c := &Cache{
		dev:        opts.Device,
		sectorSize: sectorSize,
		table:      newTable(capacity, sectorSize),
		queue:      newWriteBehindQueue(),
		log:        log,
		stats:      stats,
	}
	c.flusher = newFlusher(c.queue, c.dev, c.log, c.stats)
	c.flusher.start()

	log.Info("cache opened", "capacity", capacity, "sector_size", sectorSize)
	return c, nil
}

// SectorSize returns the fixed per-sector transfer size.
func (c *Cache) SectorSize() int { return c.sectorSize }

// Capacity returns N, the number of slots in the cache table.
func (c *Cache) Capacity() int { return len(c.table.slots) }

// enter registers the caller as an in-flight operation, or returns
// ErrShutdown if Shutdown has already begun. Checking shutdown and
// joining c.inflight happen under the same lock so Shutdown can never
// observe an empty WaitGroup while a call that saw shutdown==false is
// still on its way to pushing onto the write-behind queue.
func (c *Cache) enter() error {
	c.shutdownMu.Lock()
	defer c.shutdownMu.Unlock()
	if c.shutdown {
		return ErrShutdown
	}
	c.inflight.Add(1)
	return nil
}

func (c *Cache) leave() {
	c.inflight.Done()
}

// Read reads one full sector into buf, which must have length
// SectorSize().
func (c *Cache) Read(sector device.SectorID, buf []byte) error {
	return c.ReadAt(sector, buf, 0, c.sectorSize)
}

// Write writes one full sector from buf, which must have length
// SectorSize().
func (c *Cache) Write(sector device.SectorID, buf []byte) error {
	return c.WriteAt(sector, buf, 0, c.sectorSize)
}

// ReadAt reads buf[0:length] from sector[start:start+length].
func (c *Cache) ReadAt(sector device.SectorID, buf []byte, start, length int) error {
	if err := c.validateRange(start, length); err != nil {
		return err
	}
	if err := c.enter(); err != nil {
		return err
	}
	defer c.leave()

	s, err := c.acquire(sector, false)
	if err != nil {
		return err
	}

	s.lock.Lock()
	s.waitForRead()
	s.lock.Unlock()

	copy(buf[:length], s.data[start:start+length])

	s.lock.Lock()
	s.finishRead()
	s.lock.Unlock()

	return nil
}

// WriteAt writes buf[0:length] into sector[start:start+length]. On a
// miss the sector is first loaded from the device (read-modify-write),
// then the full slot is marked dirty even though only the sub-range
// changed (spec.md §4.6).
func (c *Cache) WriteAt(sector device.SectorID, buf []byte, start, length int) error {
	if err := c.validateRange(start, length); err != nil {
		return err
	}
	if err := c.enter(); err != nil {
		return err
	}
	defer c.leave()

	s, err := c.acquire(sector, true)
	if err != nil {
		return err
	}

	s.lock.Lock()
	s.waitForWrite()
	s.lock.Unlock()

	copy(s.data[start:start+length], buf[:length])

	s.lock.Lock()
	s.finishWrite()
	s.lock.Unlock()

	return nil
}

func (c *Cache) validateRange(start, length int) error {
	if length <= 0 {
		return ErrInvalidRange
	}
	if start < 0 || start+length > c.sectorSize {
		return ErrInvalidRange
	}
	return nil
}

// acquire implements spec.md §4.2/§4.3/§4.4: look the sector up under
// the global lock; on a hit, return the slot with the caller's
// waiter count pre-incremented, with neither the global lock nor the
// slot lock held; on a miss, evict a victim, load it from device,
// and return it the same way.
func (c *Cache) acquire(sector device.SectorID, forWrite bool) (*slot, error) {
	c.table.mu.Lock()

	if s := c.table.find(sector, forWrite); s != nil {
		c.table.mu.Unlock()
		s.lock.Unlock()
		c.stats.Hit()
		if debug, ok := c.log.DEBUGok(); ok {
			debug("cache hit", "sector", sector, "write", forWrite)
		}
		return s, nil
	}

	// Miss: evict a victim while still holding the global lock.
	c.stats.Miss()
	victim := c.table.evict(c.queue, c.log, c.stats)

	victim.sectorID = sector
	victim.accessed = false
	victim.dirty = false
	c.table.mu.Unlock()

	// Edge case from spec.md §4.4 step 3: a prior flush may still be
	// winding down on this slot.
	for victim.flushing {
		victim.cv.Wait()
	}

	victim.loading = true
	victim.lock.Unlock()

	if debug, ok := c.log.DEBUGok(); ok {
		debug("loading sector from device", "sector", sector)
	}
	err := c.dev.Read(sector, victim.data)

	victim.lock.Lock()
	victim.loading = false
	victim.cv.Broadcast()

	if err != nil {
		victim.lock.Unlock()
		c.log.Error("device read failed", "sector", sector, "err", err)
		return nil, deviceErr("read", sector, err)
	}

	if forWrite {
		victim.ww++
	} else {
		victim.wr++
	}
	victim.lock.Unlock()

	return victim, nil
}

// Shutdown ceases accepting new requests, flushes every dirty slot,
// waits for the write-behind queue to drain and the flusher to exit,
// and returns. Calling Shutdown more than once returns ErrShutdown on
// the second and later calls. spec.md §6.
func (c *Cache) Shutdown() error {
	c.shutdownMu.Lock()
	if c.shutdown {
		c.shutdownMu.Unlock()
		return ErrShutdown
	}
	c.shutdown = true
	c.shutdownMu.Unlock()

	c.log.Info("cache shutting down")

	// Every ReadAt/WriteAt/Flush that joined c.inflight before the flag
	// flipped above is still free to reach table.evict -> queue.push;
	// wait for them to finish before closing the queue, or their push
	// would panic against a closed queue (spec.md §6: cease accepting
	// new requests, not abort requests already in flight).
	c.inflight.Wait()

	pending := c.enqueueAllDirty()
	for _, s := range pending {
		s.lock.Lock()
		for s.flushing {
			s.cv.Wait()
		}
		s.lock.Unlock()
	}

	c.queue.close()
	c.flusher.join()

	c.log.Info("cache shut down", "flushed", len(pending))
	return nil
}

// Flush enqueues every currently dirty slot on the write-behind queue
// and blocks until all of them have been written back, without
// shutting the cache down. Operators use it to force a flush outside
// the normal clock-sweep eviction path.
func (c *Cache) Flush() error {
	if err := c.enter(); err != nil {
		return err
	}
	defer c.leave()

	pending := c.enqueueAllDirty()
	for _, s := range pending {
		s.lock.Lock()
		for s.flushing {
			s.cv.Wait()
		}
		s.lock.Unlock()
	}

	c.log.Info("cache flushed", "slots", len(pending))
	return nil
}

// enqueueAllDirty scans the table once, under the global lock, queuing
// every slot that is dirty, not already flushing and has no active
// reader or writer — mirroring the eviction scan's own dirty-slot
// handling, but without regard to the accessed bit or to waiting
// callers (a shutting-down cache has no further use for the
// second-chance bit). A slot skipped because a caller is active on it
// is not returned.
func (c *Cache) enqueueAllDirty() []*slot {
	c.table.mu.Lock()
	defer c.table.mu.Unlock()

	var pending []*slot
	for _, s := range c.table.slots {
		s.lock.Lock()
		if s.dirty && !s.flushing && s.ar+s.aw == 0 {
			s.flushing = true
			pending = append(pending, s)
			s.lock.Unlock()
			c.queue.push(s)
			continue
		}
		if s.flushing {
			pending = append(pending, s)
		}
		s.lock.Unlock()
	}
	return pending
}
