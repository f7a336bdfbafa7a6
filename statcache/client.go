package statcache

import "time"

// DefaultFlushInterval matches how often the cache's counters are
// reported to the configured Sink.
const DefaultFlushInterval = 10 * time.Second

// Client implements cache.Stats, translating the six cache events into
// meters registered with a background flusher. The zero value is not
// usable; construct with New.
type Client struct {
	hits, misses              *Counter
	evictions, dirtyEvictions *Counter
	flushOK, flushFailed      *Counter
	queueDepth                *Gauge
	f                         *flusher
}

// Options configures a Client.
type Options struct {
	// Sink receives flushed readings. Defaults to a no-op Sink if nil.
	Sink Sink

	// FlushInterval is how often meters are reported. Zero selects
	// DefaultFlushInterval; a negative value disables the background
	// flusher (meters still accumulate, but are never reported — used
	// by tests that poll Snapshot instead).
	FlushInterval time.Duration
}

// New creates a Client and starts its background flusher.
func New(opts Options) *Client {
	interval := opts.FlushInterval
	if interval == 0 {
		interval = DefaultFlushInterval
	}

	c := &Client{
		hits:           NewCounter("cache.hits"),
		misses:         NewCounter("cache.misses"),
		evictions:      NewCounter("cache.evictions"),
		dirtyEvictions: NewCounter("cache.evictions.dirty"),
		flushOK:        NewCounter("cache.flush.ok"),
		flushFailed:    NewCounter("cache.flush.failed"),
		queueDepth:     NewGauge("cache.queue.depth"),
		f:              newFlusher(interval),
	}
	c.f.setSink(opts.Sink)
	for _, m := range []Meter{c.hits, c.misses, c.evictions, c.dirtyEvictions, c.flushOK, c.flushFailed, c.queueDepth} {
		c.f.register(m)
	}
	c.f.start()
	return c
}

// Close stops the background flusher, which flushes once more before
// it exits. With the flusher disabled, Close does nothing.
func (c *Client) Close() { c.f.close() }

func (c *Client) Hit()         { c.hits.Inc(1) }
func (c *Client) Miss()        { c.misses.Inc(1) }
func (c *Client) FlushOK()     { c.flushOK.Inc(1) }
func (c *Client) FlushFailed() { c.flushFailed.Inc(1) }

func (c *Client) Eviction(dirty bool) {
	if dirty {
		c.dirtyEvictions.Inc(1)
		return
	}
	c.evictions.Inc(1)
}

func (c *Client) QueueDepth(n int) { c.queueDepth.Set(int64(n)) }

// Snapshot reports the current values without waiting for the next
// scheduled flush, for tests and the admin HTTP /stats endpoint.
func (c *Client) Snapshot() Snapshot {
	return Snapshot{
		Hits:           c.hits.Value(),
		Misses:         c.misses.Value(),
		Evictions:      c.evictions.Value(),
		DirtyEvictions: c.dirtyEvictions.Value(),
		FlushOK:        c.flushOK.Value(),
		FlushFailed:    c.flushFailed.Value(),
		QueueDepth:     c.queueDepth.Value(),
	}
}

// Snapshot is a point-in-time read of every counter, independent of
// the Sink flush cycle.
type Snapshot struct {
	Hits, Misses              int64
	Evictions, DirtyEvictions int64
	FlushOK, FlushFailed      int64
	QueueDepth                int64
}
