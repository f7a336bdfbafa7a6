package statcache

import (
	"sync/atomic"

	"github.com/wilbur-shi/bufcache/statcache/num64"
)

// Counter is a server-side-maintained tally: its value is swapped to
// zero on every flush, so a dropped flush permanently loses that
// interval's increments rather than skewing the next one.
type Counter struct {
	name string
	val  int64
}

func NewCounter(name string) *Counter { return &Counter{name: name} }

func (c *Counter) Name() string { return c.name }

func (c *Counter) Inc(n int64) { atomic.AddInt64(&c.val, n) }

// Value peeks the current tally without resetting it, for diagnostics
// outside the normal flush cycle.
func (c *Counter) Value() int64 { return atomic.LoadInt64(&c.val) }

func (c *Counter) FlushReading(s Sink) {
	v := atomic.SwapInt64(&c.val, 0)
	s.RecordNumeric64(MeterCounter, c.name, num64.FromInt64(v))
}
