package statcache

import (
	"sync/atomic"

	"github.com/wilbur-shi/bufcache/statcache/num64"
)

// Gauge is a client-maintained value sampled as-is on every flush,
// used here for the write-behind queue depth (a level, not a tally).
type Gauge struct {
	name string
	val  int64
}

func NewGauge(name string) *Gauge { return &Gauge{name: name} }

func (g *Gauge) Name() string { return g.name }

func (g *Gauge) Set(v int64) { atomic.StoreInt64(&g.val, v) }

func (g *Gauge) Value() int64 { return atomic.LoadInt64(&g.val) }

func (g *Gauge) FlushReading(s Sink) {
	v := atomic.LoadInt64(&g.val)
	s.RecordNumeric64(MeterGauge, g.name, num64.FromInt64(v))
}
