package statcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/wilbur-shi/bufcache/statcache/num64"
)

type recordingSink struct {
	records []record
}

type record struct {
	mtype int
	name  string
	val   num64.Numeric64
}

func (s *recordingSink) RecordNumeric64(mtype int, name string, v num64.Numeric64) {
	s.records = append(s.records, record{mtype, name, v})
}
func (s *recordingSink) Flush() {}

func TestClientSnapshotReflectsEventsImmediately(t *testing.T) {
	c := New(Options{FlushInterval: -1})
	defer c.Close()

	c.Hit()
	c.Hit()
	c.Miss()
	c.Eviction(false)
	c.Eviction(true)
	c.FlushOK()
	c.FlushFailed()
	c.QueueDepth(3)

	snap := c.Snapshot()
	assert.EqualValues(t, 2, snap.Hits)
	assert.EqualValues(t, 1, snap.Misses)
	assert.EqualValues(t, 1, snap.Evictions)
	assert.EqualValues(t, 1, snap.DirtyEvictions)
	assert.EqualValues(t, 1, snap.FlushOK)
	assert.EqualValues(t, 1, snap.FlushFailed)
	assert.EqualValues(t, 3, snap.QueueDepth)
}

func TestCounterResetsToZeroOnFlush(t *testing.T) {
	ctr := NewCounter("x")
	ctr.Inc(5)

	sink := &recordingSink{}
	ctr.FlushReading(sink)

	assert.EqualValues(t, 0, ctr.Value())
	assert.Len(t, sink.records, 1)
	assert.EqualValues(t, 5, sink.records[0].val.Int64())
}

func TestGaugeDoesNotResetOnFlush(t *testing.T) {
	g := NewGauge("y")
	g.Set(7)

	sink := &recordingSink{}
	g.FlushReading(sink)

	assert.EqualValues(t, 7, g.Value())
}

func TestFlusherReportsAllRegisteredMeters(t *testing.T) {
	c := New(Options{FlushInterval: -1})
	defer c.Close()

	c.Hit()
	c.QueueDepth(2)

	sink := &recordingSink{}
	c.f.setSink(sink)
	c.f.flush()

	names := map[string]bool{}
	for _, r := range sink.records {
		names[r.name] = true
	}
	assert.True(t, names["cache.hits"])
	assert.True(t, names["cache.queue.depth"])
}
