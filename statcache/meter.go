// Package statcache adapts the event/flusher/sink metrics machinery
// used elsewhere in this codebase to the cache's own six counters:
// hits, misses, clean and dirty evictions, flush outcomes, and queue
// depth. It implements cache.Stats and can be wired to a statsd sink
// for shipping those counters off-box.
package statcache

// Meter type tags, mirroring the conventional gauge/counter split: a
// Gauge is client-maintained and sampled as-is; a Counter is reset to
// zero on every flush and tallied server-side.
const (
	MeterGauge = iota
	MeterCounter
)

// Meter is a named metric instrument that knows how to report itself
// to a Sink.
type Meter interface {
	Name() string
	FlushReading(Sink)
}
