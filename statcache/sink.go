package statcache

import "github.com/wilbur-shi/bufcache/statcache/num64"

// Sink receives flushed meter readings. Its methods are only ever
// called while the owning flusher holds its own lock, so an
// implementation need not be internally synchronized unless it is
// shared across more than one flusher.
type Sink interface {
	RecordNumeric64(mtype int, name string, value num64.Numeric64)
	Flush()
}

type nilSink struct{}

func (nilSink) RecordNumeric64(int, string, num64.Numeric64) {}
func (nilSink) Flush()                                       {}
