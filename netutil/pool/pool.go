// Package pool pools net.Conn connections for reuse instead of paying
// a fresh dial (and, for the device protocol on top of it, a fresh
// handshake) on every request.
package pool

import "errors"

// ErrClosed is returned by Get once the pool has been Close()d.
var ErrClosed = errors.New("pool: closed")

// Pool hands out pooled connections and reclaims them on Release.
type Pool interface {
	// Get returns a connection from the pool, minting a fresh one via
	// the pool's Factory if none are idle. fresh reports whether the
	// connection is newly minted — callers that want to retry once on
	// a stale reused connection, but not mask a real dial failure, use
	// it to decide whether an immediate error is retryable.
	Get() (conn *PoolConn, fresh bool, err error)

	// Close closes the pool and every connection it holds idle. The
	// pool is unusable afterward.
	Close()
}
