package pool

import (
	"errors"
	"net"
	"sync"
	"time"
)

// ErrPoolFull is returned by Get when the pool has reached maxconns
// open connections and was constructed with blocking=false.
var ErrPoolFull = errors.New("pool: connection pool full")

// channelPool implements Pool with a buffered channel as the idle
// connection queue; the mutex guards openconns bookkeeping, the
// closed/open transition and the send that returns a connection to the
// channel (so it cannot race Close), but not Get's receive from it.
type channelPool struct {
	mu sync.Mutex

	conns     chan net.Conn
	maxconns  int
	openconns int
	blocking  bool

	factory Factory
}

// Factory creates a new connection for the pool to hand out when its
// idle queue is empty.
type Factory func() (net.Conn, error)

// NewChannelPool builds a Pool that keeps up to idleSize idle
// connections buffered and never has more than maxSize open at once.
// If blocking is true, Get waits for a connection to be released
// instead of erroring once maxSize is reached.
func NewChannelPool(idleSize int, maxSize int, factory Factory, blocking bool) (Pool, error) {
	if idleSize < 0 || maxSize <= 0 || idleSize >= maxSize {
		return nil, errors.New("pool: invalid capacity settings")
	}
	return &channelPool{
		conns:    make(chan net.Conn, idleSize),
		factory:  factory,
		maxconns: maxSize,
		blocking: blocking,
	}, nil
}

// Get returns an idle connection if one is queued; otherwise it opens
// a new one via Factory, or — once maxconns is already open — either
// blocks for a release (blocking pools) or returns ErrPoolFull. The
// bool result reports whether the connection is freshly minted (and
// so hasn't proven itself yet) versus reused.
func (c *channelPool) Get() (*PoolConn, bool, error) {
	select {
	case conn, ok := <-c.conns:
		if !ok {
			return nil, false, ErrClosed
		}
		return c.wrapConn(conn), false, nil
	default:
	}

	c.mu.Lock()
	if c.openconns < c.maxconns {
		conn, err := c.factory()
		if err != nil {
			c.mu.Unlock()
			return nil, false, err
		}
		c.openconns++
		c.mu.Unlock()
		return c.wrapConn(conn), true, nil
	}
	c.mu.Unlock()

	if !c.blocking {
		return nil, false, ErrPoolFull
	}
	conn, ok := <-c.conns
	if !ok {
		return nil, false, ErrClosed
	}
	return c.wrapConn(conn), false, nil
}

func (c *channelPool) closeConn(conn net.Conn) error {
	c.mu.Lock()
	c.openconns--
	c.mu.Unlock()
	return conn.Close()
}

// putConn returns conn to the idle queue, or closes it outright if
// the pool has since been closed or the idle queue is already full.
// The send onto conns happens under mu, alongside the closed check, so
// it can never race Close's close(c.conns).
func (c *channelPool) putConn(conn net.Conn) error {
	if conn == nil {
		return errors.New("pool: rejecting nil connection")
	}

	conn.SetDeadline(time.Time{}) // idle connections carry no deadline

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.factory == nil { // closed
		c.openconns--
		return conn.Close()
	}
	select {
	case c.conns <- conn:
		return nil
	default:
		c.openconns--
		return conn.Close()
	}
}

// Close drains and closes every idle connection currently queued and
// marks the pool closed. Connections already checked out close
// themselves (via PoolConn.Close/Release hitting the closed factory)
// as they're returned.
func (c *channelPool) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.factory = nil
	close(c.conns)
	for conn := range c.conns {
		c.openconns--
		conn.Close()
	}
}
