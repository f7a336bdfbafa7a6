package pool

import "net"

// PoolConn wraps a pooled net.Conn so Close returns it to the pool
// instead of tearing it down; call Close (a broken connection) or
// Release (a healthy one) depending on how the caller finished with it.
type PoolConn struct {
	net.Conn
	pool *channelPool
}

// Release returns the connection to the pool's idle queue.
func (pc PoolConn) Release() error {
	return pc.pool.putConn(pc.Conn)
}

// Close discards the connection as broken rather than reusing it.
func (pc PoolConn) Close() error {
	return pc.pool.closeConn(pc.Conn)
}

func (c *channelPool) wrapConn(conn net.Conn) *PoolConn {
	return &PoolConn{Conn: conn, pool: c}
}
