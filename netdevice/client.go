package netdevice

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/wilbur-shi/bufcache/device"
	"github.com/wilbur-shi/bufcache/netutil/pool"
	"github.com/wilbur-shi/bufcache/netutil/reaper"
)

// ClientOptions configures a Client.
type ClientOptions struct {
	// Network is "tcp" or "unix".
	Network string
	// Addr is the server's TCP address or UNIX socket path.
	Addr string
	// IdleConns and MaxConns size the connection pool (netutil/pool's
	// NewChannelPool idle/max capacity). MaxConns defaults to 8,
	// IdleConns to MaxConns/2.
	IdleConns, MaxConns int
	// DialTimeout bounds each new connection attempt. Defaults to 5s.
	DialTimeout time.Duration
	// IdleTimeout bounds how long a pooled connection may sit without
	// I/O activity before being reaped. Defaults to DefaultIdleTimeout.
	IdleTimeout time.Duration
}

// Client implements device.BlockDevice over a pooled connection to a
// Server, reusing netutil/pool for connection reuse and
// netutil/reaper to close connections that go idle.
type Client struct {
	pool       pool.Pool
	sectorSize int
}

// Dial connects to a Server and queries its sector size.
func Dial(opts ClientOptions) (*Client, error) {
	maxConns := opts.MaxConns
	if maxConns <= 0 {
		maxConns = 8
	}
	idleConns := opts.IdleConns
	if idleConns <= 0 {
		idleConns = maxConns / 2
	}
	dialTimeout := opts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	idleTimeout := opts.IdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}

	dialer := reaper.NewIOActivityTimeoutDialer(&net.Dialer{Timeout: dialTimeout}, idleTimeout, reaperInterval, true)

	factory := func() (net.Conn, error) {
		return dialer.Dial(opts.Network, opts.Addr)
	}

	p, err := pool.NewChannelPool(idleConns, maxConns, factory, true)
	if err != nil {
		return nil, fmt.Errorf("netdevice: %w", err)
	}

	c := &Client{pool: p}

	sz, err := c.querySectorSize()
	if err != nil {
		p.Close()
		return nil, err
	}
	c.sectorSize = sz
	return c, nil
}

// SectorSize implements device.BlockDevice.
func (c *Client) SectorSize() int { return c.sectorSize }

func (c *Client) querySectorSize() (int, error) {
	resp, err := c.roundTrip(request{op: opSectorSize})
	if err != nil {
		return 0, err
	}
	if len(resp.payload) != 4 {
		return 0, fmt.Errorf("netdevice: malformed sector size response")
	}
	return int(binary.BigEndian.Uint32(resp.payload)), nil
}

// Read implements device.BlockDevice.
func (c *Client) Read(sector device.SectorID, dst []byte) error {
	resp, err := c.roundTrip(request{op: opRead, sector: sector})
	if err != nil {
		return err
	}
	if len(resp.payload) != len(dst) {
		return fmt.Errorf("netdevice: short read response: got %d of %d bytes", len(resp.payload), len(dst))
	}
	copy(dst, resp.payload)
	return nil
}

// Write implements device.BlockDevice.
func (c *Client) Write(sector device.SectorID, src []byte) error {
	_, err := c.roundTrip(request{op: opWrite, sector: sector, payload: src})
	return err
}

// Close shuts down the connection pool.
func (c *Client) Close() {
	c.pool.Close()
}

func (c *Client) roundTrip(req request) (response, error) {
	conn, _, err := c.pool.Get()
	if err != nil {
		return response{}, fmt.Errorf("netdevice: %w", err)
	}

	if err := writeRequest(conn, req); err != nil {
		conn.Close()
		return response{}, fmt.Errorf("netdevice: write request: %w", err)
	}
	resp, err := readResponse(conn)
	if err != nil {
		conn.Close()
		return response{}, fmt.Errorf("netdevice: read response: %w", err)
	}
	conn.Release()

	if resp.status != statusOK {
		return response{}, fmt.Errorf("netdevice: server error: %s", resp.errMsg)
	}
	return resp, nil
}
