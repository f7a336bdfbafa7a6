package reaper

import (
	"context"
	"net"
	"time"
)

// Dialer wraps a *net.Dialer so connections it opens can be watched by
// a reaper goroutine the same way listener's accepted connections are.
type Dialer struct {
	dialer          *net.Dialer
	newChan         chan *conn
	interval        time.Duration
	maxMiss         int64
	reapers         uint32
	enableByDefault bool
}

// NewIOActivityTimeoutDialer wraps orig. If enableByDefault is set,
// IOActivityTimeout is turned on for every connection Dial/DialContext
// returns instead of requiring the caller to opt in afterward.
func NewIOActivityTimeoutDialer(orig *net.Dialer, timeout, reaperInterval time.Duration, enableByDefault bool) *Dialer {
	if timeout < reaperInterval {
		timeout = reaperInterval
	}
	return &Dialer{
		dialer:          orig,
		newChan:         make(chan *conn),
		interval:        reaperInterval,
		maxMiss:         timeout.Nanoseconds() / reaperInterval.Nanoseconds(),
		enableByDefault: enableByDefault,
	}
}

// Dial behaves like (*net.Dialer).Dial.
func (d *Dialer) Dial(network, address string) (net.Conn, error) {
	c, err := d.dialer.Dial(network, address)
	if err != nil {
		return nil, err
	}
	return d.wrapAndHandoff(c), nil
}

// DialContext behaves like (*net.Dialer).DialContext.
func (d *Dialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	c, err := d.dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	return d.wrapAndHandoff(c), nil
}

func (d *Dialer) wrapAndHandoff(c net.Conn) net.Conn {
	ic := &conn{Conn: c}
	if d.enableByDefault {
		IOActivityTimeout(ic, true)
	}
	handoff(ic, d.newChan, d.interval, d.maxMiss, &d.reapers)
	return ic
}
