package reaper

import (
	"net"
	"time"
)

// listener wraps a net.Listener so every accepted connection can
// opt in to IOActivityTimeout and be watched by a reaper goroutine.
type listener struct {
	net.Listener
	newChan  chan *conn
	interval time.Duration
	maxMiss  int64
	reapers  uint32
}

// NewIOActivityTimeoutListener wraps orig so connections it accepts
// support IOActivityTimeout, though it starts disabled on each one.
// timeout is how long a connection may go without I/O before it's
// reaped; reaperInterval is how often the reaper checks. A zero
// reaperInterval disables reaping entirely.
func NewIOActivityTimeoutListener(orig net.Listener, timeout, reaperInterval time.Duration) net.Listener {
	maxMiss := int64(-1)
	if reaperInterval != 0 {
		if timeout < reaperInterval {
			timeout = reaperInterval
		}
		maxMiss = timeout.Nanoseconds() / reaperInterval.Nanoseconds()
	}

	return &listener{
		Listener: orig,
		newChan:  make(chan *conn),
		interval: reaperInterval,
		maxMiss:  maxMiss,
	}
}

func (l *listener) Accept() (net.Conn, error) {
	c, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	ic := &conn{Conn: c}
	if l.maxMiss != -1 {
		handoff(ic, l.newChan, l.interval, l.maxMiss, &l.reapers)
	}
	return ic, nil
}
