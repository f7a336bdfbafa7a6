// Package statsd implements statcache.Sink over a UDP connection to a
// statsd-compatible collector, in the line protocol
// "name:value|type\n".
package statsd

import (
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/wilbur-shi/bufcache/statcache"
	"github.com/wilbur-shi/bufcache/statcache/num64"
)

// Option configures a Sink.
type Option func(*Sink) error

// Prefix prepends "prefix." to every metric name.
func Prefix(pfx string) Option {
	return func(s *Sink) error {
		s.prefix = pfx + "."
		return nil
	}
}

// Buffer sets the UDP datagram size writes are batched up to before
// being flushed to the wire.
func Buffer(n int) Option {
	return func(s *Sink) error {
		s.max = n
		return nil
	}
}

// Sink is a go-routine-safe statcache.Sink writing to a UDP peer.
type Sink struct {
	mu     sync.Mutex
	conn   net.Conn
	prefix string
	max    int
	buf    []byte
}

// New dials addr over UDP and returns a Sink. The connection is never
// actually read from; statsd is fire-and-forget.
func New(addr string, opts ...Option) (*Sink, error) {
	conn, err := net.DialTimeout("udp", addr, time.Second)
	if err != nil {
		return nil, fmt.Errorf("statsd: dial %s: %w", addr, err)
	}

	s := &Sink{conn: conn, max: 1432, buf: make([]byte, 0, 512)}
	for _, o := range opts {
		if err := o(s); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *Sink) RecordNumeric64(mtype int, name string, v num64.Numeric64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	safe := len(s.buf)
	s.buf = append(s.buf, s.prefix...)
	s.buf = append(s.buf, name...)
	s.buf = append(s.buf, ':')
	s.buf = appendNumeric64(s.buf, v)
	s.buf = append(s.buf, '|')
	switch mtype {
	case statcache.MeterGauge:
		s.buf = append(s.buf, 'g')
	case statcache.MeterCounter:
		s.buf = append(s.buf, 'c')
	}
	s.buf = append(s.buf, '\n')

	if len(s.buf) > s.max {
		s.flushLocked(safe)
	}
}

func (s *Sink) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushLocked(len(s.buf))
}

func (s *Sink) flushLocked(n int) {
	if n == 0 {
		return
	}
	s.conn.Write(s.buf[:n-1]) // statsd rejects a trailing newline
	if n < len(s.buf) {
		copy(s.buf, s.buf[n:])
	}
	s.buf = s.buf[:len(s.buf)-n]
}

// Close closes the underlying UDP socket.
func (s *Sink) Close() error {
	return s.conn.Close()
}

func appendNumeric64(buf []byte, v num64.Numeric64) []byte {
	switch v.Kind {
	case num64.Uint64:
		return strconv.AppendUint(buf, v.Uint64(), 10)
	case num64.Int64:
		return strconv.AppendInt(buf, v.Int64(), 10)
	case num64.Float64:
		return strconv.AppendFloat(buf, v.Float64(), 'f', -1, 64)
	default:
		return buf
	}
}
