// Package netdevice exposes a device.BlockDevice over the network, so
// a cache.Cache can sit in front of a sector store on another host
// exactly as it would in front of a local device.File.
package netdevice

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/wilbur-shi/bufcache/device"
	"github.com/wilbur-shi/bufcache/netutil/reaper"
	"github.com/wilbur-shi/bufcache/obslog"
	"github.com/wilbur-shi/bufcache/sd"
)

// DefaultIdleTimeout is how long a connection may sit without I/O
// activity before the idle reaper closes it, both client- and
// server-side.
const DefaultIdleTimeout = 5 * time.Minute

const reaperInterval = 30 * time.Second

// ServerOptions configures a Server.
type ServerOptions struct {
	// Network is "tcp" or "unix".
	Network string
	// Addr is the TCP address or UNIX socket path to listen on.
	Addr string
	// ListenerFdName, if set, lets systemd socket activation hand the
	// listener to this process across a restart (sd.NamedListenTCP /
	// sd.NamedListenUnix).
	ListenerFdName string
	// IdleTimeout bounds how long an accepted connection may sit idle.
	// Defaults to DefaultIdleTimeout.
	IdleTimeout time.Duration
	// Logger receives diagnostics. Defaults to a discard logger.
	Logger *obslog.Logger
}

// Server serves a device.BlockDevice over the wire protocol in
// proto.go, adapted from sd/net.go's socket-activation-aware listener
// construction.
type Server struct {
	dev device.BlockDevice
	log *obslog.Logger

	l net.Listener

	wg       sync.WaitGroup
	mu       sync.Mutex
	doneChan chan struct{}
}

// NewServer creates a Server for dev. Call Listen then Serve.
func NewServer(dev device.BlockDevice) *Server {
	return &Server{dev: dev, log: obslog.Discard()}
}

// Listen resolves opts.Addr into a listener, preferring a systemd
// socket-activation inherited descriptor matching ListenerFdName.
func (s *Server) Listen(opts ServerOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if opts.Logger != nil {
		s.log = opts.Logger
	}

	var l net.Listener
	var err error
	switch {
	case opts.ListenerFdName != "" && opts.Network == "unix":
		var uaddr *net.UnixAddr
		uaddr, err = net.ResolveUnixAddr(opts.Network, opts.Addr)
		if err == nil {
			l, err = sd.NamedListenUnix(opts.ListenerFdName, opts.Network, uaddr)
		}
	case opts.ListenerFdName != "" && (opts.Network == "tcp" || opts.Network == "tcp4" || opts.Network == "tcp6"):
		var taddr *net.TCPAddr
		taddr, err = net.ResolveTCPAddr(opts.Network, opts.Addr)
		if err == nil {
			l, err = sd.NamedListenTCP(opts.ListenerFdName, opts.Network, taddr)
		}
	default:
		l, err = sd.Listen(opts.Network, opts.Addr)
	}
	if err != nil {
		return err
	}

	idle := opts.IdleTimeout
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	s.l = reaper.NewIOActivityTimeoutListener(l, idle, reaperInterval)
	s.doneChan = make(chan struct{})
	return nil
}

// Serve accepts and services connections until Shutdown is called.
// It notifies systemd readiness once the listener is live.
func (s *Server) Serve() error {
	s.mu.Lock()
	l := s.l
	done := s.doneChan
	s.mu.Unlock()

	if l == nil {
		return errors.New("netdevice: Listen must be called before Serve")
	}

	if err := sd.NotifyStatus(sd.StatusReady, "netdevice server listening"); err != nil && !errors.Is(err, sd.ErrSdNotifyNoSocket) {
		s.log.Warn("sd notify failed", "err", err)
	}

	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-done:
				return nil
			default:
				return err
			}
		}
		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

// Shutdown stops accepting new connections and waits for every open
// connection to end; it does not close them, so each one ends when its
// client disconnects or the idle reaper closes it. Always returns nil;
// the signature matches signalrun.Runnable.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	select {
	case <-s.doneChan:
	default:
		close(s.doneChan)
	}
	l := s.l
	s.mu.Unlock()

	if l != nil {
		l.Close()
	}
	s.wg.Wait()
	return nil
}

func (s *Server) serveConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	// The reaper listener hands out connections with idle tracking off.
	reaper.IOActivityTimeout(conn, true)

	for {
		req, err := readRequest(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Debug("netdevice: connection read error", "err", err)
			}
			return
		}

		resp := s.handle(req)
		if err := writeResponse(conn, resp); err != nil {
			s.log.Debug("netdevice: connection write error", "err", err)
			return
		}
	}
}

func (s *Server) handle(req request) response {
	switch req.op {
	case opSectorSize:
		n := s.dev.SectorSize()
		return response{status: statusOK, payload: []byte{
			byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n),
		}}

	case opRead:
		buf := make([]byte, s.dev.SectorSize())
		if err := s.dev.Read(req.sector, buf); err != nil {
			return response{status: statusErr, errMsg: err.Error()}
		}
		return response{status: statusOK, payload: buf}

	case opWrite:
		if err := s.dev.Write(req.sector, req.payload); err != nil {
			return response{status: statusErr, errMsg: err.Error()}
		}
		return response{status: statusOK}

	default:
		return response{status: statusErr, errMsg: "netdevice: unknown opcode"}
	}
}
