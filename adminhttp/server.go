// Package adminhttp serves the cache daemon's observability endpoints
// over HTTP: GET /stats, GET /healthz and POST /flush. Grounded in
// http/graceful's Server (keepalive-aware, bounded graceful shutdown)
// and http/handlers/accesslog's structured request logging, bridged
// here onto obslog instead of a plain io.Writer.
package adminhttp

import (
	"encoding/json"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/wilbur-shi/bufcache/cache"
	"github.com/wilbur-shi/bufcache/http/graceful"
	"github.com/wilbur-shi/bufcache/obslog"
	"github.com/wilbur-shi/bufcache/statcache"
)

// Options configures a Server.
type Options struct {
	Addr  string
	Cache *cache.Cache
	Stats *statcache.Client

	// Logger receives per-request access log lines and lifecycle
	// diagnostics. Defaults to a discard logger.
	Logger *obslog.Logger

	// ShutdownTimeout bounds how long Shutdown waits for in-flight
	// requests before giving up on them. Defaults to 10s.
	ShutdownTimeout time.Duration
}

// Server wraps an http/graceful.Server with the admin handlers.
// graceful.Server's Timeout bounds how long Shutdown waits for
// in-flight requests before it starts killing keep-alive connections.
type Server struct {
	inner *graceful.Server
	log   *obslog.Logger
	ready atomic.Bool
	ln    net.Listener
}

// New builds a Server; call Listen then Serve.
func New(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = obslog.Discard()
	}
	timeout := opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	s := &Server{log: log}
	s.ready.Store(true)

	mux := http.NewServeMux()
	mux.HandleFunc("/stats", s.handleStats(opts.Stats))
	mux.HandleFunc("/healthz", s.handleHealthz())
	mux.HandleFunc("/flush", s.handleFlush(opts.Cache))

	s.inner = &graceful.Server{
		Server: &http.Server{
			Addr:    opts.Addr,
			Handler: newAccessLogHandler(mux, log),
		},
		Timeout:      timeout,
		SyncShutdown: true,
	}
	return s
}

// Listen binds the configured address.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.inner.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	return nil
}

// Serve blocks accepting connections until Shutdown is called.
func (s *Server) Serve() error {
	err := s.inner.Serve(s.ln)
	if _, ok := err.(*graceful.NotReadyError); ok {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server, waiting up to ShutdownTimeout
// for in-flight requests before forcefully closing them. Always
// returns nil; the signature matches signalrun.Runnable.
func (s *Server) Shutdown() error {
	s.inner.Shutdown()
	s.inner.Wait()
	return nil
}

func (s *Server) handleStats(stats *statcache.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if stats == nil {
			http.Error(w, "stats not configured", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(stats.Snapshot())
	}
}

func (s *Server) handleHealthz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}
}

func (s *Server) handleFlush(c *cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		if err := c.Flush(); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("flushed\n"))
	}
}
