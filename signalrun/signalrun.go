// Package signalrun drives a cache daemon's process lifecycle: start
// on a Config, install OS signal handlers for reload and graceful
// shutdown, and run until told to stop. Adapted from signals (signal
// dispatch) and a trimmed daemon.Run (the reload/shutdown event loop)
// — this repository only ever runs one ensemble of servers, never
// daemon's generation-replacement machinery for swapping whole server
// sets across a reload.
package signalrun

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/wilbur-shi/bufcache/obslog"
)

// Runnable is anything signalrun starts once and shuts down once.
// cache.Cache, netdevice.Server, adminhttp.Server and ctrlsock.Server
// all satisfy it.
type Runnable interface {
	Shutdown() error
}

// ConfigFunc instantiates the set of Runnables to manage. Run calls it
// once at startup and again on every SIGHUP, mirroring daemon's
// ConfigFunc contract: return the same long-lived Runnables you keep
// using elsewhere (signalrun never restarts a Runnable still running
// from a previous generation — only the caller decides what reload
// means for its own state, e.g. re-pointing a logger at a new level).
type ConfigFunc func() ([]Runnable, error)

// Options configures Run.
type Options struct {
	// Logger receives lifecycle diagnostics. Defaults to a discard
	// logger.
	Logger *obslog.Logger

	// ShutdownTimeout bounds how long graceful shutdown waits for
	// Runnables to finish before Run returns anyway. Zero means wait
	// forever.
	ShutdownTimeout time.Duration

	// OnReload is called after ConfigFunc succeeds on a SIGHUP-driven
	// reload, with the new Runnables already swapped in. It receives
	// no arguments: reload never instantiates a new cache, and the
	// hook is where the caller applies whatever reload means for its
	// own state without touching the cache itself.
	OnReload func()
}

// Run calls cfg once to obtain the initial Runnables, installs signal
// handlers (SIGHUP reloads, SIGTERM/SIGINT shut down gracefully), and
// blocks until a termination signal arrives and shutdown completes.
func Run(cfg ConfigFunc, opts Options) error {
	log := opts.Logger
	if log == nil {
		log = obslog.Discard()
	}

	var mu sync.Mutex
	runnables, err := cfg()
	if err != nil {
		return err
	}

	sigch := make(chan os.Signal, 4)
	signal.Notify(sigch, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigch)

	for sig := range sigch {
		switch sig {
		case syscall.SIGHUP:
			log.Notice("reload requested")
			newRunnables, err := cfg()
			if err != nil {
				log.Error("reload failed, keeping previous configuration", "err", err)
				continue
			}
			mu.Lock()
			runnables = newRunnables
			mu.Unlock()
			if opts.OnReload != nil {
				opts.OnReload()
			}
			log.Notice("reload complete")

		case syscall.SIGTERM, syscall.SIGINT:
			log.Notice("shutdown requested", "signal", sig.String())
			mu.Lock()
			current := runnables
			mu.Unlock()
			return shutdownAll(current, opts.ShutdownTimeout, log)
		}
	}
	return nil
}

func shutdownAll(runnables []Runnable, timeout time.Duration, log *obslog.Logger) error {
	done := make(chan error, len(runnables))
	for _, r := range runnables {
		r := r
		go func() { done <- r.Shutdown() }()
	}

	var timer *time.Timer
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer = time.NewTimer(timeout)
		timeoutCh = timer.C
		defer timer.Stop()
	}

	var firstErr error
	for i := 0; i < len(runnables); i++ {
		select {
		case err := <-done:
			if err != nil && firstErr == nil {
				firstErr = err
			}
		case <-timeoutCh:
			log.Warn("shutdown timed out, not all runnables finished")
			return firstErr
		}
	}
	log.Notice("shutdown complete")
	return firstErr
}
