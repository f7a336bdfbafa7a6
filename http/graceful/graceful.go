// Package graceful extends net/http.Server with a Shutdown that stops
// accepting new connections, disables keep-alives, and waits for
// outstanding requests to finish — optionally up to a deadline, after
// which it forcibly closes whatever is left.
package graceful

import (
	"errors"
	"net"
	"net/http"
	"sync"
	"time"
)

// Server wraps an *http.Server with graceful shutdown. Unlike
// http.Server.Shutdown (added in Go 1.8, after this package was
// written), it tracks keep-alive connections itself so Timeout can
// bound exactly how long they're allowed to linger before this
// package kills them outright.
type Server struct {
	*http.Server

	// Timeout bounds how long outstanding connections get to finish
	// on their own after shutdown begins before they're forcibly
	// closed. Zero waits forever.
	Timeout time.Duration

	// ConnState, if set, is called on every connection state change —
	// a proxy to http.Server.ConnState, which this package overrides
	// to do its own bookkeeping and must not be set directly.
	ConnState func(net.Conn, http.ConnState)

	// SyncShutdown makes Serve block until every connection has
	// actually finished (or been killed) instead of returning as soon
	// as the listener has stopped. Shutdown itself is unaffected; call
	// Wait after it to block until the connections are gone.
	SyncShutdown bool

	// shutdown carries a single value: true means the server stopped
	// on its own (Serve returned) without Shutdown ever being called.
	shutdown chan bool
	// done closes once the shutdown procedure (including any forced
	// kill) has finished and the Server is ready to Serve again.
	done chan struct{}

	runlock  sync.Mutex // guards quitting/running/killed against concurrent Serve/Shutdown/Wait
	quitting bool
	running  bool
	killed   int
}

// NotReadyError is returned by Serve when the Server is already
// running or mid-shutdown.
type NotReadyError struct {
	Err error
	// Quitting is true if the rejection was because shutdown is
	// already in progress, as opposed to a second concurrent Serve.
	Quitting bool
}

func (e *NotReadyError) Error() string {
	return e.Err.Error()
}

// ConnectionsKilled reports how many connections the last shutdown had
// to forcibly close once Timeout expired.
func (srv *Server) ConnectionsKilled() int {
	srv.runlock.Lock()
	defer srv.runlock.Unlock()
	return srv.killed
}

// Serve is http.Server.Serve with graceful shutdown wired in. It
// blocks until the listener is closed by a Shutdown call (or the
// underlying Serve call exits on its own) and, if SyncShutdown is
// set, until every connection has drained or been killed.
func (srv *Server) Serve(listener net.Listener) error {
	srv.runlock.Lock()
	switch {
	case srv.quitting:
		srv.runlock.Unlock()
		return &NotReadyError{Err: errors.New("graceful: shutdown in progress"), Quitting: true}
	case srv.running:
		srv.runlock.Unlock()
		return &NotReadyError{Err: errors.New("graceful: already running")}
	}

	srv.running = true
	srv.quitting = false
	srv.shutdown = make(chan bool)
	srv.done = make(chan struct{})
	srv.killed = 0
	srv.runlock.Unlock()

	add := make(chan net.Conn)
	remove := make(chan net.Conn)

	srv.Server.ConnState = func(conn net.Conn, state http.ConnState) {
		switch state {
		case http.StateNew:
			add <- conn
		case http.StateClosed, http.StateHijacked:
			remove <- conn
		}
		if srv.ConnState != nil {
			srv.ConnState(conn, state)
		}
	}

	// stop hands the connection manager a reply channel when it's time
	// to report whether the connection set has drained; kill tells it
	// to forcibly close whatever is left instead of waiting further.
	stop := make(chan chan int)
	kill := make(chan struct{})
	// exited closes once this goroutine has observed Serve return, so
	// handleShutdown knows the listener is truly done generating
	// connection-state events before it asks the manager for a count.
	exited := make(chan struct{})

	go srv.manageConnections(add, remove, stop, kill)
	go srv.handleShutdown(listener, stop, kill, exited)

	err := srv.Server.Serve(listener)
	if opErr, ok := err.(*net.OpError); ok && opErr.Op == "accept" {
		// Closing the listener to stop Serve surfaces as an accept
		// error; that's the expected shutdown path, not a failure.
		err = nil
	}

	srv.runlock.Lock()
	srv.quitting = true
	srv.runlock.Unlock()

	// A true here means Serve exited on its own, without a matching
	// Shutdown call having requested it.
	if unrequested := <-srv.shutdown; unrequested && srv.ErrorLog != nil {
		srv.ErrorLog.Printf("graceful: server exited without a Shutdown call: %s", err)
	}
	close(exited)

	if srv.SyncShutdown {
		<-srv.done
	}
	return err
}

// ShutdownOK requests shutdown like Shutdown, reporting whether this
// particular call was the one that triggered it (as opposed to
// joining a shutdown already in progress, or finding nothing running).
func (srv *Server) ShutdownOK() bool {
	srv.runlock.Lock()
	defer srv.runlock.Unlock()
	if !srv.running {
		return false
	}
	return <-srv.shutdown
}

// Shutdown asks the server to stop accepting new connections and
// begin its shutdown procedure. Only the first call against a running
// Server has effect; later calls return once that procedure has
// signaled shutdown has begun. Call Wait (or set SyncShutdown) to
// block until it has finished.
func (srv *Server) Shutdown() {
	srv.runlock.Lock()
	defer srv.runlock.Unlock()
	if !srv.running {
		return
	}
	<-srv.shutdown
}

// Wait blocks until a running Server's shutdown procedure — including
// any forced kill of lingering connections — has completed.
func (srv *Server) Wait() {
	srv.runlock.Lock()
	done, running := srv.done, srv.running
	srv.runlock.Unlock()

	if running {
		<-done
	}
}

// handleShutdown drives the shutdown side of Serve: it unblocks
// whichever of Shutdown/ShutdownOK/Serve's own exit first reads from
// srv.shutdown, closes the listener, then asks manageConnections to
// report once every connection has drained — forcing a kill if that
// takes longer than Timeout.
func (srv *Server) handleShutdown(listener net.Listener, stop chan chan int, kill, exited chan struct{}) {
	// The first reader — Serve itself, or a Shutdown/ShutdownOK call —
	// gets true if triggered from here, then the channel closes and
	// every later reader gets false with no further signal needed.
	srv.shutdown <- true
	close(srv.shutdown)

	srv.SetKeepAlivesEnabled(false)
	if err := listener.Close(); err != nil && srv.ErrorLog != nil {
		srv.ErrorLog.Printf("graceful: error closing listener: %s", err)
	}

	<-exited // Serve's Server.Serve call has returned; no more add events will arrive

	done := make(chan int)
	stop <- done

	var killed int
	if srv.Timeout > 0 {
		select {
		case killed = <-done:
		case <-time.After(srv.Timeout):
			kill <- struct{}{}
			killed = <-done
		}
	} else {
		killed = <-done
	}

	srv.runlock.Lock()
	srv.killed = killed
	srv.quitting = false
	srv.running = false
	close(srv.done)
	srv.runlock.Unlock()
}

// manageConnections tracks every live connection by watching add/remove
// events from Server.ConnState. Once stop delivers a reply channel, it
// replies as soon as the tracked set is empty — which, with the
// listener already closed, happens as existing connections finish on
// their own — or immediately kills everything still open once kill
// fires.
func (srv *Server) manageConnections(add, remove chan net.Conn, stop chan chan int, kill chan struct{}) {
	connections := make(map[net.Conn]struct{}, 10)
	var done chan int
	var killed int

	for {
		select {
		case conn := <-add:
			connections[conn] = struct{}{}
		case conn := <-remove:
			delete(connections, conn)
			if done != nil && len(connections) == 0 {
				done <- killed
				return
			}
		case done = <-stop:
			if len(connections) == 0 {
				done <- killed
				return
			}
		case <-kill:
			for conn := range connections {
				conn.Close()
				killed++
			}
			// Leave them to remove themselves via the remove channel;
			// closing here and returning now would race their own
			// ConnState(StateClosed) delivery into the add/remove select.
		}
	}
}
