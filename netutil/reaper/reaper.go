package reaper

import (
	"sync/atomic"
	"time"
)

// reaper walks the singly linked list of connections rooted at first
// once per interval, dropping any connection that either closed
// itself or has gone maxMiss consecutive ticks without a Read/Write.
// It exits once it has run two consecutive ticks with an empty list —
// one tick to notice emptiness isn't enough, since a connection could
// arrive and leave again between ticks.
func reaper(first *conn, incoming <-chan *conn, interval time.Duration, maxMiss int64, exitCounter *uint32) {
	ticker := time.Tick(interval)
	head := first
	var emptyTicks int

	for emptyTicks < 2 {
		select {
		case newConn := <-incoming:
			emptyTicks = 0
			newConn.next = head
			head = newConn
		case <-ticker:
			if head == nil {
				emptyTicks++
			}

			var prev *conn
			for curr := head; curr != nil; curr = curr.next {
				if reapable(curr, maxMiss) && curr.tryClose() {
					if prev == nil {
						head = curr.next
					} else {
						prev.next = curr.next
					}
					continue
				}
				prev = curr
			}
		}
	}
	atomic.AddUint32(exitCounter, ^uint32(0)) // -1
}

// reapable reports whether curr should be dropped this tick: already
// closed, or idle (no activity-count change) for maxMiss consecutive
// ticks with timeout tracking enabled.
func reapable(curr *conn, maxMiss int64) bool {
	active := atomic.LoadUint64(&curr.activeCount)
	if active&1 != 0 {
		return true
	}
	if !curr.ioActivityTimeoutEnabled.isSet() {
		return false
	}
	if active != curr.lastActiveCount {
		curr.lastActiveCount = active
		curr.reaperMiss = 0
		return false
	}
	curr.reaperMiss++
	return curr.reaperMiss >= maxMiss
}

// handoff registers a freshly wrapped connection with a reaper
// goroutine, starting one (up to two concurrently, to absorb a burst
// without blocking Accept/Dial) if none is currently free to take it.
// Shared by listener.Accept and Dialer.Dial/DialContext so both sides
// of a connection get identical reaper bookkeeping.
func handoff(ic *conn, ch chan *conn, interval time.Duration, maxMiss int64, reapers *uint32) {
	for {
		select {
		case ch <- ic:
			return
		default:
			if atomic.LoadUint32(reapers) < 2 {
				atomic.AddUint32(reapers, 1)
				go reaper(ic, ch, interval, maxMiss, reapers)
				return
			}
		}
	}
}
