package obslog

import (
	"time"

	"github.com/wilbur-shi/bufcache/obslog/syslog"
)

// Event is a single log record handed to a Handler.
//
// Logger.log builds each Event; KV is the logging call's variadic
// argument slice, passed through without a copy, so a Handler must not
// retain it past the call to Log.
type Event struct {
	Time time.Time
	Lvl  syslog.Priority
	Name string
	Msg  string
	KV   []interface{}
}

// Handler receives Events already checked against their Logger's level.
type Handler interface {
	Log(e Event) error
}

type handlerFunc func(e Event) error

func (h handlerFunc) Log(e Event) error { return h(e) }

// HandlerFunc adapts a plain function to a Handler.
func HandlerFunc(fn func(e Event) error) Handler {
	return handlerFunc(fn)
}

// MultiHandler fans an Event out to every handler in hs, returning the
// last non-nil error encountered.
func MultiHandler(hs ...Handler) Handler {
	return HandlerFunc(func(e Event) error {
		var last error
		for _, h := range hs {
			if err := h.Log(e); err != nil {
				last = err
			}
		}
		return last
	})
}
