// Package obslog is a small structured, leveled logger in the style of
// github.com/One-com/gone/log: syslog-priority levels, key/value pairs
// alongside a message, and *ok() accessors that let a hot call site
// skip formatting work entirely when a level is disabled.
package obslog

import (
	"os"
	"sync/atomic"
	"time"

	"github.com/wilbur-shi/bufcache/obslog/syslog"
)

// LogFunc logs at the level it was obtained for.
type LogFunc func(msg string, kv ...interface{})

// Logger is a leveled, named logger writing Events to a Handler.
//
// The zero Logger is not usable; use New or Default.
type Logger struct {
	name string
	h    Handler
	lvl  atomic.Int32 // syslog.Priority
}

// New creates a Logger named name, writing to h, logging at or below lvl.
func New(name string, h Handler, lvl syslog.Priority) *Logger {
	l := &Logger{name: name, h: h}
	l.lvl.Store(int32(lvl))
	return l
}

// Default returns a Logger writing text lines to os.Stderr at LOG_INFO.
func Default(name string) *Logger {
	return New(name, NewTextHandler(os.Stderr), syslog.LOG_INFO)
}

// Discard returns a Logger which drops every event; useful as a
// zero-cost default for callers that never configured a Logger.
func Discard() *Logger {
	return New("", HandlerFunc(func(Event) error { return nil }), syslog.LOG_EMERG)
}

// SetLevel changes the level threshold. Safe for concurrent use.
func (l *Logger) SetLevel(lvl syslog.Priority) {
	l.lvl.Store(int32(lvl))
}

// Level returns the current level threshold.
func (l *Logger) Level() syslog.Priority {
	return syslog.Priority(l.lvl.Load())
}

// Does reports whether an event at lvl would be logged.
func (l *Logger) Does(lvl syslog.Priority) bool {
	return lvl <= l.Level()
}

// With returns a Logger sharing the handler, starting at a copy of the
// current level, and logging under a different name (e.g. a subsystem
// tag). A later SetLevel on either Logger does not change the other.
func (l *Logger) With(name string) *Logger {
	child := &Logger{name: name, h: l.h}
	child.lvl.Store(l.lvl.Load())
	return child
}

func (l *Logger) log(lvl syslog.Priority, msg string, kv []interface{}) {
	_ = l.h.Log(Event{
		Time: time.Now(),
		Lvl:  lvl,
		Name: l.name,
		Msg:  msg,
		KV:   kv,
	})
}

// Log logs at an arbitrary level if the Logger's threshold allows it.
func (l *Logger) Log(lvl syslog.Priority, msg string, kv ...interface{}) {
	if l.Does(lvl) {
		l.log(lvl, msg, kv)
	}
}

func (l *Logger) Debug(msg string, kv ...interface{}) {
	if l.Does(syslog.LOG_DEBUG) {
		l.log(syslog.LOG_DEBUG, msg, kv)
	}
}

func (l *Logger) Info(msg string, kv ...interface{}) {
	if l.Does(syslog.LOG_INFO) {
		l.log(syslog.LOG_INFO, msg, kv)
	}
}

func (l *Logger) Notice(msg string, kv ...interface{}) {
	if l.Does(syslog.LOG_NOTICE) {
		l.log(syslog.LOG_NOTICE, msg, kv)
	}
}

func (l *Logger) Warn(msg string, kv ...interface{}) {
	if l.Does(syslog.LOG_WARNING) {
		l.log(syslog.LOG_WARNING, msg, kv)
	}
}

func (l *Logger) Error(msg string, kv ...interface{}) {
	if l.Does(syslog.LOG_ERR) {
		l.log(syslog.LOG_ERR, msg, kv)
	}
}

// DEBUGok returns whether the Logger logs at LOG_DEBUG, and the
// function to call if so — lets a caller skip building kv args on a
// hot path when debug logging is off.
func (l *Logger) DEBUGok() (LogFunc, bool) { return l.Debug, l.Does(syslog.LOG_DEBUG) }

// INFOok is DEBUGok's counterpart for LOG_INFO.
func (l *Logger) INFOok() (LogFunc, bool) { return l.Info, l.Does(syslog.LOG_INFO) }

// WARNok is DEBUGok's counterpart for LOG_WARNING.
func (l *Logger) WARNok() (LogFunc, bool) { return l.Warn, l.Does(syslog.LOG_WARNING) }

// ERRORok is DEBUGok's counterpart for LOG_ERR.
func (l *Logger) ERRORok() (LogFunc, bool) { return l.Error, l.Does(syslog.LOG_ERR) }
