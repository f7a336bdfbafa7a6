// This file contains slightly modified code from the Gorilla project.
//
// Copyright 2013 The Gorilla Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// Source:
// https://github.com/gorilla/handlers/blob/master/handlers.go

package rrwriter

import (
	"bufio"
	"net"
	"net/http"
	"time"
)

// MakeRecorder wraps w in a RecordingResponseWriter that tracks the
// status code and byte count written through it, preserving w's
// http.Hijacker and http.CloseNotifier capabilities if it has them —
// an access log handler needs the recording without silently
// downgrading a hijacked (e.g. WebSocket) connection's writer.
func MakeRecorder(w http.ResponseWriter) RecordingResponseWriter {
	var logger RecordingResponseWriter = &responseRecorder{w: w}
	if _, ok := w.(http.Hijacker); ok {
		logger = &hijackResponseRecorder{responseRecorder{w: w}}
	}

	hijacker, isHijacker := logger.(http.Hijacker)
	notifier, isNotifier := w.(http.CloseNotifier)
	switch {
	case isHijacker && isNotifier:
		return hijackCloseNotifier{logger, hijacker, notifier}
	case isNotifier:
		return &closeNotifyWriter{logger, notifier}
	default:
		return logger
	}
}

// RecordingResponseWriter is the interface of the recorder.
type RecordingResponseWriter interface {
	http.ResponseWriter
	http.Flusher
	Status() int
	Size() int
	GetTimeStamp() time.Time
	SetTimeStamp(time.Time)
}

// responseRecorder is wrapper of http.ResponseWriter that keeps track of its HTTP
// status code and body size
type responseRecorder struct {
	w      http.ResponseWriter
	status int
	size   int
	ts     time.Time
}

// Header implements http.ResponseWriter
func (l *responseRecorder) Header() http.Header {
	return l.w.Header()
}

// Write implements http.ResponseWriter
func (l *responseRecorder) Write(b []byte) (int, error) {
	if l.status == 0 {
		// The status will be StatusOK if WriteHeader has not been called yet
		l.status = http.StatusOK
	}
	size, err := l.w.Write(b)
	l.size += size
	return size, err
}

// WriteHeader implements http.ResponseWriter
func (l *responseRecorder) WriteHeader(s int) {
	l.w.WriteHeader(s)
	l.status = s
}

// GetTimeStamp and SetTimeStamp let a handler stash a request's start
// time on the recorder itself rather than thread it through a
// separate context value. Not goroutine-safe — set once before the
// handler runs, read once after.
func (l *responseRecorder) GetTimeStamp() time.Time {
	return l.ts
}

func (l *responseRecorder) SetTimeStamp(t time.Time) {
	l.ts = t
}

// Status returns the http status of the written request.
func (l *responseRecorder) Status() int {
	return l.status
}

// Size returns the written response size.
func (l *responseRecorder) Size() int {
	return l.size
}

func (l *responseRecorder) Flush() {
	f, ok := l.w.(http.Flusher)
	if ok {
		f.Flush()
	}
}

type hijackResponseRecorder struct {
	responseRecorder
}

func (l *hijackResponseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h := l.responseRecorder.w.(http.Hijacker)
	conn, rw, err := h.Hijack()
	if err == nil && l.responseRecorder.status == 0 {
		// The status will be StatusSwitchingProtocols if there was no error and
		// WriteHeader has not been called yet
		l.responseRecorder.status = http.StatusSwitchingProtocols
	}
	return conn, rw, err
}

type closeNotifyWriter struct {
	RecordingResponseWriter
	http.CloseNotifier
}

type hijackCloseNotifier struct {
	RecordingResponseWriter
	http.Hijacker
	http.CloseNotifier
}

