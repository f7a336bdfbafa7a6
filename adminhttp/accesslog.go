package adminhttp

import (
	"net/http"
	"time"

	"github.com/wilbur-shi/bufcache/http/rrwriter"
	"github.com/wilbur-shi/bufcache/obslog"
)

// newAccessLogHandler wraps h, logging one obslog line per request at
// Debug level. Uses rrwriter.MakeRecorder the way
// accesslog.NewDynamicLogHandler does to capture the final status and
// body size, but reports through obslog's structured key/value pairs
// rather than a toggleable set of io.Writers — this daemon has exactly
// one log sink.
func newAccessLogHandler(h http.Handler, log *obslog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		debug, ok := log.DEBUGok()
		if !ok {
			h.ServeHTTP(w, r)
			return
		}

		rec := rrwriter.MakeRecorder(w)
		start := time.Now()
		rec.SetTimeStamp(start)
		h.ServeHTTP(rec, r)
		debug("admin http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.Status(),
			"size", rec.Size(),
			"duration", time.Since(start),
			"remote", r.RemoteAddr,
		)
	})
}
