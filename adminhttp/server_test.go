package adminhttp

import (
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wilbur-shi/bufcache/cache"
	"github.com/wilbur-shi/bufcache/device"
	"github.com/wilbur-shi/bufcache/statcache"
)

func startServer(t *testing.T) (*Server, string) {
	t.Helper()

	c, err := cache.Open(cache.Options{Device: device.NewMem(512, 4), Capacity: 4})
	require.NoError(t, err)
	t.Cleanup(func() { c.Shutdown() })

	stats := statcache.New(statcache.Options{FlushInterval: -1})
	t.Cleanup(stats.Close)

	srv := New(Options{Addr: "127.0.0.1:0", Cache: c, Stats: stats})
	require.NoError(t, srv.Listen())
	addr := srv.ln.Addr().String()

	done := make(chan error, 1)
	go func() { done <- srv.Serve() }()
	t.Cleanup(func() {
		srv.Shutdown()
		<-done
	})

	return srv, "http://" + addr
}

func TestHealthzReturnsOK(t *testing.T) {
	_, base := startServer(t)

	resp, err := http.Get(base + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatsReturnsJSON(t *testing.T) {
	_, base := startServer(t)

	resp, err := http.Get(base + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "Hits")
}

func TestFlushRejectsGet(t *testing.T) {
	_, base := startServer(t)

	resp, err := http.Get(base + "/flush")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestFlushAcceptsPost(t *testing.T) {
	_, base := startServer(t)

	resp, err := http.Post(base+"/flush", "text/plain", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
