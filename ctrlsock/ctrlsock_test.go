package ctrlsock

import (
	"bufio"
	"net"
	"path/filepath"
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

	sockPath := filepath.Join(t.TempDir(), "ctrl.sock")
	srv := &Server{Addr: sockPath, Cache: c, Stats: stats}
	require.NoError(t, srv.Listen())

	done := make(chan error, 1)
	go func() { done <- srv.Serve() }()
	t.Cleanup(func() {
		srv.Shutdown()
		<-done
	})

	return srv, sockPath
}

func sendCommand(t *testing.T, addr, cmd string) string {
	t.Helper()
	conn, err := net.Dial("unix", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte(cmd + "\n"))
	require.NoError(t, err)

	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	return line
}

func TestPingRespondsPong(t *testing.T) {
	_, addr := startServer(t)
	require.Equal(t, "pong\n", sendCommand(t, addr, "ping"))
}

func TestStatsReportsCounters(t *testing.T) {
	_, addr := startServer(t)
	line := sendCommand(t, addr, "stats")
	require.Contains(t, line, "hits=")
	require.Contains(t, line, "queue_depth=")
}

func TestFlushReturnsOK(t *testing.T) {
	_, addr := startServer(t)
	require.Equal(t, "OK\n", sendCommand(t, addr, "flush"))
}

func TestUnknownCommandReportsError(t *testing.T) {
	_, addr := startServer(t)
	line := sendCommand(t, addr, "bogus")
	require.Contains(t, line, "ERR")
}
