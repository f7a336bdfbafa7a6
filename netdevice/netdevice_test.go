package netdevice

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wilbur-shi/bufcache/device"
)

func startServer(t *testing.T, dev device.BlockDevice) (addr string, stop func()) {
	t.Helper()

	srv := NewServer(dev)
	err := srv.Listen(ServerOptions{Network: "tcp", Addr: "127.0.0.1:0", IdleTimeout: time.Minute})
	require.NoError(t, err)

	addr = srv.l.Addr().String()

	done := make(chan error, 1)
	go func() { done <- srv.Serve() }()

	return addr, func() {
		srv.Shutdown()
		<-done
	}
}

func TestClientRoundTripsReadWrite(t *testing.T) {
	mem := device.NewMem(512, 4)
	addr, stop := startServer(t, mem)
	defer stop()

	c, err := Dial(ClientOptions{Network: "tcp", Addr: addr})
	require.NoError(t, err)
	defer c.Close()

	require.Equal(t, 512, c.SectorSize())

	payload := make([]byte, 512)
	for i := range payload {
		payload[i] = byte(i)
	}
	require.NoError(t, c.Write(device.SectorID(1), payload))

	got := make([]byte, 512)
	require.NoError(t, c.Read(device.SectorID(1), got))
	require.Equal(t, payload, got)
}

func TestClientReadUnwrittenSectorIsZeroed(t *testing.T) {
	mem := device.NewMem(512, 4)
	addr, stop := startServer(t, mem)
	defer stop()

	c, err := Dial(ClientOptions{Network: "tcp", Addr: addr})
	require.NoError(t, err)
	defer c.Close()

	got := make([]byte, 512)
	for i := range got {
		got[i] = 0xFF
	}
	require.NoError(t, c.Read(device.SectorID(2), got))
	for _, b := range got {
		require.Equal(t, byte(0), b)
	}
}

func TestClientSurfacesServerError(t *testing.T) {
	mem := device.NewMem(512, 4)
	addr, stop := startServer(t, mem)
	defer stop()

	c, err := Dial(ClientOptions{Network: "tcp", Addr: addr})
	require.NoError(t, err)
	defer c.Close()

	got := make([]byte, 512)
	err = c.Read(device.SectorID(99), got)
	require.Error(t, err)
}

func TestClientReusesPooledConnections(t *testing.T) {
	mem := device.NewMem(512, 4)
	addr, stop := startServer(t, mem)
	defer stop()

	c, err := Dial(ClientOptions{Network: "tcp", Addr: addr, MaxConns: 2, IdleConns: 1})
	require.NoError(t, err)
	defer c.Close()

	buf := make([]byte, 512)
	for i := 0; i < 10; i++ {
		require.NoError(t, c.Read(device.SectorID(0), buf))
	}
}
