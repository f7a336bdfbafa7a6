package signalrun

import (
	"errors"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wilbur-shi/bufcache/obslog"
)

type fakeRunnable struct {
	shutdownCalls int32
	shutdownErr   error
	delay         time.Duration
}

func (f *fakeRunnable) Shutdown() error {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	atomic.AddInt32(&f.shutdownCalls, 1)
	return f.shutdownErr
}

func TestRunShutsDownOnSIGTERM(t *testing.T) {
	r := &fakeRunnable{}
	cfgCalls := 0
	cfg := func() ([]Runnable, error) {
		cfgCalls++
		return []Runnable{r}, nil
	}

	done := make(chan error, 1)
	go func() { done <- Run(cfg, Options{}) }()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGTERM))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after SIGTERM")
	}
	require.Equal(t, int32(1), atomic.LoadInt32(&r.shutdownCalls))
	require.Equal(t, 1, cfgCalls)
}

func TestRunReloadsOnSIGHUPWithoutShuttingDown(t *testing.T) {
	r := &fakeRunnable{}
	cfgCalls := 0
	reloaded := make(chan struct{}, 1)
	cfg := func() ([]Runnable, error) {
		cfgCalls++
		return []Runnable{r}, nil
	}

	done := make(chan error, 1)
	go func() {
		done <- Run(cfg, Options{OnReload: func() { reloaded <- struct{}{} }})
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGHUP))

	select {
	case <-reloaded:
	case <-time.After(2 * time.Second):
		t.Fatal("reload hook never fired")
	}
	require.Equal(t, 0, int(atomic.LoadInt32(&r.shutdownCalls)))
	require.Equal(t, 2, cfgCalls)

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGTERM))
	<-done
}

func TestShutdownAllReturnsFirstError(t *testing.T) {
	boom := errors.New("boom")
	a := &fakeRunnable{shutdownErr: boom}
	b := &fakeRunnable{}

	err := shutdownAll([]Runnable{a, b}, 0, obslog.Discard())
	require.ErrorIs(t, err, boom)
	require.Equal(t, int32(1), atomic.LoadInt32(&a.shutdownCalls))
	require.Equal(t, int32(1), atomic.LoadInt32(&b.shutdownCalls))
}

func TestShutdownAllTimesOut(t *testing.T) {
	slow := &fakeRunnable{delay: 200 * time.Millisecond}

	start := time.Now()
	err := shutdownAll([]Runnable{slow}, 20*time.Millisecond, obslog.Discard())
	require.NoError(t, err)
	require.Less(t, time.Since(start), 150*time.Millisecond)
}
