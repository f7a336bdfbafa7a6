package cache

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wilbur-shi/bufcache/device"
)

func open(t *testing.T, capacity int) (*Cache, *device.Mem) {
	t.Helper()
	dev := device.NewMem(512, 256)
	c, err := Open(Options{Device: dev, Capacity: capacity})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Shutdown() })
	return c, dev
}

func TestOpenRejectsNilDevice(t *testing.T) {
	_, err := Open(Options{})
	assert.Error(t, err)
}

func TestReadFreshSectorIsZeroed(t *testing.T) {
	c, _ := open(t, 4)
	buf := make([]byte, c.SectorSize())
	require.NoError(t, c.Read(device.SectorID(3), buf))
	assert.Equal(t, make([]byte, c.SectorSize()), buf)
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	c, dev := open(t, 4)

	want := bytes.Repeat([]byte{0x5A}, c.SectorSize())
	require.NoError(t, c.Write(device.SectorID(1), want))

	// Not flushed to device yet: the cache coalesces the write.
	assert.Nil(t, dev.Snapshot(device.SectorID(1)))

	got := make([]byte, c.SectorSize())
	require.NoError(t, c.Read(device.SectorID(1), got))
	assert.Equal(t, want, got)

	// The write's miss loaded the sector once; the read that followed
	// found it resident and took no further device read.
	assert.Equal(t, 1, dev.ReadCount(device.SectorID(1)))
}

func TestSecondReadOfSameSectorIsCacheHit(t *testing.T) {
	c, dev := open(t, 4)
	buf := make([]byte, c.SectorSize())

	require.NoError(t, c.Read(device.SectorID(2), buf))
	require.NoError(t, c.Read(device.SectorID(2), buf))

	assert.Equal(t, 1, dev.ReadCount(device.SectorID(2)))
}

func TestPartialReadWriteBoundaries(t *testing.T) {
	c, _ := open(t, 4)
	buf := make([]byte, c.SectorSize())

	assert.ErrorIs(t, c.ReadAt(device.SectorID(0), buf, 0, 0), ErrInvalidRange)
	assert.ErrorIs(t, c.ReadAt(device.SectorID(0), buf, 1, c.SectorSize()), ErrInvalidRange)
	assert.NoError(t, c.ReadAt(device.SectorID(0), buf[:c.SectorSize()], 0, c.SectorSize()))
}

func TestPartialWriteDirtiesWholeSlotNotJustRange(t *testing.T) {
	c, dev := open(t, 1)

	full := bytes.Repeat([]byte{0x11}, c.SectorSize())
	require.NoError(t, c.Write(device.SectorID(9), full))

	patch := []byte{0xFF, 0xFF}
	require.NoError(t, c.WriteAt(device.SectorID(9), patch, 0, len(patch)))

	require.NoError(t, c.Shutdown())
	got := dev.Snapshot(device.SectorID(9))
	require.NotNil(t, got)
	assert.Equal(t, byte(0xFF), got[0])
	assert.Equal(t, byte(0x11), got[2])
}

func TestEvictionFlushesDirtyVictim(t *testing.T) {
	c, dev := open(t, 2)

	a := bytes.Repeat([]byte{0xAA}, c.SectorSize())
	b := bytes.Repeat([]byte{0xBB}, c.SectorSize())
	require.NoError(t, c.Write(device.SectorID(1), a))
	require.NoError(t, c.Write(device.SectorID(2), b))

	// A third distinct sector forces eviction of one of the two
	// resident (and dirty) slots.
	readBuf := make([]byte, c.SectorSize())
	require.NoError(t, c.Read(device.SectorID(3), readBuf))

	require.Eventually(t, func() bool {
		return dev.Snapshot(device.SectorID(1)) != nil || dev.Snapshot(device.SectorID(2)) != nil
	}, time.Second, time.Millisecond, "neither dirty sector was flushed by eviction")
}

func TestConcurrentReadersOnSameSector(t *testing.T) {
	c, _ := open(t, 4)
	want := bytes.Repeat([]byte{0x42}, c.SectorSize())
	require.NoError(t, c.Write(device.SectorID(5), want))

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			buf := make([]byte, c.SectorSize())
			if err := c.Read(device.SectorID(5), buf); err != nil {
				errs <- err
				return
			}
			if !bytes.Equal(buf, want) {
				errs <- errors.New("torn or stale read")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestConcurrentReaderAndWriterNoTornRead(t *testing.T) {
	c, _ := open(t, 4)
	sector := device.SectorID(6)
	initial := bytes.Repeat([]byte{0x00}, c.SectorSize())
	require.NoError(t, c.Write(sector, initial))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	errs := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		toggle := byte(0)
		for {
			select {
			case <-stop:
				return
			default:
			}
			buf := bytes.Repeat([]byte{toggle}, c.SectorSize())
			toggle ^= 0xFF
			if err := c.Write(sector, buf); err != nil {
				errs <- err
				return
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(stop)
		for i := 0; i < 200; i++ {
			buf := make([]byte, c.SectorSize())
			if err := c.Read(sector, buf); err != nil {
				errs <- err
				return
			}
			first := buf[0]
			for _, b := range buf {
				if b != first {
					errs <- errors.New("torn read: mixed bytes within one sector")
					return
				}
			}
		}
	}()

	wg.Wait()
	select {
	case err := <-errs:
		t.Fatal(err)
	default:
	}
}

func TestShutdownFlushesAllDirtySlots(t *testing.T) {
	dev := device.NewMem(512, 64)
	c, err := Open(Options{Device: dev, Capacity: 4})
	require.NoError(t, err)

	for i := device.SectorID(0); i < 4; i++ {
		buf := bytes.Repeat([]byte{byte(i + 1)}, c.SectorSize())
		require.NoError(t, c.Write(i, buf))
	}

	require.NoError(t, c.Shutdown())

	for i := device.SectorID(0); i < 4; i++ {
		got := dev.Snapshot(i)
		require.NotNil(t, got, "sector %d was not flushed by shutdown", i)
		assert.Equal(t, byte(i+1), got[0])
	}
}

func TestShutdownTwiceReturnsErrShutdown(t *testing.T) {
	dev := device.NewMem(512, 4)
	c, err := Open(Options{Device: dev, Capacity: 2})
	require.NoError(t, err)

	require.NoError(t, c.Shutdown())
	assert.ErrorIs(t, c.Shutdown(), ErrShutdown)
}

func TestOperationsAfterShutdownRejected(t *testing.T) {
	c, _ := open(t, 2)
	require.NoError(t, c.Shutdown())

	buf := make([]byte, c.SectorSize())
	assert.ErrorIs(t, c.Read(device.SectorID(0), buf), ErrShutdown)
	assert.ErrorIs(t, c.Write(device.SectorID(0), buf), ErrShutdown)
}

func TestDeviceReadFailureSurfacesAsWrappedError(t *testing.T) {
	dev := device.NewMem(512, 4)
	injected := errors.New("disk fell off")
	dev.FailRead = func(device.SectorID) error { return injected }

	c, err := Open(Options{Device: dev, Capacity: 2})
	require.NoError(t, err)
	defer c.Shutdown()

	buf := make([]byte, c.SectorSize())
	err = c.Read(device.SectorID(0), buf)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeviceIO)
	assert.ErrorIs(t, err, injected)
}
