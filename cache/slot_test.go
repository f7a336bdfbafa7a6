package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotBusy(t *testing.T) {
	s := newSlot(512)
	assert.False(t, s.busy())

	s.loading = true
	assert.True(t, s.busy())
	s.loading = false

	s.wr = 1
	assert.True(t, s.busy())
}

func TestWaitForReadAllowsConcurrentReaders(t *testing.T) {
	s := newSlot(512)

	s.lock.Lock()
	s.wr++
	s.waitForRead()
	s.lock.Unlock()

	s.lock.Lock()
	s.wr++
	s.waitForRead()
	s.lock.Unlock()

	assert.EqualValues(t, 2, s.ar)
}

func TestWaitForWriteExcludesReaders(t *testing.T) {
	s := newSlot(512)

	s.lock.Lock()
	s.wr++
	s.waitForRead()
	s.lock.Unlock()

	started := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		s.lock.Lock()
		s.ww++
		close(started)
		s.waitForWrite()
		s.lock.Unlock()
		close(writerDone)
	}()

	<-started
	time.Sleep(20 * time.Millisecond)
	select {
	case <-writerDone:
		t.Fatal("writer admitted while a reader was still active")
	default:
	}

	s.lock.Lock()
	s.finishRead()
	s.lock.Unlock()

	select {
	case <-writerDone:
	case <-time.After(time.Second):
		t.Fatal("writer never admitted after reader finished")
	}

	s.lock.Lock()
	s.finishWrite()
	s.lock.Unlock()
}

func TestFinishWriteMarksDirtyAndAccessed(t *testing.T) {
	s := newSlot(512)
	s.lock.Lock()
	s.ww++
	s.waitForWrite()
	s.finishWrite()
	s.lock.Unlock()

	assert.True(t, s.dirty)
	assert.True(t, s.accessed)
	assert.EqualValues(t, 0, s.aw)
}

func TestManyConcurrentReaders(t *testing.T) {
	s := newSlot(512)
	const n = 50

	var wg sync.WaitGroup
	var mu sync.Mutex
	maxConcurrent := 0
	current := 0

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.lock.Lock()
			s.wr++
			s.waitForRead()
			s.lock.Unlock()

			mu.Lock()
			current++
			if current > maxConcurrent {
				maxConcurrent = current
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			current--
			mu.Unlock()

			s.lock.Lock()
			s.finishRead()
			s.lock.Unlock()
		}()
	}
	wg.Wait()

	require.Greater(t, maxConcurrent, 1, "readers never overlapped")
}
