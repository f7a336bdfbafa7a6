package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteBehindQueueFIFO(t *testing.T) {
	q := newWriteBehindQueue()
	a := newSlot(512)
	b := newSlot(512)

	q.push(a)
	q.push(b)
	require.Equal(t, 2, q.depth())

	got, ok := q.pop()
	require.True(t, ok)
	assert.Same(t, a, got)

	got, ok = q.pop()
	require.True(t, ok)
	assert.Same(t, b, got)
}

func TestWriteBehindQueuePopBlocksThenCloses(t *testing.T) {
	q := newWriteBehindQueue()

	done := make(chan bool)
	go func() {
		_, ok := q.pop()
		done <- ok
	}()

	select {
	case <-done:
		t.Fatal("pop returned before queue had any item or was closed")
	case <-time.After(20 * time.Millisecond):
	}

	q.close()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("pop did not wake up after close")
	}
}

func TestWriteBehindQueuePushAfterCloseIsFatal(t *testing.T) {
	q := newWriteBehindQueue()
	q.close()
	assert.Panics(t, func() { q.push(newSlot(512)) })
}
