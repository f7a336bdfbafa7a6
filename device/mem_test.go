package device

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemReadBeforeWriteIsZeroed(t *testing.T) {
	m := NewMem(16, 4)
	buf := make([]byte, 16)
	require.NoError(t, m.Read(SectorID(0), buf))
	assert.Equal(t, make([]byte, 16), buf)
}

func TestMemWriteThenRead(t *testing.T) {
	m := NewMem(16, 4)
	want := []byte("0123456789abcdef")
	require.NoError(t, m.Write(SectorID(2), want))

	got := make([]byte, 16)
	require.NoError(t, m.Read(SectorID(2), got))
	assert.Equal(t, want, got)
}

func TestMemOutOfRange(t *testing.T) {
	m := NewMem(16, 4)
	buf := make([]byte, 16)
	assert.ErrorIs(t, m.Read(SectorID(4), buf), ErrOutOfRange)
	assert.ErrorIs(t, m.Write(SectorID(99), buf), ErrOutOfRange)
}

func TestMemCountsCallsPerSector(t *testing.T) {
	m := NewMem(16, 4)
	buf := make([]byte, 16)
	require.NoError(t, m.Read(SectorID(1), buf))
	require.NoError(t, m.Read(SectorID(1), buf))
	require.NoError(t, m.Write(SectorID(1), buf))

	assert.Equal(t, 2, m.ReadCount(SectorID(1)))
	assert.Equal(t, 1, m.WriteCount(SectorID(1)))
	assert.Equal(t, 1, m.TotalWrites())
}

func TestMemFailHooks(t *testing.T) {
	m := NewMem(16, 4)
	injected := errors.New("boom")
	m.FailRead = func(SectorID) error { return injected }

	buf := make([]byte, 16)
	err := m.Read(SectorID(0), buf)
	assert.ErrorIs(t, err, injected)
	assert.Equal(t, 0, m.ReadCount(SectorID(0)), "failed call must not be counted")
}

func TestMemSnapshotNilUntilWritten(t *testing.T) {
	m := NewMem(16, 4)
	assert.Nil(t, m.Snapshot(SectorID(0)))

	require.NoError(t, m.Write(SectorID(0), make([]byte, 16)))
	assert.NotNil(t, m.Snapshot(SectorID(0)))
}
