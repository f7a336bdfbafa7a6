package device

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	f, err := OpenFile(path, 512, 8)
	require.NoError(t, err)
	defer f.Close()

	want := bytes.Repeat([]byte{0x7E}, 512)
	require.NoError(t, f.Write(SectorID(3), want))

	got := make([]byte, 512)
	require.NoError(t, f.Read(SectorID(3), got))
	assert.Equal(t, want, got)
}

func TestFileOutOfRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	f, err := OpenFile(path, 512, 2)
	require.NoError(t, err)
	defer f.Close()

	buf := make([]byte, 512)
	assert.ErrorIs(t, f.Read(SectorID(2), buf), ErrOutOfRange)
}

func TestFileReopenPreservesData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	f, err := OpenFile(path, 512, 4)
	require.NoError(t, err)

	want := bytes.Repeat([]byte{0x33}, 512)
	require.NoError(t, f.Write(SectorID(1), want))
	require.NoError(t, f.Sync())
	require.NoError(t, f.Close())

	f2, err := OpenFile(path, 512, 4)
	require.NoError(t, err)
	defer f2.Close()

	got := make([]byte, 512)
	require.NoError(t, f2.Read(SectorID(1), got))
	assert.Equal(t, want, got)
}
