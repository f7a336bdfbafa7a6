package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 512, c.Device.SectorSize)
	assert.Equal(t, 64, c.Device.Capacity)
	assert.Equal(t, "info", c.Log.Level)
}

func TestLoadFromTOMLFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bufcached.toml", `
[device]
path = "/var/lib/bufcached/disk.img"
capacity = 128

[log]
level = "debug"
`)

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/bufcached/disk.img", c.Device.Path)
	assert.Equal(t, 128, c.Device.Capacity)
	assert.Equal(t, "debug", c.Log.Level)
	// unspecified fields keep their default
	assert.Equal(t, 512, c.Device.SectorSize)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bufcached.toml", `
[log]
level = "warning"
`)

	t.Setenv("BUFCACHED_LOG_LEVEL", "debug")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", c.Log.Level)
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bufcached.toml", `
[log]
level = "info"
`)

	w, err := NewWatcher(path, nil)
	require.NoError(t, err)
	defer w.Close()

	require.Equal(t, "info", w.Current().Log.Level)

	writeFile(t, dir, "bufcached.toml", `
[log]
level = "debug"
`)

	require.Eventually(t, func() bool {
		return w.Current().Log.Level == "debug"
	}, 2*time.Second, 20*time.Millisecond)
}

func TestWatcherIgnoresResizeOnReload(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bufcached.toml", `
[device]
capacity = 64
`)

	w, err := NewWatcher(path, nil)
	require.NoError(t, err)
	defer w.Close()

	writeFile(t, dir, "bufcached.toml", `
[device]
capacity = 999
`)

	require.Eventually(t, func() bool {
		return w.Current() != nil
	}, 2*time.Second, 20*time.Millisecond)

	// give the watcher a moment to process the write event
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 64, w.Current().Device.Capacity, "resize on reload must be ignored")
}
