package config

import (
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/wilbur-shi/bufcache/obslog"
)

// Watcher reloads a config file on change and reports the resulting
// Config, applying only its non-resizing fields. Device.SectorSize and
// Device.Capacity are fixed for the life of a Cache (spec.md's cache
// itself never resizes); a file edit that changes either is logged and
// otherwise ignored rather than rejected outright, so an operator can
// still roll the rest of a config forward without restarting for an
// unrelated change.
type Watcher struct {
	path string
	log  *obslog.Logger

	mu      sync.Mutex
	current *Config

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher loads path once and starts watching it for changes.
func NewWatcher(path string, log *obslog.Logger) (*Watcher, error) {
	if log == nil {
		log = obslog.Discard()
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{path: path, log: log, current: cfg, watcher: fw, done: make(chan struct{})}
	go w.run()
	return w, nil
}

// Current returns the most recently applied Config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// run reloads the file on every write or create event until the
// underlying fsnotify watcher is closed, logging watch errors.
func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error("config watch error", "err", err)
		}
	}
}

func (w *Watcher) reload() {
	next, err := Load(w.path)
	if err != nil {
		w.log.Error("config reload failed, keeping previous config", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	prev := w.current
	if next.Device.SectorSize != prev.Device.SectorSize || next.Device.Capacity != prev.Device.Capacity {
		w.log.Warn("ignoring attempted resize on config reload",
			"old_capacity", prev.Device.Capacity, "new_capacity", next.Device.Capacity,
			"old_sector_size", prev.Device.SectorSize, "new_sector_size", next.Device.SectorSize)
		next.Device.SectorSize = prev.Device.SectorSize
		next.Device.Capacity = prev.Device.Capacity
	}
	w.current = next
	w.mu.Unlock()

	w.log.Info("config reloaded", "path", w.path)
}

// Close stops watching and releases the underlying inotify/kqueue
// handle.
func (w *Watcher) Close() error {
	err := w.watcher.Close()
	<-w.done
	return err
}
