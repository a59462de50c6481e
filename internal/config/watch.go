package config

import (
	"log"
	"os"
	"sync"
	"time"
)

// Watcher serves the current FusionConfig and refreshes it from disk when
// the file's mtime changes. Checks are throttled so hot paths can call
// Current on every hop tick without touching the filesystem each time.
type Watcher struct {
	path     string
	throttle time.Duration

	mu        sync.RWMutex
	cfg       *FusionConfig
	mtime     time.Time
	lastCheck time.Time

	now func() time.Time
}

// NewWatcher loads the config at path and returns a watcher around it.
// The initial load must succeed; later reload failures keep the last good
// config.
func NewWatcher(path string, throttle time.Duration) (*Watcher, error) {
	cfg, err := LoadFusionConfig(path)
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		path:     path,
		throttle: throttle,
		cfg:      cfg,
		now:      time.Now,
	}
	if info, err := os.Stat(path); err == nil {
		w.mtime = info.ModTime()
	}
	w.lastCheck = w.now()
	return w, nil
}

// Current returns the live config, refreshing from disk at most once per
// throttle interval.
func (w *Watcher) Current() *FusionConfig {
	w.mu.RLock()
	fresh := w.now().Sub(w.lastCheck) < w.throttle
	cfg := w.cfg
	w.mu.RUnlock()
	if fresh {
		return cfg
	}
	return w.refresh()
}

func (w *Watcher) refresh() *FusionConfig {
	w.mu.Lock()
	defer w.mu.Unlock()

	// Another caller may have refreshed while we waited for the lock.
	if w.now().Sub(w.lastCheck) < w.throttle {
		return w.cfg
	}
	w.lastCheck = w.now()

	info, err := os.Stat(w.path)
	if err != nil {
		return w.cfg
	}
	if info.ModTime().Equal(w.mtime) {
		return w.cfg
	}

	cfg, err := LoadFusionConfig(w.path)
	if err != nil {
		log.Printf("config: reload %s failed, keeping previous: %v", w.path, err)
		w.mtime = info.ModTime()
		return w.cfg
	}
	w.cfg = cfg
	w.mtime = info.ModTime()
	log.Printf("config: reloaded %s", w.path)
	return w.cfg
}
