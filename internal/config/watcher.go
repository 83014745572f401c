// Package config provides hot reload of the configuration file.
package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"os"
	"sync"
	"time"

	"github.com/KilimcininKorOglu/vdx/internal/logging"
	"github.com/KilimcininKorOglu/vdx/internal/mapping"
)

const (
	defaultPollInterval = 100 * time.Millisecond
	defaultDebounce     = 200 * time.Millisecond
)

// ChangeFunc receives the configuration in force and its valid successor.
type ChangeFunc func(ctx context.Context, oldCfg, newCfg *Config) error

// WatcherConfig configures NewWatcher.
type WatcherConfig struct {
	FilePath string
	// PollInterval defaults to 100ms.
	PollInterval time.Duration
	// Debounce is the quiet period after the last write before a reload;
	// defaults to 200ms.
	Debounce time.Duration
	// OnChange receives every valid new configuration. When it fails the
	// previous configuration stays current.
	OnChange ChangeFunc
	Logger   logging.Logger
}

// Watcher polls a configuration file and hands each valid revision to a
// callback. Rewrites that leave the content unchanged are ignored.
type Watcher struct {
	path     string
	interval time.Duration
	debounce time.Duration
	onChange ChangeFunc
	log      logging.Logger

	// owned by the polling goroutine
	stamp fileStamp
	sum   [sha256.Size]byte

	mu      sync.Mutex
	current *Config
	running bool
	stop    chan struct{}
	done    chan struct{}
}

type fileStamp struct {
	mod  time.Time
	size int64
}

func stampOf(info os.FileInfo) fileStamp {
	return fileStamp{mod: info.ModTime(), size: info.Size()}
}

// Reloader swaps the registry of a running engine.
type Reloader interface {
	Reload(ctx context.Context, reg *mapping.Registry) error
}

// ReloadOnChange returns a ChangeFunc converting the new configuration and
// handing the registry to r.
func ReloadOnChange(r Reloader) ChangeFunc {
	return func(ctx context.Context, _, newCfg *Config) error {
		reg, err := ToRegistry(newCfg)
		if err != nil {
			return err
		}
		return r.Reload(ctx, reg)
	}
}

// NewWatcher loads the file once and returns a stopped watcher.
func NewWatcher(cfg *WatcherConfig) (*Watcher, error) {
	switch {
	case cfg.FilePath == "":
		return nil, ErrMissingConfigFile
	case cfg.OnChange == nil:
		return nil, ErrMissingOnChange
	}

	w := &Watcher{
		path:     cfg.FilePath,
		interval: cfg.PollInterval,
		debounce: cfg.Debounce,
		onChange: cfg.OnChange,
		log:      cfg.Logger,
	}
	if w.interval <= 0 {
		w.interval = defaultPollInterval
	}
	if w.debounce <= 0 {
		w.debounce = defaultDebounce
	}
	if w.log == nil {
		w.log = logging.NewNop()
	}
	w.log = w.log.WithFields("file", cfg.FilePath)

	info, err := os.Stat(w.path)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(w.path)
	if err != nil {
		return nil, err
	}
	initial, err := ParseConfig(raw)
	if err != nil {
		return nil, err
	}
	w.stamp = stampOf(info)
	w.sum = sha256.Sum256(raw)
	w.current = initial
	return w, nil
}

// Start launches the polling goroutine. ctx is passed to OnChange and
// cancelling it ends polling as well. Starting a running watcher is a no-op.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.running = true
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	go w.poll(ctx, w.stop, w.done)
}

// Stop ends polling and waits for an in-flight reload to finish.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	stop, done := w.stop, w.done
	w.mu.Unlock()

	close(stop)
	<-done
}

func (w *Watcher) poll(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// stopped until the first change is seen
	settle := time.NewTimer(w.debounce)
	settle.Stop()
	defer settle.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if w.touched() {
				settle.Reset(w.debounce)
			}
		case <-settle.C:
			w.reload(ctx)
		}
	}
}

// touched reports whether the file metadata moved since the last look.
// Stat errors are treated as no change; the file may be mid-replace.
func (w *Watcher) touched() bool {
	info, err := os.Stat(w.path)
	if err != nil {
		return false
	}
	st := stampOf(info)
	if st == w.stamp {
		return false
	}
	w.stamp = st
	return true
}

func (w *Watcher) reload(ctx context.Context) {
	raw, err := os.ReadFile(w.path)
	if err != nil {
		w.log.Warn("config reload skipped", "error", err)
		return
	}
	sum := sha256.Sum256(raw)
	if bytes.Equal(sum[:], w.sum[:]) {
		w.log.Debug("config content unchanged")
		return
	}

	next, err := ParseConfig(raw)
	if err == nil {
		err = Validate(next)
	}
	if err != nil {
		w.log.Warn("config reload skipped", "error", err)
		return
	}
	w.sum = sum

	prev := w.GetCurrentConfig()
	if err := w.onChange(ctx, prev, next); err != nil {
		w.log.Error("config reload failed", "error", err)
		return
	}

	w.mu.Lock()
	w.current = next
	w.mu.Unlock()
	w.log.Info("config reloaded", "entries", len(next.Entries))
}

// IsRunning reports whether Start was called without a matching Stop.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// GetCurrentConfig returns the configuration last accepted by OnChange.
func (w *Watcher) GetCurrentConfig() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}
