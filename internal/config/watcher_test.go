package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KilimcininKorOglu/vdx/internal/mapping"
)

type fakeReloader struct {
	mu   sync.Mutex
	regs []*mapping.Registry
	err  error
}

func (r *fakeReloader) Reload(_ context.Context, reg *mapping.Registry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.regs = append(r.regs, reg)
	return r.err
}

func (r *fakeReloader) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.regs)
}

func writeConfig(t *testing.T, path, doc string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
}

func startWatcher(t *testing.T, path string, onChange func(context.Context, *Config, *Config) error) *Watcher {
	t.Helper()
	w, err := NewWatcher(&WatcherConfig{
		FilePath:     path,
		PollInterval: 5 * time.Millisecond,
		Debounce:     10 * time.Millisecond,
		OnChange:     onChange,
	})
	require.NoError(t, err)
	w.Start(context.Background())
	t.Cleanup(w.Stop)
	return w
}

func TestNewWatcherErrors(t *testing.T) {
	noop := func(context.Context, *Config, *Config) error { return nil }

	_, err := NewWatcher(&WatcherConfig{OnChange: noop})
	assert.ErrorIs(t, err, ErrMissingConfigFile)

	_, err = NewWatcher(&WatcherConfig{FilePath: "directory.yaml"})
	assert.ErrorIs(t, err, ErrMissingOnChange)

	_, err = NewWatcher(&WatcherConfig{FilePath: filepath.Join(t.TempDir(), "missing.yaml"), OnChange: noop})
	assert.Error(t, err)
}

func TestWatcherReloadsEngine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "directory.yaml")
	writeConfig(t, path, directoryYAML)

	r := &fakeReloader{}
	w := startWatcher(t, path, ReloadOnChange(r))
	assert.True(t, w.IsRunning())

	// a third entry mapping below the users
	updated := directoryYAML + `
  - id: mailbox
    parent: user
    attributes:
      - {name: mail, rdn: true, variable: boxes.email}
    sources:
      - {alias: boxes, source: emails, fields: [{name: email, variable: mail}]}
    relationships:
      - boxes.user_id = users.id
`
	writeConfig(t, path, updated)

	require.Eventually(t, func() bool { return r.count() == 1 }, time.Second, 5*time.Millisecond)
	r.mu.Lock()
	reg := r.regs[0]
	r.mu.Unlock()
	assert.NotNil(t, reg.Entry("mailbox"))
	require.Eventually(t, func() bool { return len(w.GetCurrentConfig().Entries) == 3 }, time.Second, 5*time.Millisecond)

	w.Stop()
	assert.False(t, w.IsRunning())
}

func TestWatcherSkipsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "directory.yaml")
	writeConfig(t, path, directoryYAML)

	r := &fakeReloader{}
	w := startWatcher(t, path, ReloadOnChange(r))

	writeConfig(t, path, strings.Replace(directoryYAML, "workers: 2", "workers: -2", 1))
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, r.count())
	assert.Equal(t, 2, w.GetCurrentConfig().Engine.Workers)
}

func TestWatcherKeepsConfigWhenReloadFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "directory.yaml")
	writeConfig(t, path, directoryYAML)

	r := &fakeReloader{err: errors.New("engine closed")}
	w := startWatcher(t, path, ReloadOnChange(r))

	writeConfig(t, path, strings.Replace(directoryYAML, "workers: 2", "workers: 3", 1))
	require.Eventually(t, func() bool { return r.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, w.GetCurrentConfig().Engine.Workers)
}

func TestWatcherIgnoresIdenticalRewrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "directory.yaml")
	writeConfig(t, path, directoryYAML)

	r := &fakeReloader{}
	w := startWatcher(t, path, ReloadOnChange(r))

	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, r.count())

	writeConfig(t, path, strings.Replace(directoryYAML, "workers: 2", "workers: 3", 1))
	require.Eventually(t, func() bool { return r.count() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return w.GetCurrentConfig().Engine.Workers == 3 }, time.Second, 5*time.Millisecond)
}
