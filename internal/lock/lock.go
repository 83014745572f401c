// Package lock provides keyed multi-reader/single-writer locks with a
// bounded wait. Keys name a backend source or an entry DN; locks on
// different keys are independent.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/KilimcininKorOglu/vdx/internal/data"
)

// ErrTimeout is returned when a lock is not acquired within the wait bound.
var ErrTimeout = errors.New("lock: timeout")

// Mode selects shared or exclusive locking.
type Mode int

const (
	// Read allows concurrent holders.
	Read Mode = iota
	// Write excludes every other holder.
	Write
)

func (m Mode) String() string {
	if m == Write {
		return "write"
	}
	return "read"
}

// Key identifies a lockable resource.
type Key string

// SourceKey is the key of a physical source.
func SourceKey(name string) Key {
	return Key("source:" + name)
}

// EntryKey is the key of an entry DN, normalized.
func EntryKey(dn string) Key {
	return Key("dn:" + data.NormalizeDN(dn))
}

// Request asks for one key in one mode.
type Request struct {
	Key  Key
	Mode Mode
}

type state struct {
	readers        int
	writer         bool
	waitingWriters int
	waiters        int
	changed        chan struct{}
}

func (s *state) idle() bool {
	return s.readers == 0 && !s.writer && s.waiters == 0
}

// Manager hands out keyed locks.
type Manager struct {
	timeout time.Duration

	mu    sync.Mutex
	locks map[Key]*state
}

// NewManager creates a manager. A non-positive timeout waits until the
// context is done.
func NewManager(timeout time.Duration) *Manager {
	return &Manager{
		timeout: timeout,
		locks:   make(map[Key]*state),
	}
}

// Timeout returns the wait bound.
func (m *Manager) Timeout() time.Duration {
	return m.timeout
}

// Acquire locks key in mode and returns its release function.
func (m *Manager) Acquire(ctx context.Context, key Key, mode Mode) (func(), error) {
	ctx, cancel := m.bound(ctx)
	defer cancel()
	if err := m.acquire(ctx, key, mode); err != nil {
		return nil, err
	}
	return m.releaser(key, mode), nil
}

// AcquireAll locks every requested key in sorted key order, so that two
// callers asking for overlapping sets cannot deadlock. A key requested in
// both modes is locked for writing. On failure nothing stays locked.
func (m *Manager) AcquireAll(ctx context.Context, reqs []Request) (func(), error) {
	modes := make(map[Key]Mode, len(reqs))
	for _, r := range reqs {
		if cur, ok := modes[r.Key]; !ok || r.Mode > cur {
			modes[r.Key] = r.Mode
		}
	}
	keys := make([]Key, 0, len(modes))
	for k := range modes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	ctx, cancel := m.bound(ctx)
	defer cancel()

	var releases []func()
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, k := range keys {
		if err := m.acquire(ctx, k, modes[k]); err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, m.releaser(k, modes[k]))
	}
	return onceFunc(releaseAll), nil
}

func (m *Manager) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout > 0 {
		return context.WithTimeout(ctx, m.timeout)
	}
	return context.WithCancel(ctx)
}

func (m *Manager) acquire(ctx context.Context, key Key, mode Mode) error {
	m.mu.Lock()
	s := m.locks[key]
	if s == nil {
		s = &state{changed: make(chan struct{})}
		m.locks[key] = s
	}
	if mode == Write {
		s.waitingWriters++
	}
	for {
		if m.grant(s, mode) {
			m.mu.Unlock()
			return nil
		}
		ch := s.changed
		s.waiters++
		m.mu.Unlock()

		var err error
		select {
		case <-ch:
		case <-ctx.Done():
			err = ctx.Err()
		}

		m.mu.Lock()
		s.waiters--
		if err != nil {
			if mode == Write {
				s.waitingWriters--
				m.notify(s)
			}
			if s.idle() {
				delete(m.locks, key)
			}
			m.mu.Unlock()
			if errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("%w: %s lock on %s", ErrTimeout, mode, key)
			}
			return err
		}
	}
}

// grant takes the lock when compatible. Readers yield to waiting writers.
func (m *Manager) grant(s *state, mode Mode) bool {
	switch mode {
	case Write:
		if s.writer || s.readers > 0 {
			return false
		}
		s.waitingWriters--
		s.writer = true
		return true
	default:
		if s.writer || s.waitingWriters > 0 {
			return false
		}
		s.readers++
		return true
	}
}

func (m *Manager) notify(s *state) {
	close(s.changed)
	s.changed = make(chan struct{})
}

func (m *Manager) releaser(key Key, mode Mode) func() {
	return onceFunc(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		s := m.locks[key]
		if s == nil {
			return
		}
		if mode == Write {
			s.writer = false
		} else {
			s.readers--
		}
		m.notify(s)
		if s.idle() && s.waitingWriters == 0 {
			delete(m.locks, key)
		}
	})
}

// Held returns the number of keys currently tracked.
func (m *Manager) Held() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

func onceFunc(f func()) func() {
	var once sync.Once
	return func() { once.Do(f) }
}
