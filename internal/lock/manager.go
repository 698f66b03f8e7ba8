// Package lock provides per-key exclusive sections for contract mutations.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrBusy is returned when the section could not be entered within the
// configured timeout.
var ErrBusy = errors.New("lock busy")

type entry struct {
	sem  *semaphore.Weighted
	refs int
}

// Manager hands out one exclusive section per key. Entries are reference
// counted and dropped once no caller holds or waits on them, so the map only
// grows with the number of keys in flight.
type Manager struct {
	timeout time.Duration

	mu      sync.Mutex
	entries map[string]*entry
}

// NewManager returns a Manager. A zero timeout waits until ctx is done.
func NewManager(timeout time.Duration) *Manager {
	return &Manager{
		timeout: timeout,
		entries: make(map[string]*entry),
	}
}

// Acquire enters the section for key. The returned release func must be
// called exactly once.
func (m *Manager) Acquire(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	e := m.ref(key)

	waitCtx := ctx
	if m.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	if err := e.sem.Acquire(waitCtx, 1); err != nil {
		m.unref(key, e)
		if ctx.Err() != nil {
			return nil, fmt.Errorf("acquire %s: %w", key, ctx.Err())
		}
		return nil, fmt.Errorf("acquire %s: %w: %w", key, ErrBusy, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			e.sem.Release(1)
			m.unref(key, e)
		})
	}, nil
}

// Held reports how many keys currently have holders or waiters.
func (m *Manager) Held() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Manager) ref(key string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		m.entries[key] = e
	}
	e.refs++
	return e
}

func (m *Manager) unref(key string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(m.entries, key)
	}
}
