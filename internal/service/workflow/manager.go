package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager keeps one Controller per editor session and expires idle ones.
// With a SessionStore configured, sessions created by another process are
// adopted on first use.
type Manager struct {
	deps Dependencies
	opts Options

	mu       sync.RWMutex
	sessions map[string]*Controller
}

// NewManager returns an empty session manager.
func NewManager(deps Dependencies, opts Options) *Manager {
	return &Manager{
		deps:     deps,
		opts:     opts.withDefaults(),
		sessions: make(map[string]*Controller),
	}
}

// Create starts a new session.
func (m *Manager) Create(ctx context.Context) *Controller {
	c := NewController(uuid.New().String(), m.deps, m.opts)
	c.publish(ctx)
	m.mu.Lock()
	m.sessions[c.ID()] = c
	m.mu.Unlock()
	m.opts.Logger.Info("workflow: session created", "session", c.ID())
	return c
}

// Get returns the controller for id, brought up to date with the session
// store.
func (m *Manager) Get(ctx context.Context, id string) (*Controller, error) {
	m.mu.RLock()
	c, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		c.refresh(ctx)
		return c, nil
	}
	if m.opts.Store == nil {
		return nil, ErrSessionNotFound
	}

	s, found, err := m.opts.Store.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	if !found {
		return nil, ErrSessionNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.sessions[id]; ok {
		return c, nil
	}
	c = newController(s, m.deps, m.opts)
	m.sessions[id] = c
	m.opts.Logger.Info("workflow: session adopted", "session", id, "state", s.State)
	return c, nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep closes and forgets sessions idle for longer than the session TTL.
// Sessions with a step in flight are kept. Stored snapshots expire on their
// own TTL.
func (m *Manager) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, c := range m.sessions {
		if now.Sub(c.LastUsed()) <= m.opts.SessionTTL || c.Snapshot().State.Busy() {
			continue
		}
		c.Close()
		delete(m.sessions, id)
		removed++
	}
	if removed > 0 {
		m.opts.Logger.Info("workflow: expired sessions", "count", removed, "remaining", len(m.sessions))
	}
	return removed
}

// expirer is implemented by session stores that need explicit cleanup.
type expirer interface {
	Expire(ctx context.Context) (int64, error)
}

// Run sweeps every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(m.opts.Clock())
			m.expireStored(ctx)
		}
	}
}

func (m *Manager) expireStored(ctx context.Context) {
	e, ok := m.opts.Store.(expirer)
	if !ok {
		return
	}
	n, err := e.Expire(ctx)
	if err != nil {
		m.opts.Logger.Warn("workflow: expire stored sessions", "error", err)
		return
	}
	if n > 0 {
		m.opts.Logger.Info("workflow: expired stored sessions", "count", n)
	}
}

// Close stops every session's timers.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.sessions {
		c.Close()
	}
}
