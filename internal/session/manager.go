package session

import (
	"context"
	"sync"
)

// Manager owns the active session. Opening or restarting discards the
// previous session's wiring and tears its sandbox down.
type Manager struct {
	base Options

	mu      sync.Mutex
	current *Session
}

// NewManager creates a manager whose sessions use base with the requested
// repository filled in.
func NewManager(base Options) *Manager {
	return &Manager{base: base}
}

// Current returns the active session, or nil.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Open closes the active session and creates a new one for owner/name.
// The caller runs it.
func (m *Manager) Open(ctx context.Context, owner, name string) (*Session, error) {
	opts := m.base
	opts.Owner = owner
	opts.Repo = name

	m.mu.Lock()
	prev := m.current
	next := New(opts)
	m.current = next
	m.mu.Unlock()

	if prev != nil {
		if err := prev.Close(ctx); err != nil {
			return next, err
		}
	}
	return next, nil
}

// Restart replaces the active session with a fresh one for the same
// repository. It returns nil when there is no active session.
func (m *Manager) Restart(ctx context.Context) (*Session, error) {
	prev := m.Current()
	if prev == nil {
		return nil, nil
	}
	return m.Open(ctx, prev.Owner, prev.Repo)
}

// Close closes the active session.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	prev := m.current
	m.current = nil
	m.mu.Unlock()

	if prev == nil {
		return nil
	}
	return prev.Close(ctx)
}
