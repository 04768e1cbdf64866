package connection

import (
	"context"
	"sync"
)

// Manager connects on first use and hands the same session to every
// command of a run.
type Manager struct {
	dial Dialer
	opts Options

	mu      sync.Mutex
	current *Session
}

// NewManager creates a Manager.
func NewManager(dial Dialer, opts Options) *Manager {
	return &Manager{dial: dial, opts: opts}
}

// Options returns the connection options.
func (m *Manager) Options() Options {
	return m.opts
}

// Connect returns the current session, establishing a new one when there is
// none or the previous one ended.
func (m *Manager) Connect(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil && m.current.Connected() {
		return m.current, nil
	}
	s, err := Connect(ctx, m.dial, m.opts)
	if err != nil {
		return nil, err
	}
	m.current = s
	return s, nil
}

// Current returns the current session, or nil.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// IsConnected reports whether a live session exists.
func (m *Manager) IsConnected() bool {
	s := m.Current()
	return s != nil && s.Connected()
}

// Disconnect finishes the current session.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	s := m.current
	m.current = nil
	m.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.Close(ctx)
}
