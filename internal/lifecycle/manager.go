package lifecycle

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Manager owns one Session per running agent and fans their Run
// goroutines out under one errgroup, so a panic or cancellation in one
// session's timers does not leak the others.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	cancels  map[string]context.CancelFunc
	g        *errgroup.Group
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		cancels:  make(map[string]context.CancelFunc),
		g:        &errgroup.Group{},
	}
}

// Start registers a session and launches its driver goroutines under
// ctx. Calling Start twice for the same agent replaces the prior
// session, stopping its goroutines first.
func (m *Manager) Start(ctx context.Context, s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cancel, ok := m.cancels[s.agent]; ok {
		cancel()
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	m.sessions[s.agent] = s
	m.cancels[s.agent] = cancel
	m.g.Go(func() error {
		return s.Run(sessionCtx)
	})
}

// Get returns the session for agent, if any.
func (m *Manager) Get(agent string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[agent]
	return s, ok
}

// Stop cancels and removes the session for agent.
func (m *Manager) Stop(agent string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cancel, ok := m.cancels[agent]; ok {
		cancel()
		delete(m.cancels, agent)
		delete(m.sessions, agent)
	}
}

// StopAll cancels every session and waits for their Run goroutines to
// return.
func (m *Manager) StopAll() error {
	m.mu.Lock()
	for _, cancel := range m.cancels {
		cancel()
	}
	m.cancels = make(map[string]context.CancelFunc)
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	return m.g.Wait()
}
