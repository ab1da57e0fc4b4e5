package session

import (
	"fmt"
	"sync"

	"github.com/collabtext/scribe/pkg/database"
)

// SessionManager is the explicit create/destroy registry spec.md §9 calls
// for in place of the original system's global mutable session state.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*Hub
}

// NewSessionManager returns an empty manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: make(map[string]*Hub)}
}

// Create starts a new named session, failing if one with that name is
// already registered.
func (m *SessionManager) Create(name, password string, broadcastBufferSize int, db *database.Database) (*Hub, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[name]; exists {
		return nil, fmt.Errorf("session: %q already exists", name)
	}
	h := NewHub(name, password, broadcastBufferSize, db)
	m.sessions[name] = h
	return h, nil
}

// Get returns a session's hub by name.
func (m *SessionManager) Get(name string) (*Hub, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.sessions[name]
	return h, ok
}

// Destroy stops a session's hub (disconnecting every client) and removes
// it from the registry.
func (m *SessionManager) Destroy(name string) {
	m.mu.Lock()
	h, ok := m.sessions[name]
	delete(m.sessions, name)
	m.mu.Unlock()

	if ok {
		h.Stop()
	}
}

// Names returns every currently registered session name.
func (m *SessionManager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sessions))
	for name := range m.sessions {
		out = append(out, name)
	}
	return out
}
