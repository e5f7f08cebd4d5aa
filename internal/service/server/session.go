package server

import (
	"sync"
	"time"

	"github.com/kaze-kaze/file-transfer/internal/security"
)

// Session is one authenticated operator session.
type Session struct {
	Username  string
	ExpiresAt time.Time
}

// SessionManager owns the in-memory session table. Sessions are
// process-scoped; a restart logs everyone out.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]Session
	ttl      time.Duration
	now      func() time.Time
}

// NewSessionManager creates a session manager with the given lifetime.
func NewSessionManager(ttl time.Duration) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Create mints a session token for the user.
func (m *SessionManager) Create(username string) (string, error) {
	token, err := security.SessionToken()
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.sessions[token] = Session{Username: username, ExpiresAt: m.now().Add(m.ttl)}
	m.mu.Unlock()
	return token, nil
}

// Get returns the live session for a token, expiring lazily.
func (m *SessionManager) Get(token string) (Session, bool) {
	if token == "" {
		return Session{}, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[token]
	if !ok {
		return Session{}, false
	}
	if session.ExpiresAt.Before(m.now()) {
		delete(m.sessions, token)
		return Session{}, false
	}
	return session, true
}

// Invalidate removes a session. Idempotent.
func (m *SessionManager) Invalidate(token string) {
	if token == "" {
		return
	}
	m.mu.Lock()
	delete(m.sessions, token)
	m.mu.Unlock()
}
