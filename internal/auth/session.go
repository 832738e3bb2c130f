package auth

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

const (
	sessionCookie = "hub_session"
	stateCookie   = "hub_oauth_state"
	sessionTTL    = 24 * time.Hour
	stateTTL      = 10 * time.Minute
)

type session struct {
	userID    int64
	login     string
	expiresAt time.Time
}

// SessionStore is an in-memory token-to-user map with TTL expiry. Sessions
// do not survive a restart; users simply log in again.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]session)}
}

func randomToken() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// Create issues a new session token for the user.
func (s *SessionStore) Create(userID int64, login string) string {
	token := randomToken()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[token] = session{
		userID:    userID,
		login:     login,
		expiresAt: time.Now().Add(sessionTTL),
	}
	return token
}

// Lookup resolves a token to (userID, login). Expired sessions are removed
// on access.
func (s *SessionStore) Lookup(token string) (int64, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	if !ok {
		return 0, "", false
	}
	if time.Now().After(sess.expiresAt) {
		delete(s.sessions, token)
		return 0, "", false
	}
	return sess.userID, sess.login, true
}

func (s *SessionStore) Delete(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
}
