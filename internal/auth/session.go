// Package auth logs virtual users in against the API and caches the
// resulting sessions per VU.
package auth

import (
	"sync"
	"time"
)

// Credentials are the login inputs of one test user.
type Credentials struct {
	Email    string `json:"email" yaml:"email"`
	Password string `json:"password" yaml:"password"`
	AppID    int    `json:"app_id" yaml:"app_id"`
}

// Session is an authenticated identity reused across a VU's iterations.
// It is not modified after being stored.
type Session struct {
	VirtualUserID int
	Token         string
	UserID        string
	Email         string
	ObtainedAt    time.Time
	// ExpiresAt comes from the token's exp claim; zero when unknown.
	// It is informational only and never triggers re-authentication.
	ExpiresAt time.Time
	Valid     bool
}

// Observer receives auth events. Implementations do the logging and
// metrics so this package stays free of I/O.
type Observer interface {
	SessionReused(s *Session)
	SessionStored(s *Session)
	SessionCleared(vuID int)
	LoginFailed(email string, err *AuthError)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) SessionReused(*Session)         {}
func (NopObserver) SessionStored(*Session)         {}
func (NopObserver) SessionCleared(int)             {}
func (NopObserver) LoginFailed(string, *AuthError) {}

// AuthenticateFunc obtains a new session for creds.
type AuthenticateFunc func(creds Credentials) (*Session, error)

// SessionCache holds at most one Session per VU id for the lifetime of a run.
type SessionCache struct {
	mu       sync.RWMutex
	sessions map[int]*Session
	observer Observer
}

// NewSessionCache creates an empty cache. A nil observer is replaced by
// NopObserver.
func NewSessionCache(observer Observer) *SessionCache {
	if observer == nil {
		observer = NopObserver{}
	}
	return &SessionCache{
		sessions: make(map[int]*Session),
		observer: observer,
	}
}

// GetOrCreate returns the stored session for vuID, or authenticates and
// stores a new one. A failed authentication stores nothing.
//
// authenticate runs outside the lock. Each VU only ever touches its own key,
// so two logins never race for the same entry.
func (c *SessionCache) GetOrCreate(vuID int, creds Credentials, authenticate AuthenticateFunc) (*Session, error) {
	c.mu.RLock()
	s, ok := c.sessions[vuID]
	c.mu.RUnlock()
	if ok {
		c.observer.SessionReused(s)
		return s, nil
	}

	s, err := authenticate(creds)
	if err != nil {
		return nil, err
	}
	s.VirtualUserID = vuID

	c.mu.Lock()
	c.sessions[vuID] = s
	c.mu.Unlock()

	c.observer.SessionStored(s)
	return s, nil
}

// Get returns the stored session without authenticating.
func (c *SessionCache) Get(vuID int) (*Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.sessions[vuID]
	return s, ok
}

// Clear forgets the session of vuID.
func (c *SessionCache) Clear(vuID int) {
	c.mu.Lock()
	_, ok := c.sessions[vuID]
	delete(c.sessions, vuID)
	c.mu.Unlock()

	if ok {
		c.observer.SessionCleared(vuID)
	}
}

// Len returns the number of cached sessions.
func (c *SessionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}
