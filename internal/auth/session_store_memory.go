package auth

import (
	"context"
	"sync"
)

// InMemorySessionStore keeps refresh tokens in memory, indexed by user so every
// session of an account can be dropped at once. Used by tests and local runs.
type InMemorySessionStore struct {
	mu      sync.RWMutex
	byToken map[string]Session
	byUser  map[string]map[string]struct{}
}

// NewInMemorySessionStore returns an empty store.
func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{
		byToken: make(map[string]Session),
		byUser:  make(map[string]map[string]struct{}),
	}
}

// Save stores session, moving it to its new owner when the token was reissued.
func (s *InMemorySessionStore) Save(_ context.Context, session Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.byToken[session.RefreshToken]; ok {
		s.unindexLocked(prev)
	}
	s.byToken[session.RefreshToken] = session
	tokens, ok := s.byUser[session.UserID]
	if !ok {
		tokens = make(map[string]struct{})
		s.byUser[session.UserID] = tokens
	}
	tokens[session.RefreshToken] = struct{}{}
	return nil
}

// Find retrieves a session by refresh token. Expiry is left to the Manager.
func (s *InMemorySessionStore) Find(_ context.Context, refreshToken string) (Session, error) {
	s.mu.RLock()
	session, ok := s.byToken[refreshToken]
	s.mu.RUnlock()
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return session, nil
}

// Delete removes the session associated with the refresh token.
func (s *InMemorySessionStore) Delete(_ context.Context, refreshToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.byToken[refreshToken]
	if !ok {
		return ErrSessionNotFound
	}
	delete(s.byToken, refreshToken)
	s.unindexLocked(session)
	return nil
}

// DeleteForUser drops every session of userID and reports how many there were.
func (s *InMemorySessionStore) DeleteForUser(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tokens := s.byUser[userID]
	for token := range tokens {
		delete(s.byToken, token)
	}
	delete(s.byUser, userID)
	return int64(len(tokens)), nil
}

// Has reports whether a refresh token exists.
func (s *InMemorySessionStore) Has(refreshToken string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byToken[refreshToken]
	return ok
}

func (s *InMemorySessionStore) unindexLocked(session Session) {
	tokens := s.byUser[session.UserID]
	delete(tokens, session.RefreshToken)
	if len(tokens) == 0 {
		delete(s.byUser, session.UserID)
	}
}
