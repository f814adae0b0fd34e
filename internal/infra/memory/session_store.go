package memory

import (
	"context"
	"sync"

	"chronotech-quiz-service/internal/app"
	"chronotech-quiz-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
// It stores copies so callers cannot mutate a saved session in place.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]app.PlaySession
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]app.PlaySession),
	}
}

func (s *SessionStore) Get(_ context.Context, principalID string) (*app.PlaySession, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[principalID]
	if !ok {
		return nil, false, nil
	}
	session.Order = append([]int(nil), session.Order...)
	return &session, true, nil
}

func (s *SessionStore) Put(_ context.Context, session *app.PlaySession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session.Version = 1
	s.store(session)
	return nil
}

func (s *SessionStore) Save(_ context.Context, session *app.PlaySession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.versionLocked(session.PrincipalID) != session.Version {
		return domain.ErrSessionChanged
	}
	session.Version++
	s.store(session)
	return nil
}

func (s *SessionStore) Delete(_ context.Context, principalID string, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if version != 0 && s.versionLocked(principalID) != version {
		return domain.ErrSessionChanged
	}
	delete(s.sessions, principalID)
	return nil
}

// Len reports how many sessions are live.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// versionLocked is the stored version, 0 when absent. s.mu must be held.
func (s *SessionStore) versionLocked(principalID string) int64 {
	return s.sessions[principalID].Version
}

func (s *SessionStore) store(session *app.PlaySession) {
	cp := *session
	cp.Order = append([]int(nil), session.Order...)
	s.sessions[session.PrincipalID] = cp
}
