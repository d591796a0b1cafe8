package memory

import (
	"sync"

	"lesson-progress-service/internal/app"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*app.LessonSession
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*app.LessonSession),
	}
}

func (s *SessionStore) GetOrCreate(lessonID string, create func(string) *app.LessonSession) (*app.LessonSession, bool) {
	return s.getOrCreate(lessonID, create, false)
}

// GetOrCreateAttached retains the session before the lock is released.
func (s *SessionStore) GetOrCreateAttached(lessonID string, create func(string) *app.LessonSession) (*app.LessonSession, bool) {
	return s.getOrCreate(lessonID, create, true)
}

func (s *SessionStore) getOrCreate(lessonID string, create func(string) *app.LessonSession, retain bool) (*app.LessonSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[lessonID]
	if !ok {
		session = create(lessonID)
		s.sessions[lessonID] = session
	}
	if retain {
		session.Retain()
	}
	return session, !ok
}

func (s *SessionStore) Get(lessonID string) (*app.LessonSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[lessonID]
	return session, ok
}

func (s *SessionStore) DeleteIfIdle(lessonID string) (*app.LessonSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[lessonID]
	if !ok || session.Viewers() > 0 {
		return nil, false
	}
	delete(s.sessions, lessonID)
	return session, true
}

func (s *SessionStore) List() []*app.LessonSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*app.LessonSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	return out
}
