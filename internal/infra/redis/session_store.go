package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"lesson-progress-service/internal/app"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Notes:
//   - It keeps a local map of sessions to reuse the in-process broadcast logic.
//   - Redis marks session liveness so other instances can see which lessons are open.
//   - Cross-instance fan-out goes through Bus.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.LessonSession
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
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
		// best-effort liveness marker
		_ = s.client.Set(context.Background(), s.key(lessonID), "1", s.ttl).Err()
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
	_ = s.client.Del(context.Background(), s.key(lessonID)).Err()
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

func (s *SessionStore) key(lessonID string) string {
	return "lesson:session:" + lessonID
}
