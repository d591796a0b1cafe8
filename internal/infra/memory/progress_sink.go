package memory

import (
	"context"
	"sync"

	"lesson-progress-service/internal/domain"
)

// ProgressSink is the in-process application progress store. It implements both
// app.ProgressSink and app.ProgressReader.
type ProgressSink struct {
	mu      sync.RWMutex
	updates map[string]domain.LessonProgressUpdate
	pushes  int
}

func NewProgressSink() *ProgressSink {
	return &ProgressSink{updates: make(map[string]domain.LessonProgressUpdate)}
}

func (s *ProgressSink) UpdateLessonProgress(_ context.Context, update domain.LessonProgressUpdate) error {
	s.mu.Lock()
	s.updates[update.ChapterID] = update
	s.pushes++
	s.mu.Unlock()
	return nil
}

func (s *ProgressSink) LessonProgress(_ context.Context, chapterID string) (domain.LessonProgressUpdate, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	update, ok := s.updates[chapterID]
	return update, ok, nil
}

// Pushes counts every update received.
func (s *ProgressSink) Pushes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pushes
}
