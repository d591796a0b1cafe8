package app_test

import (
	"context"
	"sync"
	"time"

	"lesson-progress-service/internal/domain"
)

const lessonID = "1bac-limites"

var (
	nodeA1 = "sections.0.subsections.0"
	nodeA2 = "sections.0.subsections.1"
	nodeB1 = "sections.1.subsections.0"
)

// sampleLesson has sections A (two subsections) and B (one subsection).
func sampleLesson() domain.Lesson {
	para := []domain.Element{{Type: "paragraph", Content: "text"}}
	return domain.Lesson{
		ID:     lessonID,
		Header: domain.Header{Title: "Limites", Class: "1bac", Chapter: "limites"},
		Sections: []domain.Section{
			{Title: "Alpha", Subsections: []domain.Subsection{
				{Title: "One", Elements: para},
				{Title: "Two", Elements: para, Subsubsections: []domain.Subsubsection{{Title: "Deep", Elements: para}}},
			}},
			{Title: "Beta", Subsections: []domain.Subsection{
				{Title: "Three", Elements: para},
			}},
		},
	}
}

func fixedClock(ms int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(ms) }
}

// recorder collects progress-changed signals.
type recorder struct {
	mu     sync.Mutex
	events []domain.ProgressChanged
}

func (r *recorder) ProgressChanged(_ context.Context, ev domain.ProgressChanged) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) all() []domain.ProgressChanged {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ProgressChanged(nil), r.events...)
}

// failingSink rejects every push.
type failingSink struct {
	calls int
}

func (s *failingSink) UpdateLessonProgress(context.Context, domain.LessonProgressUpdate) error {
	s.calls++
	return context.DeadlineExceeded
}
