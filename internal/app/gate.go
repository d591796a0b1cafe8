package app

import (
	"context"
	"sync"

	"lesson-progress-service/internal/domain"
	"lesson-progress-service/internal/logger"
)

// DefaultUnlockThreshold is the lesson percentage that unlocks the quiz stage.
const DefaultUnlockThreshold = 95

// ProgressReader reads back what the bridge pushed to the application store.
type ProgressReader interface {
	LessonProgress(ctx context.Context, chapterID string) (domain.LessonProgressUpdate, bool, error)
}

// QuizGate decides whether a lesson is far enough along to enter its quiz.
type QuizGate struct {
	Threshold int
}

func NewQuizGate(threshold int) QuizGate {
	if threshold <= 0 || threshold > 100 {
		threshold = DefaultUnlockThreshold
	}
	return QuizGate{Threshold: threshold}
}

func (g QuizGate) Unlocked(update domain.LessonProgressUpdate) bool {
	return update.IsRead || (update.TotalParagraphs > 0 && update.ChecklistPercentage >= g.Threshold)
}

// StageGate re-derives quiz unlock state from progress-changed signals without
// being wired to the ledger itself.
type StageGate struct {
	gate   QuizGate
	reader ProgressReader
	log    *logger.Logger

	mu       sync.RWMutex
	unlocked map[string]bool
}

func NewStageGate(gate QuizGate, reader ProgressReader, log *logger.Logger) *StageGate {
	return &StageGate{
		gate:     gate,
		reader:   reader,
		log:      logger.OrNop(log).With("component", "stage_gate"),
		unlocked: make(map[string]bool),
	}
}

// Evaluate refreshes and returns the unlock state of lessonID.
func (s *StageGate) Evaluate(ctx context.Context, lessonID string) bool {
	update, ok, err := s.reader.LessonProgress(ctx, lessonID)
	if err != nil {
		s.log.Warn("read lesson progress failed", "lesson_id", lessonID, "error", err)
	}
	open := ok && err == nil && s.gate.Unlocked(update)

	s.mu.Lock()
	was := s.unlocked[lessonID]
	s.unlocked[lessonID] = open
	s.mu.Unlock()

	if open && !was {
		s.log.Info("quiz unlocked", "lesson_id", lessonID, "percentage", update.ChecklistPercentage)
	}
	return open
}

func (s *StageGate) ProgressChanged(ctx context.Context, ev domain.ProgressChanged) {
	s.Evaluate(ctx, ev.LessonID)
}

// Unlocked returns the last evaluated state.
func (s *StageGate) Unlocked(lessonID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unlocked[lessonID]
}

// Run evaluates every event from events until ctx ends or the channel closes.
func (s *StageGate) Run(ctx context.Context, events <-chan domain.ProgressChanged) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.ProgressChanged(ctx, ev)
		}
	}
}
