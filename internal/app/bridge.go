package app

import (
	"context"
	"sync"

	"lesson-progress-service/internal/domain"
	"lesson-progress-service/internal/logger"
)

// ProgressSink is the application-wide progress store fed by the bridge.
type ProgressSink interface {
	UpdateLessonProgress(ctx context.Context, update domain.LessonProgressUpdate) error
}

// Broadcaster carries progress-changed signals to collaborators that are not
// wired to the ledger (stage gating, dashboards, other instances).
type Broadcaster interface {
	Publish(ctx context.Context, ev domain.ProgressChanged) error
}

// Bridge pushes lesson summaries outward, once per distinct summary.
type Bridge struct {
	sink        ProgressSink
	broadcaster Broadcaster
	log         *logger.Logger

	mu   sync.Mutex
	last map[string]domain.LessonProgressUpdate
}

func NewBridge(sink ProgressSink, broadcaster Broadcaster, log *logger.Logger) *Bridge {
	return &Bridge{
		sink:        sink,
		broadcaster: broadcaster,
		log:         logger.OrNop(log).With("component", "bridge"),
		last:        make(map[string]domain.LessonProgressUpdate),
	}
}

// BuildUpdate shapes the external payload from the lesson and sections summaries.
func BuildUpdate(lessonID string, lesson, sections domain.Summary) domain.LessonProgressUpdate {
	return domain.LessonProgressUpdate{
		ChapterID:           lessonID,
		CompletedParagraphs: lesson.Completed,
		TotalParagraphs:     lesson.Total,
		CompletedSections:   sections.Completed,
		TotalSections:       sections.Total,
		ChecklistPercentage: lesson.Percentage,
		IsRead:              sections.Total > 0 && sections.Completed == sections.Total,
	}
}

// PushSummary forwards update when it differs from the last one pushed for the
// same chapter. It reports whether a push happened.
func (b *Bridge) PushSummary(ctx context.Context, update domain.LessonProgressUpdate) bool {
	b.mu.Lock()
	if prev, ok := b.last[update.ChapterID]; ok && prev == update {
		b.mu.Unlock()
		return false
	}
	b.last[update.ChapterID] = update
	b.mu.Unlock()

	if b.sink == nil {
		return true
	}
	if err := b.sink.UpdateLessonProgress(ctx, update); err != nil {
		b.log.Warn("push lesson progress failed", "chapter_id", update.ChapterID, "error", err)
		b.mu.Lock()
		delete(b.last, update.ChapterID)
		b.mu.Unlock()
		return false
	}
	return true
}

// Broadcast publishes ev; failures are logged, never returned.
func (b *Bridge) Broadcast(ctx context.Context, ev domain.ProgressChanged) {
	if b.broadcaster == nil {
		return
	}
	if err := b.broadcaster.Publish(ctx, ev); err != nil {
		b.log.Warn("broadcast progress changed failed", "lesson_id", ev.LessonID, "error", err)
	}
}

// Forget drops the dedup state so the next push for lessonID always goes out.
func (b *Bridge) Forget(lessonID string) {
	b.mu.Lock()
	delete(b.last, lessonID)
	b.mu.Unlock()
}
