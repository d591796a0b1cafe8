package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"lesson-progress-service/internal/domain"
)

type chapterProgress struct {
	bun.BaseModel `bun:"table:chapter_progress"`

	ChapterID           string    `bun:"chapter_id,pk"`
	CompletedParagraphs int       `bun:"completed_paragraphs,notnull"`
	TotalParagraphs     int       `bun:"total_paragraphs,notnull"`
	CompletedSections   int       `bun:"completed_sections,notnull"`
	TotalSections       int       `bun:"total_sections,notnull"`
	ChecklistPercentage int       `bun:"checklist_percentage,notnull"`
	IsRead              bool      `bun:"is_read,notnull"`
	UpdatedAt           time.Time `bun:"updated_at,notnull"`
}

// ProgressSink keeps the application-wide chapter progress in Postgres.
type ProgressSink struct {
	db *bun.DB
}

func NewProgressSink(db *bun.DB) *ProgressSink {
	return &ProgressSink{db: db}
}

func (s *ProgressSink) UpdateLessonProgress(ctx context.Context, update domain.LessonProgressUpdate) error {
	row := chapterProgress{
		ChapterID:           update.ChapterID,
		CompletedParagraphs: update.CompletedParagraphs,
		TotalParagraphs:     update.TotalParagraphs,
		CompletedSections:   update.CompletedSections,
		TotalSections:       update.TotalSections,
		ChecklistPercentage: update.ChecklistPercentage,
		IsRead:              update.IsRead,
		UpdatedAt:           time.Now().UTC(),
	}
	_, err := s.db.NewInsert().
		Model(&row).
		On("CONFLICT (chapter_id) DO UPDATE").
		Set("completed_paragraphs = EXCLUDED.completed_paragraphs").
		Set("total_paragraphs = EXCLUDED.total_paragraphs").
		Set("completed_sections = EXCLUDED.completed_sections").
		Set("total_sections = EXCLUDED.total_sections").
		Set("checklist_percentage = EXCLUDED.checklist_percentage").
		Set("is_read = EXCLUDED.is_read").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert chapter progress: %w", err)
	}
	return nil
}

func (s *ProgressSink) LessonProgress(ctx context.Context, chapterID string) (domain.LessonProgressUpdate, bool, error) {
	var row chapterProgress
	err := s.db.NewSelect().Model(&row).Where("chapter_id = ?", chapterID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.LessonProgressUpdate{}, false, nil
	}
	if err != nil {
		return domain.LessonProgressUpdate{}, false, fmt.Errorf("select chapter progress: %w", err)
	}
	return domain.LessonProgressUpdate{
		ChapterID:           row.ChapterID,
		CompletedParagraphs: row.CompletedParagraphs,
		TotalParagraphs:     row.TotalParagraphs,
		CompletedSections:   row.CompletedSections,
		TotalSections:       row.TotalSections,
		ChecklistPercentage: row.ChecklistPercentage,
		IsRead:              row.IsRead,
	}, true, nil
}
