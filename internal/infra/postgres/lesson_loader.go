package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"lesson-progress-service/internal/domain"
	"lesson-progress-service/internal/lessondoc"
)

// LessonLoader loads lesson JSONB from Postgres.
type LessonLoader struct {
	pool *pgxpool.Pool
}

func NewLessonLoader(pool *pgxpool.Pool) *LessonLoader {
	return &LessonLoader{pool: pool}
}

func (l *LessonLoader) LoadLesson(ctx context.Context, lessonID string) (domain.Lesson, error) {
	var (
		revision string
		raw      []byte
	)
	err := l.pool.QueryRow(ctx, `SELECT revision, data FROM lessons WHERE id=$1`, lessonID).Scan(&revision, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lesson{}, fmt.Errorf("load lesson %s: %w", lessonID, domain.ErrLessonNotFound)
	}
	if err != nil {
		return domain.Lesson{}, fmt.Errorf("load lesson: %w", err)
	}
	lesson, err := lessondoc.DecodeFor(lessonID, raw)
	if err != nil {
		return domain.Lesson{}, err
	}
	if lesson.Revision == "" {
		lesson.Revision = revision
	}
	return lesson, nil
}

// SaveLesson upserts a lesson document under its id.
func (l *LessonLoader) SaveLesson(ctx context.Context, lesson domain.Lesson) error {
	raw, err := json.Marshal(lesson)
	if err != nil {
		return fmt.Errorf("marshal lesson: %w", err)
	}
	_, err = l.pool.Exec(ctx, `
		INSERT INTO lessons (id, revision, data, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (id) DO UPDATE SET revision = EXCLUDED.revision, data = EXCLUDED.data, updated_at = now()`,
		lesson.ID, lesson.Revision, raw)
	if err != nil {
		return fmt.Errorf("save lesson: %w", err)
	}
	return nil
}
