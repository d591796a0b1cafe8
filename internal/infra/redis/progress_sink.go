package redis

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"

	"lesson-progress-service/internal/domain"
)

// ProgressSink stores the application-wide lesson progress as one hash per chapter:
// HSET lesson:progress:{chapterID} completedParagraphs .. isRead ..
type ProgressSink struct {
	client *redis.Client
}

func NewProgressSink(client *redis.Client) *ProgressSink {
	return &ProgressSink{client: client}
}

func (s *ProgressSink) UpdateLessonProgress(ctx context.Context, update domain.LessonProgressUpdate) error {
	return s.client.HSet(ctx, s.key(update.ChapterID), map[string]interface{}{
		"completedParagraphs": update.CompletedParagraphs,
		"totalParagraphs":     update.TotalParagraphs,
		"completedSections":   update.CompletedSections,
		"totalSections":       update.TotalSections,
		"checklistPercentage": update.ChecklistPercentage,
		"isRead":              strconv.FormatBool(update.IsRead),
	}).Err()
}

func (s *ProgressSink) LessonProgress(ctx context.Context, chapterID string) (domain.LessonProgressUpdate, bool, error) {
	fields, err := s.client.HGetAll(ctx, s.key(chapterID)).Result()
	if err != nil {
		return domain.LessonProgressUpdate{}, false, err
	}
	if len(fields) == 0 {
		return domain.LessonProgressUpdate{}, false, nil
	}
	atoi := func(name string) int {
		n, _ := strconv.Atoi(fields[name])
		return n
	}
	isRead, _ := strconv.ParseBool(fields["isRead"])
	return domain.LessonProgressUpdate{
		ChapterID:           chapterID,
		CompletedParagraphs: atoi("completedParagraphs"),
		TotalParagraphs:     atoi("totalParagraphs"),
		CompletedSections:   atoi("completedSections"),
		TotalSections:       atoi("totalSections"),
		ChecklistPercentage: atoi("checklistPercentage"),
		IsRead:              isRead,
	}, true, nil
}

func (s *ProgressSink) key(chapterID string) string {
	return "lesson:progress:" + chapterID
}
