package redis

import (
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"lesson-progress-service/internal/domain"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func sampleLesson() domain.Lesson {
	return domain.Lesson{
		ID:     "6e-1",
		Header: domain.Header{Title: "Fractions", Class: "6e", Chapter: "1"},
		Sections: []domain.Section{
			{
				Title: "Découvrir",
				Subsections: []domain.Subsection{
					{Title: "Partager", Elements: []domain.Element{{Type: "paragraph", Content: "a"}}},
				},
			},
		},
	}
}
