package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"lesson-progress-service/internal/domain"
	"lesson-progress-service/internal/infra/memory"
)

// LessonRepository caches lesson documents in Redis and falls back to a loader
// on cache miss. Documents are stored as: SET lesson:doc:{lessonID} {json}
type LessonRepository struct {
	client *redis.Client
	loader memory.LessonLoader
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewLessonRepository(client *redis.Client, loader memory.LessonLoader, ttl time.Duration) *LessonRepository {
	return &LessonRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *LessonRepository) GetLesson(ctx context.Context, lessonID string) (domain.Lesson, error) {
	key := r.docKey(lessonID)
	if lesson, ok := r.cached(ctx, key); ok {
		return lesson, nil
	}

	result, err, _ := r.sf.Do(lessonID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if lesson, ok := r.cached(ctx, key); ok {
			return lesson, nil
		}

		lesson, err := r.loader.LoadLesson(ctx, lessonID)
		if err != nil {
			return domain.Lesson{}, err
		}
		if raw, err := json.Marshal(lesson); err == nil {
			_ = r.client.Set(ctx, key, raw, r.ttlWithJitter()).Err()
		}
		return lesson, nil
	})
	if err != nil {
		return domain.Lesson{}, err
	}
	return result.(domain.Lesson), nil
}

func (r *LessonRepository) Invalidate(ctx context.Context, lessonID string) error {
	r.sf.Forget(lessonID)
	return r.client.Del(ctx, r.docKey(lessonID)).Err()
}

func (r *LessonRepository) cached(ctx context.Context, key string) (domain.Lesson, bool) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return domain.Lesson{}, false
	}
	var lesson domain.Lesson
	if err := json.Unmarshal(raw, &lesson); err != nil {
		// corrupt entry, reload from the loader
		_ = r.client.Del(ctx, key).Err()
		return domain.Lesson{}, false
	}
	return lesson, true
}

func (r *LessonRepository) docKey(lessonID string) string {
	return "lesson:doc:" + lessonID
}

func (r *LessonRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
