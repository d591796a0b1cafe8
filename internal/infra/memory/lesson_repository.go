package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"lesson-progress-service/internal/domain"
)

// LessonLoader fetches lesson documents from a backing store (e.g., document DB).
type LessonLoader interface {
	LoadLesson(ctx context.Context, lessonID string) (domain.Lesson, error)
}

// LessonRepository caches lesson documents for a TTL with jitter. Invalidate
// bumps a per-lesson generation: a load that started before it finishes
// without filling the cache, so Refresh never re-caches a superseded revision.
type LessonRepository struct {
	loader LessonLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[string]cachedLesson
	gens  map[string]uint64
}

type cachedLesson struct {
	lesson    domain.Lesson
	expiresAt time.Time
}

func NewLessonRepository(loader LessonLoader, ttl time.Duration) *LessonRepository {
	return &LessonRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedLesson),
		gens:   make(map[string]uint64),
	}
}

func (r *LessonRepository) GetLesson(ctx context.Context, lessonID string) (domain.Lesson, error) {
	if lesson, ok := r.cached(lessonID); ok {
		return lesson, nil
	}

	result, err, _ := r.sf.Do(lessonID, func() (interface{}, error) {
		if lesson, ok := r.cached(lessonID); ok {
			return lesson, nil
		}
		r.mu.RLock()
		gen := r.gens[lessonID]
		r.mu.RUnlock()

		lesson, err := r.loader.LoadLesson(ctx, lessonID)
		if err != nil {
			return domain.Lesson{}, err
		}

		r.mu.Lock()
		if r.gens[lessonID] == gen {
			r.cache[lessonID] = cachedLesson{
				lesson:    lesson,
				expiresAt: r.clock().Add(r.ttlWithJitterLocked()),
			}
		}
		r.mu.Unlock()
		return lesson, nil
	})
	if err != nil {
		return domain.Lesson{}, err
	}
	return result.(domain.Lesson), nil
}

func (r *LessonRepository) cached(lessonID string) (domain.Lesson, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[lessonID]
	if !ok || !entry.expiresAt.After(r.clock()) {
		return domain.Lesson{}, false
	}
	return entry.lesson, true
}

// Invalidate drops the cached document so the next read hits the loader.
func (r *LessonRepository) Invalidate(_ context.Context, lessonID string) error {
	r.mu.Lock()
	delete(r.cache, lessonID)
	r.gens[lessonID]++
	r.mu.Unlock()
	r.sf.Forget(lessonID)
	return nil
}

func (r *LessonRepository) ttlWithJitterLocked() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticLessonLoader is a simple loader backed by an in-memory map (useful for tests/demos).
type StaticLessonLoader struct {
	mu      sync.RWMutex
	lessons map[string]domain.Lesson
}

func NewStaticLessonLoader(lessons map[string]domain.Lesson) *StaticLessonLoader {
	copied := make(map[string]domain.Lesson, len(lessons))
	for id, lesson := range lessons {
		copied[id] = lesson
	}
	return &StaticLessonLoader{lessons: copied}
}

func (l *StaticLessonLoader) LoadLesson(_ context.Context, lessonID string) (domain.Lesson, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if lesson, ok := l.lessons[lessonID]; ok {
		if lesson.ID == "" {
			lesson.ID = lessonID
		}
		return lesson, nil
	}
	return domain.Lesson{}, domain.ErrLessonNotFound
}

// Put replaces a lesson document, e.g. to simulate a content revision.
func (l *StaticLessonLoader) Put(lesson domain.Lesson) {
	l.mu.Lock()
	l.lessons[lesson.ID] = lesson
	l.mu.Unlock()
}
