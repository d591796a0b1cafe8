package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"lesson-progress-service/internal/domain"
	"lesson-progress-service/internal/infra/envelope"
)

// Store persists progress ledgers and last visited positions as versioned JSON
// strings:
//
//	SET lessons-progress:{lessonID} {"v":1,"data":{...}}
//	SET lessons-meta:{lessonID}     {"v":1,"data":{...}}
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore keeps entries for ttl; zero keeps them forever.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func (s *Store) LoadProgress(ctx context.Context, lessonID string) (domain.Ledger, error) {
	ledger := domain.Ledger{}
	ok, err := s.get(ctx, progressKey(lessonID), &ledger)
	if err != nil {
		return nil, err
	}
	if !ok {
		return domain.Ledger{}, nil
	}
	return ledger, nil
}

func (s *Store) SaveProgress(ctx context.Context, lessonID string, ledger domain.Ledger) error {
	return s.set(ctx, progressKey(lessonID), ledger)
}

func (s *Store) DeleteProgress(ctx context.Context, lessonID string) error {
	return s.client.Del(ctx, progressKey(lessonID)).Err()
}

func (s *Store) LoadMeta(ctx context.Context, lessonID string) (domain.LastVisited, bool, error) {
	var meta domain.LastVisited
	ok, err := s.get(ctx, metaKey(lessonID), &meta)
	if err != nil || !ok {
		return domain.LastVisited{}, false, err
	}
	return meta, true, nil
}

func (s *Store) SaveMeta(ctx context.Context, lessonID string, meta domain.LastVisited) error {
	return s.set(ctx, metaKey(lessonID), meta)
}

func (s *Store) DeleteMeta(ctx context.Context, lessonID string) error {
	return s.client.Del(ctx, metaKey(lessonID)).Err()
}

func (s *Store) get(ctx context.Context, key string, v any) (bool, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := envelope.Decode(raw, v); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) set(ctx context.Context, key string, v any) error {
	raw, err := envelope.Encode(v)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, raw, s.ttl).Err()
}

func progressKey(lessonID string) string {
	return "lessons-progress:" + lessonID
}

func metaKey(lessonID string) string {
	return "lessons-meta:" + lessonID
}
