package memory

import (
	"context"
	"sync"

	"lesson-progress-service/internal/domain"
	"lesson-progress-service/internal/infra/envelope"
)

// Store keeps progress ledgers and last visited positions in process, encoded
// the same way the persistent stores encode them.
type Store struct {
	mu       sync.RWMutex
	progress map[string][]byte
	meta     map[string][]byte
	failErr  error
	writes   int
}

func NewStore() *Store {
	return &Store{
		progress: make(map[string][]byte),
		meta:     make(map[string][]byte),
	}
}

// FailWith makes every subsequent call return err; nil restores normal behavior.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	s.failErr = err
	s.mu.Unlock()
}

// Writes counts successful progress and meta writes.
func (s *Store) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

// PutRaw stores a pre-encoded progress entry, e.g. one written by an older version.
func (s *Store) PutRaw(lessonID string, raw []byte) {
	s.mu.Lock()
	s.progress[lessonID] = append([]byte(nil), raw...)
	s.mu.Unlock()
}

func (s *Store) LoadProgress(_ context.Context, lessonID string) (domain.Ledger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failErr != nil {
		return nil, s.failErr
	}
	raw, ok := s.progress[lessonID]
	if !ok {
		return domain.Ledger{}, nil
	}
	ledger := domain.Ledger{}
	if err := envelope.Decode(raw, &ledger); err != nil {
		return nil, err
	}
	return ledger, nil
}

func (s *Store) SaveProgress(_ context.Context, lessonID string, ledger domain.Ledger) error {
	raw, err := envelope.Encode(ledger)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	s.progress[lessonID] = raw
	s.writes++
	return nil
}

func (s *Store) DeleteProgress(_ context.Context, lessonID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	delete(s.progress, lessonID)
	return nil
}

func (s *Store) LoadMeta(_ context.Context, lessonID string) (domain.LastVisited, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failErr != nil {
		return domain.LastVisited{}, false, s.failErr
	}
	raw, ok := s.meta[lessonID]
	if !ok {
		return domain.LastVisited{}, false, nil
	}
	var meta domain.LastVisited
	if err := envelope.Decode(raw, &meta); err != nil {
		return domain.LastVisited{}, false, err
	}
	return meta, true, nil
}

func (s *Store) SaveMeta(_ context.Context, lessonID string, meta domain.LastVisited) error {
	raw, err := envelope.Encode(meta)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	s.meta[lessonID] = raw
	s.writes++
	return nil
}

func (s *Store) DeleteMeta(_ context.Context, lessonID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	delete(s.meta, lessonID)
	return nil
}
