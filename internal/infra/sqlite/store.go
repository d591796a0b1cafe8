package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	// Pure Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"

	"lesson-progress-service/internal/domain"
	"lesson-progress-service/internal/infra/envelope"
)

const (
	nsProgress = "lessons-progress"
	nsMeta     = "lessons-meta"
)

// Store persists progress ledgers and last visited positions in a local SQLite
// key/value table, one versioned JSON value per (namespace, lesson id).
type Store struct {
	db *sql.DB
}

// Open creates the database at path (":memory:" allowed) and its schema.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		// each connection would otherwise get its own database
		db.SetMaxOpenConns(1)
	}
	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (
		namespace  TEXT NOT NULL,
		key        TEXT NOT NULL,
		value      BLOB NOT NULL,
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s','now')),
		PRIMARY KEY (namespace, key)
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) LoadProgress(ctx context.Context, lessonID string) (domain.Ledger, error) {
	ledger := domain.Ledger{}
	ok, err := s.get(ctx, nsProgress, lessonID, &ledger)
	if err != nil {
		return nil, err
	}
	if !ok {
		return domain.Ledger{}, nil
	}
	return ledger, nil
}

func (s *Store) SaveProgress(ctx context.Context, lessonID string, ledger domain.Ledger) error {
	return s.put(ctx, nsProgress, lessonID, ledger)
}

func (s *Store) DeleteProgress(ctx context.Context, lessonID string) error {
	return s.delete(ctx, nsProgress, lessonID)
}

func (s *Store) LoadMeta(ctx context.Context, lessonID string) (domain.LastVisited, bool, error) {
	var meta domain.LastVisited
	ok, err := s.get(ctx, nsMeta, lessonID, &meta)
	if err != nil || !ok {
		return domain.LastVisited{}, false, err
	}
	return meta, true, nil
}

func (s *Store) SaveMeta(ctx context.Context, lessonID string, meta domain.LastVisited) error {
	return s.put(ctx, nsMeta, lessonID, meta)
}

func (s *Store) DeleteMeta(ctx context.Context, lessonID string) error {
	return s.delete(ctx, nsMeta, lessonID)
}

func (s *Store) get(ctx context.Context, namespace, key string, v any) (bool, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE namespace = ? AND key = ?`, namespace, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("select %s: %w", namespace, err)
	}
	if err := envelope.Decode(raw, v); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) put(ctx context.Context, namespace, key string, v any) error {
	raw, err := envelope.Encode(v)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO kv (namespace, key, value, updated_at) VALUES (?, ?, ?, strftime('%s','now'))
		ON CONFLICT (namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		namespace, key, raw)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", namespace, err)
	}
	return nil
}

func (s *Store) delete(ctx context.Context, namespace, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE namespace = ? AND key = ?`, namespace, key); err != nil {
		return fmt.Errorf("delete %s: %w", namespace, err)
	}
	return nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}
