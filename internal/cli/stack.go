package cli

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"lesson-progress-service/internal/app"
	"lesson-progress-service/internal/config"
	"lesson-progress-service/internal/domain"
	"lesson-progress-service/internal/infra/fsdoc"
	"lesson-progress-service/internal/infra/memory"
	pgstore "lesson-progress-service/internal/infra/postgres"
	redisstore "lesson-progress-service/internal/infra/redis"
	"lesson-progress-service/internal/infra/sqlite"
	"lesson-progress-service/internal/logger"
)

// progressBackend is what a storage driver provides.
type progressBackend interface {
	app.ProgressStore
	app.MetaStore
}

// progressSink is both ends of the application progress store.
type progressSink interface {
	app.ProgressSink
	app.ProgressReader
}

// stack holds the infrastructure selected by configuration.
type stack struct {
	cfg      config.Config
	log      *logger.Logger
	redis    *redis.Client
	pool     *pgxpool.Pool
	bunDB    *bun.DB
	progress progressBackend
	sink     progressSink
	lessons  app.LessonRepository
	sessions app.SessionRepository
	localBus *memory.EventBus
	bus      *redisstore.Bus
	closers  []func()
}

func openStack(ctx context.Context, cfg config.Config, log *logger.Logger) (*stack, error) {
	s := &stack{cfg: cfg, log: log, localBus: memory.NewEventBus()}

	if cfg.Redis.Addr != "" {
		s.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		s.closers = append(s.closers, func() { _ = s.redis.Close() })
		s.bus = redisstore.NewBus(s.redis, cfg.Redis.Channel, log)
	}

	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		s.pool = pool
		s.closers = append(s.closers, pool.Close)
		s.bunDB = openBun(cfg.Postgres.URL)
		s.closers = append(s.closers, func() { _ = s.bunDB.Close() })
	}

	progress, err := s.openProgress()
	if err != nil {
		s.Close()
		return nil, err
	}
	s.progress = progress

	switch {
	case s.bunDB != nil:
		s.sink = pgstore.NewProgressSink(s.bunDB)
	case s.redis != nil:
		s.sink = redisstore.NewProgressSink(s.redis)
	default:
		s.sink = memory.NewProgressSink()
	}

	var loader memory.LessonLoader
	switch {
	case s.pool != nil:
		loader = pgstore.NewLessonLoader(s.pool)
	case cfg.Lessons.Dir != "":
		loader = fsdoc.NewLoader(cfg.Lessons.Dir)
	default:
		loader = memory.NewStaticLessonLoader(sampleLessons())
	}

	lessonTTL := config.TTLDuration(cfg.Lessons.TTL, 10*time.Minute)
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)
	if s.redis != nil {
		s.lessons = redisstore.NewLessonRepository(s.redis, loader, lessonTTL)
		s.sessions = redisstore.NewSessionStore(s.redis, redisTTL)
	} else {
		s.lessons = memory.NewLessonRepository(loader, lessonTTL)
		s.sessions = memory.NewSessionStore()
	}
	return s, nil
}

func (s *stack) openProgress() (progressBackend, error) {
	switch s.cfg.Storage.Driver {
	case "", "memory":
		return memory.NewStore(), nil
	case "redis":
		if s.redis == nil {
			return nil, fmt.Errorf("storage driver redis needs redis.addr")
		}
		return redisstore.NewStore(s.redis, 0), nil
	case "sqlite":
		path := s.cfg.Storage.SQLitePath
		if path == "" {
			path = "data/progress.db"
		}
		store, err := sqlite.Open(path)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() { _ = store.Close() })
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", s.cfg.Storage.Driver)
	}
}

// broadcaster publishes cross-instance when Redis is configured.
func (s *stack) broadcaster() app.Broadcaster {
	if s.bus != nil {
		return s.bus
	}
	return s.localBus
}

func (s *stack) trackerOptions() app.TrackerOptions {
	t := s.cfg.Tracking
	return app.TrackerOptions{
		ScrollOffset:  t.ScrollOffset,
		RestoreOffset: t.RestoreOffset,
		RetryAttempts: t.RetryAttempts,
		RetryDelay:    config.TTLDuration(t.RetryDelay, 0),
		Debounce:      config.TTLDuration(t.Debounce, 0),
	}
}

// service wires the lesson use cases over the stack.
func (s *stack) service() *app.LessonService {
	ledger := app.NewLedger(s.progress, s.log)
	bridge := app.NewBridge(s.sink, s.broadcaster(), s.log)
	return app.NewLessonService(s.lessons, s.sessions, ledger, s.progress, bridge, s.trackerOptions(), s.log)
}

// Close releases connections in reverse order.
func (s *stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

func openBun(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

// sampleLessons is served when no lesson source is configured.
func sampleLessons() map[string]domain.Lesson {
	para := func(text string) []domain.Element {
		return []domain.Element{{Type: "paragraph", Content: text}}
	}
	return map[string]domain.Lesson{
		"demo-1": {
			ID:     "demo-1",
			Header: domain.Header{Title: "Fractions", Class: "demo", Chapter: "1"},
			Sections: []domain.Section{
				{Title: "Découvrir", Subsections: []domain.Subsection{
					{Title: "Partager une unité", Elements: para("Une fraction partage une unité en parts égales.")},
					{Title: "Lire une fraction", Elements: para("Le dénominateur compte les parts.")},
				}},
				{Title: "S'entraîner", Subsections: []domain.Subsection{
					{Title: "Comparer", Elements: para("Même dénominateur, on compare les numérateurs.")},
				}},
			},
		},
	}
}
