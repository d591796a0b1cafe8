package app

import (
	"context"
	"sync"

	"lesson-progress-service/internal/domain"
	"lesson-progress-service/internal/logger"
	"lesson-progress-service/internal/outline"
)

// LessonRepository loads lesson documents (from cache/backing store).
type LessonRepository interface {
	GetLesson(ctx context.Context, lessonID string) (domain.Lesson, error)
	Invalidate(ctx context.Context, lessonID string) error
}

// SessionRepository abstracts where open lesson sessions live (in-memory, Redis, etc).
type SessionRepository interface {
	GetOrCreate(lessonID string, create func(lessonID string) *LessonSession) (*LessonSession, bool)
	// GetOrCreateAttached is GetOrCreate plus Retain on the returned session,
	// atomically with respect to DeleteIfIdle.
	GetOrCreateAttached(lessonID string, create func(lessonID string) *LessonSession) (*LessonSession, bool)
	Get(lessonID string) (*LessonSession, bool)
	// DeleteIfIdle removes the session when it has no viewers and returns it.
	DeleteIfIdle(lessonID string) (*LessonSession, bool)
	List() []*LessonSession
}

// LessonService contains the lesson progress use cases.
type LessonService struct {
	lessons  LessonRepository
	sessions SessionRepository
	ledger   *Ledger
	meta     MetaStore
	bridge   *Bridge
	outlines *outline.Cache
	opts     TrackerOptions
	log      *logger.Logger
}

func NewLessonService(lessons LessonRepository, sessions SessionRepository, ledger *Ledger, meta MetaStore, bridge *Bridge, opts TrackerOptions, log *logger.Logger) *LessonService {
	if bridge == nil {
		bridge = NewBridge(nil, nil, log)
	}
	return &LessonService{
		lessons:  lessons,
		sessions: sessions,
		ledger:   ledger,
		meta:     meta,
		bridge:   bridge,
		outlines: outline.NewCache(),
		opts:     opts,
		log:      logger.OrNop(log).With("component", "lesson_service"),
	}
}

// Ledger exposes the progress ledger shared by every session.
func (s *LessonService) Ledger() *Ledger { return s.ledger }

// Open returns the session for lessonID, loading and binding the lesson on first
// use. A changed document identity rebinds the existing session.
func (s *LessonService) Open(ctx context.Context, lessonID string) (*LessonSession, error) {
	doc, o, err := s.load(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	session, created := s.sessions.GetOrCreate(lessonID, s.newSession)
	if created {
		s.log.Info("lesson session opened", "lesson_id", lessonID)
	}
	session.install(ctx, doc, o)
	return session, nil
}

// Acquire opens the session with a viewer attached. The release function
// detaches it and closes the session once the last viewer left.
func (s *LessonService) Acquire(ctx context.Context, lessonID string, scroller Scroller) (*LessonSession, func(), error) {
	doc, o, err := s.load(ctx, lessonID)
	if err != nil {
		return nil, nil, err
	}
	session, created := s.sessions.GetOrCreateAttached(lessonID, s.newSession)
	if created {
		s.log.Info("lesson session opened", "lesson_id", lessonID)
	}
	if scroller != nil {
		session.tracker.SetScroller(scroller)
	}
	session.install(ctx, doc, o)

	var once sync.Once
	release := func() {
		once.Do(func() {
			if !session.detach() {
				return
			}
			if idle, ok := s.sessions.DeleteIfIdle(lessonID); ok {
				idle.Close()
				s.outlines.Forget(lessonID)
				s.log.Info("lesson session closed", "lesson_id", lessonID)
			}
		})
	}
	return session, release, nil
}

func (s *LessonService) load(ctx context.Context, lessonID string) (domain.Lesson, *outline.Outline, error) {
	doc, err := s.lessons.GetLesson(ctx, lessonID)
	if err != nil {
		return domain.Lesson{}, nil, err
	}
	if doc.ID == "" {
		doc.ID = lessonID
	}
	o, rebuilt := s.outlines.Get(doc)
	if rebuilt {
		s.log.Debug("outline built", "lesson_id", lessonID, "nodes", len(o.NodeIDs()), "sections", len(o.Sections()))
	}
	return doc, o, nil
}

// Get returns an already open session.
func (s *LessonService) Get(_ context.Context, lessonID string) (*LessonSession, error) {
	session, ok := s.sessions.Get(lessonID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// Refresh drops the cached document and reloads it. An open session is rebound
// when the document changed.
func (s *LessonService) Refresh(ctx context.Context, lessonID string) (*outline.Outline, error) {
	if err := s.lessons.Invalidate(ctx, lessonID); err != nil {
		s.log.Warn("invalidate lesson failed", "lesson_id", lessonID, "error", err)
	}
	doc, o, err := s.load(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if session, ok := s.sessions.Get(lessonID); ok {
		session.install(ctx, doc, o)
	}
	return o, nil
}

// ResetProgress deletes the stored progress and last visited position of a
// lesson. An open session drops back to the first section.
func (s *LessonService) ResetProgress(ctx context.Context, lessonID string) {
	s.ledger.Clear(ctx, lessonID)
	if err := s.meta.DeleteMeta(ctx, lessonID); err != nil {
		s.log.Warn("delete last visited failed", "lesson_id", lessonID, "error", err)
	}
	s.bridge.Forget(lessonID)

	if session, ok := s.sessions.Get(lessonID); ok {
		session.reset(ctx)
	}
}

// Close closes every open session.
func (s *LessonService) Close() {
	for _, session := range s.sessions.List() {
		session.Close()
	}
}

func (s *LessonService) newSession(lessonID string) *LessonSession {
	return newLessonSession(lessonID, s.ledger, s.meta, s.bridge, s.opts, s.log)
}

// NewLessonSession is exported for infrastructure layers that need to seed sessions.
func NewLessonSession(lessonID string, ledger *Ledger, meta MetaStore, bridge *Bridge, opts TrackerOptions, log *logger.Logger) *LessonSession {
	if bridge == nil {
		bridge = NewBridge(nil, nil, log)
	}
	return newLessonSession(lessonID, ledger, meta, bridge, opts, log)
}
