package http

import (
	"time"

	"lesson-progress-service/internal/app"
	"lesson-progress-service/internal/domain"
	"lesson-progress-service/internal/infra/memory"
)

func newTestService() (*app.LessonService, *memory.ProgressSink) {
	store := memory.NewStore()
	sink := memory.NewProgressSink()
	ledger := app.NewLedger(store, nil)
	bridge := app.NewBridge(sink, memory.NewEventBus(), nil)
	lessons := memory.NewLessonRepository(memory.NewStaticLessonLoader(map[string]domain.Lesson{
		"6e-1": sampleLesson(),
	}), time.Minute)
	service := app.NewLessonService(lessons, memory.NewSessionStore(), ledger, store, bridge, app.TrackerOptions{
		RetryAttempts: 2,
		RetryDelay:    10 * time.Millisecond,
		Debounce:      10 * time.Millisecond,
	}, nil)
	return service, sink
}

func sampleLesson() domain.Lesson {
	para := []domain.Element{{Type: "paragraph", Content: "text"}}
	return domain.Lesson{
		ID:     "6e-1",
		Header: domain.Header{Title: "Fractions", Class: "6e", Chapter: "1"},
		Sections: []domain.Section{
			{Title: "Intro", Subsections: []domain.Subsection{
				{Title: "Basics", Elements: para},
				{Title: "Details", Elements: para},
			}},
			{Title: "Practice", Subsections: []domain.Subsection{
				{Title: "Drills", Elements: para},
			}},
		},
	}
}
