package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lesson-progress-service/internal/app"
	"lesson-progress-service/internal/domain"
	"lesson-progress-service/internal/infra/memory"
)

func TestBuildUpdate(t *testing.T) {
	update := app.BuildUpdate(lessonID,
		domain.Summary{Total: 4, Completed: 3, Percentage: 75},
		domain.Summary{Total: 2, Completed: 1, Percentage: 50})
	require.Equal(t, domain.LessonProgressUpdate{
		ChapterID:           lessonID,
		CompletedParagraphs: 3,
		TotalParagraphs:     4,
		CompletedSections:   1,
		TotalSections:       2,
		ChecklistPercentage: 75,
		IsRead:              false,
	}, update)

	read := app.BuildUpdate(lessonID, domain.Summary{Total: 1, Completed: 1, Percentage: 100}, domain.Summary{Total: 1, Completed: 1, Percentage: 100})
	require.True(t, read.IsRead)
	require.False(t, app.BuildUpdate(lessonID, domain.Summary{}, domain.Summary{}).IsRead)
}

func TestBridgeDeduplicatesPushes(t *testing.T) {
	ctx := context.Background()
	sink := memory.NewProgressSink()
	bridge := app.NewBridge(sink, nil, nil)

	update := domain.LessonProgressUpdate{ChapterID: lessonID, TotalParagraphs: 2, CompletedParagraphs: 1, ChecklistPercentage: 50}
	require.True(t, bridge.PushSummary(ctx, update))
	require.False(t, bridge.PushSummary(ctx, update))
	require.Equal(t, 1, sink.Pushes())

	update.CompletedParagraphs = 2
	update.ChecklistPercentage = 100
	require.True(t, bridge.PushSummary(ctx, update))
	require.Equal(t, 2, sink.Pushes())

	bridge.Forget(lessonID)
	require.True(t, bridge.PushSummary(ctx, update))
	require.Equal(t, 3, sink.Pushes())
}

func TestBridgeRetriesAfterFailedPush(t *testing.T) {
	ctx := context.Background()
	sink := &failingSink{}
	bridge := app.NewBridge(sink, nil, nil)

	update := domain.LessonProgressUpdate{ChapterID: lessonID, TotalParagraphs: 1}
	require.False(t, bridge.PushSummary(ctx, update))
	require.False(t, bridge.PushSummary(ctx, update))
	require.Equal(t, 2, sink.calls, "a failed push is not remembered")
}

func TestBridgeBroadcasts(t *testing.T) {
	bus := memory.NewEventBus()
	events, cancel := bus.Subscribe(4)
	defer cancel()

	app.NewBridge(nil, bus, nil).Broadcast(context.Background(), domain.ProgressChanged{EventID: "e1", LessonID: lessonID})
	select {
	case ev := <-events:
		require.Equal(t, "e1", ev.EventID)
	case <-time.After(time.Second):
		t.Fatalf("expected broadcast")
	}
}

func TestQuizGate(t *testing.T) {
	gate := app.NewQuizGate(0)
	require.Equal(t, app.DefaultUnlockThreshold, gate.Threshold)

	require.False(t, gate.Unlocked(domain.LessonProgressUpdate{TotalParagraphs: 20, ChecklistPercentage: 94}))
	require.True(t, gate.Unlocked(domain.LessonProgressUpdate{TotalParagraphs: 20, ChecklistPercentage: 95}))
	require.True(t, gate.Unlocked(domain.LessonProgressUpdate{IsRead: true}))
	require.False(t, gate.Unlocked(domain.LessonProgressUpdate{}))

	require.True(t, app.NewQuizGate(50).Unlocked(domain.LessonProgressUpdate{TotalParagraphs: 2, ChecklistPercentage: 50}))
}

func TestStageGateFollowsSignals(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := memory.NewProgressSink()
	bus := memory.NewEventBus()
	events, unsubscribe := bus.Subscribe(8)
	defer unsubscribe()

	stage := app.NewStageGate(app.NewQuizGate(0), sink, nil)
	done := make(chan struct{})
	go func() {
		defer close(done)
		stage.Run(ctx, events)
	}()

	require.False(t, stage.Unlocked(lessonID))

	require.NoError(t, sink.UpdateLessonProgress(ctx, domain.LessonProgressUpdate{ChapterID: lessonID, TotalParagraphs: 3, CompletedParagraphs: 3, ChecklistPercentage: 100, IsRead: true}))
	require.NoError(t, bus.Publish(ctx, domain.ProgressChanged{LessonID: lessonID}))

	require.Eventually(t, func() bool { return stage.Unlocked(lessonID) }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("stage gate did not stop")
	}
}
