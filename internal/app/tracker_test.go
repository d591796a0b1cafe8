package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lesson-progress-service/internal/app"
	"lesson-progress-service/internal/domain"
	"lesson-progress-service/internal/infra/memory"
	"lesson-progress-service/internal/outline"
)

const (
	secAlpha = "section-1-alpha"
	secBeta  = "section-2-beta"
	subOne   = "section-1-sub-1-one"
	subTwo   = "section-1-sub-2-two"
	subThree = "section-2-sub-1-three"
)

// flakyScroller reports anchors as unmounted for the first failures calls.
type flakyScroller struct {
	mu       sync.Mutex
	failures int
	calls    int
	anchors  []string
	offsets  []int
}

func (s *flakyScroller) ScrollTo(_ context.Context, anchorID string, offset int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.anchors = append(s.anchors, anchorID)
	s.offsets = append(s.offsets, offset)
	if s.calls <= s.failures {
		return domain.ErrAnchorNotMounted
	}
	return nil
}

func (s *flakyScroller) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newTracker(t *testing.T, meta *memory.Store, opts app.TrackerOptions) (*app.PositionTracker, *[]domain.Position) {
	t.Helper()
	var mu sync.Mutex
	changes := &[]domain.Position{}
	tracker := app.NewPositionTracker(lessonID, meta, opts, nil, func(p domain.Position) {
		mu.Lock()
		*changes = append(*changes, p)
		mu.Unlock()
	})
	t.Cleanup(tracker.Close)
	return tracker, changes
}

func TestHydrateDefaultsToFirstWithoutWriting(t *testing.T) {
	meta := memory.NewStore()
	tracker, changes := newTracker(t, meta, app.TrackerOptions{})

	pos := tracker.Hydrate(context.Background(), outline.Build(sampleLesson()))
	require.Equal(t, domain.Position{SectionID: secAlpha, SubsectionID: subOne}, pos)
	require.Equal(t, pos, tracker.Position())
	require.Zero(t, meta.Writes())
	require.Len(t, *changes, 1)
}

func TestHydrateRestoresValidLastVisited(t *testing.T) {
	ctx := context.Background()
	meta := memory.NewStore()
	require.NoError(t, meta.SaveMeta(ctx, lessonID, domain.LastVisited{LastSectionID: secBeta, LastSubsectionID: subThree}))
	tracker, _ := newTracker(t, meta, app.TrackerOptions{})

	pos := tracker.Hydrate(ctx, outline.Build(sampleLesson()))
	require.Equal(t, domain.Position{SectionID: secBeta, SubsectionID: subThree}, pos)
}

func TestHydrateIgnoresStaleLastVisited(t *testing.T) {
	ctx := context.Background()
	meta := memory.NewStore()
	require.NoError(t, meta.SaveMeta(ctx, lessonID, domain.LastVisited{LastSectionID: "section-9-gone", LastSubsectionID: "section-9-sub-1-gone"}))
	tracker, _ := newTracker(t, meta, app.TrackerOptions{})

	pos := tracker.Hydrate(ctx, outline.Build(sampleLesson()))
	require.Equal(t, domain.Position{SectionID: secAlpha, SubsectionID: subOne}, pos)
}

func TestHydrateEmptyOutline(t *testing.T) {
	tracker, _ := newTracker(t, memory.NewStore(), app.TrackerOptions{})
	pos := tracker.Hydrate(context.Background(), outline.Build(domain.Lesson{ID: lessonID}))
	require.Equal(t, domain.Position{}, pos)
	require.False(t, tracker.SetActiveSection(context.Background(), secAlpha))
}

func TestSelectionKeepsSectionAndSubsectionConsistent(t *testing.T) {
	ctx := context.Background()
	meta := memory.NewStore()
	tracker, _ := newTracker(t, meta, app.TrackerOptions{})
	tracker.Hydrate(ctx, outline.Build(sampleLesson()))

	require.True(t, tracker.SetActiveSubsection(ctx, subThree))
	require.Equal(t, domain.Position{SectionID: secBeta, SubsectionID: subThree}, tracker.Position())

	require.True(t, tracker.SetActiveSection(ctx, secAlpha))
	require.Equal(t, domain.Position{SectionID: secAlpha, SubsectionID: subOne}, tracker.Position())

	require.True(t, tracker.SetActiveSubsection(ctx, subTwo))
	require.True(t, tracker.SetActiveSection(ctx, secAlpha))
	require.Equal(t, domain.Position{SectionID: secAlpha, SubsectionID: subTwo}, tracker.Position(), "subsection of the same section is kept")

	require.False(t, tracker.SetActiveSection(ctx, "section-9-nope"))
	require.False(t, tracker.SetActiveSubsection(ctx, "section-1-sub-9-nope"))
	require.Equal(t, domain.Position{SectionID: secAlpha, SubsectionID: subTwo}, tracker.Position())

	saved, ok, err := meta.LoadMeta(ctx, lessonID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, secAlpha, saved.LastSectionID)
	require.Equal(t, subTwo, saved.LastSubsectionID)
}

func TestReportVisibilityPicksMostVisible(t *testing.T) {
	ctx := context.Background()
	tracker, _ := newTracker(t, memory.NewStore(), app.TrackerOptions{})
	tracker.Hydrate(ctx, outline.Build(sampleLesson()))

	require.True(t, tracker.ReportVisibility(ctx, []domain.Visibility{
		{ID: secAlpha, Intersecting: true, Ratio: 0.9, Top: 0},
		{ID: subOne, Intersecting: true, Ratio: 0.5, Top: 40},
		{ID: subThree, Intersecting: true, Ratio: 0.5, Top: -5},
		{ID: subTwo, Intersecting: false, Ratio: 1, Top: 0},
	}))
	require.Equal(t, domain.Position{SectionID: secBeta, SubsectionID: subThree}, tracker.Position())

	// full tie falls back to document order
	require.True(t, tracker.ReportVisibility(ctx, []domain.Visibility{
		{ID: subThree, Intersecting: true, Ratio: 0.3, Top: 10},
		{ID: subTwo, Intersecting: true, Ratio: 0.3, Top: -10},
	}))
	require.Equal(t, subTwo, tracker.Position().SubsectionID)

	// only a section in view
	require.True(t, tracker.ReportVisibility(ctx, []domain.Visibility{{ID: secBeta, Intersecting: true, Ratio: 0.2}}))
	require.Equal(t, domain.Position{SectionID: secBeta, SubsectionID: subThree}, tracker.Position())

	require.False(t, tracker.ReportVisibility(ctx, []domain.Visibility{{ID: "unknown", Intersecting: true, Ratio: 1}}))
}

func TestRestorePositionRetriesUntilMounted(t *testing.T) {
	ctx := context.Background()
	tracker, _ := newTracker(t, memory.NewStore(), app.TrackerOptions{RetryAttempts: 5, RetryDelay: 5 * time.Millisecond})
	tracker.Hydrate(ctx, outline.Build(sampleLesson()))
	scroller := &flakyScroller{failures: 2}
	tracker.SetScroller(scroller)

	select {
	case <-tracker.RestorePosition(ctx):
	case <-time.After(2 * time.Second):
		t.Fatalf("restore did not finish")
	}
	require.Equal(t, 3, scroller.count())
	require.Equal(t, []string{subOne, subOne, subOne}, scroller.anchors)
	require.Equal(t, 96, scroller.offsets[0])
}

func TestRestorePositionGivesUp(t *testing.T) {
	ctx := context.Background()
	tracker, _ := newTracker(t, memory.NewStore(), app.TrackerOptions{RetryAttempts: 3, RetryDelay: time.Millisecond})
	tracker.Hydrate(ctx, outline.Build(sampleLesson()))
	scroller := &flakyScroller{failures: 100}
	tracker.SetScroller(scroller)

	<-tracker.RestorePosition(ctx)
	require.Equal(t, 3, scroller.count())
}

func TestRestorePositionStopsOnOtherErrors(t *testing.T) {
	ctx := context.Background()
	tracker, _ := newTracker(t, memory.NewStore(), app.TrackerOptions{RetryAttempts: 5, RetryDelay: time.Millisecond})
	tracker.Hydrate(ctx, outline.Build(sampleLesson()))
	calls := 0
	tracker.SetScroller(scrollFunc(func(context.Context, string, int) error {
		calls++
		return errors.New("viewport gone")
	}))

	<-tracker.RestorePosition(ctx)
	require.Equal(t, 1, calls)
}

func TestCloseCancelsRestore(t *testing.T) {
	ctx := context.Background()
	tracker, _ := newTracker(t, memory.NewStore(), app.TrackerOptions{RetryAttempts: 100, RetryDelay: 50 * time.Millisecond})
	tracker.Hydrate(ctx, outline.Build(sampleLesson()))
	scroller := &flakyScroller{failures: 1000}
	tracker.SetScroller(scroller)

	done := tracker.RestorePosition(ctx)
	tracker.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("restore was not cancelled")
	}
	require.Less(t, scroller.count(), 5)
}

func TestScrollToAnchorUsesDefaultOffset(t *testing.T) {
	ctx := context.Background()
	tracker, _ := newTracker(t, memory.NewStore(), app.TrackerOptions{})
	scroller := &flakyScroller{}
	tracker.SetScroller(scroller)

	require.NoError(t, tracker.ScrollToAnchor(ctx, secBeta, -1))
	require.NoError(t, tracker.ScrollToAnchor(ctx, secBeta, 0))
	require.Equal(t, []int{72, 0}, scroller.offsets)
}

func TestZeroOffsetsDisableHeaderCorrection(t *testing.T) {
	ctx := context.Background()
	zero := 0
	tracker, _ := newTracker(t, memory.NewStore(), app.TrackerOptions{
		ScrollOffset:  &zero,
		RestoreOffset: &zero,
		RetryAttempts: 1,
		RetryDelay:    time.Millisecond,
	})
	tracker.Hydrate(ctx, outline.Build(sampleLesson()))
	scroller := &flakyScroller{}
	tracker.SetScroller(scroller)

	require.NoError(t, tracker.ScrollToAnchor(ctx, secBeta, -1))
	<-tracker.RestorePosition(ctx)
	require.Equal(t, []int{0, 0}, scroller.offsets)
	require.Equal(t, []string{secBeta, subOne}, scroller.anchors)
}

func TestRecordScrollProgressDebounces(t *testing.T) {
	ctx := context.Background()
	meta := memory.NewStore()
	tracker, _ := newTracker(t, meta, app.TrackerOptions{Debounce: 20 * time.Millisecond})
	tracker.Hydrate(ctx, outline.Build(sampleLesson()))

	tracker.RecordScrollProgress(10)
	tracker.RecordScrollProgress(20)
	tracker.RecordScrollProgress(130)

	require.Eventually(t, func() bool {
		saved, ok, _ := meta.LoadMeta(ctx, lessonID)
		return ok && saved.ScrollPercent != nil && *saved.ScrollPercent == 100
	}, time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, meta.Writes())
}

type scrollFunc func(ctx context.Context, anchorID string, offset int) error

func (f scrollFunc) ScrollTo(ctx context.Context, anchorID string, offset int) error {
	return f(ctx, anchorID, offset)
}
