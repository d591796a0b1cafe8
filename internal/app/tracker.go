package app

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"lesson-progress-service/internal/domain"
	"lesson-progress-service/internal/logger"
	"lesson-progress-service/internal/outline"
)

// MetaStore persists the last visited position per lesson.
type MetaStore interface {
	LoadMeta(ctx context.Context, lessonID string) (domain.LastVisited, bool, error)
	SaveMeta(ctx context.Context, lessonID string, meta domain.LastVisited) error
	DeleteMeta(ctx context.Context, lessonID string) error
}

// Scroller brings an anchor into view and then scrolls back by offset pixels to
// clear a fixed header. It returns domain.ErrAnchorNotMounted when the anchor is
// not rendered yet.
type Scroller interface {
	ScrollTo(ctx context.Context, anchorID string, offset int) error
}

type noopScroller struct{}

func (noopScroller) ScrollTo(context.Context, string, int) error { return nil }

// TrackerOptions tunes scrolling and debouncing. Zero values take defaults,
// except the offsets where only nil does; a pointer to 0 disables the header
// correction.
type TrackerOptions struct {
	ScrollOffset  *int
	RestoreOffset *int
	RetryAttempts int
	RetryDelay    time.Duration
	Debounce      time.Duration
}

func (o TrackerOptions) withDefaults() TrackerOptions {
	o.ScrollOffset = offsetOr(o.ScrollOffset, 72)
	o.RestoreOffset = offsetOr(o.RestoreOffset, 96)
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = 5
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 200 * time.Millisecond
	}
	if o.Debounce <= 0 {
		o.Debounce = time.Second
	}
	return o
}

func offsetOr(v *int, fallback int) *int {
	n := fallback
	if v != nil {
		n = *v
	}
	if n < 0 {
		n = 0
	}
	return &n
}

// PositionTracker keeps the active section/subsection of one lesson consistent
// with its outline. Manual selection and viewport reports go through the same
// setters.
type PositionTracker struct {
	lessonID string
	meta     MetaStore
	opts     TrackerOptions
	log      *logger.Logger
	now      func() time.Time
	onChange func(domain.Position)

	mu            sync.Mutex
	outline       *outline.Outline
	pos           domain.Position
	hydrated      bool
	closed        bool
	scroller      Scroller
	scrollPercent *int
	restoreCancel context.CancelFunc
	debounce      *time.Timer
	debounceGen   int
}

func NewPositionTracker(lessonID string, meta MetaStore, opts TrackerOptions, log *logger.Logger, onChange func(domain.Position)) *PositionTracker {
	if onChange == nil {
		onChange = func(domain.Position) {}
	}
	return &PositionTracker{
		lessonID: lessonID,
		meta:     meta,
		opts:     opts.withDefaults(),
		log:      logger.OrNop(log).With("component", "tracker", "lesson_id", lessonID),
		now:      time.Now,
		onChange: onChange,
		scroller: noopScroller{},
	}
}

// SetScroller swaps the UI collaborator used for scrolling.
func (t *PositionTracker) SetScroller(s Scroller) {
	if s == nil {
		s = noopScroller{}
	}
	t.mu.Lock()
	t.scroller = s
	t.mu.Unlock()
}

// Hydrate adopts the persisted last-visited position when it is still valid for
// o, otherwise the outline's first section and subsection. It does not write.
func (t *PositionTracker) Hydrate(ctx context.Context, o *outline.Outline) domain.Position {
	t.mu.Lock()
	t.cancelRestoreLocked()
	t.outline = o
	t.hydrated = true

	var pos domain.Position
	if !o.Empty() {
		meta, ok, err := t.meta.LoadMeta(ctx, t.lessonID)
		if err != nil {
			t.log.Warn("load last visited failed", "error", err)
		}
		if ok {
			t.scrollPercent = meta.ScrollPercent
		}
		pos = o.Resolve(meta.LastSectionID, meta.LastSubsectionID)
	}
	t.pos = pos
	t.mu.Unlock()

	t.onChange(pos)
	return pos
}

// Rebind switches to a revised outline, cancelling pending restores and
// re-validating the active ids.
func (t *PositionTracker) Rebind(ctx context.Context, o *outline.Outline) domain.Position {
	t.mu.Lock()
	t.cancelRestoreLocked()
	t.outline = o
	next := o.Resolve(t.pos.SectionID, t.pos.SubsectionID)
	changed := t.applyLocked(ctx, next)
	t.mu.Unlock()

	if changed {
		t.onChange(next)
	}
	return next
}

func (t *PositionTracker) Position() domain.Position {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pos
}

// SetActiveSection ignores ids outside the outline. When the current subsection
// does not belong to the new section it moves to that section's first one.
func (t *PositionTracker) SetActiveSection(ctx context.Context, sectionID string) bool {
	t.mu.Lock()
	if !t.readyLocked() {
		t.mu.Unlock()
		return false
	}
	section, ok := t.outline.Section(sectionID)
	if !ok {
		t.mu.Unlock()
		return false
	}
	next := domain.Position{SectionID: section.ID}
	if parent, ok := t.outline.ParentSection(t.pos.SubsectionID); ok && parent == section.ID {
		next.SubsectionID = t.pos.SubsectionID
	} else if len(section.Subsections) > 0 {
		next.SubsectionID = section.Subsections[0].ID
	}
	changed := t.applyLocked(ctx, next)
	t.mu.Unlock()

	if changed {
		t.onChange(next)
	}
	return true
}

// SetActiveSubsection also moves the active section to the subsection's parent.
func (t *PositionTracker) SetActiveSubsection(ctx context.Context, subsectionID string) bool {
	t.mu.Lock()
	if !t.readyLocked() {
		t.mu.Unlock()
		return false
	}
	parent, ok := t.outline.ParentSection(subsectionID)
	if !ok {
		t.mu.Unlock()
		return false
	}
	next := domain.Position{SectionID: parent, SubsectionID: subsectionID}
	changed := t.applyLocked(ctx, next)
	t.mu.Unlock()

	if changed {
		t.onChange(next)
	}
	return true
}

// ReportVisibility picks the most visible intersecting element: highest ratio,
// then closest to the viewport top, then earliest in document order. A
// subsection candidate wins over a section candidate.
func (t *PositionTracker) ReportVisibility(ctx context.Context, samples []domain.Visibility) bool {
	t.mu.Lock()
	if !t.readyLocked() {
		t.mu.Unlock()
		return false
	}
	o := t.outline
	t.mu.Unlock()

	var sections, subsections []domain.Visibility
	for _, s := range samples {
		if !s.Intersecting || s.Ratio <= 0 {
			continue
		}
		if _, ok := o.Subsection(s.ID); ok {
			subsections = append(subsections, s)
		} else if _, ok := o.Section(s.ID); ok {
			sections = append(sections, s)
		}
	}

	if best, ok := mostVisible(o, subsections); ok {
		return t.SetActiveSubsection(ctx, best.ID)
	}
	if best, ok := mostVisible(o, sections); ok {
		return t.SetActiveSection(ctx, best.ID)
	}
	return false
}

func mostVisible(o *outline.Outline, candidates []domain.Visibility) (domain.Visibility, bool) {
	if len(candidates) == 0 {
		return domain.Visibility{}, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if betterCandidate(o, c, best) {
			best = c
		}
	}
	return best, true
}

func betterCandidate(o *outline.Outline, a, b domain.Visibility) bool {
	if a.Ratio != b.Ratio {
		return a.Ratio > b.Ratio
	}
	da, db := math.Abs(a.Top), math.Abs(b.Top)
	if da != db {
		return da < db
	}
	oa, _ := o.Order(a.ID)
	ob, _ := o.Order(b.ID)
	return oa < ob
}

// ScrollToAnchor scrolls once. A negative offset uses the configured default.
func (t *PositionTracker) ScrollToAnchor(ctx context.Context, anchorID string, offset int) error {
	t.mu.Lock()
	scroller := t.scroller
	if offset < 0 {
		offset = *t.opts.ScrollOffset
	}
	t.mu.Unlock()
	return scroller.ScrollTo(ctx, anchorID, offset)
}

// RestorePosition scrolls to the active subsection (or section) with bounded
// exponential retries while the content mounts. A later call, a rebind or
// Close cancels it. The returned channel closes when the attempt ends.
func (t *PositionTracker) RestorePosition(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})

	t.mu.Lock()
	anchor := t.pos.SubsectionID
	if anchor == "" {
		anchor = t.pos.SectionID
	}
	if t.closed || anchor == "" {
		t.mu.Unlock()
		close(done)
		return done
	}
	t.cancelRestoreLocked()
	rctx, cancel := context.WithCancel(ctx)
	t.restoreCancel = cancel
	scroller := t.scroller
	offset := *t.opts.RestoreOffset
	attempts := t.opts.RetryAttempts
	delay := t.opts.RetryDelay
	t.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()

		policy := backoff.NewExponentialBackOff()
		policy.InitialInterval = delay
		policy.RandomizationFactor = 0
		policy.Multiplier = 1.5
		policy.MaxElapsedTime = 0

		op := func() error {
			if rctx.Err() != nil {
				return backoff.Permanent(rctx.Err())
			}
			err := scroller.ScrollTo(rctx, anchor, offset)
			if err == nil || errors.Is(err, domain.ErrAnchorNotMounted) {
				return err
			}
			return backoff.Permanent(err)
		}
		b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(attempts-1)), rctx)
		if err := backoff.Retry(op, b); err != nil {
			t.log.Debug("restore scroll abandoned", "anchor", anchor, "error", err)
		}
	}()
	return done
}

// RecordScrollProgress stores the reading percentage after the debounce delay.
// Only the last value of a burst is written.
func (t *PositionTracker) RecordScrollProgress(percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || !t.hydrated {
		return
	}
	if t.debounce != nil {
		t.debounce.Stop()
	}
	t.debounceGen++
	gen := t.debounceGen
	t.debounce = time.AfterFunc(t.opts.Debounce, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.closed || gen != t.debounceGen {
			return
		}
		p := percent
		t.scrollPercent = &p
		t.persistLocked(context.Background())
	})
}

// Close cancels pending scroll retries and debounce timers.
func (t *PositionTracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.cancelRestoreLocked()
	if t.debounce != nil {
		t.debounce.Stop()
		t.debounce = nil
	}
	t.debounceGen++
}

func (t *PositionTracker) readyLocked() bool {
	return !t.closed && t.hydrated && t.outline != nil && !t.outline.Empty()
}

func (t *PositionTracker) cancelRestoreLocked() {
	if t.restoreCancel != nil {
		t.restoreCancel()
		t.restoreCancel = nil
	}
}

func (t *PositionTracker) applyLocked(ctx context.Context, next domain.Position) bool {
	if next == t.pos {
		return false
	}
	t.pos = next
	if t.hydrated {
		t.persistLocked(ctx)
	}
	return true
}

func (t *PositionTracker) persistLocked(ctx context.Context) {
	if t.pos.SectionID == "" && t.pos.SubsectionID == "" {
		if err := t.meta.DeleteMeta(ctx, t.lessonID); err != nil {
			t.log.Warn("delete last visited failed", "error", err)
		}
		return
	}
	meta := domain.LastVisited{
		LastSectionID:    t.pos.SectionID,
		LastSubsectionID: t.pos.SubsectionID,
		ScrollPercent:    t.scrollPercent,
		UpdatedAt:        t.now().UnixMilli(),
	}
	if err := t.meta.SaveMeta(ctx, t.lessonID, meta); err != nil {
		t.log.Warn("save last visited failed", "error", err)
	}
}
