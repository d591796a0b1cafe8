package app

import (
	"context"
	"sync"

	"lesson-progress-service/internal/domain"
	"lesson-progress-service/internal/logger"
	"lesson-progress-service/internal/outline"
)

// Update kinds pushed to session subscribers.
const (
	UpdateOutline  = "outline"
	UpdateProgress = "progress"
	UpdatePosition = "position"
)

// Progress is the aggregate view of a lesson at one point in time.
type Progress struct {
	LessonID            string                    `json:"lessonId"`
	Lesson              domain.Summary            `json:"lesson"`
	Sections            domain.Summary            `json:"sections"`
	SectionSummaries    map[string]domain.Summary `json:"sectionSummaries"`
	SubsectionSummaries map[string]domain.Summary `json:"subsectionSummaries"`
	CompletedNodeIDs    []string                  `json:"completedNodeIds"`
}

// Update is what session subscribers receive.
type Update struct {
	Kind     string                  `json:"kind"`
	LessonID string                  `json:"lessonId"`
	Outline  []outline.Section       `json:"outline,omitempty"`
	Progress *Progress               `json:"progress,omitempty"`
	Position *domain.Position        `json:"position,omitempty"`
	Changed  *domain.ProgressChanged `json:"changed,omitempty"`
}

// LessonSession binds one lesson's outline, ledger view, aggregation and active
// position, and fans updates out to its viewers.
type LessonSession struct {
	id      string
	ledger  *Ledger
	bridge  *Bridge
	tracker *PositionTracker
	log     *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	bindMu sync.Mutex
	bound  bool

	applyMu sync.Mutex
	applied uint64

	mu          sync.RWMutex
	lesson      domain.Lesson
	outline     *outline.Outline
	agg         *Aggregator
	viewers     int
	closed      bool
	unsubscribe func()

	subMu       sync.Mutex
	subscribers map[chan Update]struct{}
}

func newLessonSession(id string, ledger *Ledger, meta MetaStore, bridge *Bridge, opts TrackerOptions, log *logger.Logger) *LessonSession {
	ctx, cancel := context.WithCancel(context.Background())
	s := &LessonSession{
		id:          id,
		ledger:      ledger,
		bridge:      bridge,
		log:         logger.OrNop(log).With("lesson_id", id),
		ctx:         ctx,
		cancel:      cancel,
		outline:     outline.Build(domain.Lesson{ID: id}),
		agg:         NewAggregator(nil),
		subscribers: make(map[chan Update]struct{}),
	}
	s.tracker = NewPositionTracker(id, meta, opts, log, s.positionChanged)
	s.unsubscribe = ledger.Subscribe(ListenerFunc(s.progressChanged))
	return s
}

// ID is the lesson id the session tracks.
func (s *LessonSession) ID() string { return s.id }

// install binds doc on first use and rebinds when its outline changed.
func (s *LessonSession) install(ctx context.Context, doc domain.Lesson, o *outline.Outline) {
	s.bindMu.Lock()
	defer s.bindMu.Unlock()
	if !s.bound {
		s.bound = true
		s.bind(ctx, doc, o)
		return
	}
	if s.Outline() != o {
		s.rebind(ctx, doc, o)
	}
}

// bind installs a lesson revision: reconcile the ledger against its ids and
// hydrate the active position.
func (s *LessonSession) bind(ctx context.Context, doc domain.Lesson, o *outline.Outline) {
	s.mu.Lock()
	s.lesson = doc
	s.outline = o
	s.mu.Unlock()

	snapshot, seq := s.ledger.reconcile(ctx, s.id, o.NodeIDs())
	s.apply(ctx, snapshot, seq, nil)
	s.tracker.Hydrate(ctx, o)
}

// rebind swaps in a revised outline, keeping progress for surviving ids.
func (s *LessonSession) rebind(ctx context.Context, doc domain.Lesson, o *outline.Outline) {
	s.mu.Lock()
	s.lesson = doc
	s.outline = o
	s.mu.Unlock()

	snapshot, seq := s.ledger.reconcile(ctx, s.id, o.NodeIDs())
	s.apply(ctx, snapshot, seq, nil)
	s.tracker.Rebind(ctx, o)
	s.publish(Update{Kind: UpdateOutline, LessonID: s.id, Outline: o.Sections()})
}

// reset re-hydrates the position after persisted state was cleared.
func (s *LessonSession) reset(ctx context.Context) {
	s.bindMu.Lock()
	defer s.bindMu.Unlock()
	if s.bound {
		s.tracker.Hydrate(ctx, s.Outline())
	}
}

func (s *LessonSession) progressChanged(ctx context.Context, ev domain.ProgressChanged) {
	if ev.LessonID != s.id {
		return
	}
	s.apply(ctx, ev.Progress, ev.Seq, &ev)
}

// apply refreshes the aggregation snapshot, pushes the summary to the bridge,
// then broadcasts and notifies viewers. A snapshot older than the last one
// applied is only broadcast.
func (s *LessonSession) apply(ctx context.Context, ledger domain.Ledger, seq uint64, ev *domain.ProgressChanged) {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()
	if seq < s.applied {
		if ev != nil {
			s.bridge.Broadcast(ctx, *ev)
		}
		return
	}
	s.applied = seq

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.agg.Reset(ledger)
	progress := s.progressLocked()
	s.mu.Unlock()

	s.bridge.PushSummary(ctx, BuildUpdate(s.id, progress.Lesson, progress.Sections))
	if ev != nil {
		s.bridge.Broadcast(ctx, *ev)
	}
	s.publish(Update{Kind: UpdateProgress, LessonID: s.id, Progress: &progress, Changed: ev})
}

func (s *LessonSession) positionChanged(pos domain.Position) {
	s.publish(Update{Kind: UpdatePosition, LessonID: s.id, Position: &pos})
}

// Lesson returns the bound document.
func (s *LessonSession) Lesson() domain.Lesson {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lesson
}

// Outline returns the current outline.
func (s *LessonSession) Outline() *outline.Outline {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.outline
}

func (s *LessonSession) LessonSummary() domain.Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.agg.Summary(s.outline.NodeIDs())
}

// SectionSummary is false when sectionID is not in the outline.
func (s *LessonSession) SectionSummary(sectionID string) (domain.Summary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	section, ok := s.outline.Section(sectionID)
	if !ok {
		return domain.Summary{}, false
	}
	return s.agg.Summary(section.NodeIDs), true
}

func (s *LessonSession) SubsectionSummary(subsectionID string) (domain.Summary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.outline.Subsection(subsectionID)
	if !ok {
		return domain.Summary{}, false
	}
	return s.agg.Summary(sub.NodeIDs), true
}

// SectionsSummary counts fully completed sections.
func (s *LessonSession) SectionsSummary() domain.Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SectionsSummary(s.outline, s.agg)
}

func (s *LessonSession) IsNodeCompleted(nodeID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.agg.Completed(nodeID)
}

// Progress returns every summary the UI needs in one snapshot.
func (s *LessonSession) Progress() Progress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progressLocked()
}

// ProgressUpdate is the payload the bridge pushes for the current snapshot.
func (s *LessonSession) ProgressUpdate() domain.LessonProgressUpdate {
	p := s.Progress()
	return BuildUpdate(s.id, p.Lesson, p.Sections)
}

func (s *LessonSession) progressLocked() Progress {
	p := Progress{
		LessonID:            s.id,
		Lesson:              s.agg.Summary(s.outline.NodeIDs()),
		Sections:            SectionsSummary(s.outline, s.agg),
		SectionSummaries:    make(map[string]domain.Summary),
		SubsectionSummaries: make(map[string]domain.Summary),
		CompletedNodeIDs:    []string{},
	}
	for _, section := range s.outline.Sections() {
		p.SectionSummaries[section.ID] = s.agg.Summary(section.NodeIDs)
		for _, sub := range section.Subsections {
			p.SubsectionSummaries[sub.ID] = s.agg.Summary(sub.NodeIDs)
		}
	}
	for _, id := range s.outline.NodeIDs() {
		if s.agg.Completed(id) {
			p.CompletedNodeIDs = append(p.CompletedNodeIDs, id)
		}
	}
	return p
}

func (s *LessonSession) Position() domain.Position {
	return s.tracker.Position()
}

// MarkNode sets a node's completion. Ids outside the outline are ignored.
func (s *LessonSession) MarkNode(ctx context.Context, nodeID string, completed bool) bool {
	if !s.Outline().HasNode(nodeID) {
		return false
	}
	_, changed := s.ledger.Mark(ctx, s.id, nodeID, completed)
	return changed
}

func (s *LessonSession) ToggleNode(ctx context.Context, nodeID string) bool {
	if !s.Outline().HasNode(nodeID) {
		return false
	}
	_, changed := s.ledger.Toggle(ctx, s.id, nodeID)
	return changed
}

// MarkUpTo completes every node in document order up to nodeID.
func (s *LessonSession) MarkUpTo(ctx context.Context, nodeID string) bool {
	_, changed := s.ledger.MarkRangeUpTo(ctx, s.id, s.Outline().NodeIDs(), nodeID)
	return changed
}

// ToggleSection sets every node of a section. With completed nil it completes
// the section unless it already is, in which case it clears it.
func (s *LessonSession) ToggleSection(ctx context.Context, sectionID string, completed *bool) bool {
	section, ok := s.Outline().Section(sectionID)
	if !ok {
		return false
	}
	summary, _ := s.SectionSummary(sectionID)
	return s.setNodes(ctx, section.NodeIDs, summary, completed)
}

func (s *LessonSession) ToggleSubsection(ctx context.Context, subsectionID string, completed *bool) bool {
	sub, ok := s.Outline().Subsection(subsectionID)
	if !ok {
		return false
	}
	summary, _ := s.SubsectionSummary(subsectionID)
	return s.setNodes(ctx, sub.NodeIDs, summary, completed)
}

func (s *LessonSession) setNodes(ctx context.Context, ids []string, summary domain.Summary, completed *bool) bool {
	target := summary.Completed != summary.Total
	if completed != nil {
		target = *completed
	}
	_, changed := s.ledger.SetNodes(ctx, s.id, ids, target)
	return changed
}

func (s *LessonSession) SelectSection(ctx context.Context, sectionID string) bool {
	return s.tracker.SetActiveSection(ctx, sectionID)
}

func (s *LessonSession) SelectSubsection(ctx context.Context, subsectionID string) bool {
	return s.tracker.SetActiveSubsection(ctx, subsectionID)
}

func (s *LessonSession) ReportVisibility(ctx context.Context, samples []domain.Visibility) bool {
	return s.tracker.ReportVisibility(ctx, samples)
}

// ScrollTo scrolls once; a negative offset uses the configured header offset.
func (s *LessonSession) ScrollTo(ctx context.Context, anchorID string, offset int) error {
	return s.tracker.ScrollToAnchor(ctx, anchorID, offset)
}

// RestorePosition retries scrolling to the active position until it mounts.
func (s *LessonSession) RestorePosition() <-chan struct{} {
	return s.tracker.RestorePosition(s.ctx)
}

func (s *LessonSession) RecordScrollProgress(percent int) {
	s.tracker.RecordScrollProgress(percent)
}

// Subscribe returns a channel of session updates, primed with the outline,
// progress and position. The caller must invoke cancel.
func (s *LessonSession) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, 16)

	s.mu.RLock()
	sections := s.outline.Sections()
	progress := s.progressLocked()
	s.mu.RUnlock()
	pos := s.tracker.Position()

	s.subMu.Lock()
	s.subscribers[ch] = struct{}{}
	ch <- Update{Kind: UpdateOutline, LessonID: s.id, Outline: sections}
	ch <- Update{Kind: UpdateProgress, LessonID: s.id, Progress: &progress}
	ch <- Update{Kind: UpdatePosition, LessonID: s.id, Position: &pos}
	s.subMu.Unlock()

	cancel := func() {
		s.subMu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.subMu.Unlock()
	}
	return ch, cancel
}

func (s *LessonSession) publish(update Update) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subscribers {
		select {
		case ch <- update:
		default:
			// drop the oldest update so a slow viewer never blocks mutations
			select {
			case <-ch:
			default:
			}
			ch <- update
		}
	}
}

// Retain registers a viewer. Session stores call it under their own lock so an
// idle session cannot be dropped between lookup and attach.
func (s *LessonSession) Retain() {
	s.mu.Lock()
	s.viewers++
	s.mu.Unlock()
}

// detach reports whether the last viewer left.
func (s *LessonSession) detach() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.viewers > 0 {
		s.viewers--
	}
	return s.viewers == 0
}

// Viewers is the number of attached viewers.
func (s *LessonSession) Viewers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewers
}

// Close cancels pending scrolls and timers and stops listening to the ledger.
func (s *LessonSession) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.tracker.Close()
	s.unsubscribe()

	s.subMu.Lock()
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
	s.subMu.Unlock()
}
