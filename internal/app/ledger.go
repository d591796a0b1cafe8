package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"lesson-progress-service/internal/domain"
	"lesson-progress-service/internal/logger"
	"lesson-progress-service/internal/outline"
)

// Mutation reasons carried on domain.ProgressChanged.
const (
	ReasonMark      = "mark"
	ReasonToggle    = "toggle"
	ReasonMarkRange = "markRange"
	ReasonSetNodes  = "setNodes"
	ReasonReconcile = "reconcile"
	ReasonClear     = "clear"
)

// ProgressStore persists one ledger per lesson id. A missing entry loads as an
// empty ledger without error.
type ProgressStore interface {
	LoadProgress(ctx context.Context, lessonID string) (domain.Ledger, error)
	SaveProgress(ctx context.Context, lessonID string, ledger domain.Ledger) error
	DeleteProgress(ctx context.Context, lessonID string) error
}

// ProgressListener is notified synchronously after each ledger mutation.
type ProgressListener interface {
	ProgressChanged(ctx context.Context, ev domain.ProgressChanged)
}

// ListenerFunc adapts a function to ProgressListener.
type ListenerFunc func(ctx context.Context, ev domain.ProgressChanged)

func (f ListenerFunc) ProgressChanged(ctx context.Context, ev domain.ProgressChanged) {
	f(ctx, ev)
}

// Ledger owns completion records for every lesson behind one ProgressStore.
// Each mutation is a full read-modify-write of the lesson's map; concurrent
// writers in other processes remain last-write-wins per lesson.
type Ledger struct {
	store ProgressStore
	log   *logger.Logger
	now   func() time.Time

	mu        sync.Mutex
	seq       uint64
	listeners map[int]ProgressListener
	nextID    int
}

func NewLedger(store ProgressStore, log *logger.Logger) *Ledger {
	return NewLedgerWithClock(store, log, time.Now)
}

// NewLedgerWithClock is used by tests for deterministic timestamps.
func NewLedgerWithClock(store ProgressStore, log *logger.Logger, now func() time.Time) *Ledger {
	return &Ledger{
		store:     store,
		log:       logger.OrNop(log).With("component", "ledger"),
		now:       now,
		listeners: make(map[int]ProgressListener),
	}
}

// Subscribe registers l and returns a function removing it.
func (l *Ledger) Subscribe(listener ProgressListener) func() {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.listeners[id] = listener
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.listeners, id)
			l.mu.Unlock()
		})
	}
}

// Load returns the stored ledger or an empty one.
func (l *Ledger) Load(ctx context.Context, lessonID string) domain.Ledger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadLocked(ctx, lessonID)
}

// Seq is the sequence number of the last write.
func (l *Ledger) Seq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}

// Reconcile aligns the stored ledger with validIDs: stale keys are dropped,
// legacy keys that normalize to a valid id are folded in (completed OR-ed,
// newest timestamp kept) and missing ids are seeded as incomplete. Nothing is
// written when the result equals what is stored.
func (l *Ledger) Reconcile(ctx context.Context, lessonID string, validIDs []string) domain.Ledger {
	ledger, _ := l.reconcile(ctx, lessonID, validIDs)
	return ledger
}

// reconcile also returns the sequence number the result is current at.
func (l *Ledger) reconcile(ctx context.Context, lessonID string, validIDs []string) (domain.Ledger, uint64) {
	l.mu.Lock()
	current := l.loadLocked(ctx, lessonID)
	next := reconcileLedger(current, validIDs, l.now().UnixMilli())
	if next.Equal(current) {
		seq := l.seq
		l.mu.Unlock()
		return current, seq
	}
	l.saveLocked(ctx, lessonID, next)
	seq := l.nextSeqLocked()
	listeners := l.listenersLocked()
	l.mu.Unlock()

	l.notify(ctx, listeners, seq, lessonID, ReasonReconcile, nil, next)
	return next.Clone(), seq
}

func reconcileLedger(current domain.Ledger, validIDs []string, ts int64) domain.Ledger {
	valid := make(map[string]struct{}, len(validIDs))
	for _, id := range validIDs {
		valid[id] = struct{}{}
	}

	next := make(domain.Ledger, len(validIDs))
	fold := func(key string, rec domain.ProgressRecord) {
		prev, ok := next[key]
		if !ok {
			next[key] = rec
			return
		}
		if rec.Timestamp > prev.Timestamp {
			prev.Timestamp = rec.Timestamp
		}
		prev.Completed = prev.Completed || rec.Completed
		next[key] = prev
	}

	for key, rec := range current {
		if _, ok := valid[key]; ok {
			fold(key, rec)
			continue
		}
		if normalized := outline.NormalizeNodeID(key); normalized != key {
			if _, ok := valid[normalized]; ok {
				fold(normalized, rec)
			}
		}
	}
	for _, id := range validIDs {
		if _, ok := next[id]; !ok {
			next[id] = domain.ProgressRecord{Completed: false, Timestamp: ts}
		}
	}
	return next
}

// Mark sets nodeID's completion. It is a no-op when the value is unchanged;
// absent nodes count as incomplete.
func (l *Ledger) Mark(ctx context.Context, lessonID, nodeID string, completed bool) (domain.Ledger, bool) {
	return l.update(ctx, lessonID, ReasonMark, func(draft domain.Ledger, ts int64) []string {
		if draft[nodeID].Completed == completed {
			return nil
		}
		draft[nodeID] = domain.ProgressRecord{Completed: completed, Timestamp: ts}
		return []string{nodeID}
	})
}

// Toggle flips nodeID's completion.
func (l *Ledger) Toggle(ctx context.Context, lessonID, nodeID string) (domain.Ledger, bool) {
	return l.update(ctx, lessonID, ReasonToggle, func(draft domain.Ledger, ts int64) []string {
		draft[nodeID] = domain.ProgressRecord{Completed: !draft[nodeID].Completed, Timestamp: ts}
		return []string{nodeID}
	})
}

// MarkRangeUpTo completes every id up to and including targetID in orderedIDs.
func (l *Ledger) MarkRangeUpTo(ctx context.Context, lessonID string, orderedIDs []string, targetID string) (domain.Ledger, bool) {
	target := -1
	for i, id := range orderedIDs {
		if id == targetID {
			target = i
			break
		}
	}
	if target < 0 {
		return l.Load(ctx, lessonID), false
	}
	return l.SetNodesReason(ctx, lessonID, orderedIDs[:target+1], true, ReasonMarkRange)
}

// SetNodes forces every id in ids to completed, skipping those already there.
func (l *Ledger) SetNodes(ctx context.Context, lessonID string, ids []string, completed bool) (domain.Ledger, bool) {
	return l.SetNodesReason(ctx, lessonID, ids, completed, ReasonSetNodes)
}

func (l *Ledger) SetNodesReason(ctx context.Context, lessonID string, ids []string, completed bool, reason string) (domain.Ledger, bool) {
	return l.update(ctx, lessonID, reason, func(draft domain.Ledger, ts int64) []string {
		var changed []string
		for _, id := range ids {
			if draft[id].Completed == completed {
				continue
			}
			draft[id] = domain.ProgressRecord{Completed: completed, Timestamp: ts}
			changed = append(changed, id)
		}
		return changed
	})
}

// Clear drops the lesson's ledger entirely.
func (l *Ledger) Clear(ctx context.Context, lessonID string) {
	l.mu.Lock()
	if err := l.store.DeleteProgress(ctx, lessonID); err != nil {
		l.log.Warn("delete progress failed", "lesson_id", lessonID, "error", err)
	}
	seq := l.nextSeqLocked()
	listeners := l.listenersLocked()
	l.mu.Unlock()

	l.notify(ctx, listeners, seq, lessonID, ReasonClear, nil, domain.Ledger{})
}

func (l *Ledger) update(ctx context.Context, lessonID, reason string, mutate func(draft domain.Ledger, ts int64) []string) (domain.Ledger, bool) {
	l.mu.Lock()
	current := l.loadLocked(ctx, lessonID)
	draft := current.Clone()
	changed := mutate(draft, l.now().UnixMilli())
	if len(changed) == 0 {
		l.mu.Unlock()
		return current, false
	}
	l.saveLocked(ctx, lessonID, draft)
	seq := l.nextSeqLocked()
	listeners := l.listenersLocked()
	l.mu.Unlock()

	l.notify(ctx, listeners, seq, lessonID, reason, changed, draft)
	return draft.Clone(), true
}

func (l *Ledger) loadLocked(ctx context.Context, lessonID string) domain.Ledger {
	ledger, err := l.store.LoadProgress(ctx, lessonID)
	if err != nil {
		l.log.Warn("load progress failed, starting empty", "lesson_id", lessonID, "error", err)
		return domain.Ledger{}
	}
	if ledger == nil {
		return domain.Ledger{}
	}
	return ledger
}

// saveLocked is best effort: a failed write is logged and the caller continues
// with the in-memory result.
func (l *Ledger) saveLocked(ctx context.Context, lessonID string, ledger domain.Ledger) {
	if err := l.store.SaveProgress(ctx, lessonID, ledger); err != nil {
		l.log.Warn("save progress failed", "lesson_id", lessonID, "error", err)
	}
}

func (l *Ledger) nextSeqLocked() uint64 {
	l.seq++
	return l.seq
}

// listenersLocked returns listeners in subscription order.
func (l *Ledger) listenersLocked() []ProgressListener {
	ids := make([]int, 0, len(l.listeners))
	for id := range l.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]ProgressListener, 0, len(ids))
	for _, id := range ids {
		out = append(out, l.listeners[id])
	}
	return out
}

// notify runs outside l.mu, so listeners may observe events out of Seq order.
func (l *Ledger) notify(ctx context.Context, listeners []ProgressListener, seq uint64, lessonID, reason string, nodeIDs []string, ledger domain.Ledger) {
	if len(listeners) == 0 {
		return
	}
	ev := domain.ProgressChanged{
		EventID:   uuid.NewString(),
		Seq:       seq,
		LessonID:  lessonID,
		NodeIDs:   nodeIDs,
		Reason:    reason,
		ChangedAt: l.now(),
		Progress:  ledger.Clone(),
	}
	for _, listener := range listeners {
		listener.ProgressChanged(ctx, ev)
	}
}
