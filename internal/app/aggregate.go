package app

import (
	"math"
	"sort"
	"strings"
	"sync"

	"lesson-progress-service/internal/domain"
	"lesson-progress-service/internal/outline"
)

// Summarize counts completed ids in ledger. Percentage is rounded and 0 for an
// empty set.
func Summarize(ids []string, ledger domain.Ledger) domain.Summary {
	total := len(ids)
	if total == 0 {
		return domain.Summary{}
	}
	completed := 0
	for _, id := range ids {
		if ledger.Completed(id) {
			completed++
		}
	}
	return domain.Summary{
		Total:      total,
		Completed:  completed,
		Percentage: percent(completed, total),
	}
}

func percent(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(total) * 100))
}

// Aggregator memoizes summaries over one ledger snapshot. The cache is keyed by
// the sorted id set and dropped wholesale on Reset.
type Aggregator struct {
	mu       sync.Mutex
	ledger   domain.Ledger
	cache    map[string]domain.Summary
	computed int
}

func NewAggregator(ledger domain.Ledger) *Aggregator {
	return &Aggregator{
		ledger: ledger.Clone(),
		cache:  make(map[string]domain.Summary),
	}
}

// Reset swaps the snapshot and invalidates every cached summary.
func (a *Aggregator) Reset(ledger domain.Ledger) {
	a.mu.Lock()
	a.ledger = ledger.Clone()
	a.cache = make(map[string]domain.Summary)
	a.mu.Unlock()
}

func (a *Aggregator) Summary(ids []string) domain.Summary {
	key := cacheKey(ids)

	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.cache[key]; ok {
		return s
	}
	s := Summarize(ids, a.ledger)
	a.cache[key] = s
	a.computed++
	return s
}

// Completed reports nodeID's state in the current snapshot.
func (a *Aggregator) Completed(nodeID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ledger.Completed(nodeID)
}

// Snapshot returns a copy of the ledger the aggregator reads from.
func (a *Aggregator) Snapshot() domain.Ledger {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ledger.Clone()
}

// Computations is the number of cache misses since creation.
func (a *Aggregator) Computations() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.computed
}

func cacheKey(ids []string) string {
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

// SectionsSummary counts complete sections; empty sections count as complete.
func SectionsSummary(o *outline.Outline, a *Aggregator) domain.Summary {
	sections := o.Sections()
	if len(sections) == 0 {
		return domain.Summary{}
	}
	completed := 0
	for _, section := range sections {
		if a.Summary(section.NodeIDs).IsComplete() {
			completed++
		}
	}
	return domain.Summary{
		Total:      len(sections),
		Completed:  completed,
		Percentage: percent(completed, len(sections)),
	}
}
