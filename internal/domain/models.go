package domain

import (
	"strings"
	"time"
)

// Lesson is the immutable lesson document the outline is derived from.
type Lesson struct {
	ID       string    `json:"id"`
	Revision string    `json:"revision,omitempty"`
	Header   Header    `json:"header"`
	Sections []Section `json:"sections"`
}

// Header carries display metadata; the class and chapter compose the lesson id.
type Header struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle,omitempty"`
	Class    string `json:"classe,omitempty"`
	Chapter  string `json:"chapter,omitempty"`
}

type Section struct {
	Title       string       `json:"title"`
	Intro       string       `json:"intro,omitempty"`
	Subsections []Subsection `json:"subsections"`
}

type Subsection struct {
	Title          string          `json:"title"`
	Elements       []Element       `json:"elements,omitempty"`
	Subsubsections []Subsubsection `json:"subsubsections,omitempty"`
}

type Subsubsection struct {
	Title    string    `json:"title"`
	Elements []Element `json:"elements"`
}

// Element is an ordered content block (paragraph, boxes, tables). The core only
// looks at its position; content is opaque.
type Element struct {
	Type    string `json:"type"`
	Content any    `json:"content,omitempty"`
}

// LessonID composes the ledger namespace from a class and chapter.
func LessonID(class, chapter string) string {
	return strings.TrimSpace(class) + "-" + strings.TrimSpace(chapter)
}

// ProgressRecord is the completion state of one node. Timestamp is unix milliseconds.
type ProgressRecord struct {
	Completed bool  `json:"completed"`
	Timestamp int64 `json:"timestamp"`
}

// Ledger maps node identifiers to their completion record for one lesson.
type Ledger map[string]ProgressRecord

// Clone returns an independent copy; a nil ledger clones to an empty one.
func (l Ledger) Clone() Ledger {
	out := make(Ledger, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}

// Equal reports whether both ledgers hold the same keys and records.
func (l Ledger) Equal(other Ledger) bool {
	if len(l) != len(other) {
		return false
	}
	for k, v := range l {
		if ov, ok := other[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Completed reports whether nodeID is marked complete; absent nodes are not.
func (l Ledger) Completed(nodeID string) bool {
	return l[nodeID].Completed
}

// Summary aggregates completion over a set of node ids.
type Summary struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Percentage int `json:"percentage"`
}

// IsComplete treats empty sets as complete so empty content never blocks progression.
func (s Summary) IsComplete() bool {
	return s.Total == 0 || s.Completed == s.Total
}

// Position is the transient active section/subsection. Empty strings mean unset.
type Position struct {
	SectionID    string `json:"activeSectionId"`
	SubsectionID string `json:"activeSubsectionId"`
}

// LastVisited is the persisted shadow of Position used to resume a lesson.
type LastVisited struct {
	LastSectionID    string `json:"lastSectionId,omitempty"`
	LastSubsectionID string `json:"lastSubsectionId,omitempty"`
	ScrollPercent    *int   `json:"scrollPercent,omitempty"`
	UpdatedAt        int64  `json:"updatedAt,omitempty"`
}

// Visibility is one observer sample for an outline element in the viewport.
type Visibility struct {
	ID           string  `json:"id"`
	Intersecting bool    `json:"intersecting"`
	Ratio        float64 `json:"ratio"`
	Top          float64 `json:"top"`
}

// ProgressChanged is broadcast after every ledger mutation. Seq increases with
// every write of one Ledger instance, so a later Seq always carries newer state.
type ProgressChanged struct {
	EventID   string    `json:"eventId"`
	Seq       uint64    `json:"seq"`
	LessonID  string    `json:"lessonId"`
	NodeIDs   []string  `json:"nodeIds,omitempty"`
	Reason    string    `json:"reason"`
	ChangedAt time.Time `json:"changedAt"`
	Progress  Ledger    `json:"progress,omitempty"`
}

// LessonProgressUpdate is what the application-wide progress store receives.
type LessonProgressUpdate struct {
	ChapterID           string `json:"chapterId"`
	CompletedParagraphs int    `json:"completedParagraphs"`
	TotalParagraphs     int    `json:"totalParagraphs"`
	CompletedSections   int    `json:"completedSections"`
	TotalSections       int    `json:"totalSections"`
	ChecklistPercentage int    `json:"checklistPercentage"`
	IsRead              bool   `json:"isRead"`
}
