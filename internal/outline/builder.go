package outline

import (
	"lesson-progress-service/internal/domain"
)

// Section is the outline projection of a lesson section.
type Section struct {
	ID          string       `json:"id"`
	Anchor      string       `json:"anchor"`
	Index       int          `json:"index"`
	Title       string       `json:"title"`
	Path        Path         `json:"-"`
	NodeIDs     []string     `json:"paragraphNodeIds"`
	Subsections []Subsection `json:"subsections"`
}

// Subsection owns exactly one node identifier: its own encoded path.
type Subsection struct {
	ID             string          `json:"id"`
	Anchor         string          `json:"anchor"`
	Index          int             `json:"index"`
	SectionID      string          `json:"sectionId"`
	Title          string          `json:"title"`
	Path           Path            `json:"-"`
	NodeID         string          `json:"nodeId"`
	NodeIDs        []string        `json:"paragraphNodeIds"`
	Subsubsections []Subsubsection `json:"subsubsections"`
}

// Subsubsection has an anchor but no completion state of its own; progress is
// attributed to ParentNodeID.
type Subsubsection struct {
	ID           string   `json:"id"`
	Anchor       string   `json:"anchor"`
	Title        string   `json:"title"`
	Path         Path     `json:"-"`
	ParentNodeID string   `json:"parentNodeId"`
	NodeIDs      []string `json:"paragraphNodeIds"`
}

type subsectionRef struct {
	section    int
	subsection int
}

// Outline is the read-only navigation tree of one lesson revision.
type Outline struct {
	lessonID string
	revision string
	sections []Section
	nodeIDs  []string

	sectionIdx    map[string]int
	subsectionIdx map[string]subsectionRef
	nodeIdx       map[string]int
	order         map[string]int
}

// Build walks the lesson once. It never mutates doc and tolerates empty arrays.
func Build(doc domain.Lesson) *Outline {
	o := &Outline{
		lessonID:      doc.ID,
		revision:      doc.Revision,
		sections:      make([]Section, 0, len(doc.Sections)),
		sectionIdx:    make(map[string]int),
		subsectionIdx: make(map[string]subsectionRef),
		nodeIdx:       make(map[string]int),
		order:         make(map[string]int),
	}

	for i, section := range doc.Sections {
		sectionPath := Path{{Key: keySections, Index: i}}
		out := Section{
			ID:          SectionAnchor(section.Title, i),
			Index:       i,
			Title:       section.Title,
			Path:        sectionPath,
			NodeIDs:     []string{},
			Subsections: make([]Subsection, 0, len(section.Subsections)),
		}
		out.Anchor = out.ID

		for j, sub := range section.Subsections {
			subPath := sectionPath.Child(keySubsections, j)
			nodeID := EncodePath(subPath)
			subOut := Subsection{
				ID:             SubsectionAnchor(i, sub.Title, j),
				Index:          j,
				SectionID:      out.ID,
				Title:          sub.Title,
				Path:           subPath,
				NodeID:         nodeID,
				NodeIDs:        []string{nodeID},
				Subsubsections: make([]Subsubsection, 0, len(sub.Subsubsections)),
			}
			subOut.Anchor = subOut.ID

			for k, subsub := range sub.Subsubsections {
				anchor := SubsubsectionAnchor(i, j, subsub.Title, k)
				subOut.Subsubsections = append(subOut.Subsubsections, Subsubsection{
					ID:           anchor,
					Anchor:       anchor,
					Title:        subsub.Title,
					Path:         subPath.Child(keySubsubsections, k),
					ParentNodeID: nodeID,
					NodeIDs:      []string{},
				})
			}

			out.NodeIDs = append(out.NodeIDs, subOut.NodeIDs...)
			out.Subsections = append(out.Subsections, subOut)
		}
		o.sections = append(o.sections, out)
	}

	o.index()
	return o
}

func (o *Outline) index() {
	seq := 0
	o.nodeIDs = make([]string, 0)
	for i, section := range o.sections {
		o.sectionIdx[section.ID] = i
		o.order[section.ID] = seq
		seq++
		for j, sub := range section.Subsections {
			o.subsectionIdx[sub.ID] = subsectionRef{section: i, subsection: j}
			o.order[sub.ID] = seq
			seq++
		}
		for _, id := range section.NodeIDs {
			if _, dup := o.nodeIdx[id]; !dup {
				o.nodeIdx[id] = len(o.nodeIDs)
			}
			o.nodeIDs = append(o.nodeIDs, id)
		}
	}
}

// LessonID is the id of the document the outline was built from.
func (o *Outline) LessonID() string { return o.lessonID }

// Revision is the document revision the outline was built from.
func (o *Outline) Revision() string { return o.revision }

// Sections returns the section tree. Callers must not modify it.
func (o *Outline) Sections() []Section { return o.sections }

// NodeIDs is the authoritative ordered list of trackable node ids.
func (o *Outline) NodeIDs() []string { return o.nodeIDs }

func (o *Outline) Empty() bool { return len(o.sections) == 0 }

// HasNode reports whether nodeID is trackable in this outline.
func (o *Outline) HasNode(nodeID string) bool {
	_, ok := o.nodeIdx[nodeID]
	return ok
}

// Index returns the document-order position of nodeID, or -1.
func (o *Outline) Index(nodeID string) int {
	if i, ok := o.nodeIdx[nodeID]; ok {
		return i
	}
	return -1
}

func (o *Outline) Section(id string) (Section, bool) {
	i, ok := o.sectionIdx[id]
	if !ok {
		return Section{}, false
	}
	return o.sections[i], true
}

func (o *Outline) Subsection(id string) (Subsection, bool) {
	ref, ok := o.subsectionIdx[id]
	if !ok {
		return Subsection{}, false
	}
	return o.sections[ref.section].Subsections[ref.subsection], true
}

// ParentSection returns the id of the section owning subsectionID.
func (o *Outline) ParentSection(subsectionID string) (string, bool) {
	ref, ok := o.subsectionIdx[subsectionID]
	if !ok {
		return "", false
	}
	return o.sections[ref.section].ID, true
}

// Order is the document-order rank of a section or subsection id.
func (o *Outline) Order(id string) (int, bool) {
	n, ok := o.order[id]
	return n, ok
}

// First returns the first section id and its first subsection id (either may be empty).
func (o *Outline) First() domain.Position {
	if len(o.sections) == 0 {
		return domain.Position{}
	}
	pos := domain.Position{SectionID: o.sections[0].ID}
	if len(o.sections[0].Subsections) > 0 {
		pos.SubsectionID = o.sections[0].Subsections[0].ID
	}
	return pos
}

// Resolve returns a valid position for the requested ids. A valid subsection wins
// and drags its section along; otherwise the section falls back to the first one
// and the subsection to that section's first subsection.
func (o *Outline) Resolve(sectionID, subsectionID string) domain.Position {
	if o.Empty() {
		return domain.Position{}
	}
	if parent, ok := o.ParentSection(subsectionID); ok {
		return domain.Position{SectionID: parent, SubsectionID: subsectionID}
	}
	section, ok := o.Section(sectionID)
	if !ok {
		section = o.sections[0]
	}
	pos := domain.Position{SectionID: section.ID}
	if len(section.Subsections) > 0 {
		pos.SubsectionID = section.Subsections[0].ID
	}
	return pos
}
