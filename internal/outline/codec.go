package outline

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	keySections       = "sections"
	keySubsections    = "subsections"
	keySubsubsections = "subsubsections"
	keyElements       = "elements"
)

// Segment is one step of a structural path: a collection key and an index into it.
type Segment struct {
	Key   string
	Index int
}

// Path addresses a node inside a lesson document.
type Path []Segment

// Child returns a new path extended by key/index; the receiver is not modified.
func (p Path) Child(key string, index int) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, Segment{Key: key, Index: index})
}

func (p Path) String() string {
	return EncodePath(p)
}

// EncodePath joins path segments with "." to form a node identifier.
func EncodePath(p Path) string {
	var b strings.Builder
	for i, seg := range p {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(seg.Key)
		b.WriteByte('.')
		b.WriteString(strconv.Itoa(seg.Index))
	}
	return b.String()
}

// NormalizeNodeID truncates a legacy, finer-grained key to its subsection
// (or, failing that, section) prefix. Keys with neither are returned unchanged.
func NormalizeNodeID(raw string) string {
	parts := strings.Split(raw, ".")
	if cut := segmentEnd(parts, keySubsections); cut > 0 {
		return strings.Join(parts[:cut], ".")
	}
	if cut := segmentEnd(parts, keySections); cut > 0 {
		return strings.Join(parts[:cut], ".")
	}
	return raw
}

// segmentEnd returns the length of the prefix ending with "<key>.<int>", or 0.
func segmentEnd(parts []string, key string) int {
	for i := 0; i+1 < len(parts); i++ {
		if parts[i] != key {
			continue
		}
		if _, err := strconv.Atoi(parts[i+1]); err == nil {
			return i + 2
		}
	}
	return 0
}

func stripped(r rune) bool {
	return unicode.IsControl(r) || (r >= 0x0300 && r <= 0x036F)
}

// Slugify strips diacritics, lowercases and hyphenates a title.
func Slugify(value string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.Predicate(stripped)))
	decomposed, _, err := transform.String(t, value)
	if err != nil {
		decomposed = value
	}
	decomposed = strings.ToLower(decomposed)

	slug := make([]rune, 0, len(decomposed))
	lastDash := false
	for _, ch := range decomposed {
		if (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') {
			slug = append(slug, ch)
			lastDash = false
			continue
		}
		if !lastDash {
			slug = append(slug, '-')
			lastDash = true
		}
	}
	return strings.Trim(string(slug), "-")
}

func slugOr(title, defaultLabel string, index int) string {
	if strings.TrimSpace(title) == "" {
		title = defaultLabel
	}
	if slug := Slugify(title); slug != "" {
		return slug
	}
	return strconv.Itoa(index)
}

// SectionAnchor returns "section-<n>-<slug>" for the zero-based index.
func SectionAnchor(title string, index int) string {
	n := index + 1
	return "section-" + strconv.Itoa(n) + "-" + slugOr(title, "section-"+strconv.Itoa(n), n)
}

// SubsectionAnchor returns "section-<n>-sub-<m>-<slug>".
func SubsectionAnchor(sectionIndex int, title string, subsectionIndex int) string {
	m := subsectionIndex + 1
	return "section-" + strconv.Itoa(sectionIndex+1) + "-sub-" + strconv.Itoa(m) + "-" +
		slugOr(title, "part-"+strconv.Itoa(m), m)
}

// SubsubsectionAnchor returns "section-<n>-sub-<m>-item-<k>-<slug>".
func SubsubsectionAnchor(sectionIndex, subsectionIndex int, title string, subsubIndex int) string {
	k := subsubIndex + 1
	return "section-" + strconv.Itoa(sectionIndex+1) + "-sub-" + strconv.Itoa(subsectionIndex+1) +
		"-item-" + strconv.Itoa(k) + "-" + slugOr(title, "item-"+strconv.Itoa(k), k)
}
