package outline

import (
	"hash/fnv"
	"strconv"
	"sync"

	"lesson-progress-service/internal/domain"
)

// Cache keeps the last outline per lesson so the same document identity always
// yields the same *Outline.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	identity string
	outline  *Outline
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string]cacheEntry)}
}

// Get returns the outline for doc and whether it had to be rebuilt.
func (c *Cache) Get(doc domain.Lesson) (*Outline, bool) {
	identity := Identity(doc)

	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[doc.ID]; ok && entry.identity == identity {
		return entry.outline, false
	}
	o := Build(doc)
	c.entries[doc.ID] = cacheEntry{identity: identity, outline: o}
	return o, true
}

// Forget drops the cached outline for lessonID.
func (c *Cache) Forget(lessonID string) {
	c.mu.Lock()
	delete(c.entries, lessonID)
	c.mu.Unlock()
}

// Identity is the revision when the document carries one, otherwise a structural
// fingerprint over titles and element counts.
func Identity(doc domain.Lesson) string {
	if doc.Revision != "" {
		return "rev:" + doc.Revision
	}
	h := fnv.New64a()
	write := func(s string) {
		_, _ = h.Write([]byte(s))
		_, _ = h.Write([]byte{0})
	}
	for _, section := range doc.Sections {
		write("s" + section.Title)
		for _, sub := range section.Subsections {
			write("u" + sub.Title + "#" + strconv.Itoa(len(sub.Elements)))
			for _, subsub := range sub.Subsubsections {
				write("i" + subsub.Title + "#" + strconv.Itoa(len(subsub.Elements)))
			}
		}
	}
	return "fp:" + strconv.FormatUint(h.Sum64(), 16)
}
