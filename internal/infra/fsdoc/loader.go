package fsdoc

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"lesson-progress-service/internal/domain"
	"lesson-progress-service/internal/lessondoc"
)

// Loader reads lesson documents stored as <dir>/<lessonID>.json.
type Loader struct {
	dir string
}

func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

func (l *Loader) LoadLesson(_ context.Context, lessonID string) (domain.Lesson, error) {
	if lessonID == "" || strings.ContainsAny(lessonID, `/\`) || strings.Contains(lessonID, "..") {
		return domain.Lesson{}, fmt.Errorf("load lesson %q: %w", lessonID, domain.ErrLessonNotFound)
	}
	raw, err := os.ReadFile(filepath.Join(l.dir, lessonID+".json"))
	if errors.Is(err, fs.ErrNotExist) {
		return domain.Lesson{}, fmt.Errorf("load lesson %s: %w", lessonID, domain.ErrLessonNotFound)
	}
	if err != nil {
		return domain.Lesson{}, fmt.Errorf("read lesson %s: %w", lessonID, err)
	}
	return lessondoc.DecodeFor(lessonID, raw)
}

// List returns the lesson ids available in the directory, sorted.
func (l *Loader) List() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

// ReadFile decodes a single lesson file; the id defaults to the file name.
func ReadFile(path string) (domain.Lesson, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.Lesson{}, fmt.Errorf("read lesson file: %w", err)
	}
	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return lessondoc.DecodeFor(id, raw)
}
