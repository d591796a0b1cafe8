package domain

import "errors"

var (
	// ErrLessonNotFound indicates the lesson document could not be loaded.
	ErrLessonNotFound = errors.New("lesson not found")
	// ErrInvalidLesson is returned by loaders when a document fails validation.
	ErrInvalidLesson = errors.New("invalid lesson document")
	// ErrSessionNotFound is returned when no lesson session is open for the id.
	ErrSessionNotFound = errors.New("lesson session not found")
	// ErrNodeNotFound indicates a node id is not part of the current outline.
	ErrNodeNotFound = errors.New("node not found in outline")
	// ErrSectionNotFound indicates a section or subsection id is not in the outline.
	ErrSectionNotFound = errors.New("section not found in outline")
	// ErrAnchorNotMounted is returned by scrollers when the anchor is not rendered yet.
	ErrAnchorNotMounted = errors.New("anchor not mounted")
	// ErrVersionMismatch marks a persisted entry written under another schema version.
	ErrVersionMismatch = errors.New("persisted entry version mismatch")
)
