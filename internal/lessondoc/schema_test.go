package lessondoc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"lesson-progress-service/internal/domain"
)

func TestDecodeValidLesson(t *testing.T) {
	raw := []byte(`{
	  "header": {"title": "Limites", "classe": "1bac", "chapter": "limites"},
	  "sections": [
	    {"title": "Intro", "subsections": [
	      {"title": "Définition", "elements": [{"type": "p", "content": "..."}]},
	      {"title": "Exemples", "subsubsections": [{"title": "A", "elements": []}]}
	    ]}
	  ]
	}`)

	lesson, err := DecodeFor("1bac-limites", raw)
	require.NoError(t, err)
	require.Equal(t, "1bac-limites", lesson.ID)
	require.Len(t, lesson.Sections, 1)
	require.Len(t, lesson.Sections[0].Subsections, 2)
	require.Equal(t, "1bac", lesson.Header.Class)
}

func TestDecodeRejectsMissingSubsections(t *testing.T) {
	_, err := Decode([]byte(`{"sections": [{"title": "Intro"}]}`))
	require.Error(t, err)
	require.True(t, errors.Is(err, domain.ErrInvalidLesson))
}

func TestDecodeRejectsMissingSections(t *testing.T) {
	_, err := Decode([]byte(`{"header": {"title": "x"}}`))
	require.ErrorIs(t, err, domain.ErrInvalidLesson)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	require.ErrorIs(t, err, domain.ErrInvalidLesson)
}

func TestDecodeEmptySections(t *testing.T) {
	lesson, err := Decode([]byte(`{"id": "x", "sections": []}`))
	require.NoError(t, err)
	require.Empty(t, lesson.Sections)
}
