package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"lesson-progress-service/internal/app"
	"lesson-progress-service/internal/domain"
)

func newAPIServer(t *testing.T) (*httptest.Server, *app.LessonService) {
	t.Helper()
	service, sink := newTestService()
	t.Cleanup(service.Close)
	gate := app.NewStageGate(app.NewQuizGate(0), sink, nil)
	server := httptest.NewServer(NewRouter(NewAPIHandler(service, gate, nil), NewWSHandler(service, nil)))
	t.Cleanup(server.Close)
	return server, service
}

func doJSON(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	server, _ := newAPIServer(t)
	var body map[string]string
	require.Equal(t, http.StatusOK, doJSON(t, "GET", server.URL+"/healthz", nil, &body))
	require.Equal(t, "ok", body["status"])
}

func TestOutlineAndSummary(t *testing.T) {
	server, _ := newAPIServer(t)
	base := server.URL + "/api/v1/lessons/6e-1"

	var outline struct {
		LessonID string   `json:"lessonId"`
		NodeIDs  []string `json:"nodeIds"`
		Sections []struct {
			ID string `json:"id"`
		} `json:"sections"`
	}
	require.Equal(t, http.StatusOK, doJSON(t, "GET", base+"/outline", nil, &outline))
	require.Equal(t, "6e-1", outline.LessonID)
	require.Equal(t, []string{"sections.0.subsections.0", "sections.0.subsections.1", "sections.1.subsections.0"}, outline.NodeIDs)
	require.Len(t, outline.Sections, 2)

	var summary summaryResponse
	require.Equal(t, http.StatusOK, doJSON(t, "GET", base+"/summary", nil, &summary))
	require.Equal(t, domain.Summary{Total: 3}, summary.Lesson)
	require.Equal(t, domain.Summary{Total: 2}, summary.Sections)
	require.Equal(t, "6e-1", summary.Update.ChapterID)

	require.Equal(t, http.StatusNotFound, doJSON(t, "GET", server.URL+"/api/v1/lessons/nope/outline", nil, nil))
}

func TestMarkToggleAndGate(t *testing.T) {
	server, _ := newAPIServer(t)
	base := server.URL + "/api/v1/lessons/6e-1"

	var gate gateResponse
	require.Equal(t, http.StatusOK, doJSON(t, "GET", base+"/gate", nil, &gate))
	require.False(t, gate.Unlocked)

	var progress app.Progress
	for _, id := range []string{"sections.0.subsections.0", "sections.0.subsections.1"} {
		require.Equal(t, http.StatusOK, doJSON(t, "POST", base+"/nodes/"+id+"/mark", map[string]bool{"completed": true}, &progress))
	}
	require.Equal(t, 2, progress.Lesson.Completed)
	require.Equal(t, domain.Summary{Total: 2, Completed: 1, Percentage: 50}, progress.Sections)

	require.Equal(t, http.StatusOK, doJSON(t, "POST", base+"/nodes/sections.1.subsections.0/toggle", nil, &progress))
	require.Equal(t, 100, progress.Lesson.Percentage)

	require.Equal(t, http.StatusOK, doJSON(t, "GET", base+"/gate", nil, &gate))
	require.True(t, gate.Unlocked)
	require.True(t, gate.Progress.IsRead)

	require.Equal(t, http.StatusBadRequest, doJSON(t, "POST", base+"/nodes/sections.1.subsections.0/mark", map[string]string{}, nil))
	require.Equal(t, http.StatusNotFound, doJSON(t, "POST", base+"/nodes/sections.7.subsections.0/mark", map[string]bool{"completed": true}, nil))
	require.Equal(t, http.StatusNotFound, doJSON(t, "POST", base+"/nodes/sections.7/toggle", nil, nil))
}

func TestResetProgressAndPosition(t *testing.T) {
	server, service := newAPIServer(t)
	base := server.URL + "/api/v1/lessons/6e-1"

	var progress app.Progress
	require.Equal(t, http.StatusOK, doJSON(t, "POST", base+"/nodes/sections.0.subsections.0/mark", map[string]bool{"completed": true}, &progress))

	session, err := service.Get(context.Background(), "6e-1")
	require.NoError(t, err)
	require.True(t, session.SelectSection(context.Background(), "section-2-practice"))

	var pos domain.Position
	require.Equal(t, http.StatusOK, doJSON(t, "GET", base+"/position", nil, &pos))
	require.Equal(t, "section-2-practice", pos.SectionID)

	require.Equal(t, http.StatusNoContent, doJSON(t, "DELETE", base+"/progress", nil, nil))

	var summary summaryResponse
	require.Equal(t, http.StatusOK, doJSON(t, "GET", base+"/summary", nil, &summary))
	require.Equal(t, 0, summary.Lesson.Completed)
	require.Equal(t, http.StatusOK, doJSON(t, "GET", base+"/position", nil, &pos))
	require.Equal(t, "section-1-intro", pos.SectionID)
}
