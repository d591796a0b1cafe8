package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"lesson-progress-service/internal/app"
	"lesson-progress-service/internal/domain"
	"lesson-progress-service/internal/logger"
)

// APIHandler serves the REST view of lesson sessions.
type APIHandler struct {
	service *app.LessonService
	gate    *app.StageGate
	log     *logger.Logger
}

func NewAPIHandler(service *app.LessonService, gate *app.StageGate, log *logger.Logger) *APIHandler {
	return &APIHandler{
		service: service,
		gate:    gate,
		log:     logger.OrNop(log).With("component", "api"),
	}
}

type summaryResponse struct {
	app.Progress
	Update domain.LessonProgressUpdate `json:"update"`
}

type gateResponse struct {
	LessonID string                      `json:"lessonId"`
	Unlocked bool                        `json:"unlocked"`
	Progress domain.LessonProgressUpdate `json:"progress"`
}

type markRequest struct {
	Completed *bool `json:"completed"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func (h *APIHandler) Health(w http.ResponseWriter, _ *http.Request) {
	jsonResponse(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func (h *APIHandler) GetOutline(w http.ResponseWriter, r *http.Request) {
	session, ok := h.open(w, r)
	if !ok {
		return
	}
	jsonResponse(w, map[string]any{
		"lessonId": session.ID(),
		"header":   session.Lesson().Header,
		"sections": session.Outline().Sections(),
		"nodeIds":  session.Outline().NodeIDs(),
	}, http.StatusOK)
}

func (h *APIHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	session, ok := h.open(w, r)
	if !ok {
		return
	}
	jsonResponse(w, summaryResponse{Progress: session.Progress(), Update: session.ProgressUpdate()}, http.StatusOK)
}

func (h *APIHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	session, ok := h.open(w, r)
	if !ok {
		return
	}
	jsonResponse(w, session.Position(), http.StatusOK)
}

func (h *APIHandler) GetGate(w http.ResponseWriter, r *http.Request) {
	session, ok := h.open(w, r)
	if !ok {
		return
	}
	jsonResponse(w, gateResponse{
		LessonID: session.ID(),
		Unlocked: h.gate.Evaluate(r.Context(), session.ID()),
		Progress: session.ProgressUpdate(),
	}, http.StatusOK)
}

func (h *APIHandler) MarkNode(w http.ResponseWriter, r *http.Request) {
	session, ok := h.open(w, r)
	if !ok {
		return
	}
	var req markRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Completed == nil {
		errorResponse(w, "body must be {\"completed\": bool}", http.StatusBadRequest)
		return
	}
	nodeID := mux.Vars(r)["nodeId"]
	if !session.Outline().HasNode(nodeID) {
		errorResponse(w, domain.ErrNodeNotFound.Error(), http.StatusNotFound)
		return
	}
	session.MarkNode(r.Context(), nodeID, *req.Completed)
	jsonResponse(w, session.Progress(), http.StatusOK)
}

func (h *APIHandler) ToggleNode(w http.ResponseWriter, r *http.Request) {
	session, ok := h.open(w, r)
	if !ok {
		return
	}
	nodeID := mux.Vars(r)["nodeId"]
	if !session.ToggleNode(r.Context(), nodeID) {
		errorResponse(w, domain.ErrNodeNotFound.Error(), http.StatusNotFound)
		return
	}
	jsonResponse(w, session.Progress(), http.StatusOK)
}

func (h *APIHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	lessonID := mux.Vars(r)["id"]
	o, err := h.service.Refresh(r.Context(), lessonID)
	if err != nil {
		h.writeError(w, lessonID, err)
		return
	}
	jsonResponse(w, map[string]any{"lessonId": lessonID, "sections": o.Sections()}, http.StatusOK)
}

func (h *APIHandler) ResetProgress(w http.ResponseWriter, r *http.Request) {
	h.service.ResetProgress(r.Context(), mux.Vars(r)["id"])
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) open(w http.ResponseWriter, r *http.Request) (*app.LessonSession, bool) {
	lessonID := mux.Vars(r)["id"]
	session, err := h.service.Open(r.Context(), lessonID)
	if err != nil {
		h.writeError(w, lessonID, err)
		return nil, false
	}
	return session, true
}

func (h *APIHandler) writeError(w http.ResponseWriter, lessonID string, err error) {
	switch {
	case errors.Is(err, domain.ErrLessonNotFound):
		errorResponse(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidLesson):
		errorResponse(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		h.log.Error("lesson request failed", "lesson_id", lessonID, "error", err)
		errorResponse(w, "internal error", http.StatusInternalServerError)
	}
}

func jsonResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func errorResponse(w http.ResponseWriter, message string, status int) {
	jsonResponse(w, errorPayload{Message: message}, status)
}
