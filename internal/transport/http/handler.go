package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"quiz-intake-service/internal/app"
	"quiz-intake-service/internal/domain"
)

// SubmissionHandler serves the /api/students resource.
type SubmissionHandler struct {
	service   *app.SubmissionService
	questions []domain.Question
	logger    *zap.Logger
	created   prometheus.Counter // may be nil
}

func NewSubmissionHandler(service *app.SubmissionService, questions []domain.Question, logger *zap.Logger, created prometheus.Counter) *SubmissionHandler {
	return &SubmissionHandler{service: service, questions: questions, logger: logger, created: created}
}

type messagePayload struct {
	Message string `json:"message"`
}

func (h *SubmissionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in domain.NewSubmission
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, messagePayload{Message: "invalid JSON body"})
		return
	}
	saved, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if h.created != nil {
		h.created.Inc()
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (h *SubmissionHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context(), listFilter(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *SubmissionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sub, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *SubmissionHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context(), listFilter(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *SubmissionHandler) Questions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.questions)
}

// writeError never leaks store details to the client.
func (h *SubmissionHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeJSON(w, http.StatusBadRequest, messagePayload{Message: "name and email required"})
	case errors.Is(err, domain.ErrSubmissionNotFound):
		writeJSON(w, http.StatusNotFound, messagePayload{Message: "Student not found"})
	default:
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Bool("connection", errors.Is(err, domain.ErrConnection)),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, messagePayload{Message: "Server error"})
	}
}

func listFilter(r *http.Request) domain.ListFilter {
	return domain.ListFilter{Campus: r.URL.Query().Get("campus")}
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
