package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/llm-relay/internal/apperror"
	"github.com/sakif/llm-relay/internal/auth"
	"github.com/sakif/llm-relay/internal/model"
	"github.com/sakif/llm-relay/internal/service"
)

// QueryHandler serves query submission and job-status polling.
type QueryHandler struct {
	queries *service.QueryService
	logger  *slog.Logger
}

// NewQueryHandler creates a QueryHandler.
func NewQueryHandler(queries *service.QueryService, logger *slog.Logger) *QueryHandler {
	return &QueryHandler{
		queries: queries,
		logger:  logger,
	}
}

type processQueryRequest struct {
	Message string `json:"message"`
}

type processQueryResponse struct {
	Status       string `json:"status"`
	JobID        string `json:"job_id"`
	JobStatusURL string `json:"job_status_URL"`
}

// jobStatusResponse reports processing/complete/failed. Results is a
// pointer so "still processing" serializes as results:null rather than
// an empty string the client might mistake for an answer.
type jobStatusResponse struct {
	Status  string  `json:"status"`
	Results *string `json:"results"`
	JobID   string  `json:"job_id"`
	Error   string  `json:"error,omitempty"`
}

// HandleProcessQuery accepts a query and returns a pollable job ID.
//
// HTTP: POST /api/v1/process_query/{user_id}
// Auth: bearer token, or the configured test user without one
// Body: {"message": "15–400 characters of plain text"}
//
// Responds 202 as soon as the job row is committed and queued — the
// model call has not happened yet. The path user must match the
// authenticated user; submitting on someone else's behalf is a 403.
func (h *QueryHandler) HandleProcessQuery(w http.ResponseWriter, r *http.Request) {
	pathUserID := chi.URLParam(r, "user_id")

	authUserID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("valid authentication required"))
		return
	}
	if pathUserID != authUserID {
		writeError(w, apperror.Forbidden("cannot submit queries for another user"))
		return
	}

	var req processQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid process_query body", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "invalid JSON body",
		})
		return
	}

	job, err := h.queries.Submit(r.Context(), authUserID, req.Message)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, processQueryResponse{
		Status:       "success",
		JobID:        job.ID,
		JobStatusURL: fmt.Sprintf("/api/v1/job_status/%s", job.ID),
	})
}

// HandleJobStatus reports the state of a job.
//
// HTTP: GET /api/v1/job_status/{job_id}
// Auth: none — the unguessable job ID is the capability.
//
// "processing" covers both pending and running: the distinction is an
// internal scheduling detail the client can't act on.
func (h *QueryHandler) HandleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")

	job, err := h.queries.Status(r.Context(), jobID)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := jobStatusResponse{JobID: job.ID}
	switch job.Status {
	case model.StatusComplete:
		resp.Status = "complete"
		resp.Results = &job.ResultText
	case model.StatusFailed:
		resp.Status = "failed"
		resp.Error = job.ErrorText
	default:
		resp.Status = "processing"
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleHealth is the liveness probe.
//
// HTTP: GET /health
func (h *QueryHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
