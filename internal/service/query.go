package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sakif/llm-relay/internal/apperror"
	"github.com/sakif/llm-relay/internal/model"
	"github.com/sakif/llm-relay/internal/repository"
	"github.com/sakif/llm-relay/internal/worker"
)

// Query length bounds, in characters (runes, not bytes).
const (
	MinQueryLength = 15
	MaxQueryLength = 400
)

// systemPreamble wraps every user query before it reaches the model.
// Changing this changes every stored prompt, so treat edits like schema
// changes.
const systemPreamble = "You are a helpful assistant. Answer the user's question concisely " +
	"and directly. If you do not know the answer, say so plainly instead of guessing."

// QueryService orchestrates jobs: it validates the query, persists a
// pending job, hands the completion to the worker pool, and answers
// status polls.
type QueryService struct {
	jobs   repository.JobRepository
	pool   *worker.Pool
	logger *slog.Logger
}

// NewQueryService creates a QueryService.
func NewQueryService(jobs repository.JobRepository, pool *worker.Pool, logger *slog.Logger) *QueryService {
	return &QueryService{
		jobs:   jobs,
		pool:   pool,
		logger: logger,
	}
}

// Submit validates the query, creates a pending job, and enqueues the
// completion. It returns as soon as the job row is committed and the
// task is queued — the model call happens on the pool.
//
// ORDERING INVARIANT:
// The job ID is generated and the row inserted BEFORE the task is
// enqueued. The client can therefore poll the returned ID immediately,
// and no background work can ever reference a row that doesn't exist.
// If the insert fails, nothing is enqueued. If the enqueue fails (queue
// full), the already-committed job is marked failed and the caller gets
// an Unavailable error — never a job stuck pending with no worker
// coming for it.
func (s *QueryService) Submit(ctx context.Context, userID, message string) (*model.Job, error) {
	message = strings.TrimSpace(message)
	if err := validateQuery(message); err != nil {
		return nil, err
	}

	job := &model.Job{
		// UUIDv4: random, collision-resistant, not enumerable. The job
		// ID is an unauthenticated polling key, so it must not be
		// sequential or time-sortable.
		ID:        uuid.NewString(),
		UserID:    userID,
		InputText: buildPrompt(message),
	}

	if err := s.jobs.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	if err := s.pool.Enqueue(worker.Task{JobID: job.ID, Prompt: job.InputText}); err != nil {
		s.logger.Warn("completion queue full, failing job",
			slog.String("jobID", job.ID),
			slog.String("error", err.Error()),
		)
		if failErr := s.jobs.FailJob(ctx, job.ID, "completion queue is full"); failErr != nil {
			s.logger.Error("failed to mark rejected job failed",
				slog.String("jobID", job.ID),
				slog.String("error", failErr.Error()),
			)
		}
		return nil, apperror.Unavailable("service is at capacity, try again shortly")
	}

	s.logger.Info("job submitted",
		slog.String("jobID", job.ID),
		slog.String("userID", userID),
	)

	return job, nil
}

// Status returns the current state of a job. Pure read, no side effects;
// polling is a point lookup by primary key.
func (s *QueryService) Status(ctx context.Context, jobID string) (*model.Job, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, apperror.ValidationFailed("job_id", "job ID is required")
	}

	return s.jobs.GetJobByID(ctx, jobID)
}

// buildPrompt assembles the full prompt stored on the job and sent to
// the model.
func buildPrompt(message string) string {
	return systemPreamble + "\n\nUser query: " + message
}

// validateQuery enforces the length bounds and rejects non-plain-text
// input. Control characters other than ordinary whitespace (tab,
// newline, carriage return) are refused — they're never part of a typed
// query and tend to indicate binary payloads.
func validateQuery(message string) error {
	if !utf8.ValidString(message) {
		return apperror.ValidationFailed("message", "message must be valid UTF-8 text")
	}

	n := utf8.RuneCountInString(message)
	if n < MinQueryLength || n > MaxQueryLength {
		return apperror.ValidationFailed("message",
			fmt.Sprintf("message must be between %d and %d characters, got %d",
				MinQueryLength, MaxQueryLength, n))
	}

	for _, r := range message {
		if r == '\t' || r == '\n' || r == '\r' {
			continue
		}
		if unicode.IsControl(r) {
			return apperror.ValidationFailed("message", "message must be plain text")
		}
	}

	return nil
}
