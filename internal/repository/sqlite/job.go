package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sakif/llm-relay/internal/apperror"
	"github.com/sakif/llm-relay/internal/model"
	"github.com/sakif/llm-relay/internal/repository"
)

// compile-time check that *DB implements repository.JobRepository
var _ repository.JobRepository = (*DB)(nil)

// CreateJob inserts a new pending job.
//
// Unlike users, the job ID is generated by the orchestrator BEFORE this
// call: the ID must exist before any background work is scheduled, so a
// client can poll the moment it receives it. This insert committing is
// the point at which submission is allowed to succeed.
func (db *DB) CreateJob(ctx context.Context, job *model.Job) error {
	now := time.Now()
	job.Status = model.StatusPending
	job.CreatedAt = now
	job.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO jobs (id, user_id, input_text, result_text, error_text, status, created_at, updated_at)
		 VALUES (?, ?, ?, '', '', ?, ?, ?)`,
		job.ID,
		job.UserID,
		job.InputText,
		job.Status,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			// UUIDv4 collision is effectively impossible; this guards
			// against a caller reusing an ID.
			return apperror.Conflict("job", job.ID)
		}
		return fmt.Errorf("sqlite: inserting job %s: %w", job.ID, err)
	}

	return nil
}

// GetJobByID retrieves a single job by its ID.
// Returns apperror.ErrNotFound if no job exists with that ID.
// This is the poll path: a point lookup on the primary key, no side effects.
func (db *DB) GetJobByID(ctx context.Context, id string) (*model.Job, error) {
	var j model.Job

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, user_id, input_text, result_text, error_text, status, created_at, updated_at
		 FROM jobs WHERE id = ?`,
		id,
	).Scan(
		&j.ID,
		&j.UserID,
		&j.InputText,
		&j.ResultText,
		&j.ErrorText,
		&j.Status,
		&j.CreatedAt,
		&j.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("job", id)
		}
		return nil, fmt.Errorf("sqlite: getting job %s: %w", id, err)
	}

	return &j, nil
}

// MarkJobRunning flips a pending job to running when a worker picks it up.
func (db *DB) MarkJobRunning(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE jobs SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		model.StatusRunning,
		time.Now(),
		id,
		model.StatusPending,
	)
	if err != nil {
		return fmt.Errorf("sqlite: marking job %s running: %w", id, err)
	}
	return db.requireTransition(ctx, result, id)
}

// CompleteJob writes the generated text and moves the job to complete.
//
// The WHERE clause restricts the update to non-terminal rows, so the
// result_text transitions at most once — a late or duplicate write
// affects zero rows and is rejected instead of overwriting the result.
func (db *DB) CompleteJob(ctx context.Context, id, resultText string) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE jobs SET status = ?, result_text = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		model.StatusComplete,
		resultText,
		time.Now(),
		id,
		model.StatusPending,
		model.StatusRunning,
	)
	if err != nil {
		return fmt.Errorf("sqlite: completing job %s: %w", id, err)
	}
	return db.requireTransition(ctx, result, id)
}

// FailJob records the failure reason and moves the job to failed.
// Same single-transition guard as CompleteJob.
func (db *DB) FailJob(ctx context.Context, id, errorText string) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE jobs SET status = ?, error_text = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		model.StatusFailed,
		errorText,
		time.Now(),
		id,
		model.StatusPending,
		model.StatusRunning,
	)
	if err != nil {
		return fmt.Errorf("sqlite: failing job %s: %w", id, err)
	}
	return db.requireTransition(ctx, result, id)
}

// requireTransition distinguishes "row missing" from "row already
// terminal" after a guarded UPDATE affected zero rows.
func (db *DB) requireTransition(ctx context.Context, result sql.Result, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	// Zero rows: either the job doesn't exist, or its current status
	// doesn't permit the attempted transition.
	var status model.JobStatus
	err = db.conn.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = ?`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return apperror.NotFound("job", id)
	}
	if err != nil {
		return fmt.Errorf("sqlite: checking job %s status: %w", id, err)
	}
	return &apperror.AppError{
		Err:     apperror.ErrConflict,
		Message: fmt.Sprintf("job %s in state %s does not allow this transition", id, status),
	}
}
