// Package repository defines the persistence interfaces the service layer
// depends on. Concrete implementations live in subpackages (sqlite);
// tests substitute in-memory fakes.
package repository

import (
	"context"

	"github.com/sakif/llm-relay/internal/model"
)

type UserRepository interface {
	// CreateUser inserts a new user, generating the ID and timestamps.
	// Returns apperror.ErrConflict if the email is already registered.
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
}

type JobRepository interface {
	// CreateJob inserts a new pending job. The caller supplies the ID so
	// it can be handed to the client before any background work starts.
	CreateJob(ctx context.Context, job *model.Job) error
	GetJobByID(ctx context.Context, id string) (*model.Job, error)

	// MarkJobRunning flips a pending job to running. Returns
	// ErrNotFound if the job is absent, ErrConflict if it already
	// left the pending state.
	MarkJobRunning(ctx context.Context, id string) error

	// CompleteJob and FailJob move a job into its terminal state.
	// Each succeeds at most once per job: a second transition attempt
	// affects zero rows and returns apperror.ErrConflict.
	CompleteJob(ctx context.Context, id, resultText string) error
	FailJob(ctx context.Context, id, errorText string) error
}
