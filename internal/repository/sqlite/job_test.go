package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/sakif/llm-relay/internal/apperror"
	"github.com/sakif/llm-relay/internal/model"
)

func createTestJob(t *testing.T, db *DB) *model.Job {
	t.Helper()
	job := &model.Job{
		ID:        uuid.NewString(),
		UserID:    "user-1",
		InputText: "system preamble\n\nUser query: what is the capital of France?",
	}
	if err := db.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("failed to create test job: %v", err)
	}
	return job
}

func TestCreateJobStartsPending(t *testing.T) {
	db := newTestDB(t)
	job := createTestJob(t, db)

	if job.Status != model.StatusPending {
		t.Errorf("Status = %q, want pending", job.Status)
	}
	if job.CreatedAt.IsZero() {
		t.Error("CreateJob() did not set CreatedAt")
	}

	got, err := db.GetJobByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetJobByID() error = %v", err)
	}
	if got.Status != model.StatusPending {
		t.Errorf("stored Status = %q, want pending", got.Status)
	}
	if got.ResultText != "" {
		t.Errorf("stored ResultText = %q, want empty while pending", got.ResultText)
	}
	if got.InputText != job.InputText {
		t.Errorf("stored InputText = %q, want %q", got.InputText, job.InputText)
	}
}

func TestGetJobByIDNotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetJobByID(context.Background(), uuid.NewString())
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetJobByID() = %v, want ErrNotFound", err)
	}
}

func TestMarkJobRunning(t *testing.T) {
	db := newTestDB(t)
	job := createTestJob(t, db)

	if err := db.MarkJobRunning(context.Background(), job.ID); err != nil {
		t.Fatalf("MarkJobRunning() error = %v", err)
	}

	got, err := db.GetJobByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetJobByID() error = %v", err)
	}
	if got.Status != model.StatusRunning {
		t.Errorf("Status = %q, want running", got.Status)
	}
}

func TestCompleteJob(t *testing.T) {
	db := newTestDB(t)
	job := createTestJob(t, db)

	if err := db.MarkJobRunning(context.Background(), job.ID); err != nil {
		t.Fatalf("MarkJobRunning() error = %v", err)
	}
	if err := db.CompleteJob(context.Background(), job.ID, "Paris."); err != nil {
		t.Fatalf("CompleteJob() error = %v", err)
	}

	got, err := db.GetJobByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetJobByID() error = %v", err)
	}
	if got.Status != model.StatusComplete {
		t.Errorf("Status = %q, want complete", got.Status)
	}
	if got.ResultText != "Paris." {
		t.Errorf("ResultText = %q, want %q", got.ResultText, "Paris.")
	}
	if got.UpdatedAt.Before(got.CreatedAt) {
		t.Error("UpdatedAt should be refreshed when the result is written")
	}
}

func TestCompleteJobIsWriteOnce(t *testing.T) {
	db := newTestDB(t)
	job := createTestJob(t, db)

	if err := db.CompleteJob(context.Background(), job.ID, "first answer"); err != nil {
		t.Fatalf("CompleteJob() error = %v", err)
	}

	// Second write must be refused, not overwrite.
	err := db.CompleteJob(context.Background(), job.ID, "second answer")
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("second CompleteJob() = %v, want ErrConflict", err)
	}

	got, _ := db.GetJobByID(context.Background(), job.ID)
	if got.ResultText != "first answer" {
		t.Errorf("ResultText = %q, result was overwritten", got.ResultText)
	}
}

func TestFailJob(t *testing.T) {
	db := newTestDB(t)
	job := createTestJob(t, db)

	if err := db.FailJob(context.Background(), job.ID, "upstream returned status 500"); err != nil {
		t.Fatalf("FailJob() error = %v", err)
	}

	got, err := db.GetJobByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetJobByID() error = %v", err)
	}
	if got.Status != model.StatusFailed {
		t.Errorf("Status = %q, want failed", got.Status)
	}
	if got.ErrorText != "upstream returned status 500" {
		t.Errorf("ErrorText = %q", got.ErrorText)
	}
}

func TestCompleteAfterFailIsRefused(t *testing.T) {
	db := newTestDB(t)
	job := createTestJob(t, db)

	if err := db.FailJob(context.Background(), job.ID, "timed out"); err != nil {
		t.Fatalf("FailJob() error = %v", err)
	}

	// A late gateway success must not resurrect a failed job.
	err := db.CompleteJob(context.Background(), job.ID, "too late")
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("CompleteJob() after fail = %v, want ErrConflict", err)
	}
}

func TestMarkJobRunningOnTerminalJob(t *testing.T) {
	db := newTestDB(t)
	job := createTestJob(t, db)

	if err := db.CompleteJob(context.Background(), job.ID, "done"); err != nil {
		t.Fatalf("CompleteJob() error = %v", err)
	}

	err := db.MarkJobRunning(context.Background(), job.ID)
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("MarkJobRunning() on complete job = %v, want ErrConflict", err)
	}
}

func TestTransitionHonorsContext(t *testing.T) {
	db := newTestDB(t)
	job := createTestJob(t, db)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := db.MarkJobRunning(ctx, job.ID); err == nil {
		t.Fatal("MarkJobRunning() with canceled context should fail")
	}

	got, err := db.GetJobByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetJobByID() error = %v", err)
	}
	if got.Status != model.StatusPending {
		t.Errorf("Status = %q, want pending after a canceled write", got.Status)
	}
}

func TestTransitionOnMissingJob(t *testing.T) {
	db := newTestDB(t)

	if err := db.CompleteJob(context.Background(), "no-such-job", "x"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("CompleteJob() on missing job = %v, want ErrNotFound", err)
	}
	if err := db.FailJob(context.Background(), "no-such-job", "x"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("FailJob() on missing job = %v, want ErrNotFound", err)
	}
}
