package model

import "time"

// JobStatus is the explicit lifecycle state of a Job.
//
// The only legal transitions are:
//
//	pending → running → complete
//	pending → running → failed
//	pending → failed            (enqueue rejected before a worker picked it up)
//
// complete and failed are terminal — the repository refuses any further
// writes once a job reaches one of them.
type JobStatus string

const (
	StatusPending  JobStatus = "pending"
	StatusRunning  JobStatus = "running"
	StatusComplete JobStatus = "complete"
	StatusFailed   JobStatus = "failed"
)

// Terminal reports whether the status permits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// Job represents one user query and its (eventually) computed answer.
//
// ID is a random UUIDv4 string. It doubles as the unauthenticated polling
// key, so it must not be guessable or time-sortable — which is why jobs
// don't reuse the xid scheme user IDs use.
//
// InputText is the fully assembled prompt (system preamble + user query)
// and is immutable after creation. ResultText is set exactly once, when
// the job completes. ErrorText is set exactly once, when it fails.
type Job struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	InputText  string    `json:"inputText"`
	ResultText string    `json:"resultText"`
	ErrorText  string    `json:"errorText"`
	Status     JobStatus `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
