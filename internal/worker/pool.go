// Package worker runs model completions on a bounded pool.
//
// Submission enqueues a (jobID, prompt) pair onto a buffered channel; a
// fixed set of workers drains it. Bounding both the queue and the worker
// count means a slow or hung provider can't accumulate an unbounded
// number of in-flight goroutines — the queue fills and submissions are
// refused until it drains. Every job leaves the pool in a terminal
// state: complete with a result, or failed with a recorded reason.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sakif/llm-relay/internal/gateway"
	"github.com/sakif/llm-relay/internal/repository"
)

// Task is one queued unit of work. The job row already exists (status
// pending) by the time a Task is enqueued.
type Task struct {
	JobID  string
	Prompt string
}

// Pool manages the completion workers.
type Pool struct {
	gw      gateway.Gateway
	jobs    repository.JobRepository
	logger  *slog.Logger
	timeout time.Duration

	queue   chan Task
	workers int
	wg      sync.WaitGroup

	// mu orders Enqueue sends against the close in Stop: a send and a
	// close on the same channel must not race, and an Enqueue that loses
	// the race gets an error instead of a send-on-closed-channel panic.
	mu        sync.Mutex
	stopped   bool
	startOnce sync.Once
	stopOnce  sync.Once
}

// New creates a Pool with the given worker count and queue capacity.
// timeout bounds each individual completion call.
func New(gw gateway.Gateway, jobs repository.JobRepository, workers, queueSize int, timeout time.Duration, logger *slog.Logger) *Pool {
	return &Pool{
		gw:      gw,
		jobs:    jobs,
		logger:  logger,
		timeout: timeout,
		queue:   make(chan Task, queueSize),
		workers: workers,
	}
}

// Start launches the workers. Safe to call once; subsequent calls are no-ops.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		p.logger.Info("starting completion worker pool",
			slog.Int("workers", p.workers),
			slog.Int("queueSize", cap(p.queue)),
		)
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.worker()
		}
	})
}

// Stop closes the queue and waits for the workers to drain it. Jobs
// already enqueued still run to a terminal state; new Enqueue calls are
// rejected. Call during graceful shutdown, before closing the database.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.logger.Info("shutting down completion worker pool")
		p.mu.Lock()
		p.stopped = true
		close(p.queue)
		p.mu.Unlock()
		p.wg.Wait()
	})
}

// Enqueue hands a task to the pool without blocking.
// Returns an error when the queue is at capacity or the pool has been
// stopped — the caller decides how to surface the backpressure (the
// orchestrator fails the job).
func (p *Pool) Enqueue(task Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return fmt.Errorf("worker: pool is stopped")
	}

	select {
	case p.queue <- task:
		return nil
	default:
		return fmt.Errorf("worker: queue is full (%d tasks)", cap(p.queue))
	}
}

// worker drains the queue until it's closed.
func (p *Pool) worker() {
	defer p.wg.Done()

	for task := range p.queue {
		p.run(task)
	}
}

// run executes one completion and records the outcome on the job row.
//
// The pool must never lose a job in a non-terminal state, so any error —
// upstream failure, timeout, even a failed status write — ends with a
// FailJob attempt. A job left "processing" forever would be
// indistinguishable from a slow one.
func (p *Pool) run(task Task) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.jobs.MarkJobRunning(ctx, task.JobID); err != nil {
		// Missing row or unexpected state: nothing safe to do but log.
		p.logger.Error("failed to mark job running",
			slog.String("jobID", task.JobID),
			slog.String("error", err.Error()),
		)
		return
	}

	started := time.Now()
	result, err := p.gw.Complete(ctx, task.Prompt)
	if err != nil {
		p.logger.Warn("completion failed",
			slog.String("jobID", task.JobID),
			slog.Duration("duration", time.Since(started)),
			slog.String("error", err.Error()),
		)
		p.fail(task.JobID, err.Error())
		return
	}

	if err := p.jobs.CompleteJob(ctx, task.JobID, result); err != nil {
		p.logger.Error("failed to store job result",
			slog.String("jobID", task.JobID),
			slog.String("error", err.Error()),
		)
		p.fail(task.JobID, "failed to store result: "+err.Error())
		return
	}

	p.logger.Info("job completed",
		slog.String("jobID", task.JobID),
		slog.Duration("duration", time.Since(started)),
	)
}

// fail records the failure reason with a fresh context — the per-job
// context may already be expired, and the status write must still land.
func (p *Pool) fail(jobID, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.jobs.FailJob(ctx, jobID, reason); err != nil {
		p.logger.Error("failed to mark job failed",
			slog.String("jobID", jobID),
			slog.String("error", err.Error()),
		)
	}
}
