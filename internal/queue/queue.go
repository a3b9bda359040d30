package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/renderhub/internal/cache"
	"github.com/kiranshivaraju/renderhub/pkg/models"
)

// ProgressTTL is how long a job progress record survives in the metrics store.
const ProgressTTL = 24 * time.Hour

// JobQueue accepts jobs, tracks their lifecycle through a Backend and keeps a
// progress record per job in the metrics store.
type JobQueue struct {
	backend  Backend
	cache    cache.Cache
	defaults Options

	events      <-chan Event
	unsubscribe func()
	fanout      broadcaster
}

// New creates a JobQueue and subscribes to the backend immediately so no
// event emitted after construction is missed. Run must be called to drain
// the subscription.
func New(backend Backend, c cache.Cache) *JobQueue {
	events, unsubscribe := backend.Subscribe()
	return &JobQueue{
		backend:     backend,
		cache:       c,
		defaults:    DefaultOptions(),
		events:      events,
		unsubscribe: unsubscribe,
	}
}

// Subscribe returns lifecycle events after their progress record was written.
func (q *JobQueue) Subscribe() (<-chan Event, func()) {
	return q.fanout.subscribe()
}

// Run applies backend events to progress records until ctx is cancelled.
// Store failures are logged and never stop the loop.
func (q *JobQueue) Run(ctx context.Context) error {
	defer q.unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-q.events:
			q.apply(ctx, ev)
			q.fanout.publish(ev)
		}
	}
}

func (q *JobQueue) apply(ctx context.Context, ev Event) {
	rec := models.JobProgress{JobID: ev.JobID, UpdatedAt: ev.Timestamp}
	switch ev.Type {
	case EventWaiting:
		rec.Status = models.JobStatusWaiting
		rec.Error = ev.Error
	case EventActive:
		rec.Status = models.JobStatusProcessing
	case EventProgress:
		rec.Status = models.JobStatusProcessing
		rec.Progress = ev.Progress
	case EventCompleted:
		rec.Status = models.JobStatusCompleted
		rec.Progress = 100
		rec.Result = ev.Result
	case EventFailed:
		rec.Status = models.JobStatusFailed
		rec.Error = ev.Error
	default:
		return
	}

	if err := q.writeProgress(ctx, rec); err != nil {
		slog.Warn("job progress update failed",
			"job_id", ev.JobID, "event", ev.Type, "error", err)
	}
	switch ev.Type {
	case EventCompleted:
		slog.Info("job completed", "job_id", ev.JobID, "worker_id", ev.WorkerID)
	case EventFailed:
		slog.Warn("job failed", "job_id", ev.JobID, "worker_id", ev.WorkerID,
			"attempts", ev.Attempt, "error", ev.Error)
	}
}

func (q *JobQueue) writeProgress(ctx context.Context, rec models.JobProgress) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	return cache.SetJSON(ctx, q.cache, cache.JobProgressKey(rec.JobID), rec, ProgressTTL)
}

// AddJob enqueues data with the default retry policy overridden by opts and
// returns the job id, generated unless WithJobID presets it. A preset id
// already in use fails with ErrDuplicateJob; any other enqueue failure is
// wrapped in ErrQueueBackend.
func (q *JobQueue) AddJob(ctx context.Context, data models.JobData, opts ...Option) (string, error) {
	o := q.defaults
	for _, opt := range opts {
		opt(&o)
	}
	if o.Attempts < 1 {
		o.Attempts = 1
	}

	id := o.JobID
	if id == "" {
		id = uuid.NewString()
	}
	if err := q.writeProgress(ctx, models.JobProgress{
		JobID:  id,
		Status: models.JobStatusWaiting,
	}); err != nil {
		slog.Warn("initial job progress write failed", "job_id", id, "error", err)
	}

	job := &Job{ID: id, Data: data.Clone(), Opts: o}
	if err := q.backend.Enqueue(ctx, job); err != nil {
		if errors.Is(err, ErrDuplicateJob) {
			return "", err
		}
		_ = q.cache.Delete(ctx, cache.JobProgressKey(id))
		slog.Error("enqueue failed", "job_id", id, "error", err)
		if errors.Is(err, ErrQueueBackend) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", ErrQueueBackend, err)
	}

	slog.Info("job queued", "job_id", id, "priority", o.Priority,
		"worker_id", o.WorkerID, "attempts", o.Attempts)
	return id, nil
}

// GetJobProgress returns the stored progress record. The bool is false when
// the job is unknown or its record has expired.
func (q *JobQueue) GetJobProgress(ctx context.Context, jobID string) (*models.JobProgress, bool, error) {
	var rec models.JobProgress
	found, err := cache.GetJSON(ctx, q.cache, cache.JobProgressKey(jobID), &rec)
	if err != nil {
		return nil, false, fmt.Errorf("get job progress: %w", err)
	}
	if !found {
		return nil, false, nil
	}
	return &rec, true, nil
}

func (q *JobQueue) GetStats(ctx context.Context) (models.QueueStats, error) {
	st, err := q.backend.Counts(ctx)
	if err != nil {
		return models.QueueStats{}, fmt.Errorf("queue stats: %w", err)
	}
	return st, nil
}

// Pause stops workers from claiming jobs. Queued jobs are kept.
func (q *JobQueue) Pause(ctx context.Context) error {
	if err := q.backend.Pause(ctx); err != nil {
		return fmt.Errorf("pause queue: %w", err)
	}
	slog.Info("queue paused")
	return nil
}

func (q *JobQueue) Resume(ctx context.Context) error {
	if err := q.backend.Resume(ctx); err != nil {
		return fmt.Errorf("resume queue: %w", err)
	}
	slog.Info("queue resumed")
	return nil
}

// CleanOldJobs purges completed and failed jobs that finished more than
// grace ago and returns how many were removed.
func (q *JobQueue) CleanOldJobs(ctx context.Context, grace time.Duration) (int, error) {
	total := 0
	for _, state := range []State{StateCompleted, StateFailed} {
		n, err := q.backend.Clean(ctx, grace, state)
		if err != nil {
			return total, fmt.Errorf("clean %s jobs: %w", state, err)
		}
		total += n
	}
	slog.Info("old jobs cleaned", "removed", total, "grace", grace)
	return total, nil
}

// RetryFailedJobs starts a new attempt cycle for every failed job.
func (q *JobQueue) RetryFailedJobs(ctx context.Context) (int, error) {
	failed, err := q.backend.Failed(ctx)
	if err != nil {
		return 0, fmt.Errorf("list failed jobs: %w", err)
	}
	retried := 0
	for _, job := range failed {
		if err := q.backend.Retry(ctx, job.ID); err != nil {
			slog.Warn("retry failed job", "job_id", job.ID, "error", err)
			continue
		}
		retried++
	}
	slog.Info("failed jobs retried", "count", retried)
	return retried, nil
}

// ReleaseWorker returns the jobs held for or by a worker that left the pool to
// the shared queue, so the next free worker picks them up.
func (q *JobQueue) ReleaseWorker(ctx context.Context, workerID string) (int, error) {
	n, err := q.backend.ReleaseWorker(ctx, workerID)
	if err != nil {
		return 0, fmt.Errorf("release worker %s: %w", workerID, err)
	}
	if n > 0 {
		slog.Info("worker jobs requeued", "worker_id", workerID, "jobs", n)
	}
	return n, nil
}

// ClaimJob hands the next runnable job to workerID, or nil when there is none.
func (q *JobQueue) ClaimJob(ctx context.Context, workerID string) (*Job, error) {
	return q.backend.Claim(ctx, workerID)
}

func (q *JobQueue) ReportProgress(ctx context.Context, jobID string, pct int) error {
	return q.backend.Progress(ctx, jobID, pct)
}

func (q *JobQueue) CompleteJob(ctx context.Context, jobID string, result json.RawMessage) error {
	return q.backend.Complete(ctx, jobID, result)
}

func (q *JobQueue) FailJob(ctx context.Context, jobID string, reason string) error {
	return q.backend.Fail(ctx, jobID, reason)
}
