package queue

import (
	"container/heap"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/renderhub/pkg/models"
)

// Backend is the job queue technology behind JobQueue. The producer side is
// Enqueue and Subscribe; Claim, Progress, Complete and Fail are driven by the
// workers that execute jobs.
type Backend interface {
	Enqueue(ctx context.Context, job *Job) error
	Subscribe() (<-chan Event, func())

	// Claim activates the highest-priority job runnable by workerID. It
	// returns nil when nothing is runnable or the queue is paused.
	Claim(ctx context.Context, workerID string) (*Job, error)
	Progress(ctx context.Context, jobID string, pct int) error
	Complete(ctx context.Context, jobID string, result json.RawMessage) error
	Fail(ctx context.Context, jobID string, reason string) error

	Counts(ctx context.Context) (models.QueueStats, error)
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Clean(ctx context.Context, grace time.Duration, state State) (int, error)
	Failed(ctx context.Context) ([]*Job, error)
	Retry(ctx context.Context, jobID string) error

	// ReleaseWorker hands the jobs of a departed worker to the shared heap.
	// Its pinned jobs become claimable by any worker and the attempts it was
	// running count as failed.
	ReleaseWorker(ctx context.Context, workerID string) (int, error)
}

// jobHeap orders jobs by priority (highest first), then submission order.
type jobHeap []*Job

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if h[i].Opts.Priority == h[j].Opts.Priority {
		return h[i].seq < h[j].seq
	}
	return h[i].Opts.Priority > h[j].Opts.Priority
}

func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *jobHeap) Push(x any) {
	job := x.(*Job)
	job.index = len(*h)
	*h = append(*h, job)
}

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	job := old[n-1]
	old[n-1] = nil
	job.index = -1
	*h = old[:n-1]
	return job
}

// MemoryBackend is an in-process Backend. Waiting jobs are kept in one
// priority heap per pinned worker plus a shared heap for unpinned jobs.
type MemoryBackend struct {
	// emitMu keeps events in the order their state changes were applied.
	emitMu sync.Mutex
	mu     sync.Mutex

	jobs    map[string]*Job
	waiting map[string]*jobHeap
	seq     uint64
	paused  bool
	closed  bool
	now     func() time.Time

	events broadcaster
}

// NewMemoryBackend creates an empty in-process backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		jobs:    make(map[string]*Job),
		waiting: make(map[string]*jobHeap),
		now:     time.Now,
	}
}

// SetClock replaces the time source. Intended for tests.
func (b *MemoryBackend) SetClock(now func() time.Time) {
	b.mu.Lock()
	b.now = now
	b.mu.Unlock()
}

// Close rejects further enqueues.
func (b *MemoryBackend) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
}

func (b *MemoryBackend) Subscribe() (<-chan Event, func()) {
	return b.events.subscribe()
}

// mutate applies fn under the state lock and publishes its events after
// releasing it.
func (b *MemoryBackend) mutate(fn func() ([]Event, error)) error {
	b.emitMu.Lock()
	defer b.emitMu.Unlock()

	b.mu.Lock()
	events, err := fn()
	b.mu.Unlock()

	b.events.publish(events...)
	return err
}

func (b *MemoryBackend) event(t EventType, job *Job) Event {
	return Event{
		Type:      t,
		JobID:     job.ID,
		WorkerID:  job.runner(),
		Progress:  job.Progress,
		Result:    job.Result,
		Error:     job.FailedReason,
		Attempt:   job.AttemptsMade,
		Timestamp: b.now(),
	}
}

func (b *MemoryBackend) Enqueue(ctx context.Context, job *Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.mutate(func() ([]Event, error) {
		if b.closed {
			return nil, fmt.Errorf("%w: backend closed", ErrQueueBackend)
		}
		if job.ID == "" {
			job.ID = uuid.NewString()
		}
		if _, exists := b.jobs[job.ID]; exists {
			return nil, fmt.Errorf("enqueue: %w: %s", ErrDuplicateJob, job.ID)
		}
		if job.Opts.Attempts < 1 {
			job.Opts.Attempts = 1
		}
		stored := job.clone()
		stored.CreatedAt = b.now()
		b.jobs[stored.ID] = stored
		b.pushWaiting(stored)
		return []Event{b.event(EventWaiting, stored)}, nil
	})
}

func (b *MemoryBackend) pushWaiting(job *Job) {
	b.seq++
	job.seq = b.seq
	job.State = StateWaiting
	job.WorkerID = ""
	job.RunAt = time.Time{}
	b.heapFor(job.Opts.WorkerID).push(job)
}

func (b *MemoryBackend) heapFor(workerID string) *jobHeap {
	h, ok := b.waiting[workerID]
	if !ok {
		h = &jobHeap{}
		b.waiting[workerID] = h
	}
	return h
}

func (h *jobHeap) push(job *Job) { heap.Push(h, job) }

// promoteDue moves delayed jobs whose backoff has elapsed back to waiting.
func (b *MemoryBackend) promoteDue() {
	now := b.now()
	for _, job := range b.jobs {
		if job.State == StateDelayed && !now.Before(job.RunAt) {
			b.pushWaiting(job)
		}
	}
}

func (b *MemoryBackend) Claim(ctx context.Context, workerID string) (*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var claimed *Job
	err := b.mutate(func() ([]Event, error) {
		b.promoteDue()
		if b.paused {
			return nil, nil
		}

		own, shared := b.waiting[workerID], b.waiting[""]
		var h *jobHeap
		switch {
		case own != nil && own.Len() > 0 && shared != nil && shared.Len() > 0:
			h = own
			if jobHeap([]*Job{(*shared)[0], (*own)[0]}).Less(0, 1) {
				h = shared
			}
		case own != nil && own.Len() > 0:
			h = own
		case shared != nil && shared.Len() > 0:
			h = shared
		default:
			return nil, nil
		}

		job := heap.Pop(h).(*Job)
		job.State = StateActive
		job.Progress = 0
		job.ProcessedAt = b.now()
		job.WorkerID = workerID
		claimed = job.clone()
		return []Event{b.event(EventActive, job)}, nil
	})
	return claimed, err
}

func (b *MemoryBackend) active(jobID string) (*Job, error) {
	job, ok := b.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if job.State != StateActive {
		return nil, fmt.Errorf("%w: job %s is %s", ErrInvalidTransition, jobID, job.State)
	}
	return job, nil
}

// Progress records pct for an active job. Values are clamped to 0..100 and
// never move backwards within an attempt.
func (b *MemoryBackend) Progress(ctx context.Context, jobID string, pct int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.mutate(func() ([]Event, error) {
		job, err := b.active(jobID)
		if err != nil {
			return nil, err
		}
		pct = min(max(pct, 0), 100)
		if pct > job.Progress {
			job.Progress = pct
		}
		return []Event{b.event(EventProgress, job)}, nil
	})
}

func (b *MemoryBackend) Complete(ctx context.Context, jobID string, result json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.mutate(func() ([]Event, error) {
		job, err := b.active(jobID)
		if err != nil {
			return nil, err
		}
		job.State = StateCompleted
		job.Progress = 100
		job.Result = result
		job.FailedReason = ""
		job.FinishedAt = b.now()
		ev := b.event(EventCompleted, job)
		if job.Opts.RemoveOnComplete {
			delete(b.jobs, job.ID)
		}
		return []Event{ev}, nil
	})
}

// Fail records a failed attempt. The job is rescheduled with backoff until
// its attempts are exhausted, then it moves to failed with reason kept.
func (b *MemoryBackend) Fail(ctx context.Context, jobID string, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.mutate(func() ([]Event, error) {
		job, err := b.active(jobID)
		if err != nil {
			return nil, err
		}
		return []Event{b.failAttempt(job, reason)}, nil
	})
}

func (b *MemoryBackend) failAttempt(job *Job, reason string) Event {
	job.AttemptsMade++
	job.FailedReason = reason
	job.Progress = 0

	if job.AttemptsMade < job.Opts.Attempts {
		delay := job.Opts.Backoff.After(job.AttemptsMade)
		if delay > 0 {
			job.State = StateDelayed
			job.RunAt = b.now().Add(delay)
		} else {
			b.pushWaiting(job)
		}
		return b.event(EventWaiting, job)
	}

	job.State = StateFailed
	job.FinishedAt = b.now()
	ev := b.event(EventFailed, job)
	if job.Opts.RemoveOnFail {
		delete(b.jobs, job.ID)
	}
	return ev
}

func (b *MemoryBackend) Counts(ctx context.Context) (models.QueueStats, error) {
	if err := ctx.Err(); err != nil {
		return models.QueueStats{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.promoteDue()
	st := models.QueueStats{Total: len(b.jobs), Paused: b.paused}
	for _, job := range b.jobs {
		switch job.State {
		case StateWaiting:
			st.Waiting++
		case StateActive:
			st.Active++
		case StateDelayed:
			st.Delayed++
		case StateCompleted:
			st.Completed++
		case StateFailed:
			st.Failed++
		}
	}
	return st, nil
}

func (b *MemoryBackend) Pause(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	b.paused = true
	b.mu.Unlock()
	return nil
}

func (b *MemoryBackend) Resume(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	b.paused = false
	b.mu.Unlock()
	return nil
}

// Clean removes jobs in state that finished more than grace ago.
func (b *MemoryBackend) Clean(ctx context.Context, grace time.Duration, state State) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if state != StateCompleted && state != StateFailed {
		return 0, fmt.Errorf("clean: only finished states can be cleaned, got %s", state)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := b.now().Add(-grace)
	removed := 0
	for id, job := range b.jobs {
		if job.State == state && job.FinishedAt.Before(cutoff) {
			delete(b.jobs, id)
			removed++
		}
	}
	return removed, nil
}

func (b *MemoryBackend) Failed(ctx context.Context) ([]*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []*Job
	for _, job := range b.jobs {
		if job.State == StateFailed {
			out = append(out, job.clone())
		}
	}
	return out, nil
}

// Retry starts a fresh attempt cycle for a failed job.
func (b *MemoryBackend) Retry(ctx context.Context, jobID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.mutate(func() ([]Event, error) {
		job, ok := b.jobs[jobID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		if job.State != StateFailed {
			return nil, fmt.Errorf("%w: job %s is %s", ErrInvalidTransition, jobID, job.State)
		}
		job.AttemptsMade = 0
		job.FailedReason = ""
		job.Progress = 0
		job.FinishedAt = time.Time{}
		// The slot reserved for the old pin was released when the job
		// failed, so the fresh cycle goes to whichever worker is free.
		job.unpin()
		b.pushWaiting(job)
		return []Event{b.event(EventWaiting, job)}, nil
	})
}

func (b *MemoryBackend) ReleaseWorker(ctx context.Context, workerID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if workerID == "" {
		return 0, nil
	}
	released := 0
	err := b.mutate(func() ([]Event, error) {
		if h, ok := b.waiting[workerID]; ok {
			shared := b.heapFor("")
			for h.Len() > 0 {
				job := heap.Pop(h).(*Job)
				job.unpin()
				shared.push(job)
				released++
			}
			delete(b.waiting, workerID)
		}

		var events []Event
		for _, job := range b.jobs {
			switch {
			case job.State == StateDelayed && job.Opts.WorkerID == workerID:
				job.unpin()
				released++
			case job.State == StateActive && job.WorkerID == workerID:
				job.unpin()
				events = append(events, b.failAttempt(job, "worker "+workerID+" lost"))
				released++
			}
		}
		return events, nil
	})
	return released, err
}
