package queue

import (
	"encoding/json"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/kiranshivaraju/renderhub/pkg/models"
)

// State is the backend-side lifecycle state of a job.
type State string

const (
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateDelayed   State = "delayed"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

type BackoffKind string

const (
	BackoffExponential BackoffKind = "exponential"
	BackoffFixed       BackoffKind = "fixed"
)

const maxBackoff = 10 * time.Minute

// Backoff is the delay policy between attempts.
type Backoff struct {
	Kind  BackoffKind
	Delay time.Duration
}

// After returns the delay before the next attempt, given how many attempts
// have already failed (1 for the first retry).
func (b Backoff) After(failures int) time.Duration {
	if b.Delay <= 0 || failures < 1 {
		return 0
	}
	if b.Kind == BackoffFixed {
		return backoff.NewConstantBackOff(b.Delay).NextBackOff()
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = b.Delay
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxInterval = maxBackoff
	eb.MaxElapsedTime = 0
	eb.Reset()

	d := eb.NextBackOff()
	for i := 1; i < failures; i++ {
		d = eb.NextBackOff()
	}
	return d
}

// Options is the per-job scheduling and retry policy.
type Options struct {
	// JobID presets the job id. AddJob generates one when it is empty.
	JobID            string
	Attempts         int
	Backoff          Backoff
	Priority         int
	WorkerID         string
	RemoveOnComplete bool
	RemoveOnFail     bool
}

// DefaultOptions returns three attempts with exponential backoff from one
// second, completed jobs removed and failed jobs kept.
func DefaultOptions() Options {
	return Options{
		Attempts:         3,
		Backoff:          Backoff{Kind: BackoffExponential, Delay: time.Second},
		RemoveOnComplete: true,
		RemoveOnFail:     false,
	}
}

type Option func(*Options)

func WithAttempts(n int) Option {
	return func(o *Options) {
		o.Attempts = n
	}
}

func WithBackoff(kind BackoffKind, delay time.Duration) Option {
	return func(o *Options) {
		o.Backoff = Backoff{Kind: kind, Delay: delay}
	}
}

// WithPriority sets the dispatch priority. Higher values are claimed first.
func WithPriority(p int) Option {
	return func(o *Options) {
		o.Priority = p
	}
}

// WithWorker pins the job to a worker. Unpinned jobs can be claimed by any worker.
func WithWorker(id string) Option {
	return func(o *Options) {
		o.WorkerID = id
	}
}

// WithJobID lets the caller know the id before the job becomes claimable.
// The id must not be in use.
func WithJobID(id string) Option {
	return func(o *Options) {
		o.JobID = id
	}
}

func WithRemoveOnComplete(remove bool) Option {
	return func(o *Options) {
		o.RemoveOnComplete = remove
	}
}

func WithRemoveOnFail(remove bool) Option {
	return func(o *Options) {
		o.RemoveOnFail = remove
	}
}

// Job is a unit of work held by a Backend.
type Job struct {
	ID   string         `json:"id"`
	Data models.JobData `json:"data"`
	Opts Options        `json:"-"`
	// WorkerID is the worker that claimed the current attempt.
	WorkerID     string          `json:"worker_id,omitempty"`
	State        State           `json:"state"`
	AttemptsMade int             `json:"attempts_made"`
	Progress     int             `json:"progress"`
	Result       json.RawMessage `json:"result,omitempty"`
	FailedReason string          `json:"failed_reason,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	ProcessedAt  time.Time       `json:"processed_at,omitempty"`
	FinishedAt   time.Time       `json:"finished_at,omitempty"`
	RunAt        time.Time       `json:"run_at,omitempty"`

	seq   uint64
	index int
}

func (j *Job) runner() string {
	if j.WorkerID != "" {
		return j.WorkerID
	}
	return j.Opts.WorkerID
}

// unpin moves the job off its reserved worker so any worker can claim it.
func (j *Job) unpin() {
	j.Opts.WorkerID = ""
	if j.Data != nil {
		delete(j.Data, models.JobFieldWorkerID)
	}
}

func (j *Job) clone() *Job {
	c := *j
	c.Data = j.Data.Clone()
	c.index = -1
	return &c
}
