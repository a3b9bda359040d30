package models

import (
	"encoding/json"
	"time"
)

const (
	JobStatusWaiting    = "waiting"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// Keys the balancer attaches to a submission before it is enqueued.
const (
	JobFieldWorkerID = "workerId"
	JobFieldPriority = "priority"
)

// JobData is an opaque job submission. The core reads only the scheduling
// hints userType, duration and urgent.
type JobData map[string]any

// UserType returns the "userType" hint, or "" when absent.
func (d JobData) UserType() string {
	s, _ := d["userType"].(string)
	return s
}

// Duration returns the "duration" hint. JSON numbers decode as float64;
// integer values set from Go code are accepted too.
func (d JobData) Duration() (float64, bool) {
	switch v := d["duration"].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

// Urgent returns the "urgent" hint.
func (d JobData) Urgent() bool {
	b, _ := d["urgent"].(bool)
	return b
}

// WorkerID returns the worker the job was assigned to, if any.
func (d JobData) WorkerID() string {
	s, _ := d[JobFieldWorkerID].(string)
	return s
}

// Clone returns a shallow copy so callers' maps are never mutated.
func (d JobData) Clone() JobData {
	out := make(JobData, len(d)+2)
	for k, v := range d {
		out[k] = v
	}
	return out
}

// JobProgress is the durable progress record of a job, keyed by job id in the
// metrics store.
type JobProgress struct {
	JobID     string          `json:"job_id"`
	Progress  int             `json:"progress"`
	Status    string          `json:"status"`
	Error     string          `json:"error,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// QueueStats counts jobs per state.
type QueueStats struct {
	Total     int  `json:"total"`
	Waiting   int  `json:"waiting"`
	Active    int  `json:"active"`
	Completed int  `json:"completed"`
	Failed    int  `json:"failed"`
	Delayed   int  `json:"delayed"`
	Paused    bool `json:"paused"`
}
