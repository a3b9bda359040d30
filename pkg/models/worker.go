package models

import "time"

// WorkerStatus is the scheduling state of a registered worker.
type WorkerStatus string

const (
	WorkerStatusIdle  WorkerStatus = "idle"
	WorkerStatusBusy  WorkerStatus = "busy"
	WorkerStatusError WorkerStatus = "error"
)

// Valid reports whether s is one of the known worker states.
func (s WorkerStatus) Valid() bool {
	switch s {
	case WorkerStatusIdle, WorkerStatusBusy, WorkerStatusError:
		return true
	}
	return false
}

// WorkerPerformance is refreshed from the latest performance snapshot by the
// balancer's health check, not by job assignment.
type WorkerPerformance struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	QueueLength   int     `json:"queue_length"`
}

// CombinedLoad is the sum of CPU and memory utilisation.
func (p WorkerPerformance) CombinedLoad() float64 {
	return p.CPUPercent + p.MemoryPercent
}

// Worker is a logical execution slot registered with the balancer.
type Worker struct {
	ID            string            `json:"id"`
	Status        WorkerStatus      `json:"status"`
	CurrentJobs   int               `json:"current_jobs"`
	MaxJobs       int               `json:"max_jobs"`
	LastHeartbeat time.Time         `json:"last_heartbeat"`
	Performance   WorkerPerformance `json:"performance"`
}

// HasCapacity reports whether the worker can take another job.
func (w *Worker) HasCapacity() bool {
	return w.CurrentJobs < w.MaxJobs
}

// LoadStats summarises the worker registry.
type LoadStats struct {
	TotalWorkers  int     `json:"total_workers"`
	ActiveWorkers int     `json:"active_workers"`
	TotalJobs     int     `json:"total_jobs"`
	AverageLoad   float64 `json:"average_load"`
}
