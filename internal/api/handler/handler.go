// Package handler implements the HTTP endpoints of the renderhub API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/kiranshivaraju/renderhub/internal/api/response"
	"github.com/kiranshivaraju/renderhub/internal/balancer"
	"github.com/kiranshivaraju/renderhub/internal/queue"
	"github.com/kiranshivaraju/renderhub/pkg/models"
)

// WorkerService manages the worker registry.
type WorkerService interface {
	RegisterWorker(id string) (models.Worker, error)
	UnregisterWorker(ctx context.Context, id string)
	UpdateWorkerStatus(id string, status models.WorkerStatus) error
	UpdateWorkerJobs(id string, n int) error
	Heartbeat(id string) error
	GetWorkerStats() []models.Worker
	GetLoadStats() models.LoadStats
}

// Distributor assigns a submission to a worker and enqueues it.
type Distributor interface {
	DistributeJob(ctx context.Context, data models.JobData) (string, error)
}

// NodeService manages the cluster node registry.
type NodeService interface {
	AddNode(info models.NodeInfo) (models.Node, error)
	UpdateNodeMetrics(id string, m models.NodeMetrics) error
	RemoveNode(id string)
	GetNode(id string) (models.Node, bool)
	GetNodes() []models.Node
	ClusterSummary() models.ClusterSummary
}

// JobService is the worker-facing side of the job queue.
type JobService interface {
	GetJobProgress(ctx context.Context, jobID string) (*models.JobProgress, bool, error)
	ClaimJob(ctx context.Context, workerID string) (*queue.Job, error)
	ReportProgress(ctx context.Context, jobID string, pct int) error
	CompleteJob(ctx context.Context, jobID string, result json.RawMessage) error
	FailJob(ctx context.Context, jobID string, reason string) error
}

// QueueService administers the job queue as a whole.
type QueueService interface {
	GetStats(ctx context.Context) (models.QueueStats, error)
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	CleanOldJobs(ctx context.Context, grace time.Duration) (int, error)
	RetryFailedJobs(ctx context.Context) (int, error)
}

// MetricsService serves performance snapshots and their classification.
type MetricsService interface {
	GetCurrentMetrics(ctx context.Context) models.Snapshot
	GetMetricsHistory(ctx context.Context, limit int) ([]models.Snapshot, error)
	GetHealthStatus(ctx context.Context) models.HealthStatus
	GetPerformanceReport(ctx context.Context) models.PerformanceReport
}

// decodeBody decodes a JSON request body into v. An empty body is accepted
// only when allowEmpty is set, leaving v untouched.
func decodeBody(r *http.Request, v any, allowEmpty bool) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return allowEmpty
	}
	return err == nil
}

func invalidBody(w http.ResponseWriter) {
	response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
}

func badRequest(w http.ResponseWriter, message string) {
	response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", message, nil)
}

// noWorkersRetryAfter is the wait suggested when every worker is occupied.
const noWorkersRetryAfter = 5 * time.Second

// writeError maps domain errors to HTTP responses.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, balancer.ErrNotFound):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, queue.ErrJobNotFound):
		response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", err.Error(), nil)
	case errors.Is(err, balancer.ErrInvalidArgument):
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
	case errors.Is(err, balancer.ErrWorkerExists):
		response.Error(w, http.StatusConflict, "WORKER_EXISTS", err.Error(), nil)
	case errors.Is(err, balancer.ErrCapacityExceeded):
		response.Error(w, http.StatusConflict, "CAPACITY_EXCEEDED", err.Error(), nil)
	case errors.Is(err, queue.ErrDuplicateJob):
		response.Error(w, http.StatusConflict, "DUPLICATE_JOB", err.Error(), nil)
	case errors.Is(err, queue.ErrInvalidTransition):
		response.Error(w, http.StatusConflict, "INVALID_TRANSITION", err.Error(), nil)
	case errors.Is(err, balancer.ErrNoWorkersAvailable):
		response.RetryAfter(w, noWorkersRetryAfter)
		response.Error(w, http.StatusServiceUnavailable, "NO_WORKERS_AVAILABLE",
			"No idle worker with spare capacity", nil)
	case errors.Is(err, queue.ErrQueueBackend):
		response.Error(w, http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE",
			"The job queue is not available", nil)
	default:
		slog.Error("request failed", "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}
