// Package balancer owns the worker and node registries and decides which
// worker runs each submitted job.
package balancer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/renderhub/internal/config"
	"github.com/kiranshivaraju/renderhub/internal/metrics"
	"github.com/kiranshivaraju/renderhub/internal/queue"
	"github.com/kiranshivaraju/renderhub/pkg/models"
)

// JobQueue is the part of the job queue the balancer drives.
type JobQueue interface {
	AddJob(ctx context.Context, data models.JobData, opts ...queue.Option) (string, error)
	Subscribe() (<-chan queue.Event, func())
	ReleaseWorker(ctx context.Context, workerID string) (int, error)
}

// MetricsSource supplies the latest performance snapshot.
type MetricsSource interface {
	GetCurrentMetrics(ctx context.Context) models.Snapshot
}

type Option func(*Balancer)

// WithClock replaces time.Now. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Balancer) {
		b.now = now
	}
}

type Balancer struct {
	cfg     config.BalancerConfig
	jobs    JobQueue
	metrics MetricsSource
	now     func() time.Time

	mu      sync.RWMutex
	workers map[string]*models.Worker
	// assigned maps jobs placed by DistributeJob to their reserved worker.
	assigned map[string]string

	nodesMu sync.RWMutex
	nodes   map[string]*models.Node

	events      <-chan queue.Event
	unsubscribe func()
}

// New creates a Balancer. It subscribes to job events right away so that a
// job finishing before Run starts still releases its worker slot.
func New(cfg config.BalancerConfig, jobs JobQueue, ms MetricsSource, opts ...Option) *Balancer {
	b := &Balancer{
		cfg:      cfg,
		jobs:     jobs,
		metrics:  ms,
		now:      time.Now,
		workers:  make(map[string]*models.Worker),
		assigned: make(map[string]string),
		nodes:    make(map[string]*models.Node),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.events, b.unsubscribe = jobs.Subscribe()
	return b
}

// RegisterWorker adds an idle worker with no jobs.
func (b *Balancer) RegisterWorker(id string) (models.Worker, error) {
	if id == "" {
		return models.Worker{}, fmt.Errorf("%w: worker id is required", ErrInvalidArgument)
	}

	b.mu.Lock()
	if _, exists := b.workers[id]; exists {
		b.mu.Unlock()
		return models.Worker{}, fmt.Errorf("%w: %s", ErrWorkerExists, id)
	}
	if len(b.workers) >= b.cfg.MaxWorkers {
		b.mu.Unlock()
		return models.Worker{}, fmt.Errorf("%w: limit is %d", ErrCapacityExceeded, b.cfg.MaxWorkers)
	}
	w := &models.Worker{
		ID:            id,
		Status:        models.WorkerStatusIdle,
		MaxJobs:       b.cfg.MaxJobsPerWorker,
		LastHeartbeat: b.now(),
	}
	b.workers[id] = w
	out := *w
	b.mu.Unlock()

	slog.Info("worker registered", "worker_id", id, "max_jobs", out.MaxJobs)
	b.observe()
	return out, nil
}

// UnregisterWorker removes a worker and hands its queued and running jobs
// to the remaining workers. Unknown ids are ignored.
func (b *Balancer) UnregisterWorker(ctx context.Context, id string) {
	b.mu.Lock()
	_, existed := b.workers[id]
	b.dropLocked(id)
	b.mu.Unlock()

	if existed {
		slog.Info("worker unregistered", "worker_id", id)
		b.requeue(ctx, id)
		b.observe()
	}
}

// dropLocked deletes a worker along with the reservations it held.
func (b *Balancer) dropLocked(id string) {
	delete(b.workers, id)
	for jobID, workerID := range b.assigned {
		if workerID == id {
			delete(b.assigned, jobID)
		}
	}
}

// requeue hands a removed worker's jobs back to the queue. The worker is
// already gone, so cancellation of ctx must not strand them.
func (b *Balancer) requeue(ctx context.Context, id string) {
	if _, err := b.jobs.ReleaseWorker(context.WithoutCancel(ctx), id); err != nil {
		slog.Error("requeue jobs of departed worker failed", "worker_id", id, "error", err)
	}
}

func (b *Balancer) UpdateWorkerStatus(id string, status models.WorkerStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, status)
	}
	err := b.withWorker(id, func(w *models.Worker) {
		w.Status = status
		w.LastHeartbeat = b.now()
	})
	if err == nil {
		b.observe()
	}
	return err
}

func (b *Balancer) UpdateWorkerJobs(id string, n int) error {
	if n < 0 {
		return fmt.Errorf("%w: job count must not be negative, got %d", ErrInvalidArgument, n)
	}
	err := b.withWorker(id, func(w *models.Worker) {
		w.CurrentJobs = n
		w.LastHeartbeat = b.now()
	})
	if err == nil {
		b.observe()
	}
	return err
}

// Heartbeat marks a worker as alive without changing its state.
func (b *Balancer) Heartbeat(id string) error {
	return b.withWorker(id, func(w *models.Worker) {
		w.LastHeartbeat = b.now()
	})
}

func (b *Balancer) withWorker(id string, fn func(*models.Worker)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.workers[id]
	if !ok {
		return fmt.Errorf("worker %s: %w", id, ErrNotFound)
	}
	fn(w)
	return nil
}

// GetWorker returns a copy of one worker.
func (b *Balancer) GetWorker(id string) (models.Worker, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	w, ok := b.workers[id]
	if !ok {
		return models.Worker{}, false
	}
	return *w, true
}

// GetOptimalWorker returns the idle worker with spare capacity and the fewest
// current jobs. Ties go to the lower combined CPU and memory load, then id.
func (b *Balancer) GetOptimalWorker() (models.Worker, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	w := b.optimalLocked()
	if w == nil {
		return models.Worker{}, false
	}
	return *w, true
}

func (b *Balancer) optimalLocked() *models.Worker {
	var best *models.Worker
	for _, w := range b.workers {
		if w.Status != models.WorkerStatusIdle || !w.HasCapacity() {
			continue
		}
		if best == nil || better(w, best) {
			best = w
		}
	}
	return best
}

func better(a, c *models.Worker) bool {
	if a.CurrentJobs != c.CurrentJobs {
		return a.CurrentJobs < c.CurrentJobs
	}
	if la, lc := a.Performance.CombinedLoad(), c.Performance.CombinedLoad(); la != lc {
		return la < lc
	}
	return a.ID < c.ID
}

// DistributeJob reserves the optimal worker, scores the job and enqueues it
// pinned to that worker. The job id is fixed before the enqueue so the
// reservation is on record by the time any worker can claim the job. The
// reservation is undone if the enqueue fails.
func (b *Balancer) DistributeJob(ctx context.Context, data models.JobData) (string, error) {
	jobID := uuid.NewString()

	b.mu.Lock()
	w := b.optimalLocked()
	if w == nil {
		b.mu.Unlock()
		metrics.DistributionFailures.WithLabelValues("no_workers").Inc()
		return "", ErrNoWorkersAvailable
	}
	workerID := w.ID
	prevStatus := w.Status
	w.Status = models.WorkerStatusBusy
	w.CurrentJobs++
	w.LastHeartbeat = b.now()
	b.assigned[jobID] = workerID
	b.mu.Unlock()

	priority := Priority(data)
	payload := data.Clone()
	payload[models.JobFieldWorkerID] = workerID
	payload[models.JobFieldPriority] = priority

	_, err := b.jobs.AddJob(ctx, payload,
		queue.WithJobID(jobID), queue.WithWorker(workerID), queue.WithPriority(priority))
	if err != nil {
		b.mu.Lock()
		if _, held := b.assigned[jobID]; held {
			delete(b.assigned, jobID)
			if w, ok := b.workers[workerID]; ok {
				w.CurrentJobs = max(w.CurrentJobs-1, 0)
				if w.Status == models.WorkerStatusBusy {
					w.Status = prevStatus
				}
			}
		}
		b.mu.Unlock()
		metrics.DistributionFailures.WithLabelValues("enqueue").Inc()
		slog.Error("job distribution failed", "worker_id", workerID, "error", err)
		return "", fmt.Errorf("distribute job: %w", err)
	}

	metrics.JobsDistributed.Inc()
	slog.Info("job distributed", "job_id", jobID, "worker_id", workerID, "priority", priority)
	b.observe()
	return jobID, nil
}

// ReleaseJob frees the slot reserved for a distributed job. It reports false
// for jobs the balancer did not place or already released.
func (b *Balancer) ReleaseJob(jobID string) bool {
	b.mu.Lock()
	workerID, ok := b.assigned[jobID]
	if !ok {
		b.mu.Unlock()
		return false
	}
	delete(b.assigned, jobID)
	if w, ok := b.workers[workerID]; ok {
		w.CurrentJobs = max(w.CurrentJobs-1, 0)
		if w.Status == models.WorkerStatusBusy {
			w.Status = models.WorkerStatusIdle
		}
		w.LastHeartbeat = b.now()
	}
	b.mu.Unlock()

	slog.Debug("job slot released", "job_id", jobID, "worker_id", workerID)
	b.observe()
	return true
}

// GetWorkerStats returns copies of all workers ordered by id.
func (b *Balancer) GetWorkerStats() []models.Worker {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snapshotLocked()
}

func (b *Balancer) snapshotLocked() []models.Worker {
	out := make([]models.Worker, 0, len(b.workers))
	for _, w := range b.workers {
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (b *Balancer) GetLoadStats() models.LoadStats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return loadStats(b.workers)
}

func loadStats(workers map[string]*models.Worker) models.LoadStats {
	st := models.LoadStats{TotalWorkers: len(workers)}
	if len(workers) == 0 {
		return st
	}
	var sum float64
	for _, w := range workers {
		if w.Status == models.WorkerStatusBusy {
			st.ActiveWorkers++
		}
		st.TotalJobs += w.CurrentJobs
		if w.MaxJobs > 0 {
			sum += float64(w.CurrentJobs) / float64(w.MaxJobs)
		}
	}
	st.AverageLoad = sum / float64(len(workers))
	return st
}

func (b *Balancer) observe() {
	b.mu.RLock()
	workers := b.snapshotLocked()
	stats := loadStats(b.workers)
	b.mu.RUnlock()
	metrics.ObserveWorkers(workers, stats)
}
