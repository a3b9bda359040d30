package balancer

import (
	"context"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/renderhub/internal/metrics"
	"github.com/kiranshivaraju/renderhub/internal/queue"
	"github.com/kiranshivaraju/renderhub/pkg/models"
)

// Run drives the health check every HealthCheckInterval and releases worker
// slots when distributed jobs finish. It returns when ctx is cancelled.
func (b *Balancer) Run(ctx context.Context) error {
	defer b.unsubscribe()

	ticker := time.NewTicker(b.cfg.HealthCheckInterval)
	defer ticker.Stop()

	slog.Info("balancer started",
		"health_check_interval", b.cfg.HealthCheckInterval,
		"worker_timeout", b.cfg.WorkerTimeout)

	for {
		select {
		case <-ctx.Done():
			slog.Info("balancer stopped")
			return nil
		case ev := <-b.events:
			if reportedBy(ev) {
				_ = b.Heartbeat(ev.WorkerID)
			}
			if ev.Terminal() {
				b.ReleaseJob(ev.JobID)
			}
		case <-ticker.C:
			tickCtx, cancel := context.WithTimeout(ctx, b.cfg.HealthCheckInterval)
			b.HealthCheck(tickCtx)
			cancel()
		}
	}
}

// reportedBy tells whether ev was caused by a worker acting on its job.
// Enqueues and manual retries are not proof of life.
func reportedBy(ev queue.Event) bool {
	if ev.WorkerID == "" {
		return false
	}
	return ev.Type != queue.EventWaiting || ev.Attempt > 0
}

// HealthCheck runs one tick: refresh performance from the latest snapshot,
// evict workers that were already in error, then mark workers whose last
// heartbeat is older than WorkerTimeout as error. A stale worker is therefore
// marked on one tick and removed on the next. The jobs of an evicted worker
// go back to the shared queue.
func (b *Balancer) HealthCheck(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("health check panicked", "panic", r)
		}
	}()

	var snap models.Snapshot
	if b.metrics != nil {
		snap = b.metrics.GetCurrentMetrics(ctx)
	}
	if ctx.Err() != nil {
		slog.Warn("health check timed out reading metrics", "error", ctx.Err())
		return
	}
	perf := models.WorkerPerformance{
		CPUPercent:    snap.System.CPU.Usage,
		MemoryPercent: snap.System.Memory.Usage,
		QueueLength:   snap.Queue.Waiting,
	}

	now := b.now()
	var evicted, marked []string

	b.mu.Lock()
	for id, w := range b.workers {
		w.Performance = perf
		if w.Status == models.WorkerStatusError {
			b.dropLocked(id)
			evicted = append(evicted, id)
		}
	}
	for id, w := range b.workers {
		if age := now.Sub(w.LastHeartbeat); age > b.cfg.WorkerTimeout {
			w.Status = models.WorkerStatusError
			marked = append(marked, id)
		}
	}
	b.mu.Unlock()

	for _, id := range marked {
		slog.Warn("worker unresponsive", "worker_id", id, "timeout", b.cfg.WorkerTimeout)
	}
	for _, id := range evicted {
		slog.Warn("worker evicted", "worker_id", id)
		metrics.WorkersEvicted.Inc()
		b.requeue(ctx, id)
	}
	b.observe()
}
