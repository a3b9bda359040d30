// Package monitor samples host, queue, cache and API metrics into periodic
// snapshots and classifies their health.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kiranshivaraju/renderhub/internal/cache"
	"github.com/kiranshivaraju/renderhub/internal/config"
	"github.com/kiranshivaraju/renderhub/internal/metrics"
	"github.com/kiranshivaraju/renderhub/pkg/models"
)

// ErrMetricsCollection marks a failed collection tick.
var ErrMetricsCollection = errors.New("metrics collection failed")

// SnapshotTTL bounds the lifetime of the current snapshot and the history list.
const SnapshotTTL = 24 * time.Hour

const defaultHistoryLimit = 100

// QueueStatser supplies job counts per state.
type QueueStatser interface {
	GetStats(ctx context.Context) (models.QueueStats, error)
}

type Monitor struct {
	cfg   config.MonitorConfig
	host  SystemSource
	queue QueueStatser
	cache cache.Cache
	now   func() time.Time

	mu  sync.Mutex
	api models.APIMetrics
}

func New(cfg config.MonitorConfig, host SystemSource, queue QueueStatser, c cache.Cache) *Monitor {
	return &Monitor{
		cfg:   cfg,
		host:  host,
		queue: queue,
		cache: c,
		now:   time.Now,
	}
}

// RecordAPIRequest folds one request into the running API counters.
func (m *Monitor) RecordAPIRequest(responseTimeMs float64, isError bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.api.Requests++
	if isError {
		m.api.Errors++
	}
	n := float64(m.api.Requests)
	m.api.AvgResponseTime = (m.api.AvgResponseTime*(n-1) + responseTimeMs) / n
}

// APIMetrics returns the counters accumulated since start.
func (m *Monitor) APIMetrics() models.APIMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.api
}

// Run collects a snapshot immediately and then every CollectInterval until
// ctx is cancelled. Failed ticks are logged and the loop continues.
func (m *Monitor) Run(ctx context.Context) error {
	slog.Info("performance monitor started", "interval", m.cfg.CollectInterval)

	ticker := time.NewTicker(m.cfg.CollectInterval)
	defer ticker.Stop()

	m.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("performance monitor stopped")
			return nil
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Monitor) tick(ctx context.Context) {
	tickCtx, cancel := context.WithTimeout(ctx, m.cfg.CollectInterval)
	defer cancel()
	if _, err := m.Collect(tickCtx); err != nil && ctx.Err() == nil {
		slog.Error("metrics collection tick failed", "error", err)
	}
}

// Collect builds a snapshot, stores it as the current record and appends it
// to the bounded history.
func (m *Monitor) Collect(ctx context.Context) (models.Snapshot, error) {
	snap := models.Snapshot{Timestamp: m.now().UTC()}

	sys, err := m.host.Collect(ctx)
	if err != nil {
		return snap, fmt.Errorf("%w: system: %w", ErrMetricsCollection, err)
	}
	snap.System = sys

	qs, err := m.queue.GetStats(ctx)
	if err != nil {
		return snap, fmt.Errorf("%w: queue: %w", ErrMetricsCollection, err)
	}
	snap.Queue = models.QueueMetrics{
		Waiting:   qs.Waiting,
		Active:    qs.Active,
		Completed: qs.Completed,
		Failed:    qs.Failed,
	}

	cs, err := m.cache.Stats(ctx)
	if err != nil {
		return snap, fmt.Errorf("%w: cache: %w", ErrMetricsCollection, err)
	}
	snap.Cache = models.CacheMetrics{Hits: cs.Hits, Misses: cs.Misses, Errors: cs.Errors, Size: cs.Size}
	snap.API = m.APIMetrics()

	if err := cache.SetJSON(ctx, m.cache, cache.PerformanceMetricsKey, snap, SnapshotTTL); err != nil {
		return snap, fmt.Errorf("%w: store snapshot: %w", ErrMetricsCollection, err)
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return snap, fmt.Errorf("%w: encode history entry: %w", ErrMetricsCollection, err)
	}
	if err := m.cache.AppendCapped(ctx, cache.PerformanceHistoryKey, raw, int64(m.historyLimit()), SnapshotTTL); err != nil {
		return snap, fmt.Errorf("%w: append history: %w", ErrMetricsCollection, err)
	}

	health := Evaluate(snap, m.now())
	metrics.ObserveSnapshot(snap, health)
	if health.Status != models.HealthHealthy {
		slog.Warn("system health degraded", "status", health.Status, "issues", health.Issues)
	}
	return snap, nil
}

func (m *Monitor) historyLimit() int {
	if m.cfg.HistoryLimit > 0 {
		return m.cfg.HistoryLimit
	}
	return 1440
}

// GetCurrentMetrics returns the stored snapshot. When none is available it
// returns an empty snapshot stamped with the current time.
func (m *Monitor) GetCurrentMetrics(ctx context.Context) models.Snapshot {
	var snap models.Snapshot
	found, err := cache.GetJSON(ctx, m.cache, cache.PerformanceMetricsKey, &snap)
	if err != nil {
		slog.Warn("read current metrics", "error", err)
	}
	if err != nil || !found {
		return models.Snapshot{Timestamp: m.now().UTC()}
	}
	return snap
}

// GetMetricsHistory returns up to limit snapshots, oldest first. A
// non-positive limit selects the default of 100.
func (m *Monitor) GetMetricsHistory(ctx context.Context, limit int) ([]models.Snapshot, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	limit = min(limit, m.historyLimit())

	raw, err := m.cache.Tail(ctx, cache.PerformanceHistoryKey, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("read metrics history: %w", err)
	}
	out := make([]models.Snapshot, 0, len(raw))
	for _, r := range raw {
		var s models.Snapshot
		if err := json.Unmarshal(r, &s); err != nil {
			slog.Warn("skipping undecodable history entry", "error", err)
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (m *Monitor) GetHealthStatus(ctx context.Context) models.HealthStatus {
	return Evaluate(m.GetCurrentMetrics(ctx), m.now())
}

func (m *Monitor) GetPerformanceReport(ctx context.Context) models.PerformanceReport {
	snap := m.GetCurrentMetrics(ctx)
	now := m.now()
	return models.PerformanceReport{
		Metrics:         snap,
		Health:          Evaluate(snap, now),
		Recommendations: Recommend(snap),
		GeneratedAt:     now.UTC(),
	}
}
