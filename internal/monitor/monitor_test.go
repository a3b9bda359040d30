package monitor_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kiranshivaraju/renderhub/internal/cache"
	"github.com/kiranshivaraju/renderhub/internal/cache/cachetest"
	"github.com/kiranshivaraju/renderhub/internal/config"
	"github.com/kiranshivaraju/renderhub/internal/monitor"
	"github.com/kiranshivaraju/renderhub/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type fakeHost struct {
	sys models.SystemMetrics
	err error
}

func (h *fakeHost) Collect(context.Context) (models.SystemMetrics, error) {
	return h.sys, h.err
}

type fakeQueue struct {
	mu    sync.Mutex
	stats models.QueueStats
}

func (q *fakeQueue) GetStats(context.Context) (models.QueueStats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats, nil
}

func (q *fakeQueue) setWaiting(n int) {
	q.mu.Lock()
	q.stats.Waiting = n
	q.mu.Unlock()
}

func newMonitor(t *testing.T, historyLimit int) (*monitor.Monitor, *fakeHost, *fakeQueue, *cachetest.Memory) {
	t.Helper()
	host := &fakeHost{}
	host.sys.CPU.Usage = 12
	host.sys.Memory.Usage = 34
	q := &fakeQueue{}
	store := cachetest.New()
	cfg := config.MonitorConfig{CollectInterval: time.Minute, HistoryLimit: historyLimit, DiskPath: "/"}
	return monitor.New(cfg, host, q, store), host, q, store
}

// --- Collect ---

func TestCollect_PersistsCurrentAndHistory(t *testing.T) {
	m, _, q, store := newMonitor(t, 10)
	ctx := context.Background()
	q.setWaiting(4)
	m.RecordAPIRequest(120, false)

	snap, err := m.Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, 12.0, snap.System.CPU.Usage)
	assert.Equal(t, 4, snap.Queue.Waiting)
	assert.Equal(t, int64(1), snap.API.Requests)

	current := m.GetCurrentMetrics(ctx)
	assert.Equal(t, 4, current.Queue.Waiting)
	assert.Equal(t, 34.0, current.System.Memory.Usage)
	assert.Equal(t, 1, store.Len(cache.PerformanceHistoryKey))
}

func TestCollect_HistoryTrimmedOldestFirst(t *testing.T) {
	m, _, q, store := newMonitor(t, 3)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		q.setWaiting(i)
		_, err := m.Collect(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, store.Len(cache.PerformanceHistoryKey))

	history, err := m.GetMetricsHistory(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, 3, history[0].Queue.Waiting)
	assert.Equal(t, 5, history[2].Queue.Waiting)

	history, err = m.GetMetricsHistory(ctx, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 4, history[0].Queue.Waiting)
}

func TestCollect_HostFailure(t *testing.T) {
	m, host, _, store := newMonitor(t, 10)
	host.err = errors.New("proc unavailable")

	_, err := m.Collect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, monitor.ErrMetricsCollection)
	assert.False(t, store.Has(cache.PerformanceMetricsKey))
}

func TestCollect_StoreFailure(t *testing.T) {
	m, _, _, store := newMonitor(t, 10)
	store.SetFail(true)

	_, err := m.Collect(context.Background())
	assert.ErrorIs(t, err, monitor.ErrMetricsCollection)
}

// --- Reads ---

func TestGetCurrentMetrics_EmptyFallback(t *testing.T) {
	m, _, _, store := newMonitor(t, 10)

	snap := m.GetCurrentMetrics(context.Background())
	assert.False(t, snap.Timestamp.IsZero())
	assert.Zero(t, snap.System.CPU.Usage)

	store.SetFail(true)
	snap = m.GetCurrentMetrics(context.Background())
	assert.False(t, snap.Timestamp.IsZero())
}

func TestGetMetricsHistory_Empty(t *testing.T) {
	m, _, _, _ := newMonitor(t, 10)
	history, err := m.GetMetricsHistory(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestGetHealthStatus_FromStoredSnapshot(t *testing.T) {
	m, host, q, _ := newMonitor(t, 10)
	host.sys.CPU.Usage = 85
	q.mu.Lock()
	q.stats.Failed = 1
	q.mu.Unlock()

	_, err := m.Collect(context.Background())
	require.NoError(t, err)

	h := m.GetHealthStatus(context.Background())
	assert.Equal(t, models.HealthWarning, h.Status)
	assert.Len(t, h.Issues, 2)
}

func TestGetPerformanceReport(t *testing.T) {
	m, host, q, _ := newMonitor(t, 10)
	host.sys.CPU.Usage = 92
	q.setWaiting(150)

	_, err := m.Collect(context.Background())
	require.NoError(t, err)

	r := m.GetPerformanceReport(context.Background())
	assert.Equal(t, 92.0, r.Metrics.System.CPU.Usage)
	assert.Equal(t, models.HealthWarning, r.Health.Status)
	assert.Contains(t, r.Recommendations, "Consider horizontal scaling or optimizing CPU-intensive operations")
	assert.Contains(t, r.Recommendations, "Consider adding more workers to process the job backlog")
	assert.False(t, r.GeneratedAt.IsZero())
}

// --- API counters ---

func TestRecordAPIRequest_RunningAverage(t *testing.T) {
	m, _, _, _ := newMonitor(t, 10)

	m.RecordAPIRequest(100, false)
	m.RecordAPIRequest(200, true)
	m.RecordAPIRequest(300, false)

	api := m.APIMetrics()
	assert.Equal(t, int64(3), api.Requests)
	assert.Equal(t, int64(1), api.Errors)
	assert.InDelta(t, 200, api.AvgResponseTime, 1e-9)
}

func TestRecordAPIRequest_Concurrent(t *testing.T) {
	m, _, _, _ := newMonitor(t, 10)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordAPIRequest(10, false)
		}()
	}
	wg.Wait()

	api := m.APIMetrics()
	assert.Equal(t, int64(50), api.Requests)
	assert.InDelta(t, 10, api.AvgResponseTime, 1e-9)
}

// --- Run ---

func TestRun_CollectsImmediatelyAndStops(t *testing.T) {
	m, _, _, store := newMonitor(t, 10)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	assert.Eventually(t, func() bool {
		return store.Has(cache.PerformanceMetricsKey)
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestRun_FailedTickKeepsRunning(t *testing.T) {
	host := &fakeHost{err: errors.New("boom")}
	store := cachetest.New()
	cfg := config.MonitorConfig{CollectInterval: 10 * time.Millisecond, HistoryLimit: 10}
	m := monitor.New(cfg, host, &fakeQueue{}, store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	assert.False(t, store.Has(cache.PerformanceMetricsKey))
}
