package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kiranshivaraju/renderhub/internal/metrics"
	"github.com/kiranshivaraju/renderhub/pkg/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveWorkers(t *testing.T) {
	workers := []models.Worker{
		{ID: "a", Status: models.WorkerStatusIdle},
		{ID: "b", Status: models.WorkerStatusBusy},
		{ID: "c", Status: models.WorkerStatusBusy},
	}
	metrics.ObserveWorkers(workers, models.LoadStats{AverageLoad: 0.5})

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.WorkersTotal.WithLabelValues("idle")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.WorkersTotal.WithLabelValues("busy")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.WorkersTotal.WithLabelValues("error")))
	assert.Equal(t, 0.5, testutil.ToFloat64(metrics.WorkerAverageLoad))

	// A later, smaller registry must not leave stale counts behind.
	metrics.ObserveWorkers(nil, models.LoadStats{})
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.WorkersTotal.WithLabelValues("busy")))
}

func TestObserveSnapshot(t *testing.T) {
	var s models.Snapshot
	s.System.CPU.Usage = 42
	s.System.Memory.Usage = 61.5
	s.Queue.Waiting = 7
	s.Queue.Failed = 2

	metrics.ObserveSnapshot(s, models.HealthStatus{Issues: []string{"a", "b"}})

	assert.Equal(t, 42.0, testutil.ToFloat64(metrics.HostCPUUsage))
	assert.Equal(t, 61.5, testutil.ToFloat64(metrics.HostMemoryUsage))
	assert.Equal(t, 7.0, testutil.ToFloat64(metrics.QueueJobs.WithLabelValues("waiting")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.QueueJobs.WithLabelValues("failed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.HealthIssues))
}

func TestObserveRequest(t *testing.T) {
	before := testutil.ToFloat64(metrics.APIRequestsTotal.WithLabelValues("GET", "200"))
	metrics.ObserveRequest("GET", 200, 0.01)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.APIRequestsTotal.WithLabelValues("GET", "200")))
}

func TestHandler_ExposesCollectors(t *testing.T) {
	metrics.JobsDistributed.Inc()

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "renderhub_jobs_distributed_total")
}
