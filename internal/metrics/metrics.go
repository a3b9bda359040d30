// Package metrics exposes renderhub state as Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/kiranshivaraju/renderhub/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Balancer metrics
	WorkersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "renderhub_workers_total",
			Help: "Registered workers by status",
		},
		[]string{"status"},
	)

	WorkerAverageLoad = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "renderhub_worker_average_load",
			Help: "Mean of current jobs over max jobs across workers",
		},
	)

	WorkersEvicted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "renderhub_workers_evicted_total",
			Help: "Workers removed by the health check",
		},
	)

	JobsDistributed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "renderhub_jobs_distributed_total",
			Help: "Jobs assigned to a worker and enqueued",
		},
	)

	DistributionFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renderhub_job_distribution_failures_total",
			Help: "Failed job distributions by reason",
		},
		[]string{"reason"},
	)

	ClusterNodes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "renderhub_cluster_nodes_total",
			Help: "Registered cluster nodes",
		},
	)

	// Queue metrics
	QueueJobs = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "renderhub_queue_jobs",
			Help: "Jobs in the queue by state",
		},
		[]string{"state"},
	)

	// Host metrics
	HostCPUUsage = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "renderhub_host_cpu_usage_percent",
			Help: "Host CPU utilisation",
		},
	)

	HostMemoryUsage = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "renderhub_host_memory_usage_percent",
			Help: "Host memory utilisation",
		},
	)

	HostDiskUsage = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "renderhub_host_disk_usage_percent",
			Help: "Disk utilisation of the monitored path",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renderhub_api_requests_total",
			Help: "API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "renderhub_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	HealthIssues = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "renderhub_health_issues",
			Help: "Issues found by the last health classification",
		},
	)
)

func init() {
	prometheus.MustRegister(WorkersTotal)
	prometheus.MustRegister(WorkerAverageLoad)
	prometheus.MustRegister(WorkersEvicted)
	prometheus.MustRegister(JobsDistributed)
	prometheus.MustRegister(DistributionFailures)
	prometheus.MustRegister(ClusterNodes)
	prometheus.MustRegister(QueueJobs)
	prometheus.MustRegister(HostCPUUsage)
	prometheus.MustRegister(HostMemoryUsage)
	prometheus.MustRegister(HostDiskUsage)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(HealthIssues)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveWorkers resets the worker gauges from a registry snapshot.
func ObserveWorkers(workers []models.Worker, stats models.LoadStats) {
	counts := map[models.WorkerStatus]int{
		models.WorkerStatusIdle:  0,
		models.WorkerStatusBusy:  0,
		models.WorkerStatusError: 0,
	}
	for _, w := range workers {
		counts[w.Status]++
	}
	for status, n := range counts {
		WorkersTotal.WithLabelValues(string(status)).Set(float64(n))
	}
	WorkerAverageLoad.Set(stats.AverageLoad)
}

// ObserveSnapshot publishes the host and queue parts of a performance snapshot.
func ObserveSnapshot(s models.Snapshot, health models.HealthStatus) {
	HostCPUUsage.Set(s.System.CPU.Usage)
	HostMemoryUsage.Set(s.System.Memory.Usage)
	HostDiskUsage.Set(s.System.Disk.Usage)

	QueueJobs.WithLabelValues("waiting").Set(float64(s.Queue.Waiting))
	QueueJobs.WithLabelValues("active").Set(float64(s.Queue.Active))
	QueueJobs.WithLabelValues("completed").Set(float64(s.Queue.Completed))
	QueueJobs.WithLabelValues("failed").Set(float64(s.Queue.Failed))

	HealthIssues.Set(float64(len(health.Issues)))
}

// ObserveRequest records one API request.
func ObserveRequest(method string, status int, seconds float64) {
	APIRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method).Observe(seconds)
}
