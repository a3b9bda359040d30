package monitor

import (
	"fmt"
	"time"

	"github.com/kiranshivaraju/renderhub/pkg/models"
)

const (
	cpuHighThreshold      = 80.0
	cpuCriticalThreshold  = 90.0
	memoryHighThreshold   = 90.0
	apiErrorRateThreshold = 5.0

	memoryAdviceThreshold   = 80.0
	queueBacklogThreshold   = 100
	responseTimeThresholdMs = 1000.0
)

// Evaluate classifies a snapshot. No issues is healthy, one or two is a
// warning and three or more is critical.
func Evaluate(s models.Snapshot, now time.Time) models.HealthStatus {
	issues := []string{}

	switch cpu := s.System.CPU.Usage; {
	case cpu > cpuCriticalThreshold:
		issues = append(issues, fmt.Sprintf("Critical CPU usage: %.1f%%", cpu))
	case cpu > cpuHighThreshold:
		issues = append(issues, fmt.Sprintf("High CPU usage: %.1f%%", cpu))
	}
	if mem := s.System.Memory.Usage; mem > memoryHighThreshold {
		issues = append(issues, fmt.Sprintf("High memory usage: %.1f%%", mem))
	}
	if s.Queue.Failed > 0 {
		issues = append(issues, fmt.Sprintf("%d failed jobs in queue", s.Queue.Failed))
	}
	if s.Cache.Errors > 0 {
		issues = append(issues, fmt.Sprintf("%d cache errors detected", s.Cache.Errors))
	}
	if rate := s.API.ErrorRate(); rate > apiErrorRateThreshold {
		issues = append(issues, fmt.Sprintf("High API error rate: %.1f%%", rate))
	}

	status := models.HealthHealthy
	switch {
	case len(issues) >= 3:
		status = models.HealthCritical
	case len(issues) > 0:
		status = models.HealthWarning
	}
	return models.HealthStatus{Status: status, Issues: issues, Timestamp: now.UTC()}
}

// Recommend lists operator actions suggested by a snapshot.
func Recommend(s models.Snapshot) []string {
	recs := []string{}
	if s.System.CPU.Usage > cpuHighThreshold {
		recs = append(recs, "Consider horizontal scaling or optimizing CPU-intensive operations")
	}
	if s.System.Memory.Usage > memoryAdviceThreshold {
		recs = append(recs, "Consider increasing memory or optimizing memory usage")
	}
	if s.Queue.Waiting > queueBacklogThreshold {
		recs = append(recs, "Consider adding more workers to process the job backlog")
	}
	if s.Cache.Misses > s.Cache.Hits {
		recs = append(recs, "Review caching strategy to improve the cache hit rate")
	}
	if s.API.AvgResponseTime > responseTimeThresholdMs {
		recs = append(recs, "Optimize API response times")
	}
	return recs
}
