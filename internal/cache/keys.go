package cache

import (
	"fmt"
	"time"
)

// Fixed keys owned by the performance monitor.
const (
	PerformanceMetricsKey = "performance:metrics"
	PerformanceHistoryKey = "performance:history"
)

func JobProgressKey(jobID string) string {
	return fmt.Sprintf("job:%s:progress", jobID)
}

// RateLimitKey names the request counter of client for the fixed window
// starting at window.
func RateLimitKey(client string, window time.Time) string {
	return fmt.Sprintf("ratelimit:%s:%d", client, window.Unix())
}
