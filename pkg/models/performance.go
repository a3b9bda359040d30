package models

import "time"

const (
	HealthHealthy  = "healthy"
	HealthWarning  = "warning"
	HealthCritical = "critical"
)

type CPUMetrics struct {
	Usage       float64   `json:"usage"`
	Cores       int       `json:"cores"`
	LoadAverage []float64 `json:"load_average"`
}

type MemoryMetrics struct {
	Total uint64  `json:"total"`
	Used  uint64  `json:"used"`
	Free  uint64  `json:"free"`
	Usage float64 `json:"usage"`
}

type DiskMetrics struct {
	Path  string  `json:"path"`
	Total uint64  `json:"total"`
	Used  uint64  `json:"used"`
	Free  uint64  `json:"free"`
	Usage float64 `json:"usage"`
}

type NetworkInterface struct {
	Name        string `json:"name"`
	BytesSent   uint64 `json:"bytes_sent"`
	BytesRecv   uint64 `json:"bytes_recv"`
	PacketsSent uint64 `json:"packets_sent"`
	PacketsRecv uint64 `json:"packets_recv"`
}

type SystemMetrics struct {
	CPU     CPUMetrics         `json:"cpu"`
	Memory  MemoryMetrics      `json:"memory"`
	Disk    DiskMetrics        `json:"disk"`
	Network []NetworkInterface `json:"network"`
}

type QueueMetrics struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

type CacheMetrics struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Errors int64 `json:"errors"`
	Size   int64 `json:"size"`
}

type APIMetrics struct {
	Requests        int64   `json:"requests"`
	Errors          int64   `json:"errors"`
	AvgResponseTime float64 `json:"avg_response_time"`
}

// ErrorRate is the percentage of API requests that failed.
func (a APIMetrics) ErrorRate() float64 {
	if a.Requests == 0 {
		return 0
	}
	return float64(a.Errors) / float64(a.Requests) * 100
}

// Snapshot is one point-in-time performance record.
type Snapshot struct {
	Timestamp time.Time     `json:"timestamp"`
	System    SystemMetrics `json:"system"`
	Queue     QueueMetrics  `json:"queue"`
	Cache     CacheMetrics  `json:"cache"`
	API       APIMetrics    `json:"api"`
}

// HealthStatus classifies a snapshot against fixed thresholds.
type HealthStatus struct {
	Status    string    `json:"status"`
	Issues    []string  `json:"issues"`
	Timestamp time.Time `json:"timestamp"`
}

type PerformanceReport struct {
	Metrics         Snapshot     `json:"metrics"`
	Health          HealthStatus `json:"health"`
	Recommendations []string     `json:"recommendations"`
	GeneratedAt     time.Time    `json:"generated_at"`
}
