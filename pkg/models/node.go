package models

import "time"

// NodeInfo describes a cluster host. Nodes are tracked separately from workers
// and are used for multi-host metrics aggregation.
type NodeInfo struct {
	ID          string            `json:"id"`
	Hostname    string            `json:"hostname"`
	Address     string            `json:"address,omitempty"`
	CPUCores    int               `json:"cpu_cores,omitempty"`
	MemoryTotal uint64            `json:"memory_total,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
}

// NodeMetrics is the latest utilisation reported by a node.
type NodeMetrics struct {
	CPUUsage    float64   `json:"cpu_usage"`
	MemoryUsage float64   `json:"memory_usage"`
	DiskUsage   float64   `json:"disk_usage"`
	ActiveJobs  int       `json:"active_jobs"`
	Timestamp   time.Time `json:"timestamp"`
}

// Node is a registry entry for a cluster host.
type Node struct {
	Info     NodeInfo     `json:"info"`
	Metrics  *NodeMetrics `json:"metrics,omitempty"`
	LastSeen time.Time    `json:"last_seen"`
}

// ClusterSummary aggregates metrics across every node that has reported.
type ClusterSummary struct {
	Nodes          int     `json:"nodes"`
	ReportingNodes int     `json:"reporting_nodes"`
	AvgCPUUsage    float64 `json:"avg_cpu_usage"`
	AvgMemoryUsage float64 `json:"avg_memory_usage"`
	AvgDiskUsage   float64 `json:"avg_disk_usage"`
	ActiveJobs     int     `json:"active_jobs"`
}
