package balancer

import (
	"fmt"
	"log/slog"
	"maps"
	"sort"

	"github.com/kiranshivaraju/renderhub/internal/metrics"
	"github.com/kiranshivaraju/renderhub/pkg/models"
)

// Nodes are cluster hosts reported for metrics aggregation. They are never
// swept; a node stays registered until RemoveNode.

// AddNode registers a node or replaces the info of an existing one. Metrics
// already reported for the node are kept.
func (b *Balancer) AddNode(info models.NodeInfo) (models.Node, error) {
	if info.ID == "" {
		return models.Node{}, fmt.Errorf("%w: node id is required", ErrInvalidArgument)
	}
	info.Labels = maps.Clone(info.Labels)

	b.nodesMu.Lock()
	n, ok := b.nodes[info.ID]
	if !ok {
		n = &models.Node{}
		b.nodes[info.ID] = n
	}
	n.Info = info
	n.LastSeen = b.now()
	out := copyNode(n)
	count := len(b.nodes)
	b.nodesMu.Unlock()

	metrics.ClusterNodes.Set(float64(count))
	slog.Info("node registered", "node_id", info.ID, "hostname", info.Hostname, "replaced", ok)
	return out, nil
}

func (b *Balancer) UpdateNodeMetrics(id string, m models.NodeMetrics) error {
	b.nodesMu.Lock()
	defer b.nodesMu.Unlock()
	n, ok := b.nodes[id]
	if !ok {
		return fmt.Errorf("node %s: %w", id, ErrNotFound)
	}
	now := b.now()
	if m.Timestamp.IsZero() {
		m.Timestamp = now
	}
	n.Metrics = &m
	n.LastSeen = now
	return nil
}

// RemoveNode deletes a node. Unknown ids are ignored.
func (b *Balancer) RemoveNode(id string) {
	b.nodesMu.Lock()
	_, existed := b.nodes[id]
	delete(b.nodes, id)
	count := len(b.nodes)
	b.nodesMu.Unlock()

	if existed {
		metrics.ClusterNodes.Set(float64(count))
		slog.Info("node removed", "node_id", id)
	}
}

func (b *Balancer) GetNode(id string) (models.Node, bool) {
	b.nodesMu.RLock()
	defer b.nodesMu.RUnlock()
	n, ok := b.nodes[id]
	if !ok {
		return models.Node{}, false
	}
	return copyNode(n), true
}

// GetNodes returns copies of all nodes ordered by id.
func (b *Balancer) GetNodes() []models.Node {
	b.nodesMu.RLock()
	defer b.nodesMu.RUnlock()
	out := make([]models.Node, 0, len(b.nodes))
	for _, n := range b.nodes {
		out = append(out, copyNode(n))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Info.ID < out[j].Info.ID })
	return out
}

// ClusterSummary averages utilisation over the nodes that have reported
// metrics and sums their active jobs.
func (b *Balancer) ClusterSummary() models.ClusterSummary {
	b.nodesMu.RLock()
	defer b.nodesMu.RUnlock()

	s := models.ClusterSummary{Nodes: len(b.nodes)}
	for _, n := range b.nodes {
		if n.Metrics == nil {
			continue
		}
		s.ReportingNodes++
		s.AvgCPUUsage += n.Metrics.CPUUsage
		s.AvgMemoryUsage += n.Metrics.MemoryUsage
		s.AvgDiskUsage += n.Metrics.DiskUsage
		s.ActiveJobs += n.Metrics.ActiveJobs
	}
	if s.ReportingNodes > 0 {
		r := float64(s.ReportingNodes)
		s.AvgCPUUsage /= r
		s.AvgMemoryUsage /= r
		s.AvgDiskUsage /= r
	}
	return s
}

func copyNode(n *models.Node) models.Node {
	out := *n
	out.Info.Labels = maps.Clone(n.Info.Labels)
	if n.Metrics != nil {
		m := *n.Metrics
		out.Metrics = &m
	}
	return out
}
