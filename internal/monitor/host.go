package monitor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kiranshivaraju/renderhub/pkg/models"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"
)

// SystemSource reports host utilisation.
type SystemSource interface {
	Collect(ctx context.Context) (models.SystemMetrics, error)
}

// HostSource reads the local host through gopsutil. CPU and memory are
// required; load average, disk and network are best effort.
type HostSource struct {
	DiskPath string
}

func NewHostSource(diskPath string) *HostSource {
	if diskPath == "" {
		diskPath = "/"
	}
	return &HostSource{DiskPath: diskPath}
}

func (h *HostSource) Collect(ctx context.Context) (models.SystemMetrics, error) {
	var sm models.SystemMetrics

	times, err := cpu.TimesWithContext(ctx, true)
	if err != nil {
		return sm, fmt.Errorf("cpu times: %w", err)
	}
	sm.CPU.Usage = cpuUsage(times)
	sm.CPU.Cores = len(times)
	sm.CPU.LoadAverage = []float64{0, 0, 0}
	if avg, err := load.AvgWithContext(ctx); err == nil {
		sm.CPU.LoadAverage = []float64{avg.Load1, avg.Load5, avg.Load15}
	} else {
		slog.Debug("load average unavailable", "error", err)
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return sm, fmt.Errorf("virtual memory: %w", err)
	}
	sm.Memory = models.MemoryMetrics{
		Total: vm.Total,
		Used:  vm.Used,
		Free:  vm.Free,
		Usage: vm.UsedPercent,
	}

	sm.Disk.Path = h.DiskPath
	if du, err := disk.UsageWithContext(ctx, h.DiskPath); err == nil {
		sm.Disk.Total = du.Total
		sm.Disk.Used = du.Used
		sm.Disk.Free = du.Free
		sm.Disk.Usage = du.UsedPercent
	} else {
		slog.Debug("disk usage unavailable", "path", h.DiskPath, "error", err)
	}

	if counters, err := net.IOCountersWithContext(ctx, true); err == nil {
		sm.Network = make([]models.NetworkInterface, 0, len(counters))
		for _, c := range counters {
			sm.Network = append(sm.Network, models.NetworkInterface{
				Name:        c.Name,
				BytesSent:   c.BytesSent,
				BytesRecv:   c.BytesRecv,
				PacketsSent: c.PacketsSent,
				PacketsRecv: c.PacketsRecv,
			})
		}
	} else {
		slog.Debug("network counters unavailable", "error", err)
	}

	return sm, nil
}

// cpuUsage is 100 minus the mean idle fraction across cores, from
// cumulative per-core times.
func cpuUsage(times []cpu.TimesStat) float64 {
	if len(times) == 0 {
		return 0
	}
	var idle float64
	counted := 0
	for _, t := range times {
		total := t.User + t.System + t.Idle + t.Nice + t.Iowait + t.Irq + t.Softirq + t.Steal
		if total <= 0 {
			continue
		}
		idle += t.Idle / total
		counted++
	}
	if counted == 0 {
		return 0
	}
	return 100 - 100*idle/float64(counted)
}
