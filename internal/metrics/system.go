package metrics

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

const bytesPerGB = 1024 * 1024 * 1024

// HostStats is one reading of host resource usage.
type HostStats struct {
	CPUPercent           float64
	MemoryPercent        float64
	MemoryUsedBytes      uint64
	MemoryAvailableBytes uint64
	DiskPercent          float64
	DiskUsedBytes        uint64
	DiskFreeBytes        uint64
}

// Map flattens the reading into the metric names used by health checks and
// alert rules. Byte counts are converted to gigabytes.
func (s HostStats) Map() map[string]float64 {
	return map[string]float64{
		"cpu_percent":         s.CPUPercent,
		"memory_percent":      s.MemoryPercent,
		"memory_used_gb":      float64(s.MemoryUsedBytes) / bytesPerGB,
		"memory_available_gb": float64(s.MemoryAvailableBytes) / bytesPerGB,
		"disk_percent":        s.DiskPercent,
		"disk_used_gb":        float64(s.DiskUsedBytes) / bytesPerGB,
		"disk_free_gb":        float64(s.DiskFreeBytes) / bytesPerGB,
	}
}

// SystemSampler reads host resource usage.
type SystemSampler interface {
	Sample(ctx context.Context) (HostStats, error)
}

// SamplerFunc adapts a function to SystemSampler.
type SamplerFunc func(ctx context.Context) (HostStats, error)

// Sample calls f(ctx).
func (f SamplerFunc) Sample(ctx context.Context) (HostStats, error) {
	return f(ctx)
}

// HostSampler reads the local host through gopsutil.
type HostSampler struct {
	// DiskPath is the mount point whose usage is reported
	DiskPath string
}

// NewHostSampler creates a sampler reporting disk usage for path.
func NewHostSampler(path string) *HostSampler {
	return &HostSampler{DiskPath: path}
}

// Sample reads cpu, memory and disk usage. CPU usage is measured since the
// previous call, so the call never blocks for a measuring interval.
func (s *HostSampler) Sample(ctx context.Context) (HostStats, error) {
	var stats HostStats

	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return stats, fmt.Errorf("failed to read cpu usage: %w", err)
	}
	if len(percents) > 0 {
		stats.CPUPercent = percents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to read memory usage: %w", err)
	}
	stats.MemoryPercent = vm.UsedPercent
	stats.MemoryUsedBytes = vm.Used
	stats.MemoryAvailableBytes = vm.Available

	usage, err := disk.UsageWithContext(ctx, s.DiskPath)
	if err != nil {
		return stats, fmt.Errorf("failed to read disk usage for %s: %w", s.DiskPath, err)
	}
	stats.DiskPercent = usage.UsedPercent
	stats.DiskUsedBytes = usage.Used
	stats.DiskFreeBytes = usage.Free

	return stats, nil
}
