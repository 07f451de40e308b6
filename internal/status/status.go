// Package status collects host metrics for the /status command.
package status

import (
	"context"
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

// Metrics holds system resource usage.
type Metrics struct {
	CPUPercent    float64
	MemoryUsed    uint64
	MemoryTotal   uint64
	MemoryPercent float64
	Load1         float64
	Load5         float64
	Load15        float64
	DiskPath      string
	DiskUsed      uint64
	DiskTotal     uint64
	DiskPercent   float64
}

// Collector gathers system metrics.
type Collector interface {
	Collect(ctx context.Context) (*Metrics, error)
}

// GopsutilCollector uses gopsutil for metrics.
type GopsutilCollector struct {
	diskPath func() string
}

// NewGopsutilCollector creates a collector reporting disk usage for the
// filesystem holding diskPath(). An empty path falls back to "/".
func NewGopsutilCollector(diskPath func() string) *GopsutilCollector {
	return &GopsutilCollector{diskPath: diskPath}
}

// Collect gathers current system metrics.
func (c *GopsutilCollector) Collect(ctx context.Context) (*Metrics, error) {
	var m Metrics

	cpuPercent, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return nil, fmt.Errorf("get cpu: %w", err)
	}
	if len(cpuPercent) > 0 {
		m.CPUPercent = cpuPercent[0]
	}

	memInfo, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("get memory: %w", err)
	}
	m.MemoryUsed = memInfo.Used
	m.MemoryTotal = memInfo.Total
	m.MemoryPercent = memInfo.UsedPercent

	// Load average is unavailable on some platforms; leave zeros.
	if avg, err := load.AvgWithContext(ctx); err == nil {
		m.Load1, m.Load5, m.Load15 = avg.Load1, avg.Load5, avg.Load15
	}

	m.DiskPath = "/"
	if c.diskPath != nil {
		if p := c.diskPath(); p != "" {
			m.DiskPath = p
		}
	}
	diskInfo, err := disk.UsageWithContext(ctx, m.DiskPath)
	if err != nil {
		return nil, fmt.Errorf("get disk: %w", err)
	}
	m.DiskUsed = diskInfo.Used
	m.DiskTotal = diskInfo.Total
	m.DiskPercent = diskInfo.UsedPercent

	return &m, nil
}

// Format renders metrics as a short plain-text report.
func (m *Metrics) Format() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "CPU: %.1f%%\n", m.CPUPercent)
	fmt.Fprintf(&sb, "Memory: %s / %s (%.1f%%)\n", FormatBytes(m.MemoryUsed), FormatBytes(m.MemoryTotal), m.MemoryPercent)
	fmt.Fprintf(&sb, "Load: %.2f %.2f %.2f\n", m.Load1, m.Load5, m.Load15)
	fmt.Fprintf(&sb, "Disk (%s): %s / %s (%.1f%%)", m.DiskPath, FormatBytes(m.DiskUsed), FormatBytes(m.DiskTotal), m.DiskPercent)
	return sb.String()
}

// FormatBytes formats a byte count with a binary unit.
func FormatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
