/*
 * Package metrics samples host CPU and memory load so the scan scheduler can
 * stretch folder scan intervals while the machine is busy.
 */
package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/ZerkerEOD/folderport/pkg/debug"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"
)

const (
	// DefaultCPUThreshold and DefaultMemoryThreshold are the usage percentages at
	// or above which the host counts as under pressure
	DefaultCPUThreshold    = 85.0
	DefaultMemoryThreshold = 90.0
)

// SystemMetrics holds one load sample
type SystemMetrics struct {
	CPUUsage    float64   `json:"cpu_usage"`
	MemoryUsage float64   `json:"memory_usage"`
	CollectedAt time.Time `json:"collected_at"`
}

// Config defines the configuration for the metrics collector
type Config struct {
	CollectionInterval time.Duration
	CPUThreshold       float64
	MemoryThreshold    float64
}

// Collector caches load samples for CollectionInterval
type Collector struct {
	cfg Config

	mu   sync.Mutex
	last *SystemMetrics

	cpuPercent func() (float64, error)
	memPercent func() (float64, error)
	now        func() time.Time
}

// New creates a new metrics collector
func New(cfg Config) *Collector {
	if cfg.CollectionInterval <= 0 {
		cfg.CollectionInterval = 5 * time.Second
	}
	if cfg.CPUThreshold <= 0 {
		cfg.CPUThreshold = DefaultCPUThreshold
	}
	if cfg.MemoryThreshold <= 0 {
		cfg.MemoryThreshold = DefaultMemoryThreshold
	}
	return &Collector{
		cfg:        cfg,
		cpuPercent: hostCPUPercent,
		memPercent: hostMemoryPercent,
		now:        time.Now,
	}
}

// Collect returns the cached sample, refreshing it once it is older than the
// collection interval. A failing probe reports zero usage for that resource.
func (c *Collector) Collect() SystemMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.last != nil && now.Sub(c.last.CollectedAt) < c.cfg.CollectionInterval {
		return *c.last
	}

	sample := SystemMetrics{CollectedAt: now}
	if v, err := c.cpuPercent(); err != nil {
		debug.Error("Failed to collect CPU metrics: %v", err)
	} else {
		sample.CPUUsage = v
	}
	if v, err := c.memPercent(); err != nil {
		debug.Error("Failed to collect memory metrics: %v", err)
	} else {
		sample.MemoryUsage = v
	}

	c.last = &sample
	return sample
}

// UnderPressure reports whether CPU or memory usage is at or above its threshold
func (c *Collector) UnderPressure() bool {
	m := c.Collect()
	return m.CPUUsage >= c.cfg.CPUThreshold || m.MemoryUsage >= c.cfg.MemoryThreshold
}

func hostCPUPercent() (float64, error) {
	// interval 0 compares against the previous call instead of sleeping
	percentage, err := cpu.Percent(0, false)
	if err != nil {
		return 0, fmt.Errorf("failed to get CPU usage: %w", err)
	}
	if len(percentage) == 0 {
		return 0, nil
	}
	return percentage[0], nil
}

func hostMemoryPercent() (float64, error) {
	vmem, err := mem.VirtualMemory()
	if err != nil {
		return 0, fmt.Errorf("failed to get memory info: %w", err)
	}
	return vmem.UsedPercent, nil
}
