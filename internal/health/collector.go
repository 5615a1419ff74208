// Package health collects gopsutil-backed system metrics and applies
// them as an admission-time backpressure gate (SPEC_FULL.md §4
// "Health/metrics admin endpoint"): reject new jobs with a
// 503-equivalent when disk or memory is critically scarce, rather
// than admitting them and failing later. The metrics collected mirror
// internal/daemon/stats.go's StatsCollector, narrowed to the signals
// that matter for a single-host worker pool rather than a full
// heartbeat payload.
package health

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

// Snapshot is one point-in-time system reading.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`

	CPUCores   int     `json:"cpuCores"`
	Load1      float64 `json:"load1"`
	Load5      float64 `json:"load5"`
	Load15     float64 `json:"load15"`
	CPUPercent float64 `json:"cpuPercent"`

	MemoryTotalBytes uint64  `json:"memoryTotalBytes"`
	MemoryUsedBytes  uint64  `json:"memoryUsedBytes"`
	MemoryPercent    float64 `json:"memoryPercent"`

	DiskTotalBytes     uint64  `json:"diskTotalBytes"`
	DiskAvailableBytes uint64  `json:"diskAvailableBytes"`
	DiskPercent        float64 `json:"diskPercent"`

	WorkerPoolCapacity int `json:"workerPoolCapacity"`
	WorkerPoolActive   int `json:"workerPoolActive"`
}

// WorkerPoolGauge reports the worker pool's current saturation; wired
// to internal/queue.DBQueue in cmd/commercestackd.
type WorkerPoolGauge interface {
	Capacity() int
	Active() int
}

// Collector gathers Snapshots for the sandbox root's filesystem.
type Collector struct {
	sandboxRoot string
	pool        WorkerPoolGauge
}

// NewCollector returns a Collector reporting disk usage for
// sandboxRoot (the job work directory root) and, if pool is non-nil,
// worker pool saturation.
func NewCollector(sandboxRoot string, pool WorkerPoolGauge) *Collector {
	return &Collector{sandboxRoot: sandboxRoot, pool: pool}
}

// Collect gathers one Snapshot. Individual metric failures (e.g. no
// /proc on this platform) leave the corresponding fields zero rather
// than failing the whole collection.
func (c *Collector) Collect(ctx context.Context) Snapshot {
	snap := Snapshot{Timestamp: time.Now(), CPUCores: runtime.NumCPU()}

	if avg, err := load.AvgWithContext(ctx); err == nil {
		snap.Load1, snap.Load5, snap.Load15 = avg.Load1, avg.Load5, avg.Load15
	}
	if pcts, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pcts) > 0 {
		snap.CPUPercent = pcts[0]
	}
	if m, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		snap.MemoryTotalBytes = m.Total
		snap.MemoryUsedBytes = m.Used
		snap.MemoryPercent = m.UsedPercent
	}

	root := c.sandboxRoot
	if root == "" {
		root, _ = os.Getwd()
	}
	if d, err := disk.UsageWithContext(ctx, root); err == nil {
		snap.DiskTotalBytes = d.Total
		snap.DiskAvailableBytes = d.Free
		snap.DiskPercent = d.UsedPercent
	}

	if c.pool != nil {
		snap.WorkerPoolCapacity = c.pool.Capacity()
		snap.WorkerPoolActive = c.pool.Active()
	}

	return snap
}
