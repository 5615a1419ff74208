package health

import (
	"context"
	"fmt"
)

// Thresholds gates admission on scarce resources. Zero-value
// Thresholds never rejects (every comparison against a 0 ceiling is
// skipped).
type Thresholds struct {
	MaxDiskPercent   float64 // reject if disk usage exceeds this
	MaxMemoryPercent float64 // reject if memory usage exceeds this
	MinDiskFreeBytes uint64  // reject if free disk bytes falls below this
}

// DefaultThresholds is a conservative default: refuse new admissions
// once disk is 95% full, memory is 95% used, or less than 1 GiB free.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxDiskPercent:   95,
		MaxMemoryPercent: 95,
		MinDiskFreeBytes: 1 << 30,
	}
}

// Checker applies Thresholds to Snapshots to produce admission
// decisions (SPEC_FULL.md §4 "reject new jobs... when disk is
// critically low, rather than accepting and failing later").
type Checker struct {
	collector  *Collector
	thresholds Thresholds
}

// NewChecker returns a Checker reading from collector.
func NewChecker(collector *Collector, thresholds Thresholds) *Checker {
	return &Checker{collector: collector, thresholds: thresholds}
}

// Allow collects a fresh Snapshot and evaluates it against the
// configured Thresholds; it implements internal/job.AdmissionGate.
func (c *Checker) Allow(ctx context.Context) (bool, string) {
	if c.collector == nil {
		return true, ""
	}
	return c.AllowSnapshot(c.collector.Collect(ctx))
}

// AllowSnapshot evaluates an already-collected Snapshot, for callers
// (and tests) that don't want to pay the collection cost per call.
func (c *Checker) AllowSnapshot(snap Snapshot) (bool, string) {
	t := c.thresholds
	if t.MaxDiskPercent > 0 && snap.DiskPercent > t.MaxDiskPercent {
		return false, fmt.Sprintf("disk usage %.1f%% exceeds %.1f%% threshold", snap.DiskPercent, t.MaxDiskPercent)
	}
	if t.MinDiskFreeBytes > 0 && snap.DiskAvailableBytes < t.MinDiskFreeBytes {
		return false, fmt.Sprintf("only %d bytes free on disk, below %d byte threshold", snap.DiskAvailableBytes, t.MinDiskFreeBytes)
	}
	if t.MaxMemoryPercent > 0 && snap.MemoryPercent > t.MaxMemoryPercent {
		return false, fmt.Sprintf("memory usage %.1f%% exceeds %.1f%% threshold", snap.MemoryPercent, t.MaxMemoryPercent)
	}
	return true, ""
}
