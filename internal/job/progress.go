package job

import (
	"sync"
	"time"

	"github.com/jmylchreest/commercestack/internal/store"
)

// throttledReporter implements pipelinecore.ProgressReporter, writing
// to the durable Job record at most once per interval (spec §4.7
// "Progress propagation ... throttled to roughly every 200ms") plus
// always on the final call via Flush.
type throttledReporter struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	pending  store.JobProgress
	dirty    bool
	flush    func(store.JobProgress)
}

func newThrottledReporter(interval time.Duration, flush func(store.JobProgress)) *throttledReporter {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	return &throttledReporter{interval: interval, flush: flush}
}

func (r *throttledReporter) ReportProgress(step string, percentage int, message string) {
	r.mu.Lock()
	r.pending.Step = step
	r.pending.Percentage = percentage
	r.pending.Message = message
	r.dirty = true
	r.maybeFlushLocked()
	r.mu.Unlock()
}

func (r *throttledReporter) ReportItemProgress(step string, completed, total int) {
	r.mu.Lock()
	r.pending.Step = step
	done := completed
	r.pending.CurrentStep = done
	r.pending.TotalSteps = total
	if total > 0 {
		r.pending.Percentage = (completed * 100) / total
	}
	r.dirty = true
	r.maybeFlushLocked()
	r.mu.Unlock()
}

func (r *throttledReporter) maybeFlushLocked() {
	now := time.Now()
	if now.Sub(r.last) < r.interval {
		return
	}
	r.last = now
	r.dirty = false
	r.flush(r.pending)
}

// Flush writes the latest progress unconditionally, used after a step
// or the whole stack completes so the final state is never dropped by
// the throttle window.
func (r *throttledReporter) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.dirty {
		return
	}
	r.last = time.Now()
	r.dirty = false
	r.flush(r.pending)
}
