package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Timer accumulates nested step/operation timings for a single stack
// execution and produces an aggregated summary when the run closes. It
// keeps its own start time and duration per scope and does not call
// TimedOperation/TimedOperationWithError, matching the teacher's
// per-stage timing in
// internal/pipeline/core/orchestrator.go generalised from "one
// timed stage" to "an arbitrarily nested scope stack".
type Timer struct {
	mu       sync.Mutex
	logger   *slog.Logger
	started  time.Time
	scopes   []scope
	active   []int // indices into scopes currently open, innermost last
}

type scope struct {
	name     string
	start    time.Time
	duration time.Duration
	parent   int // index into scopes, -1 for top-level
}

// NewTimer starts a new Timer; the root of the nesting stack represents
// the whole job execution.
func NewTimer(logger *slog.Logger) *Timer {
	return &Timer{logger: logger, started: time.Now()}
}

// Begin opens a nested scope named name (e.g. a processor id) and
// returns a function to close it. Scopes may nest arbitrarily; each
// Begin/End pair is logged at debug level and folded into the final
// Summary.
func (t *Timer) Begin(ctx context.Context, name string) func() {
	t.mu.Lock()
	parent := -1
	if len(t.active) > 0 {
		parent = t.active[len(t.active)-1]
	}
	idx := len(t.scopes)
	t.scopes = append(t.scopes, scope{name: name, start: time.Now(), parent: parent})
	t.active = append(t.active, idx)
	t.mu.Unlock()

	t.logger.DebugContext(ctx, "timer scope started", slog.String("scope", name))

	return func() {
		t.mu.Lock()
		t.scopes[idx].duration = time.Since(t.scopes[idx].start)
		if len(t.active) > 0 && t.active[len(t.active)-1] == idx {
			t.active = t.active[:len(t.active)-1]
		}
		dur := t.scopes[idx].duration
		t.mu.Unlock()

		t.logger.DebugContext(ctx, "timer scope ended", slog.String("scope", name), slog.Duration("duration", dur))
	}
}

// ScopeSummary is one entry of the aggregated Summary.
type ScopeSummary struct {
	Name     string
	Duration time.Duration
	Depth    int
}

// Summary returns the full nested breakdown plus total elapsed time
// since NewTimer, for the executor's closing log line. It closes no
// scope: a scope whose end function has not run reports zero Duration.
func (t *Timer) Summary() (total time.Duration, scopes []ScopeSummary) {
	t.mu.Lock()
	defer t.mu.Unlock()

	total = time.Since(t.started)
	scopes = make([]ScopeSummary, len(t.scopes))
	depthOf := func(idx int) int {
		d := 0
		for p := t.scopes[idx].parent; p != -1; p = t.scopes[p].parent {
			d++
		}
		return d
	}
	for i, s := range t.scopes {
		scopes[i] = ScopeSummary{Name: s.name, Duration: s.duration, Depth: depthOf(i)}
	}
	return total, scopes
}

// LogSummary writes the aggregated summary at info level.
func (t *Timer) LogSummary(ctx context.Context, jobID string) {
	total, scopes := t.Summary()
	attrs := make([]any, 0, 2+len(scopes)*2)
	attrs = append(attrs, slog.String("job_id", jobID), slog.Duration("total", total))
	for _, s := range scopes {
		attrs = append(attrs, slog.Duration(s.Name, s.Duration))
	}
	t.logger.InfoContext(ctx, "job timing summary", attrs...)
}
