// Package queue implements the queue binding described in spec §4.8:
// at-least-once delivery of {jobId} messages, deduplicated by job id,
// delivered up to 3 attempts in total with exponential backoff starting
// at 5s, and completed/cancelled jobs purged after a retention window.
// The default binding polls
// the durable job store directly (internal/store.JobStore already
// carries the retry/backoff/lock bookkeeping a message broker would),
// grounded on internal/scheduler/runner.go's worker-pool loop.
package queue

import (
	"context"
	"errors"
)

// Message is the queue payload, spec §6: "Queue message = {jobId}".
type Message struct {
	JobID string
}

// ErrNoMessage reports that no message is ready. DBQueue does not
// return it: its consumers poll the job store instead.
var ErrNoMessage = errors.New("queue: no message available")

// Handler processes one dequeued job id. A non-nil error causes the
// binding to apply its retry policy; ErrSkip short-circuits retry.
type Handler func(ctx context.Context, jobID string) error

// ErrSkip tells the binding the job was handled terminally (e.g.
// already completed by a prior delivery) and must not be retried.
var ErrSkip = errors.New("queue: skip retry")

// Queue is the narrow binding the job lifecycle depends on to move
// work from Admission to Consume (spec §4.7/§4.8). Enqueue is
// idempotent on JobID: re-enqueuing an id already pending/running is a
// no-op, satisfying the "dedup key = job id" requirement.
type Queue interface {
	Enqueue(ctx context.Context, msg Message) error

	// Run starts count concurrent consumers calling handler for each
	// due message and returns without waiting for them; they run
	// until ctx is cancelled or Stop is called.
	Run(ctx context.Context, count int, handler Handler) error
	Stop()
}
