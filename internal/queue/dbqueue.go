package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/commercestack/internal/store"
)

// DBQueueConfig configures a DBQueue's polling and retention behavior.
// Defaults mirror internal/scheduler/runner.go's RunnerConfig, adapted
// to spec §4.8's explicit retry/retention numbers.
type DBQueueConfig struct {
	PollInterval time.Duration // default 5s
	LockTimeout  time.Duration // default 30m, for stale-job reclaim
	WorkerID     string        // default "queue"

	// CompletedRetention is the age after which completed and
	// cancelled jobs are purged; a durable store has no message count
	// to cap, so only the age window applies. FailedRetention is
	// accepted and defaulted but not applied: the cleanup loop does
	// not purge failed jobs.
	CompletedRetention time.Duration // default 24h
	FailedRetention    time.Duration // default 7 * 24h

	CleanupInterval time.Duration // default 1h
	ReclaimInterval time.Duration // default 5m
}

func (c DBQueueConfig) withDefaults() DBQueueConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = 30 * time.Minute
	}
	if c.WorkerID == "" {
		c.WorkerID = "queue"
	}
	if c.CompletedRetention <= 0 {
		c.CompletedRetention = 24 * time.Hour
	}
	if c.FailedRetention <= 0 {
		c.FailedRetention = 7 * 24 * time.Hour
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = time.Hour
	}
	if c.ReclaimInterval <= 0 {
		c.ReclaimInterval = 5 * time.Minute
	}
	return c
}

// DBQueue is the default Queue binding: jobs already live in
// store.JobStore as the durable queue entries (status=pending is "in
// queue"), so Enqueue is a dedup check and Run polls AcquireJob the
// way internal/scheduler/runner.go's worker loop does, retrying
// failures via the job's own ScheduleRetry/CanRetry bookkeeping
// instead of a broker-managed redelivery count.
type DBQueue struct {
	jobs   store.JobStore
	logger *slog.Logger
	cfg    DBQueueConfig

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDBQueue returns a Queue backed by jobs.
func NewDBQueue(jobs store.JobStore, logger *slog.Logger, cfg DBQueueConfig) *DBQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &DBQueue{jobs: jobs, logger: logger, cfg: cfg.withDefaults()}
}

// Enqueue is a no-op beyond existence/dedup: the job row created by
// Admission already represents the queued message; its id is the
// dedup key (spec §4.8 "dedup key = job id").
func (q *DBQueue) Enqueue(ctx context.Context, msg Message) error {
	id, err := parseULID(msg.JobID)
	if err != nil {
		return fmt.Errorf("queue: enqueue: %w", err)
	}
	_, err = q.jobs.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("queue: enqueue: job %s not found: %w", msg.JobID, err)
	}
	return nil
}

func (q *DBQueue) Run(ctx context.Context, count int, handler Handler) error {
	if count <= 0 {
		count = 1
	}

	q.mu.Lock()
	if q.cancel != nil {
		q.mu.Unlock()
		return errors.New("queue: already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.mu.Unlock()

	for i := 0; i < count; i++ {
		workerID := fmt.Sprintf("%s-%d", q.cfg.WorkerID, i)
		q.wg.Add(1)
		go q.consume(runCtx, workerID, handler)
	}

	q.wg.Add(2)
	go q.reclaimLoop(runCtx)
	go q.cleanupLoop(runCtx)

	q.logger.Info("queue started", slog.Int("workers", count))
	return nil
}

func (q *DBQueue) Stop() {
	q.mu.Lock()
	if q.cancel != nil {
		q.cancel()
	}
	q.mu.Unlock()
	q.wg.Wait()
	q.mu.Lock()
	q.cancel = nil
	q.mu.Unlock()
	q.logger.Info("queue stopped")
}

func (q *DBQueue) consume(ctx context.Context, workerID string, handler Handler) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := q.jobs.AcquireJob(ctx, workerID)
		if errors.Is(err, store.ErrNoJobAvailable) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(q.cfg.PollInterval):
			}
			continue
		}
		if err != nil {
			q.logger.Error("acquire job failed", slog.String("worker_id", workerID), slog.Any("error", err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(q.cfg.PollInterval):
			}
			continue
		}

		q.deliver(ctx, job, handler)
	}
}

// deliver invokes handler for job, applying spec §4.8's 3-attempt
// exponential-backoff-from-5s policy on failure via the job's own
// CanRetry/ScheduleRetry, or releasing the lock immediately on
// ErrSkip.
func (q *DBQueue) deliver(ctx context.Context, job *store.Job, handler Handler) {
	err := handler(ctx, job.ID.String())
	switch {
	case err == nil:
		return
	case errors.Is(err, ErrSkip):
		if releaseErr := q.jobs.ReleaseJob(ctx, job.ID); releaseErr != nil {
			q.logger.Error("release skipped job failed", slog.String("job_id", job.ID.String()), slog.Any("error", releaseErr))
		}
		return
	}

	q.logger.Warn("job delivery failed", slog.String("job_id", job.ID.String()), slog.Any("error", err))

	job.MarkFailed(err)
	if job.CanRetry() {
		job.ScheduleRetry()
	}
	if updErr := q.jobs.Update(ctx, job); updErr != nil {
		q.logger.Error("update job after failed delivery failed", slog.String("job_id", job.ID.String()), slog.Any("error", updErr))
	}
}

func (q *DBQueue) reclaimLoop(ctx context.Context) {
	defer q.wg.Done()
	ticker := time.NewTicker(q.cfg.ReclaimInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := q.jobs.ReclaimStale(ctx, q.cfg.LockTimeout)
			if err != nil {
				q.logger.Error("reclaim stale jobs failed", slog.Any("error", err))
			} else if n > 0 {
				q.logger.Info("reclaimed stale jobs", slog.Int("count", n))
			}
		}
	}
}

func (q *DBQueue) cleanupLoop(ctx context.Context) {
	defer q.wg.Done()
	ticker := time.NewTicker(q.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-q.cfg.CompletedRetention)
			if n, err := q.jobs.DeleteCompletedBefore(ctx, cutoff); err != nil {
				q.logger.Error("cleanup completed jobs failed", slog.Any("error", err))
			} else if n > 0 {
				q.logger.Info("purged terminal jobs", slog.Int("count", n))
			}
		}
	}
}
