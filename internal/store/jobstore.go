package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jmylchreest/commercestack/internal/models"
)

// ErrNoJobAvailable is returned by AcquireJob when no pending job is
// ready to run.
var ErrNoJobAvailable = errors.New("store: no job available")

// JobStore is the durable job record interface the job lifecycle and
// queue binding layers depend on (spec §1: "the core depends on
// narrow BlobStore and JobStore interfaces").
type JobStore interface {
	Create(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, id models.ULID) (*Job, error)
	Update(ctx context.Context, job *Job) error
	Delete(ctx context.Context, id models.ULID) error

	// AcquireJob atomically claims one pending, due job for workerID,
	// marking it running. Returns ErrNoJobAvailable if none is ready.
	AcquireJob(ctx context.Context, workerID string) (*Job, error)
	// ReleaseJob clears a job's lock without changing its status
	// (used when a worker must abandon a job cleanly, e.g. shutdown).
	ReleaseJob(ctx context.Context, id models.ULID) error
	// ReclaimStale resets jobs whose lock has exceeded lockTimeout
	// back to pending, for redelivery (spec §4.8).
	ReclaimStale(ctx context.Context, lockTimeout time.Duration) (int, error)
	// DeleteCompletedBefore purges completed/cancelled jobs older than
	// before, for retention (spec §4.8 "Retention").
	DeleteCompletedBefore(ctx context.Context, before time.Time) (int, error)

	CreateHistory(ctx context.Context, h *JobHistory) error
}

// gormJobStore implements JobStore over GORM, driver-dispatching
// AcquireJob's locking strategy exactly as
// internal/repository/job_repo.go does: SELECT ... FOR UPDATE SKIP
// LOCKED for postgres/mysql (true row locking), a single atomic
// subquery UPDATE for sqlite (which has no row-level locking).
type gormJobStore struct {
	db     *gorm.DB
	driver string
}

// NewGormJobStore returns a JobStore backed by db. driver must be one
// of "sqlite", "postgres", "mysql" (matching config.DatabaseConfig.Driver).
func NewGormJobStore(db *gorm.DB, driver string) JobStore {
	return &gormJobStore{db: db, driver: driver}
}

func (s *gormJobStore) Create(ctx context.Context, job *Job) error {
	return s.db.WithContext(ctx).Create(job).Error
}

func (s *gormJobStore) GetByID(ctx context.Context, id models.ULID) (*Job, error) {
	var job Job
	if err := s.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *gormJobStore) Update(ctx context.Context, job *Job) error {
	return s.db.WithContext(ctx).Save(job).Error
}

func (s *gormJobStore) Delete(ctx context.Context, id models.ULID) error {
	return s.db.WithContext(ctx).Delete(&Job{}, "id = ?", id).Error
}

func (s *gormJobStore) AcquireJob(ctx context.Context, workerID string) (*Job, error) {
	switch s.driver {
	case "postgres", "mysql":
		return s.acquireWithRowLocking(ctx, workerID)
	default:
		return s.acquireSQLite(ctx, workerID)
	}
}

func (s *gormJobStore) acquireWithRowLocking(ctx context.Context, workerID string) (*Job, error) {
	var job Job
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		q := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ?", StatusPending).
			Where("next_run_at IS NULL OR next_run_at <= ?", now).
			Order("created_at asc").
			Limit(1)
		if err := q.First(&job).Error; err != nil {
			return err
		}
		job.MarkRunning(StatusDownloading, workerID)
		return tx.Save(&job).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoJobAvailable
	}
	if err != nil {
		return nil, fmt.Errorf("store: acquire job: %w", err)
	}
	return &job, nil
}

// acquireSQLite claims a job via a single atomic UPDATE ... WHERE id =
// (subquery), since sqlite has no SELECT ... FOR UPDATE row locking;
// the subquery-scoped UPDATE is itself the atomic operation.
func (s *gormJobStore) acquireSQLite(ctx context.Context, workerID string) (*Job, error) {
	now := time.Now()

	sub := s.db.WithContext(ctx).Model(&Job{}).
		Select("id").
		Where("status = ?", StatusPending).
		Where("next_run_at IS NULL OR next_run_at <= ?", now).
		Order("created_at asc").
		Limit(1)

	res := s.db.WithContext(ctx).Model(&Job{}).
		Where("id = (?)", sub).
		Updates(map[string]any{
			"status":        StatusDownloading,
			"locked_by":     workerID,
			"locked_at":     now,
			"started_at":    now,
			"attempt_count": gorm.Expr("attempt_count + 1"),
		})
	if res.Error != nil {
		return nil, fmt.Errorf("store: acquire job: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNoJobAvailable
	}

	// Re-fetch by locked_by+locked_at since the UPDATE above doesn't
	// return the matched row under sqlite.
	var job Job
	if err := s.db.WithContext(ctx).
		Where("locked_by = ? AND status = ?", workerID, StatusDownloading).
		Order("updated_at desc").
		First(&job).Error; err != nil {
		return nil, fmt.Errorf("store: acquire job: refetch: %w", err)
	}
	return &job, nil
}

func (s *gormJobStore) ReleaseJob(ctx context.Context, id models.ULID) error {
	return s.db.WithContext(ctx).Model(&Job{}).Where("id = ?", id).
		Updates(map[string]any{"locked_by": "", "locked_at": nil}).Error
}

func (s *gormJobStore) ReclaimStale(ctx context.Context, lockTimeout time.Duration) (int, error) {
	cutoff := time.Now().Add(-lockTimeout)
	res := s.db.WithContext(ctx).Model(&Job{}).
		Where("locked_by != ''").
		Where("locked_at < ?", cutoff).
		Where("status NOT IN ?", []Status{StatusCompleted, StatusFailed, StatusCancelled}).
		Updates(map[string]any{"status": StatusPending, "locked_by": "", "locked_at": nil})
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

func (s *gormJobStore) DeleteCompletedBefore(ctx context.Context, before time.Time) (int, error) {
	res := s.db.WithContext(ctx).
		Where("status IN ?", []Status{StatusCompleted, StatusCancelled}).
		Where("completed_at < ?", before).
		Delete(&Job{})
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

func (s *gormJobStore) CreateHistory(ctx context.Context, h *JobHistory) error {
	return s.db.WithContext(ctx).Create(h).Error
}
