package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/commercestack/internal/models"
	"github.com/jmylchreest/commercestack/internal/store"
)

// mockJobStore implements store.JobStore in memory for testing the
// consumer loop, swap/acquire semantics and retry bookkeeping.
type mockJobStore struct {
	mu   sync.Mutex
	jobs map[models.ULID]*store.Job
}

func newMockJobStore() *mockJobStore {
	return &mockJobStore{jobs: make(map[models.ULID]*store.Job)}
}

func (m *mockJobStore) Create(_ context.Context, job *store.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.ID.IsZero() {
		job.ID = models.NewULID()
	}
	m.jobs[job.ID] = job
	return nil
}

func (m *mockJobStore) GetByID(_ context.Context, id models.ULID) (*store.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, assert.AnError
	}
	return j, nil
}

func (m *mockJobStore) Update(_ context.Context, job *store.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
	return nil
}

func (m *mockJobStore) Delete(_ context.Context, id models.ULID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
	return nil
}

func (m *mockJobStore) AcquireJob(_ context.Context, workerID string) (*store.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.Status == store.StatusPending {
			j.MarkRunning(store.StatusDownloading, workerID)
			return j, nil
		}
	}
	return nil, store.ErrNoJobAvailable
}

func (m *mockJobStore) ReleaseJob(_ context.Context, id models.ULID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok {
		j.LockedBy = ""
	}
	return nil
}

func (m *mockJobStore) ReclaimStale(_ context.Context, _ time.Duration) (int, error) {
	return 0, nil
}

func (m *mockJobStore) DeleteCompletedBefore(_ context.Context, _ time.Time) (int, error) {
	return 0, nil
}

func (m *mockJobStore) CreateHistory(_ context.Context, _ *store.JobHistory) error { return nil }

func TestDBQueue_DeliversAndMarksCompleted(t *testing.T) {
	jobs := newMockJobStore()
	job := &store.Job{Status: store.StatusPending, MaxAttempts: 3, BackoffSeconds: 5}
	require.NoError(t, jobs.Create(context.Background(), job))

	q := NewDBQueue(jobs, nil, DBQueueConfig{PollInterval: 10 * time.Millisecond})

	var handled sync.WaitGroup
	handled.Add(1)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, q.Run(ctx, 1, func(_ context.Context, jobID string) error {
		defer handled.Done()
		assert.Equal(t, job.ID.String(), jobID)
		return nil
	}))

	handled.Wait()
	cancel()
	q.Stop()
}

func TestDBQueue_RetriesOnFailure(t *testing.T) {
	jobs := newMockJobStore()
	job := &store.Job{Status: store.StatusPending, MaxAttempts: 3, BackoffSeconds: 5}
	require.NoError(t, jobs.Create(context.Background(), job))

	q := NewDBQueue(jobs, nil, DBQueueConfig{PollInterval: 10 * time.Millisecond})

	var calls sync.WaitGroup
	calls.Add(1)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, q.Run(ctx, 1, func(_ context.Context, _ string) error {
		defer calls.Done()
		return assert.AnError
	}))

	calls.Wait()
	cancel()
	q.Stop()

	got, err := jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, got.Status)
	assert.Equal(t, 1, got.AttemptCount)
	assert.NotNil(t, got.NextRunAt)
}

func TestDBQueue_SkipReleasesWithoutRetry(t *testing.T) {
	jobs := newMockJobStore()
	job := &store.Job{Status: store.StatusPending, MaxAttempts: 3, BackoffSeconds: 5}
	require.NoError(t, jobs.Create(context.Background(), job))

	q := NewDBQueue(jobs, nil, DBQueueConfig{PollInterval: 10 * time.Millisecond})

	var calls sync.WaitGroup
	calls.Add(1)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, q.Run(ctx, 1, func(_ context.Context, _ string) error {
		defer calls.Done()
		return ErrSkip
	}))

	calls.Wait()
	cancel()
	q.Stop()

	got, err := jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusDownloading, got.Status)
	assert.Equal(t, "", got.LockedBy)
}

func TestDBQueue_EnqueueRejectsUnknownJob(t *testing.T) {
	jobs := newMockJobStore()
	q := NewDBQueue(jobs, nil, DBQueueConfig{})
	err := q.Enqueue(context.Background(), Message{JobID: models.NewULID().String()})
	assert.Error(t, err)
}
