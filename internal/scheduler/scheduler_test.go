package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/commercestack/internal/job"
	"github.com/jmylchreest/commercestack/internal/models"
	"github.com/jmylchreest/commercestack/internal/store"
)

type fakeScheduleStore struct {
	mu        sync.Mutex
	schedules []Schedule
}

func (f *fakeScheduleStore) ListEnabled(ctx context.Context) ([]Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Schedule, len(f.schedules))
	copy(out, f.schedules)
	return out, nil
}

func (f *fakeScheduleStore) set(schedules []Schedule) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.schedules = schedules
}

type fakeJobAdmitter struct {
	mu       sync.Mutex
	requests []job.AdmitRequest
}

func (f *fakeJobAdmitter) Admit(ctx context.Context, req job.AdmitRequest) (*store.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	j := &store.Job{}
	j.ID = models.NewULID()
	return j, nil
}

func (f *fakeJobAdmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func TestNormalizeCronExpression_SixField(t *testing.T) {
	expr, err := NormalizeCronExpression("0 0 */2 * * *")
	require.NoError(t, err)
	assert.Equal(t, "0 0 */2 * * *", expr)
}

func TestNormalizeCronExpression_SevenFieldStripsYear(t *testing.T) {
	expr, err := NormalizeCronExpression("0 0 0 * * * 2030")
	require.NoError(t, err)
	assert.Equal(t, "0 0 0 * * *", expr)
}

func TestNormalizeCronExpression_InvalidYear(t *testing.T) {
	_, err := NormalizeCronExpression("0 0 0 * * * not-a-year")
	assert.Error(t, err)
}

func TestNormalizeCronExpression_WrongFieldCount(t *testing.T) {
	_, err := NormalizeCronExpression("0 0 *")
	assert.Error(t, err)
}

func TestNormalizeCronExpression_Empty(t *testing.T) {
	_, err := NormalizeCronExpression("   ")
	assert.Error(t, err)
}

func TestNormalizeCronExpression_Descriptor(t *testing.T) {
	expr, err := NormalizeCronExpression("@hourly")
	require.NoError(t, err)
	assert.Equal(t, "@hourly", expr)
}

func TestScheduler_StartSyncsInitialSchedules(t *testing.T) {
	schedules := &fakeScheduleStore{schedules: []Schedule{
		{ID: "nightly-catalogue", StackID: "catalogue-refresh", VideoURL: "https://example.com/hero.mp4", CronSchedule: "@every 1h"},
	}}
	admitter := &fakeJobAdmitter{}

	s := New(schedules, admitter, nil)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Equal(t, 1, s.EntryCount())
}

func TestScheduler_SyncRemovesDroppedSchedule(t *testing.T) {
	schedules := &fakeScheduleStore{schedules: []Schedule{
		{ID: "a", StackID: "stack-a", VideoURL: "https://example.com/a.mp4", CronSchedule: "@every 1h"},
		{ID: "b", StackID: "stack-b", VideoURL: "https://example.com/b.mp4", CronSchedule: "@every 1h"},
	}}
	admitter := &fakeJobAdmitter{}

	s := New(schedules, admitter, nil)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()
	require.Equal(t, 2, s.EntryCount())

	schedules.set([]Schedule{schedules.schedules[0]})
	require.NoError(t, s.ForceSync(context.Background()))
	assert.Equal(t, 1, s.EntryCount())
}

func TestScheduler_InvalidCronIsSkippedNotFatal(t *testing.T) {
	schedules := &fakeScheduleStore{schedules: []Schedule{
		{ID: "broken", StackID: "stack-a", VideoURL: "https://example.com/a.mp4", CronSchedule: "not a cron"},
	}}
	admitter := &fakeJobAdmitter{}

	s := New(schedules, admitter, nil)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Equal(t, 0, s.EntryCount())
}

func TestScheduler_FireAdmitsJob(t *testing.T) {
	schedules := &fakeScheduleStore{schedules: []Schedule{
		{ID: "fast", StackID: "catalogue-refresh", VideoURL: "https://example.com/hero.mp4", CronSchedule: "* * * * * *"},
	}}
	admitter := &fakeJobAdmitter{}

	s := New(schedules, admitter, nil).WithConfig(Config{SyncInterval: time.Hour})
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.Eventually(t, func() bool {
		return admitter.count() > 0
	}, 3*time.Second, 50*time.Millisecond)
}

func TestScheduler_NextRunTimes(t *testing.T) {
	schedules := &fakeScheduleStore{schedules: []Schedule{
		{ID: "nightly", StackID: "catalogue-refresh", VideoURL: "https://example.com/hero.mp4", CronSchedule: "@every 1h"},
	}}
	s := New(schedules, &fakeJobAdmitter{}, nil)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	times := s.NextRunTimes()
	require.Contains(t, times, "nightly")
	assert.True(t, times["nightly"].After(time.Now()))
}

func TestScheduler_DoubleStartFails(t *testing.T) {
	schedules := &fakeScheduleStore{}
	s := New(schedules, &fakeJobAdmitter{}, nil)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Error(t, s.Start(context.Background()))
}
