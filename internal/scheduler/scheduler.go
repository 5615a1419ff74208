// Package scheduler provides operator-configured recurring execution of
// a StackTemplate against a fixed input (SPEC_FULL.md §4 "recurring
// stack execution"), e.g. re-running a catalogue-refresh stack nightly
// against the same source video. It uses robfig/cron as the timing
// engine and periodically re-syncs its entry set from a ScheduleStore
// so schedule changes made through the admin surface take effect
// without a restart. Grounded on the tvarr scheduler's
// load-then-sync-loop design and its cron-expression normalization,
// narrowed from three source kinds (stream/EPG/proxy) down to one
// (recurring stack run).
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jmylchreest/commercestack/internal/job"
	"github.com/jmylchreest/commercestack/internal/store"
	"github.com/jmylchreest/commercestack/pkg/format"
)

// Schedule is a recurring stack execution entry.
type Schedule struct {
	ID           string
	StackID      string
	VideoURL     string
	CronSchedule string
	Enabled      bool
}

// ScheduleStore lists the recurring schedules an operator has
// configured. Implementations typically back onto the same database as
// internal/store's job/credit tables.
type ScheduleStore interface {
	ListEnabled(ctx context.Context) ([]Schedule, error)
}

// JobAdmitter admits a new job for a schedule firing; implemented by
// internal/job.Service.
type JobAdmitter interface {
	Admit(ctx context.Context, req job.AdmitRequest) (*store.Job, error)
}

// NormalizeCronExpression normalizes a cron expression to 6-field
// format (sec min hour dom month dow). It accepts both 6-field and
// legacy 7-field (with trailing year) input; the year field is
// validated then stripped since robfig/cron has no year support.
func NormalizeCronExpression(expr string) (string, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return "", fmt.Errorf("empty cron expression")
	}

	if strings.HasPrefix(expr, "@") {
		return expr, nil
	}

	fields := strings.Fields(expr)
	switch len(fields) {
	case 6:
		return expr, nil
	case 7:
		yearField := fields[6]
		if !isValidYearField(yearField) {
			return "", fmt.Errorf("invalid year field %q: must be * or a valid year/range", yearField)
		}
		return strings.Join(fields[:6], " "), nil
	default:
		return "", fmt.Errorf("invalid cron expression: expected 6 or 7 fields, got %d", len(fields))
	}
}

func isValidYearField(field string) bool {
	if field == "*" {
		return true
	}
	for _, r := range field {
		if !((r >= '0' && r <= '9') || r == ',' || r == '-' || r == '/' || r == '*') {
			return false
		}
	}
	return len(field) > 0
}

// Scheduler runs ScheduleStore entries on their configured cron
// expressions, admitting a job via JobAdmitter each time one fires.
type Scheduler struct {
	mu sync.RWMutex

	schedules ScheduleStore
	jobs      JobAdmitter
	logger    *slog.Logger

	parser cron.Parser
	cron   *cron.Cron

	entryMap map[string]cron.EntryID

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	syncInterval time.Duration
}

// Config holds tunables for a Scheduler.
type Config struct {
	// SyncInterval is how often ScheduleStore is re-read to pick up
	// added/removed/edited schedules. Default: 1 minute.
	SyncInterval time.Duration
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{SyncInterval: time.Minute}
}

// New returns a Scheduler that admits jobs via jobs when schedules in
// schedules fire.
func New(schedules ScheduleStore, jobs JobAdmitter, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	cronScheduler := cron.New(cron.WithParser(parser), cron.WithChain(
		cron.Recover(cron.DefaultLogger),
	))

	cfg := DefaultConfig()
	return &Scheduler{
		schedules:    schedules,
		jobs:         jobs,
		logger:       logger,
		parser:       parser,
		cron:         cronScheduler,
		entryMap:     make(map[string]cron.EntryID),
		syncInterval: cfg.SyncInterval,
	}
}

// WithConfig applies non-zero fields of cfg.
func (s *Scheduler) WithConfig(cfg Config) *Scheduler {
	if cfg.SyncInterval > 0 {
		s.syncInterval = cfg.SyncInterval
	}
	return s
}

// Start loads the initial schedule set and begins the cron engine plus
// the background sync loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.ctx != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler: already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	if err := s.sync(s.ctx); err != nil {
		s.logger.Error("scheduler: failed to load initial schedules", slog.Any("error", err))
	}

	s.cron.Start()

	s.wg.Add(1)
	go s.syncLoop()

	s.mu.RLock()
	entryCount := len(s.entryMap)
	s.mu.RUnlock()
	s.logger.Info("scheduler started",
		slog.Duration("sync_interval", s.syncInterval),
		slog.Int("entries", entryCount))

	return nil
}

// Stop halts the cron engine, waiting for any in-flight fire to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	stopCtx := s.cron.Stop()
	s.mu.Unlock()

	<-stopCtx.Done()
	s.wg.Wait()

	s.mu.Lock()
	s.ctx, s.cancel = nil, nil
	s.mu.Unlock()

	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) syncLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.sync(s.ctx); err != nil {
				s.logger.Error("scheduler: failed to sync schedules", slog.Any("error", err))
			}
		}
	}
}

// sync reads the current enabled schedule set and reconciles the cron
// engine's entries to match it, removing entries for schedules no
// longer present.
func (s *Scheduler) sync(ctx context.Context) error {
	entries, err := s.schedules.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("listing schedules: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(entries))
	for _, sched := range entries {
		seen[sched.ID] = true
		if err := s.upsertLocked(sched); err != nil {
			s.logger.Error("scheduler: invalid schedule, skipping",
				slog.String("schedule_id", sched.ID),
				slog.Any("error", err))
		}
	}

	for key, entryID := range s.entryMap {
		if !seen[key] {
			s.cron.Remove(entryID)
			delete(s.entryMap, key)
			s.logger.Debug("scheduler: removed schedule", slog.String("schedule_id", key))
		}
	}

	return nil
}

// upsertLocked adds or replaces the cron entry for sched. Callers must
// hold s.mu.
func (s *Scheduler) upsertLocked(sched Schedule) error {
	normalized, err := NormalizeCronExpression(sched.CronSchedule)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	parsed, err := s.parser.Parse(normalized)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	if existingID, ok := s.entryMap[sched.ID]; ok {
		entry := s.cron.Entry(existingID)
		if entry.Valid() && entry.Schedule.Next(time.Now()).Equal(parsed.Next(time.Now())) {
			return nil
		}
		s.cron.Remove(existingID)
		delete(s.entryMap, sched.ID)
	}

	entryID, err := s.cron.AddFunc(normalized, s.fireFunc(sched))
	if err != nil {
		return fmt.Errorf("adding cron entry: %w", err)
	}
	s.entryMap[sched.ID] = entryID

	s.logger.Debug("scheduler: scheduled stack run",
		slog.String("schedule_id", sched.ID),
		slog.String("stack_id", sched.StackID),
		slog.String("cron", sched.CronSchedule),
		slog.String("cron_description", format.CronDescription(normalized)),
		slog.Time("next_run", parsed.Next(time.Now())))
	return nil
}

// fireFunc returns the function the cron engine invokes when sched's
// schedule fires: it admits a job for sched's stack/video, independent
// of any caller's request context.
func (s *Scheduler) fireFunc(sched Schedule) func() {
	return func() {
		ctx := context.Background()
		j, err := s.jobs.Admit(ctx, job.AdmitRequest{
			VideoURL: sched.VideoURL,
			Config:   store.JobConfig{StackID: sched.StackID},
		})
		if err != nil {
			s.logger.Error("scheduler: failed to admit scheduled job",
				slog.String("schedule_id", sched.ID),
				slog.String("stack_id", sched.StackID),
				slog.Any("error", err))
			return
		}
		s.logger.Info("scheduler: admitted scheduled job",
			slog.String("schedule_id", sched.ID),
			slog.String("stack_id", sched.StackID),
			slog.String("job_id", j.ID.String()))
	}
}

// EntryCount returns the number of active cron entries.
func (s *Scheduler) EntryCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entryMap)
}

// NextRunTimes returns the next fire time for every active schedule,
// keyed by schedule id.
func (s *Scheduler) NextRunTimes() map[string]time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]time.Time, len(s.entryMap))
	for key, entryID := range s.entryMap {
		if entry := s.cron.Entry(entryID); entry.Valid() {
			out[key] = entry.Next
		}
	}
	return out
}

// ForceSync forces an immediate re-read of ScheduleStore.
func (s *Scheduler) ForceSync(ctx context.Context) error {
	return s.sync(ctx)
}
