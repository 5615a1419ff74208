// Package job implements the job lifecycle (spec §4.7): admission
// (validate, reserve credit, persist, enqueue), consume (resolve
// stack, run the executor, propagate throttled progress), completion
// (commit credit, persist result, callback), failure (refund credit,
// persist error, callback), and cancellation (synchronous for a
// pending job, cooperative via context for a running one). The
// service-layer shape — a struct wrapping repositories plus a
// scheduler/runner pair, exposing one method per lifecycle operation —
// is grounded on internal/service/job_service.go; completion/failure
// bookkeeping is grounded on internal/scheduler/executor.go's
// Executor.Execute.
package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/commercestack/internal/executor"
	"github.com/jmylchreest/commercestack/internal/models"
	"github.com/jmylchreest/commercestack/internal/pipelinecore"
	"github.com/jmylchreest/commercestack/internal/queue"
	"github.com/jmylchreest/commercestack/internal/sandbox"
	"github.com/jmylchreest/commercestack/internal/store"
	"github.com/jmylchreest/commercestack/internal/urlutil"
)

// TemplateResolver looks up a StackTemplate by id; implemented by
// internal/templates.Catalogue. Kept as a narrow interface here so
// this package does not depend on the YAML-loading catalogue.
type TemplateResolver interface {
	Resolve(id string) (pipelinecore.StackTemplate, bool)
}

// AdmissionGate reports whether resource pressure allows a new job to
// be admitted; implemented by internal/health.Checker. Optional: a nil
// gate never rejects.
type AdmissionGate interface {
	Allow(ctx context.Context) (ok bool, reason string)
}

// ErrBackpressure is returned by Admit when the AdmissionGate rejects
// a new job due to resource scarcity (SPEC_FULL.md §4).
var ErrBackpressure = errors.New("job: rejected due to resource pressure")

// ErrJobNotFound is returned when a job id does not resolve to a row.
var ErrJobNotFound = errors.New("job: not found")

// ErrUnknownStack is returned by Admit when the requested stack
// template id is not registered.
var ErrUnknownStack = errors.New("job: unknown stack template")

// ErrAlreadyTerminal is returned by Cancel when the job has already
// reached a terminal state.
var ErrAlreadyTerminal = errors.New("job: already terminal")

// AdmitRequest is the validated input to Admit.
type AdmitRequest struct {
	UserID      string
	APIKeyID    string
	VideoURL    string
	CallbackURL string
	Config      store.JobConfig
	CreditCost  int64
}

// Service drives one job through its full lifecycle.
type Service struct {
	jobs      store.JobStore
	credits   store.CreditStore
	q         queue.Queue
	reg       *pipelinecore.Registry
	templates TemplateResolver
	workRoot  string
	notifier  *Notifier
	logger    *slog.Logger
	gate      AdmissionGate

	progressInterval time.Duration

	mu       sync.Mutex
	cancels  map[string]context.CancelFunc
}

// New returns a Service wiring the given dependencies.
func New(
	jobs store.JobStore,
	credits store.CreditStore,
	q queue.Queue,
	reg *pipelinecore.Registry,
	templates TemplateResolver,
	workRoot string,
	notifier *Notifier,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		jobs:             jobs,
		credits:          credits,
		q:                q,
		reg:              reg,
		templates:        templates,
		workRoot:         workRoot,
		notifier:         notifier,
		logger:           logger,
		progressInterval: 200 * time.Millisecond,
		cancels:          make(map[string]context.CancelFunc),
	}
}

// WithAdmissionGate sets the backpressure gate consulted at the start
// of Admit, following the tvarr HealthHandler's WithDB/
// WithCircuitBreakerManager fluent-setter idiom for optional
// dependencies.
func (s *Service) WithAdmissionGate(gate AdmissionGate) *Service {
	s.gate = gate
	return s
}

// Admit validates req, reserves credit, persists a pending Job, and
// enqueues it. If credit reservation fails, no job row is created
// (spec §4.7 "Admission"). If an AdmissionGate is set and rejects the
// request due to resource pressure, Admit fails before any side
// effect (SPEC_FULL.md §4 "admission-time backpressure").
func (s *Service) Admit(ctx context.Context, req AdmitRequest) (*store.Job, error) {
	if s.gate != nil {
		if ok, reason := s.gate.Allow(ctx); !ok {
			return nil, fmt.Errorf("%w: %s", ErrBackpressure, reason)
		}
	}
	if req.VideoURL == "" {
		return nil, fmt.Errorf("%w: video url required", pipelinecore.ErrInvalidConfiguration)
	}
	if req.Config.StackID == "" {
		return nil, fmt.Errorf("%w: stack id required", pipelinecore.ErrInvalidConfiguration)
	}
	if req.CallbackURL != "" {
		if scheme := urlutil.GetScheme(req.CallbackURL); scheme != urlutil.SchemeHTTP && scheme != urlutil.SchemeHTTPS {
			return nil, fmt.Errorf("%w: callback url must be http or https", pipelinecore.ErrInvalidConfiguration)
		}
	}
	if _, ok := s.templates.Resolve(req.Config.StackID); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStack, req.Config.StackID)
	}

	id := models.NewULID()

	var receiptID string
	if req.CreditCost > 0 {
		receipt, err := s.credits.Reserve(ctx, req.UserID, id.String(), req.CreditCost)
		if err != nil {
			return nil, fmt.Errorf("job: reserve credit: %w", err)
		}
		receiptID = receipt.ID.String()
	}

	j := &store.Job{
		UserID:          req.UserID,
		APIKeyID:        req.APIKeyID,
		VideoURL:        req.VideoURL,
		CallbackURL:     req.CallbackURL,
		Status:          store.StatusPending,
		CreditReceiptID: receiptID,
		MaxAttempts:     3,
		BackoffSeconds:  5,
	}
	j.ID = id
	if err := j.SetConfig(req.Config); err != nil {
		return nil, fmt.Errorf("job: encode config: %w", err)
	}

	if err := s.jobs.Create(ctx, j); err != nil {
		return nil, fmt.Errorf("job: create: %w", err)
	}

	if err := s.q.Enqueue(ctx, queue.Message{JobID: j.ID.String()}); err != nil {
		return nil, fmt.Errorf("job: enqueue: %w", err)
	}

	s.logger.Info("job admitted", slog.String("job_id", j.ID.String()), slog.String("stack", req.Config.StackID))
	return j, nil
}

// Get returns a job's current record by id.
func (s *Service) Get(ctx context.Context, jobID string) (*store.Job, error) {
	id, err := models.ParseULID(jobID)
	if err != nil {
		return nil, fmt.Errorf("job: parse id: %w", err)
	}
	j, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, ErrJobNotFound
	}
	return j, nil
}

// Consume runs one job to completion; it is the queue.Handler passed
// to Queue.Run.
func (s *Service) Consume(ctx context.Context, jobID string) error {
	id, err := models.ParseULID(jobID)
	if err != nil {
		return fmt.Errorf("job: parse id: %w", err)
	}

	j, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("job: load: %w", err)
	}

	if j.Status.IsTerminal() {
		// Already finished by a prior delivery; redelivery-safe no-op.
		return queue.ErrSkip
	}

	cfg, err := j.Config()
	if err != nil {
		return s.fail(ctx, j, fmt.Errorf("job: decode config: %w", err))
	}

	tmpl, ok := s.templates.Resolve(cfg.StackID)
	if !ok {
		return s.fail(ctx, j, fmt.Errorf("%w: %s", ErrUnknownStack, cfg.StackID))
	}

	wd, err := sandbox.New(s.workRoot, jobID)
	if err != nil {
		return s.fail(ctx, j, fmt.Errorf("job: work dirs: %w", err))
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancels[jobID] = cancel
	s.mu.Unlock()
	defer func() {
		cancel()
		s.mu.Lock()
		delete(s.cancels, jobID)
		s.mu.Unlock()
	}()

	reporter := newThrottledReporter(s.progressInterval, func(p store.JobProgress) {
		j.SetProgress(p)
		if err := s.jobs.Update(ctx, j); err != nil {
			s.logger.Warn("progress update failed", slog.String("job_id", jobID), slog.Any("error", err))
		}
	})

	procCtx := &pipelinecore.ProcessorContext{
		Context: runCtx,
		JobID:   jobID,
		Sandbox: wd,
		Report:  reporter,
	}

	data := pipelinecore.PipelineData{
		Video: &pipelinecore.VideoRef{SourceURL: j.VideoURL},
	}

	steps := applyJobStackConfig(tmpl.Steps, cfg, s.logger)
	initialPaths := []pipelinecore.DataPath{pipelinecore.PathVideo}

	exec := executor.New(s.reg, s.logger)
	j.MarkRunning(store.StatusDownloading, "")
	if err := s.jobs.Update(ctx, j); err != nil {
		s.logger.Warn("mark running failed", slog.String("job_id", jobID), slog.Any("error", err))
	}

	result := exec.Execute(runCtx, jobID, steps, data, procCtx, cfg.StrictIOValidation, initialPaths)
	reporter.Flush()

	if result.Err != nil {
		return s.fail(ctx, j, result.Err)
	}
	return s.complete(ctx, j, result.Data)
}

// complete finalizes a successful job: commit credits, persist the
// result summary, fire the callback.
func (s *Service) complete(ctx context.Context, j *store.Job, data pipelinecore.PipelineData) error {
	summary := summarize(data)
	if err := j.MarkCompleted(summary); err != nil {
		return fmt.Errorf("job: encode result: %w", err)
	}
	if err := s.commitCredit(ctx, j); err != nil {
		s.logger.Error("credit commit failed", slog.String("job_id", j.ID.String()), slog.Any("error", err))
	}
	if err := s.jobs.Update(ctx, j); err != nil {
		return fmt.Errorf("job: persist completion: %w", err)
	}
	s.notify(ctx, j, summary, "")
	s.logger.Info("job completed", slog.String("job_id", j.ID.String()))
	return nil
}

// fail finalizes a failed job: refund credits, persist the error,
// fire the callback. A single human-readable sentence is all the
// caller-visible Job.Error carries (spec §7).
func (s *Service) fail(ctx context.Context, j *store.Job, cause error) error {
	j.MarkFailed(cause)
	if err := s.refundCredit(ctx, j); err != nil {
		s.logger.Error("credit refund failed", slog.String("job_id", j.ID.String()), slog.Any("error", err))
	}
	if err := s.jobs.Update(ctx, j); err != nil {
		s.logger.Error("job: persist failure", slog.String("job_id", j.ID.String()), slog.Any("error", err))
	}
	s.notify(ctx, j, store.JobResult{}, j.Error)
	s.logger.Warn("job failed", slog.String("job_id", j.ID.String()), slog.Any("error", cause))
	return cause
}

// Cancel cancels a job: a pending job is marked cancelled
// synchronously; a running job's context is cancelled cooperatively,
// letting the executor observe it at its next suspension point (spec
// §4.7/§5).
func (s *Service) Cancel(ctx context.Context, jobID string) error {
	id, err := models.ParseULID(jobID)
	if err != nil {
		return fmt.Errorf("job: parse id: %w", err)
	}
	j, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return ErrJobNotFound
	}
	if j.Status.IsTerminal() {
		return ErrAlreadyTerminal
	}

	s.mu.Lock()
	cancel, running := s.cancels[jobID]
	s.mu.Unlock()

	if running {
		cancel()
		return nil
	}

	j.MarkCancelled()
	if err := s.refundCredit(ctx, j); err != nil {
		s.logger.Error("credit refund on cancel failed", slog.String("job_id", jobID), slog.Any("error", err))
	}
	if err := s.jobs.Update(ctx, j); err != nil {
		return fmt.Errorf("job: persist cancellation: %w", err)
	}
	return nil
}

func (s *Service) commitCredit(ctx context.Context, j *store.Job) error {
	if j.CreditReceiptID == "" {
		return nil
	}
	rid, err := models.ParseULID(j.CreditReceiptID)
	if err != nil {
		return err
	}
	return s.credits.Commit(ctx, &store.Receipt{BaseModel: models.BaseModel{ID: rid}, JobID: j.ID.String()})
}

func (s *Service) refundCredit(ctx context.Context, j *store.Job) error {
	if j.CreditReceiptID == "" {
		return nil
	}
	rid, err := models.ParseULID(j.CreditReceiptID)
	if err != nil {
		return err
	}
	return s.credits.Refund(ctx, &store.Receipt{BaseModel: models.BaseModel{ID: rid}, JobID: j.ID.String()})
}

func (s *Service) notify(ctx context.Context, j *store.Job, result store.JobResult, errMsg string) {
	if j.CallbackURL == "" || s.notifier == nil {
		return
	}
	payload := WebhookPayload{JobID: j.ID.String(), Status: string(j.Status), Error: errMsg}
	if errMsg == "" {
		payload.Result = result
	}
	if err := s.notifier.Deliver(ctx, j.CallbackURL, payload); err != nil {
		s.logger.Warn("webhook delivery failed", slog.String("job_id", j.ID.String()), slog.Any("error", err))
	}
}

func summarize(data pipelinecore.PipelineData) store.JobResult {
	r := store.JobResult{
		FramesAnalyzed: len(data.Metadata.Frames),
	}
	variants := make(map[string]bool)
	for _, f := range data.Metadata.Frames {
		if f.VariantID != "" {
			variants[f.VariantID] = true
		}
		if f.S3URL == "" || f.Version == "" {
			continue
		}
		sourceID := f.SourceFrameID
		if sourceID == "" {
			sourceID = f.FrameID
		}
		if r.CommercialImages == nil {
			r.CommercialImages = make(map[string]map[string]string)
		}
		if r.CommercialImages[sourceID] == nil {
			r.CommercialImages[sourceID] = make(map[string]string)
		}
		r.CommercialImages[sourceID][string(f.Version)] = f.S3URL
	}
	r.VariantsDiscovered = len(variants)
	r.FinalFrames = append(r.FinalFrames, data.Images...)
	return r
}
