// Package store is the durable JobStore (spec §4.7/§6) plus the
// CreditStore (§5 "Credit store: all debits/refunds must be atomic")
// and a filesystem BlobStore (§6 "Blob store key layout"). The Job/
// JobHistory shape and lifecycle methods are grounded on
// internal/models/job.go; the ULID identity and BaseModel embed are
// grounded on internal/models/base.go and reused directly (that file
// is generic GORM infrastructure, not tvarr-domain-specific).
package store

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"github.com/jmylchreest/commercestack/internal/models"
)

// Status is a job's lifecycle state (spec §3: "created pending →
// transitions monotonically to one of {downloading, extracting,
// scoring, classifying, generating} … → terminal {completed, failed,
// cancelled}. No terminal state may be left.").
type Status string

const (
	StatusPending      Status = "pending"
	StatusDownloading  Status = "downloading"
	StatusExtracting   Status = "extracting"
	StatusScoring      Status = "scoring"
	StatusClassifying  Status = "classifying"
	StatusGenerating   Status = "generating"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusCancelled    Status = "cancelled"
)

// IsTerminal reports whether s is one of the three terminal states.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// statusOrder gives non-terminal statuses a monotonic rank so
// TransitionTo can reject reversions (spec §8 "Progress monotonicity:
// ... status transitions never revert").
var statusOrder = map[Status]int{
	StatusPending:     0,
	StatusDownloading: 1,
	StatusExtracting:  2,
	StatusScoring:     3,
	StatusClassifying: 4,
	StatusGenerating:  5,
}

// JobConfig is the job's input configuration (spec §6).
type JobConfig struct {
	// StackID names the StackTemplate this job runs (spec §6 CLI
	// surface: "run --stack <id>").
	StackID            string                    `json:"stackId"`
	FPS                int                       `json:"fps"`
	BatchSize          int                       `json:"batchSize"`
	CommercialVersions []string                  `json:"commercialVersions,omitempty"`
	AICleanup          bool                      `json:"aiCleanup"`
	GeminiModel        string                    `json:"geminiModel,omitempty"`
	ProcessorSwaps     map[string]string         `json:"processorSwaps,omitempty"`
	InsertProcessors   []StackInsertSpec         `json:"insertProcessors,omitempty"`
	ProcessorOptions   map[string]map[string]any `json:"processorOptions,omitempty"`
	StrictIOValidation bool                      `json:"strictIOValidation,omitempty"`
}

// StackInsertSpec mirrors pipelinecore.InsertSpec for JSON storage on
// the job row without making the store package depend on pipelinecore
// for its wire shape.
type StackInsertSpec struct {
	After     string         `json:"after"`
	Processor string         `json:"processor"`
	Options   map[string]any `json:"options,omitempty"`
}

// JobProgress is the job's progress snapshot (spec §6).
type JobProgress struct {
	Step              string `json:"step"`
	Percentage        int    `json:"percentage"`
	FramesExtracted   *int   `json:"framesExtracted,omitempty"`
	FramesScored      *int   `json:"framesScored,omitempty"`
	VariantsDiscovered *int  `json:"variantsDiscovered,omitempty"`
	ImagesGenerated   *int   `json:"imagesGenerated,omitempty"`
	TotalSteps        int    `json:"totalSteps"`
	CurrentStep       int    `json:"currentStep"`
	Message           string `json:"message,omitempty"`
}

// JobResult is the job's terminal result summary (spec §6).
type JobResult struct {
	VariantsDiscovered int                          `json:"variantsDiscovered"`
	FramesAnalyzed     int                          `json:"framesAnalyzed"`
	FinalFrames        []string                     `json:"finalFrames,omitempty"`
	CommercialImages   map[string]map[string]string `json:"commercialImages,omitempty"` // frameId -> version -> url
}

// Job is the durable record described in spec §6 "Job record (durable)".
type Job struct {
	models.BaseModel

	UserID   string `gorm:"not null;size:64;index" json:"userId"`
	APIKeyID string `gorm:"size:64" json:"apiKeyId,omitempty"`

	VideoURL string `gorm:"not null;size:2048" json:"videoUrl"`

	// ConfigJSON/ProgressJSON/ResultJSON hold the §6 nested structures
	// serialized, following the teacher's pattern of storing
	// free-form result/config data as a size-capped string column
	// (internal/models/job.go's Result/LastError fields) rather than
	// a normalized schema, since these are write-mostly snapshots.
	ConfigJSON   string `gorm:"type:text" json:"-"`
	Status       Status `gorm:"not null;default:'pending';size:20;index" json:"status"`
	ProgressJSON string `gorm:"type:text" json:"-"`
	ResultJSON   string `gorm:"type:text" json:"-"`
	Error        string `gorm:"size:4096" json:"error,omitempty"`

	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	CallbackURL     string `gorm:"size:2048" json:"callbackUrl,omitempty"`
	CreditReceiptID string `gorm:"size:64" json:"creditReceiptId,omitempty"`

	// Queue/retry bookkeeping, grounded on internal/models/job.go's
	// AttemptCount/MaxAttempts/BackoffSeconds/LockedBy/LockedAt.
	AttemptCount   int        `gorm:"default:0" json:"attemptCount"`
	MaxAttempts    int        `gorm:"default:3" json:"maxAttempts"`
	BackoffSeconds int        `gorm:"default:5" json:"backoffSeconds"`
	NextRunAt      *time.Time `gorm:"index" json:"nextRunAt,omitempty"`
	LockedBy       string     `gorm:"size:100;index" json:"lockedBy,omitempty"`
	LockedAt       *time.Time `json:"lockedAt,omitempty"`
}

func (Job) TableName() string { return "jobs" }

// Config decodes the job's JobConfig.
func (j *Job) Config() (JobConfig, error) {
	var c JobConfig
	if j.ConfigJSON == "" {
		return c, nil
	}
	err := json.Unmarshal([]byte(j.ConfigJSON), &c)
	return c, err
}

// SetConfig encodes cfg onto the job.
func (j *Job) SetConfig(cfg JobConfig) error {
	b, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	j.ConfigJSON = string(b)
	return nil
}

// Progress decodes the job's JobProgress.
func (j *Job) Progress() (JobProgress, error) {
	var p JobProgress
	if j.ProgressJSON == "" {
		return p, nil
	}
	err := json.Unmarshal([]byte(j.ProgressJSON), &p)
	return p, err
}

// SetProgress encodes p onto the job.
func (j *Job) SetProgress(p JobProgress) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	j.ProgressJSON = string(b)
	return nil
}

// Result decodes the job's JobResult.
func (j *Job) Result() (JobResult, error) {
	var r JobResult
	if j.ResultJSON == "" {
		return r, nil
	}
	err := json.Unmarshal([]byte(j.ResultJSON), &r)
	return r, err
}

// SetResult encodes r onto the job.
func (j *Job) SetResult(r JobResult) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	j.ResultJSON = string(b)
	return nil
}

// CanTransitionTo reports whether moving from j.Status to next is a
// legal, non-reverting transition (pending may move to any
// in-progress or terminal state; in-progress states may only advance
// or terminate; terminal states are final).
func (j *Job) CanTransitionTo(next Status) bool {
	if j.Status.IsTerminal() {
		return false
	}
	if next.IsTerminal() {
		return true
	}
	curRank, curOK := statusOrder[j.Status]
	nextRank, nextOK := statusOrder[next]
	if !curOK || !nextOK {
		return false
	}
	return nextRank >= curRank
}

// MarkRunning transitions the job to status with worker-lock
// bookkeeping, mirroring internal/models/job.go's MarkRunning.
func (j *Job) MarkRunning(status Status, workerID string) {
	j.Status = status
	now := time.Now()
	if j.StartedAt == nil {
		j.StartedAt = &now
	}
	j.LockedBy = workerID
	j.LockedAt = &now
	j.AttemptCount++
}

// MarkCompleted finalizes the job successfully.
func (j *Job) MarkCompleted(result JobResult) error {
	j.Status = StatusCompleted
	now := time.Now()
	j.CompletedAt = &now
	j.Error = ""
	j.LockedBy = ""
	j.LockedAt = nil
	return j.SetResult(result)
}

// MarkFailed finalizes the job with an error. The Job row's error is a
// single human-readable sentence (spec §7 "User-visible behavior").
func (j *Job) MarkFailed(err error) {
	j.Status = StatusFailed
	now := time.Now()
	j.CompletedAt = &now
	if err != nil {
		j.Error = err.Error()
	}
	j.LockedBy = ""
	j.LockedAt = nil
}

// MarkCancelled finalizes the job as cancelled.
func (j *Job) MarkCancelled() {
	j.Status = StatusCancelled
	now := time.Now()
	j.CompletedAt = &now
	j.LockedBy = ""
	j.LockedAt = nil
}

// CanRetry reports whether a failed job may be retried, per §4.8
// "up to 3 attempts with exponential backoff".
func (j *Job) CanRetry() bool {
	return j.Status == StatusFailed && j.AttemptCount < j.MaxAttempts
}

// NextBackoff computes the exponential backoff starting at 5s, per
// spec §4.8, capped at 1 hour. Grounded on
// internal/models/job.go's CalculateNextBackoff, generalized with a
// configurable base instead of a hardcoded 60s default.
func (j *Job) NextBackoff() time.Duration {
	base := j.BackoffSeconds
	if base <= 0 {
		base = 5
	}
	attempts := j.AttemptCount
	if attempts < 1 {
		attempts = 1
	}
	multiplier := 1 << (attempts - 1)
	backoff := base * multiplier
	const maxBackoff = 3600
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	return time.Duration(backoff) * time.Second
}

// ScheduleRetry schedules the job for retry after NextBackoff, per
// internal/models/job.go's ScheduleRetry.
func (j *Job) ScheduleRetry() {
	next := time.Now().Add(j.NextBackoff())
	j.NextRunAt = &next
	j.Status = StatusPending
	j.LockedBy = ""
	j.LockedAt = nil
}

// BeforeCreate generates a ULID if unset, via the embedded BaseModel hook.
func (j *Job) BeforeCreate(tx *gorm.DB) error {
	return j.BaseModel.BeforeCreate(tx)
}

// JobHistory stores one historical execution attempt, kept separate
// from Job to keep the hot table lean (grounded on
// internal/models/job.go's JobHistory).
type JobHistory struct {
	models.BaseModel

	JobID         models.ULID `gorm:"not null;index" json:"jobId"`
	Status        Status      `gorm:"not null;size:20" json:"status"`
	AttemptNumber int         `json:"attemptNumber"`
	StartedAt     *time.Time  `json:"startedAt,omitempty"`
	CompletedAt   *time.Time  `json:"completedAt,omitempty"`
	Error         string      `gorm:"size:4096" json:"error,omitempty"`
	ResultJSON    string      `gorm:"type:text" json:"-"`
}

func (JobHistory) TableName() string { return "job_history" }
