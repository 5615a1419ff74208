package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/commercestack/internal/job"
	"github.com/jmylchreest/commercestack/internal/store"
)

// JobHandler exposes the job lifecycle service over HTTP (spec §6
// admission/status surface). Shaped after tvarr's
// internal/http/handlers/job.go: one struct wrapping the service,
// a Register method wiring huma.Operations, input/output structs per
// operation.
type JobHandler struct {
	svc *job.Service
}

// NewJobHandler returns a JobHandler wrapping svc.
func NewJobHandler(svc *job.Service) *JobHandler {
	return &JobHandler{svc: svc}
}

// Register wires job routes onto api.
func (h *JobHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "admitJob",
		Method:      "POST",
		Path:        "/api/v1/jobs",
		Summary:     "Submit a job",
		Description: "Validates the request, reserves credit, and enqueues a new job",
		Tags:        []string{"Jobs"},
	}, h.Admit)

	huma.Register(api, huma.Operation{
		OperationID: "getJob",
		Method:      "GET",
		Path:        "/api/v1/jobs/{id}",
		Summary:     "Get job status",
		Tags:        []string{"Jobs"},
	}, h.Get)

	huma.Register(api, huma.Operation{
		OperationID: "cancelJob",
		Method:      "POST",
		Path:        "/api/v1/jobs/{id}/cancel",
		Summary:     "Cancel a job",
		Description: "Cancels a pending job synchronously, or requests cooperative cancellation of a running one",
		Tags:        []string{"Jobs"},
	}, h.Cancel)
}

// AdmitJobRequest is the wire shape of a job submission.
type AdmitJobRequest struct {
	UserID      string          `json:"userId"`
	APIKeyID    string          `json:"apiKeyId,omitempty"`
	VideoURL    string          `json:"videoUrl"`
	CallbackURL string          `json:"callbackUrl,omitempty"`
	StackID     string          `json:"stackId"`
	Config      store.JobConfig `json:"config,omitempty"`
	CreditCost  int64           `json:"creditCost,omitempty"`
}

// AdmitJobInput is the Admit operation's huma input.
type AdmitJobInput struct {
	Body AdmitJobRequest
}

// JobResponse is the wire shape of a Job (spec §6 "Job record").
type JobResponse struct {
	ID              string            `json:"id"`
	UserID          string            `json:"userId"`
	VideoURL        string            `json:"videoUrl"`
	Status          store.Status      `json:"status"`
	Progress        store.JobProgress `json:"progress"`
	Error           string            `json:"error,omitempty"`
	CallbackURL     string            `json:"callbackUrl,omitempty"`
	CreditReceiptID string            `json:"creditReceiptId,omitempty"`
}

func jobResponse(j *store.Job) JobResponse {
	resp := JobResponse{
		ID:              j.ID.String(),
		UserID:          j.UserID,
		VideoURL:        j.VideoURL,
		Status:          j.Status,
		Error:           j.Error,
		CallbackURL:     j.CallbackURL,
		CreditReceiptID: j.CreditReceiptID,
	}
	if p, err := j.Progress(); err == nil {
		resp.Progress = p
	}
	return resp
}

// AdmitJobOutput is the Admit operation's huma output.
type AdmitJobOutput struct {
	Body JobResponse
}

// Admit submits a new job.
func (h *JobHandler) Admit(ctx context.Context, input *AdmitJobInput) (*AdmitJobOutput, error) {
	cfg := input.Body.Config
	cfg.StackID = input.Body.StackID

	j, err := h.svc.Admit(ctx, job.AdmitRequest{
		UserID:      input.Body.UserID,
		APIKeyID:    input.Body.APIKeyID,
		VideoURL:    input.Body.VideoURL,
		CallbackURL: input.Body.CallbackURL,
		Config:      cfg,
		CreditCost:  input.Body.CreditCost,
	})
	if err != nil {
		if errors.Is(err, job.ErrUnknownStack) {
			return nil, huma.Error400BadRequest(err.Error())
		}
		if errors.Is(err, job.ErrBackpressure) {
			return nil, huma.Error503ServiceUnavailable(err.Error())
		}
		return nil, huma.Error500InternalServerError("failed to admit job", err)
	}

	return &AdmitJobOutput{Body: jobResponse(j)}, nil
}

// GetJobInput is the Get operation's huma input.
type GetJobInput struct {
	ID string `path:"id" doc:"Job ID (ULID)"`
}

// GetJobOutput is the Get operation's huma output.
type GetJobOutput struct {
	Body JobResponse
}

// Get returns a job's current status.
func (h *JobHandler) Get(ctx context.Context, input *GetJobInput) (*GetJobOutput, error) {
	j, err := h.svc.Get(ctx, input.ID)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			return nil, huma.Error404NotFound(fmt.Sprintf("job %s not found", input.ID))
		}
		return nil, huma.Error500InternalServerError("failed to get job", err)
	}
	return &GetJobOutput{Body: jobResponse(j)}, nil
}

// CancelJobInput is the Cancel operation's huma input.
type CancelJobInput struct {
	ID string `path:"id" doc:"Job ID (ULID)"`
}

// CancelJobOutput is the Cancel operation's huma output.
type CancelJobOutput struct {
	Body struct {
		Message string `json:"message"`
	}
}

// Cancel cancels a job.
func (h *JobHandler) Cancel(ctx context.Context, input *CancelJobInput) (*CancelJobOutput, error) {
	if err := h.svc.Cancel(ctx, input.ID); err != nil {
		switch {
		case errors.Is(err, job.ErrJobNotFound):
			return nil, huma.Error404NotFound(err.Error())
		case errors.Is(err, job.ErrAlreadyTerminal):
			return nil, huma.Error400BadRequest(err.Error())
		default:
			return nil, huma.Error500InternalServerError("failed to cancel job", err)
		}
	}

	out := &CancelJobOutput{}
	out.Body.Message = fmt.Sprintf("job %s cancellation requested", input.ID)
	return out, nil
}
