// Package executor implements the stack executor (spec §4.6): ordered
// sequential execution of a validated stack, with per-step timing,
// progress reporting, cancellation, and the non-destructive merge
// discipline. The control-flow shape — a sequential loop over stages
// with per-stage timing/logging/progress and cleanup-on-cancel — is
// grounded on internal/pipeline/core/orchestrator.go; here it walks a
// dynamic []pipelinecore.StackStep resolved through the processor
// registry instead of a fixed []Stage slice built at construction
// time, since this spec's stacks are runtime-configured.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jmylchreest/commercestack/internal/observability"
	"github.com/jmylchreest/commercestack/internal/pipelinecore"
	"github.com/jmylchreest/commercestack/internal/validator"
)

// State is the executor's own lifecycle state.
type State int

const (
	StateCreated State = iota
	StateValidating
	StateExecuting
	StateFinalizing
	StateTerminal
)

// StepState is a single step's lifecycle state.
type StepState int

const (
	StepIdle StepState = iota
	StepRunning
	StepCompleted
	StepFailed
	StepSkipped
	StepShortCircuitTerminal
)

// StepOutcome records what happened to one step, for the Result.
type StepOutcome struct {
	Index       int
	ProcessorID string
	State       StepState
	Error       string
}

// Result is what Execute returns on completion (success or failure).
type Result struct {
	Data     pipelinecore.PipelineData
	Steps    []StepOutcome
	Err      error
}

// Executor drives one stack execution. An Executor instance is
// single-use: create one per job execution via New.
type Executor struct {
	reg    *pipelinecore.Registry
	logger *slog.Logger

	mu    sync.Mutex
	state State
}

// New returns an Executor bound to the given processor registry.
func New(reg *pipelinecore.Registry, logger *slog.Logger) *Executor {
	return &Executor{reg: reg, logger: logger, state: StateCreated}
}

// State returns the executor's current lifecycle state.
func (e *Executor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Executor) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// Execute validates steps against initialPaths, then drives them to
// completion in order. strictIOValidation controls the runtime
// pre-check policy for each step (spec §4.6): when true, a missing
// required path aborts the stack; when false, it is logged and
// execution proceeds.
func (e *Executor) Execute(
	ctx context.Context,
	jobID string,
	steps []pipelinecore.StackStep,
	data pipelinecore.PipelineData,
	procCtx *pipelinecore.ProcessorContext,
	strictIOValidation bool,
	initialPaths []pipelinecore.DataPath,
) Result {
	timer := observability.NewTimer(e.logger)
	defer timer.LogSummary(ctx, jobID)

	e.setState(StateValidating)
	vr := validator.Validate(steps, e.reg, initialPaths)
	if !vr.Valid {
		e.setState(StateTerminal)
		return Result{Data: data, Err: vr.Violation}
	}

	if len(steps) == 0 {
		// Empty stack: validates trivially, executes no work, returns
		// initial data unchanged.
		e.setState(StateTerminal)
		return Result{Data: data}
	}

	e.setState(StateExecuting)
	outcomes := make([]StepOutcome, 0, len(steps))

	for i, step := range steps {
		select {
		case <-ctx.Done():
			outcomes = append(outcomes, StepOutcome{Index: i, ProcessorID: step.Processor, State: StepFailed, Error: ctx.Err().Error()})
			e.setState(StateTerminal)
			return Result{Data: data, Steps: outcomes, Err: pipelinecore.Classify(pipelinecore.KindCancellation, ctx.Err())}
		default:
		}

		proc, ok := e.reg.Get(step.Processor)
		if !ok {
			err := fmt.Errorf("%w: %s", pipelinecore.ErrProcessorNotFound, step.Processor)
			outcomes = append(outcomes, StepOutcome{Index: i, ProcessorID: step.Processor, State: StepFailed, Error: err.Error()})
			e.setState(StateTerminal)
			return Result{Data: data, Steps: outcomes, Err: err}
		}

		// Runtime IO pre-check: recompute inferred paths from data.
		for _, req := range proc.IO().Requires {
			if !pipelinecore.Present(&data, req) {
				msg := fmt.Sprintf("step %d (%s): missing required path %q", i, step.Processor, req)
				if strictIOValidation {
					err := fmt.Errorf("%w: %s", pipelinecore.ErrInvalidConfiguration, msg)
					outcomes = append(outcomes, StepOutcome{Index: i, ProcessorID: step.Processor, State: StepFailed, Error: err.Error()})
					e.setState(StateTerminal)
					return Result{Data: data, Steps: outcomes, Err: pipelinecore.Classify(pipelinecore.KindPrecondition, err)}
				}
				e.logger.WarnContext(ctx, "step missing required IO, continuing (non-strict)", slog.Int("step", i), slog.String("processor", step.Processor), slog.String("path", string(req)))
			}
		}

		end := timer.Begin(ctx, step.Processor)
		res, err := proc.Execute(procCtx, data, step.Options)
		end()

		if err != nil {
			outcomes = append(outcomes, StepOutcome{Index: i, ProcessorID: step.Processor, State: StepFailed, Error: err.Error()})
			e.setState(StateTerminal)
			return Result{Data: data, Steps: outcomes, Err: &pipelinecore.ProcessorError{StepIndex: i, ProcessorID: step.Processor, Err: err}}
		}

		if !res.Success {
			perr := &pipelinecore.ProcessorError{StepIndex: i, ProcessorID: step.Processor, Err: fmt.Errorf("%s", res.Error)}
			outcomes = append(outcomes, StepOutcome{Index: i, ProcessorID: step.Processor, State: StepFailed, Error: res.Error})
			e.setState(StateTerminal)
			return Result{Data: data, Steps: outcomes, Err: perr}
		}

		// Non-destructive merge: returned data is shallow-merged onto
		// the running PipelineData.
		data.Merge(res.Data, res.MetadataTouched)

		if res.Skip {
			outcomes = append(outcomes, StepOutcome{Index: i, ProcessorID: step.Processor, State: StepShortCircuitTerminal})
			e.setState(StateFinalizing)
			e.setState(StateTerminal)
			return Result{Data: data, Steps: outcomes}
		}

		outcomes = append(outcomes, StepOutcome{Index: i, ProcessorID: step.Processor, State: StepCompleted})
	}

	e.setState(StateFinalizing)
	e.setState(StateTerminal)
	return Result{Data: data, Steps: outcomes}
}
