// Package validator implements the static stack validator (spec
// §4.4): a monotonic capability-flow check over a stack's declared
// processor IO, plus swap-safety validation. It mirrors the walk-
// forward reasoning internal/pipeline/core/orchestrator.go performs
// per stage at runtime, but performed ahead of execution against
// declared IO rather than observed data.
package validator

import (
	"fmt"
	"sort"

	"github.com/jmylchreest/commercestack/internal/pipelinecore"
)

// Violation describes the first failing step found during Validate.
type Violation struct {
	StepIndex    int
	ProcessorID  string
	MissingPath  pipelinecore.DataPath
	Available    []pipelinecore.DataPath
}

func (v *Violation) Error() string {
	return fmt.Sprintf("step %d (%s): requires %q, available: %v", v.StepIndex, v.ProcessorID, v.MissingPath, v.Available)
}

// Result is Validate's return value.
type Result struct {
	Valid            bool
	AvailableOutputs []pipelinecore.DataPath
	Violation        *Violation
}

// Validate walks steps with an `available` set seeded from
// initialPaths, asserting requires ⊆ available before each step, then
// unioning produces into available. Returns Valid=true,
// AvailableOutputs when reasoning succeeds for the whole stack;
// otherwise Valid=false with the first violation.
func Validate(steps []pipelinecore.StackStep, reg *pipelinecore.Registry, initialPaths []pipelinecore.DataPath) Result {
	available := make(map[pipelinecore.DataPath]bool, len(initialPaths))
	for _, p := range initialPaths {
		available[p] = true
	}

	for i, step := range steps {
		proc, ok := reg.Get(step.Processor)
		if !ok {
			return Result{Valid: false, Violation: &Violation{
				StepIndex:   i,
				ProcessorID: step.Processor,
				MissingPath: "",
				Available:   sortedKeys(available),
			}}
		}

		for _, req := range proc.IO().Requires {
			if !available[req] {
				return Result{Valid: false, Violation: &Violation{
					StepIndex:   i,
					ProcessorID: step.Processor,
					MissingPath: req,
					Available:   sortedKeys(available),
				}}
			}
		}

		for _, out := range proc.IO().Produces {
			available[out] = true
		}
	}

	return Result{Valid: true, AvailableOutputs: sortedKeys(available)}
}

// ValidateSwaps rejects any swap pair where either end is unregistered
// or their declared IO sets differ (spec §4.4 "Swap validation").
func ValidateSwaps(swaps map[string]string, reg *pipelinecore.Registry) error {
	for from, to := range swaps {
		fromProc, ok := reg.Get(from)
		if !ok {
			return fmt.Errorf("swap validation: unregistered processor %q", from)
		}
		toProc, ok := reg.Get(to)
		if !ok {
			return fmt.Errorf("swap validation: unregistered processor %q", to)
		}
		if !pipelinecore.Swappable(fromProc, toProc) {
			return fmt.Errorf("swap validation: %q (requires=%v produces=%v) is not swappable with %q (requires=%v produces=%v)",
				from, fromProc.IO().Requires, fromProc.IO().Produces,
				to, toProc.IO().Requires, toProc.IO().Produces)
		}
	}
	return nil
}

func sortedKeys(set map[pipelinecore.DataPath]bool) []pipelinecore.DataPath {
	out := make([]pipelinecore.DataPath, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
