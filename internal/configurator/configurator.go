// Package configurator implements applyConfig (spec §4.5): swaps,
// insertions, and option overlays applied to a StackTemplate's steps in
// a fixed order, before the result is handed back to the validator.
package configurator

import (
	"log/slog"

	"github.com/jmylchreest/commercestack/internal/pipelinecore"
)

// Apply performs the three composable rewrites in order: swaps,
// insertions, option overlay. It never mutates steps; it returns a new
// slice.
func Apply(steps []pipelinecore.StackStep, cfg pipelinecore.StackConfig, log *slog.Logger) []pipelinecore.StackStep {
	out := make([]pipelinecore.StackStep, len(steps))
	copy(out, steps)

	out = applySwaps(out, cfg.ProcessorSwaps)
	out = applyInsertions(out, cfg.InsertProcessors, log)
	out = applyOptionOverlay(out, cfg.ProcessorOptions)

	return out
}

func applySwaps(steps []pipelinecore.StackStep, swaps map[string]string) []pipelinecore.StackStep {
	if len(swaps) == 0 {
		return steps
	}
	for i, step := range steps {
		if to, ok := swaps[step.Processor]; ok {
			steps[i].Processor = to
		}
	}
	return steps
}

func applyInsertions(steps []pipelinecore.StackStep, inserts []pipelinecore.InsertSpec, log *slog.Logger) []pipelinecore.StackStep {
	for _, ins := range inserts {
		idx := -1
		for i, step := range steps {
			if step.Processor == ins.After {
				idx = i
				break // first match wins (documented)
			}
		}
		if idx == -1 {
			if log != nil {
				log.Warn("configurator: insertion target not found, skipping",
					slog.String("after", ins.After), slog.String("processor", ins.Processor))
			}
			continue
		}
		newStep := pipelinecore.StackStep{Processor: ins.Processor, Options: ins.Options}
		steps = append(steps[:idx+1], append([]pipelinecore.StackStep{newStep}, steps[idx+1:]...)...)
	}
	return steps
}

func applyOptionOverlay(steps []pipelinecore.StackStep, overlay map[string]map[string]any) []pipelinecore.StackStep {
	if len(overlay) == 0 {
		return steps
	}
	for i, step := range steps {
		patch, ok := overlay[step.Processor]
		if !ok {
			continue
		}
		merged := make(map[string]any, len(step.Options)+len(patch))
		for k, v := range step.Options {
			merged[k] = v
		}
		for k, v := range patch {
			merged[k] = v
		}
		steps[i].Options = merged
	}
	return steps
}
