package job

import (
	"log/slog"

	"github.com/jmylchreest/commercestack/internal/configurator"
	"github.com/jmylchreest/commercestack/internal/pipelinecore"
	"github.com/jmylchreest/commercestack/internal/store"
)

// applyJobStackConfig maps the job's stored configuration overlay onto
// pipelinecore.StackConfig and runs it through the configurator, kept
// as a small translation so internal/store does not need to import
// pipelinecore for its JSON wire shape.
func applyJobStackConfig(steps []pipelinecore.StackStep, cfg store.JobConfig, log *slog.Logger) []pipelinecore.StackStep {
	inserts := make([]pipelinecore.InsertSpec, len(cfg.InsertProcessors))
	for i, ins := range cfg.InsertProcessors {
		inserts[i] = pipelinecore.InsertSpec{After: ins.After, Processor: ins.Processor, Options: ins.Options}
	}

	sc := pipelinecore.StackConfig{
		ProcessorSwaps:     cfg.ProcessorSwaps,
		InsertProcessors:   inserts,
		ProcessorOptions:   cfg.ProcessorOptions,
		StrictIOValidation: cfg.StrictIOValidation,
	}
	return configurator.Apply(steps, sc, log)
}
