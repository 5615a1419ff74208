package processors

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmylchreest/commercestack/internal/parallel"
	"github.com/jmylchreest/commercestack/internal/pipelinecore"
	"github.com/jmylchreest/commercestack/internal/providers"
)

// RemoveBackgroundID is this processor's registry id.
const RemoveBackgroundID = "remove-background"

// RemoveBackground strips the background from every frame in
// metadata.Frames (IsFinalSelection is not consulted) via the
// registered providers.KindBackgroundRemoval implementation, keeping
// the same fan-out shape as its siblings.
type RemoveBackground struct {
	registry    *providers.Registry
	concurrency int
}

// NewRemoveBackground returns a RemoveBackground processor resolving
// providers.KindBackgroundRemoval against registry.
func NewRemoveBackground(registry *providers.Registry, concurrency int) *RemoveBackground {
	return &RemoveBackground{registry: registry, concurrency: concurrency}
}

func (p *RemoveBackground) ID() string          { return RemoveBackgroundID }
func (p *RemoveBackground) DisplayName() string { return "Remove frame background" }
func (p *RemoveBackground) StatusKey() string   { return "removing_background" }

func (p *RemoveBackground) IO() pipelinecore.ProcessorIO {
	return pipelinecore.ProcessorIO{
		Requires: []pipelinecore.DataPath{pipelinecore.PathFrames},
		Produces: []pipelinecore.DataPath{pipelinecore.PathFrames},
	}
}

func (p *RemoveBackground) Execute(ctx *pipelinecore.ProcessorContext, data pipelinecore.PipelineData, options map[string]any) (pipelinecore.ProcessorResult, error) {
	if len(data.Metadata.Frames) == 0 {
		return fail(pipelinecore.KindPrecondition, errors.New("processors: remove-background requires metadata.frames"))
	}

	sel, err := p.registry.Get(providers.KindBackgroundRemoval, optString(options, "providerId", ""), ctx.JobID)
	if err != nil {
		return fail(pipelinecore.KindProviderPermanent, wrapf("processors: remove-background: select provider: %w", err))
	}
	remover, ok := sel.Provider.(BackgroundRemover)
	if !ok {
		return fail(pipelinecore.KindInternal, fmt.Errorf("processors: remove-background: provider %s does not implement BackgroundRemover", sel.ProviderID))
	}

	report(ctx, p.StatusKey(), 0, "removing backgrounds")

	result := parallel.Map(ctx, data.Metadata.Frames, func(itemCtx context.Context, f pipelinecore.FrameMetadata) (pipelinecore.FrameMetadata, error) {
		out, rErr := remover.RemoveBackground(itemCtx, f.Path)
		if rErr != nil {
			return f, rErr
		}
		stripped := f.Clone()
		stripped.Path = out
		return stripped, nil
	}, parallel.Options{
		Concurrency: p.concurrency,
		OnItemError: func(index int, err error) {},
	})

	frames := make([]pipelinecore.FrameMetadata, 0, len(result.Results))
	for i, r := range result.Results {
		if r.Err != nil {
			frames = append(frames, data.Metadata.Frames[i])
			continue
		}
		frames = append(frames, r.Value)
		if i%10 == 0 {
			reportItems(ctx, p.StatusKey(), i, len(result.Results))
		}
	}

	if result.SuccessCount == 0 {
		return fail(pipelinecore.KindProviderTransient, errors.New("processors: remove-background: every frame failed"))
	}

	report(ctx, p.StatusKey(), 100, fmt.Sprintf("removed backgrounds on %d/%d frames", result.SuccessCount, len(frames)))

	return pipelinecore.ProcessorResult{
		Success:         true,
		MetadataTouched: true,
		Data: pipelinecore.PipelineData{
			Metadata: pipelinecore.Metadata{Frames: frames},
		},
	}, nil
}

var _ pipelinecore.Processor = (*RemoveBackground)(nil)
