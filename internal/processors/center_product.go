package processors

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmylchreest/commercestack/internal/parallel"
	"github.com/jmylchreest/commercestack/internal/pipelinecore"
	"github.com/jmylchreest/commercestack/internal/providers"
)

// CenterProductID is this processor's registry id.
const CenterProductID = "center-product"

// CenterProduct normalizes the product's position/rotation in each
// classified frame via the registered providers.KindImageTransform
// implementation, replacing each frame's Path with the transformed
// output. Grounded on the fan-out shape shared with ScoreFrames and
// GeminiClassify.
type CenterProduct struct {
	registry    *providers.Registry
	concurrency int
}

// NewCenterProduct returns a CenterProduct processor resolving
// providers.KindImageTransform against registry.
func NewCenterProduct(registry *providers.Registry, concurrency int) *CenterProduct {
	return &CenterProduct{registry: registry, concurrency: concurrency}
}

func (p *CenterProduct) ID() string          { return CenterProductID }
func (p *CenterProduct) DisplayName() string { return "Center product in frame" }
func (p *CenterProduct) StatusKey() string   { return "centering_product" }

func (p *CenterProduct) IO() pipelinecore.ProcessorIO {
	return pipelinecore.ProcessorIO{
		Requires: []pipelinecore.DataPath{pipelinecore.PathFramesClassifications},
		Produces: []pipelinecore.DataPath{pipelinecore.PathFrames},
	}
}

func (p *CenterProduct) Execute(ctx *pipelinecore.ProcessorContext, data pipelinecore.PipelineData, options map[string]any) (pipelinecore.ProcessorResult, error) {
	if len(data.Metadata.Frames) == 0 {
		return fail(pipelinecore.KindPrecondition, errors.New("processors: center-product requires metadata.frames"))
	}

	sel, err := p.registry.Get(providers.KindImageTransform, optString(options, "providerId", ""), ctx.JobID)
	if err != nil {
		return fail(pipelinecore.KindProviderPermanent, wrapf("processors: center-product: select provider: %w", err))
	}
	transformer, ok := sel.Provider.(ImageTransformer)
	if !ok {
		return fail(pipelinecore.KindInternal, fmt.Errorf("processors: center-product: provider %s does not implement ImageTransformer", sel.ProviderID))
	}

	report(ctx, p.StatusKey(), 0, "centering frames")

	result := parallel.Map(ctx, data.Metadata.Frames, func(itemCtx context.Context, f pipelinecore.FrameMetadata) (pipelinecore.FrameMetadata, error) {
		out, cErr := transformer.Center(itemCtx, f.Path)
		if cErr != nil {
			return f, cErr
		}
		centered := f.Clone()
		centered.Path = out
		return centered, nil
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

	report(ctx, p.StatusKey(), 100, fmt.Sprintf("centered %d/%d frames", result.SuccessCount, len(frames)))

	return pipelinecore.ProcessorResult{
		Success:         true,
		MetadataTouched: true,
		Data: pipelinecore.PipelineData{
			Metadata: pipelinecore.Metadata{Frames: frames},
		},
	}, nil
}

var _ pipelinecore.Processor = (*CenterProduct)(nil)
