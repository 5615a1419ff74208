package processors

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmylchreest/commercestack/internal/parallel"
	"github.com/jmylchreest/commercestack/internal/pipelinecore"
	"github.com/jmylchreest/commercestack/internal/providers"
)

// GeminiClassifyID is this processor's registry id.
const GeminiClassifyID = "gemini-classify"

// GeminiClassify labels each surviving frame with a product/variant/
// angle classification via the registered providers.KindClassification
// implementation. The provider name is historical (spec's reference
// implementation used a Gemini-backed classifier); any registered
// Classifier satisfies this step. Grounded on internal/providers'
// Registry.Get selection contract and internal/parallel's fan-out,
// mirrored from ScoreFrames.
type GeminiClassify struct {
	registry    *providers.Registry
	concurrency int
}

// NewGeminiClassify returns a GeminiClassify processor resolving
// providers.KindClassification against registry.
func NewGeminiClassify(registry *providers.Registry, concurrency int) *GeminiClassify {
	return &GeminiClassify{registry: registry, concurrency: concurrency}
}

func (p *GeminiClassify) ID() string          { return GeminiClassifyID }
func (p *GeminiClassify) DisplayName() string { return "Classify product frames" }
func (p *GeminiClassify) StatusKey() string   { return "classifying_frames" }

func (p *GeminiClassify) IO() pipelinecore.ProcessorIO {
	return pipelinecore.ProcessorIO{
		Requires: []pipelinecore.DataPath{pipelinecore.PathFrames},
		Produces: []pipelinecore.DataPath{pipelinecore.PathFramesClassifications},
	}
}

func (p *GeminiClassify) Execute(ctx *pipelinecore.ProcessorContext, data pipelinecore.PipelineData, options map[string]any) (pipelinecore.ProcessorResult, error) {
	if len(data.Metadata.Frames) == 0 {
		return fail(pipelinecore.KindPrecondition, errors.New("processors: gemini-classify requires metadata.frames"))
	}

	sel, err := p.registry.Get(providers.KindClassification, optString(options, "providerId", ""), ctx.JobID)
	if err != nil {
		return fail(pipelinecore.KindProviderPermanent, wrapf("processors: gemini-classify: select provider: %w", err))
	}
	classifier, ok := sel.Provider.(Classifier)
	if !ok {
		return fail(pipelinecore.KindInternal, fmt.Errorf("processors: gemini-classify: provider %s does not implement Classifier", sel.ProviderID))
	}

	report(ctx, p.StatusKey(), 0, "classifying frames")

	result := parallel.Map(ctx, data.Metadata.Frames, func(itemCtx context.Context, f pipelinecore.FrameMetadata) (pipelinecore.FrameMetadata, error) {
		out, cErr := classifier.Classify(itemCtx, f.Path)
		if cErr != nil {
			return f, cErr
		}
		classified := f.Clone()
		classified.ProductID = out.ProductID
		classified.VariantID = out.VariantID
		classified.AngleEstimate = out.AngleEstimate
		classified.RotationAngleDeg = out.RotationAngleDeg
		classified.Obstructions = out.Obstructions
		classified.BackgroundRecommendations = out.BackgroundRecommendations
		classified.IsFinalSelection = out.IsFinalSelection
		return classified, nil
	}, parallel.Options{
		Concurrency: p.concurrency,
		OnItemError: func(index int, err error) {},
	})

	frames := make([]pipelinecore.FrameMetadata, 0, len(result.Results))
	for i, r := range result.Results {
		if r.Err != nil {
			frames = append(frames, data.Metadata.Frames[i])
		} else {
			frames = append(frames, r.Value)
		}
		if i%10 == 0 {
			reportItems(ctx, p.StatusKey(), i, len(result.Results))
		}
	}

	if result.SuccessCount == 0 {
		return fail(pipelinecore.KindProviderTransient, errors.New("processors: gemini-classify: every frame failed classification"))
	}

	report(ctx, p.StatusKey(), 100, fmt.Sprintf("classified %d/%d frames", result.SuccessCount, len(frames)))

	return pipelinecore.ProcessorResult{
		Success:         true,
		MetadataTouched: true,
		Data: pipelinecore.PipelineData{
			Metadata: pipelinecore.Metadata{Frames: frames},
		},
	}, nil
}

var _ pipelinecore.Processor = (*GeminiClassify)(nil)
