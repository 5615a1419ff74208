package processors

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmylchreest/commercestack/internal/parallel"
	"github.com/jmylchreest/commercestack/internal/pipelinecore"
	"github.com/jmylchreest/commercestack/internal/providers"
)

// GenerateCommercialID is this processor's registry id.
const GenerateCommercialID = "generate-commercial"

var defaultCommercialVersions = []pipelinecore.CommercialVersion{
	pipelinecore.VersionTransparent,
	pipelinecore.VersionSolid,
	pipelinecore.VersionReal,
	pipelinecore.VersionCreative,
}

// commercialJob is one (source frame, background version) pair to
// render, the unit of work parallel.Map fans out over.
type commercialJob struct {
	source  pipelinecore.FrameMetadata
	version pipelinecore.CommercialVersion
}

// GenerateCommercial fans each background-removed frame out into every
// requested commercial background treatment via the registered
// providers.KindCommercialImage implementation, replacing
// metadata.Frames with one entry per (frame, version) pair. Grounded on
// the same fan-out shape as RemoveBackground/CenterProduct, widened
// from a 1:1 item map to a 1:N expansion.
type GenerateCommercial struct {
	registry    *providers.Registry
	concurrency int
}

// NewGenerateCommercial returns a GenerateCommercial processor
// resolving providers.KindCommercialImage against registry.
func NewGenerateCommercial(registry *providers.Registry, concurrency int) *GenerateCommercial {
	return &GenerateCommercial{registry: registry, concurrency: concurrency}
}

func (p *GenerateCommercial) ID() string          { return GenerateCommercialID }
func (p *GenerateCommercial) DisplayName() string { return "Generate commercial images" }
func (p *GenerateCommercial) StatusKey() string   { return "generating_commercial" }

func (p *GenerateCommercial) IO() pipelinecore.ProcessorIO {
	return pipelinecore.ProcessorIO{
		Requires: []pipelinecore.DataPath{pipelinecore.PathFrames},
		Produces: []pipelinecore.DataPath{pipelinecore.PathFramesVersion},
	}
}

func (p *GenerateCommercial) Execute(ctx *pipelinecore.ProcessorContext, data pipelinecore.PipelineData, options map[string]any) (pipelinecore.ProcessorResult, error) {
	if len(data.Metadata.Frames) == 0 {
		return fail(pipelinecore.KindPrecondition, errors.New("processors: generate-commercial requires metadata.frames"))
	}

	sel, err := p.registry.Get(providers.KindCommercialImage, optString(options, "providerId", ""), ctx.JobID)
	if err != nil {
		return fail(pipelinecore.KindProviderPermanent, wrapf("processors: generate-commercial: select provider: %w", err))
	}
	generator, ok := sel.Provider.(CommercialImageGenerator)
	if !ok {
		return fail(pipelinecore.KindInternal, fmt.Errorf("processors: generate-commercial: provider %s does not implement CommercialImageGenerator", sel.ProviderID))
	}

	versions := commercialVersionsOption(options, defaultCommercialVersions)

	jobs := make([]commercialJob, 0, len(data.Metadata.Frames)*len(versions))
	for _, f := range data.Metadata.Frames {
		for _, v := range versions {
			jobs = append(jobs, commercialJob{source: f, version: v})
		}
	}

	report(ctx, p.StatusKey(), 0, fmt.Sprintf("rendering %d commercial images", len(jobs)))

	result := parallel.Map(ctx, jobs, func(itemCtx context.Context, j commercialJob) (pipelinecore.FrameMetadata, error) {
		out, gErr := generator.Generate(itemCtx, j.source.Path, string(j.version))
		if gErr != nil {
			return pipelinecore.FrameMetadata{}, gErr
		}
		versioned := j.source.Clone()
		versioned.FrameID = fmt.Sprintf("%s-%s", j.source.FrameID, j.version)
		versioned.SourceFrameID = j.source.FrameID
		versioned.Version = j.version
		versioned.Path = out
		versioned.Filename = fmt.Sprintf("%s_%s.png", j.source.FrameID, j.version)
		return versioned, nil
	}, parallel.Options{
		Concurrency: p.concurrency,
		OnItemError: func(index int, err error) {},
	})

	frames := make([]pipelinecore.FrameMetadata, 0, len(result.Results))
	for i, r := range result.Results {
		if r.Err != nil {
			continue
		}
		frames = append(frames, r.Value)
		if i%10 == 0 {
			reportItems(ctx, p.StatusKey(), i, len(result.Results))
		}
	}

	if len(frames) == 0 {
		return fail(pipelinecore.KindProviderTransient, errors.New("processors: generate-commercial: no commercial image rendered"))
	}

	report(ctx, p.StatusKey(), 100, fmt.Sprintf("rendered %d/%d commercial images", len(frames), len(jobs)))

	return pipelinecore.ProcessorResult{
		Success:         true,
		MetadataTouched: true,
		Data: pipelinecore.PipelineData{
			Metadata: pipelinecore.Metadata{Frames: frames},
		},
	}, nil
}

func commercialVersionsOption(options map[string]any, def []pipelinecore.CommercialVersion) []pipelinecore.CommercialVersion {
	raw, ok := options["versions"]
	if !ok {
		return def
	}
	list, ok := raw.([]string)
	if !ok || len(list) == 0 {
		return def
	}
	out := make([]pipelinecore.CommercialVersion, 0, len(list))
	for _, s := range list {
		out = append(out, pipelinecore.CommercialVersion(s))
	}
	return out
}

var _ pipelinecore.Processor = (*GenerateCommercial)(nil)
