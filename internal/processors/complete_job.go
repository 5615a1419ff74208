package processors

import (
	"errors"
	"fmt"

	"github.com/jmylchreest/commercestack/internal/pipelinecore"
)

// CompleteJobID is this processor's registry id.
const CompleteJobID = "complete-job"

// CompleteJob is the terminal reference step of the stack: it collects
// every uploaded frame's URL into data.Images, the field
// internal/job.Service's result summary reads to populate
// store.JobResult.FinalFrames. Grounded on
// internal/pipeline/stages/filtering/stage.go's Stage shape, reduced
// to its simplest form since this step performs no per-item work of
// its own.
type CompleteJob struct{}

// NewCompleteJob returns a CompleteJob processor.
func NewCompleteJob() *CompleteJob { return &CompleteJob{} }

func (p *CompleteJob) ID() string          { return CompleteJobID }
func (p *CompleteJob) DisplayName() string { return "Finalize job output" }
func (p *CompleteJob) StatusKey() string   { return "completing" }

func (p *CompleteJob) IO() pipelinecore.ProcessorIO {
	return pipelinecore.ProcessorIO{
		Requires: []pipelinecore.DataPath{pipelinecore.PathFramesS3URL},
		Produces: []pipelinecore.DataPath{pipelinecore.PathImages},
	}
}

func (p *CompleteJob) Execute(ctx *pipelinecore.ProcessorContext, data pipelinecore.PipelineData, options map[string]any) (pipelinecore.ProcessorResult, error) {
	if len(data.Metadata.Frames) == 0 {
		return fail(pipelinecore.KindPrecondition, errors.New("processors: complete-job requires metadata.frames"))
	}

	finalOnly := optBool(options, "finalSelectionOnly", false)

	var urls []string
	for _, f := range data.Metadata.Frames {
		if f.S3URL == "" {
			continue
		}
		if finalOnly && !f.IsFinalSelection {
			continue
		}
		urls = append(urls, f.S3URL)
	}

	if len(urls) == 0 {
		return fail(pipelinecore.KindProviderPermanent, errors.New("processors: complete-job: no uploaded frame URLs to finalize"))
	}

	report(ctx, p.StatusKey(), 100, fmt.Sprintf("job complete with %d final images", len(urls)))

	return pipelinecore.ProcessorResult{
		Success: true,
		Data: pipelinecore.PipelineData{
			Images: urls,
		},
	}, nil
}

var _ pipelinecore.Processor = (*CompleteJob)(nil)
