package processors

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jmylchreest/commercestack/internal/parallel"
	"github.com/jmylchreest/commercestack/internal/pipelinecore"
	"github.com/jmylchreest/commercestack/internal/store"
)

// UploadFramesID is this processor's registry id.
const UploadFramesID = "upload-frames"

// UploadFrames pushes every surviving frame's rendered image into the
// job's blob store, keyed by spec §6's "jobs/<jobId>/<subPath>/<filename>"
// layout via store.JobBlobKey, and records the returned URL back onto
// the frame (phase 6, "Uploaded"). Grounded on the same
// internal/parallel fan-out shape as its siblings, generalized from a
// provider-transform call to a blob-store Put.
type UploadFrames struct {
	blobs       store.BlobStore
	subPath     string
	concurrency int
}

// NewUploadFrames returns an UploadFrames processor writing into
// blobs under the given subPath ("commercial" if empty).
func NewUploadFrames(blobs store.BlobStore, subPath string, concurrency int) *UploadFrames {
	if subPath == "" {
		subPath = "commercial"
	}
	return &UploadFrames{blobs: blobs, subPath: subPath, concurrency: concurrency}
}

func (p *UploadFrames) ID() string          { return UploadFramesID }
func (p *UploadFrames) DisplayName() string { return "Upload frames" }
func (p *UploadFrames) StatusKey() string   { return "uploading_frames" }

func (p *UploadFrames) IO() pipelinecore.ProcessorIO {
	return pipelinecore.ProcessorIO{
		Requires: []pipelinecore.DataPath{pipelinecore.PathFrames},
		Produces: []pipelinecore.DataPath{pipelinecore.PathFramesS3URL},
	}
}

func (p *UploadFrames) Execute(ctx *pipelinecore.ProcessorContext, data pipelinecore.PipelineData, options map[string]any) (pipelinecore.ProcessorResult, error) {
	if len(data.Metadata.Frames) == 0 {
		return fail(pipelinecore.KindPrecondition, errors.New("processors: upload-frames requires metadata.frames"))
	}

	report(ctx, p.StatusKey(), 0, "uploading frames")

	result := parallel.Map(ctx, data.Metadata.Frames, func(itemCtx context.Context, f pipelinecore.FrameMetadata) (pipelinecore.FrameMetadata, error) {
		file, err := os.Open(f.Path)
		if err != nil {
			return f, err
		}
		defer file.Close()

		key := store.JobBlobKey(ctx.JobID, p.subPath, f.Filename)
		url, err := p.blobs.Put(itemCtx, key, file)
		if err != nil {
			return f, err
		}

		uploaded := f.Clone()
		uploaded.S3URL = url
		return uploaded, nil
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
		return fail(pipelinecore.KindProviderTransient, errors.New("processors: upload-frames: every frame failed to upload"))
	}

	report(ctx, p.StatusKey(), 100, fmt.Sprintf("uploaded %d/%d frames", result.SuccessCount, len(frames)))

	return pipelinecore.ProcessorResult{
		Success:         true,
		MetadataTouched: true,
		Data: pipelinecore.PipelineData{
			Metadata: pipelinecore.Metadata{Frames: frames},
		},
	}, nil
}

var _ pipelinecore.Processor = (*UploadFrames)(nil)
