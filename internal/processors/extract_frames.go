package processors

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/jmylchreest/commercestack/internal/ffmpeg"
	"github.com/jmylchreest/commercestack/internal/pipelinecore"
	"github.com/jmylchreest/commercestack/internal/sandbox"
)

// ExtractFramesID is this processor's registry id.
const ExtractFramesID = "extract-frames"

const defaultExtractFPS = 1.0

// ExtractFrames samples frames out of the downloaded video at a
// configurable rate using ffmpeg, seeding Metadata.Frames with each
// frame's base phase (spec §4 phase 1). Grounded on internal/ffmpeg's
// CommandBuilder/Command, the teacher's own process-exec wrapper
// around the ffmpeg binary, generalized from transcode/repackage
// pipelines to a still-frame sampling one.
type ExtractFrames struct {
	ffmpegPath string
	logger     *slog.Logger
}

// NewExtractFrames returns an ExtractFrames processor invoking the
// ffmpeg binary at ffmpegPath (resolved via ffmpeg.ResolveBinary;
// empty searches $COMMERCESTACK_FFMPEG_BINARY, ./ffmpeg, then $PATH).
// A resolution failure is logged, not fatal, so a misconfigured
// deployment still starts and fails the first job with a clear error
// instead of refusing to boot.
func NewExtractFrames(ffmpegPath string, logger *slog.Logger) *ExtractFrames {
	if logger == nil {
		logger = slog.Default()
	}
	resolved, err := ffmpeg.ResolveBinary(ffmpegPath)
	if err != nil {
		logger.Warn("extract-frames: ffmpeg binary not resolved at startup", slog.String("error", err.Error()))
		if ffmpegPath == "" {
			ffmpegPath = "ffmpeg"
		}
		resolved = ffmpegPath
	}
	return &ExtractFrames{ffmpegPath: resolved, logger: logger}
}

func (p *ExtractFrames) ID() string          { return ExtractFramesID }
func (p *ExtractFrames) DisplayName() string { return "Extract candidate frames" }
func (p *ExtractFrames) StatusKey() string   { return "extracting_frames" }

func (p *ExtractFrames) IO() pipelinecore.ProcessorIO {
	return pipelinecore.ProcessorIO{
		Requires: []pipelinecore.DataPath{pipelinecore.PathVideo},
		Produces: []pipelinecore.DataPath{pipelinecore.PathFrames},
	}
}

func (p *ExtractFrames) Execute(ctx *pipelinecore.ProcessorContext, data pipelinecore.PipelineData, options map[string]any) (pipelinecore.ProcessorResult, error) {
	if data.Video == nil || data.Video.Path == "" {
		return fail(pipelinecore.KindPrecondition, errors.New("processors: extract-frames requires video.path"))
	}

	fpsOption := optString(options, "fps", "")
	fps := defaultExtractFPS
	if fpsOption != "" {
		if parsed, err := strconv.ParseFloat(fpsOption, 64); err == nil && parsed > 0 {
			fps = parsed
		}
	}

	framesDir, err := ctx.Sandbox.Subpath(string(sandbox.SubpathFrames))
	if err != nil {
		return fail(pipelinecore.KindInternal, wrapf("processors: extract-frames: resolve frames subpath: %w", err))
	}

	report(ctx, p.StatusKey(), 0, "sampling frames")

	pattern := filepath.Join(framesDir, "frame_%06d.jpg")
	cmd := ffmpeg.NewCommandBuilder(p.ffmpegPath).
		HideBanner().
		Overwrite().
		Input(data.Video.Path).
		VideoFilter(fmt.Sprintf("fps=%g", fps)).
		OutputArgs("-qscale:v", "2").
		Output(pattern).
		Build()

	if err := cmd.Run(ctx); err != nil {
		return fail(pipelinecore.KindProviderTransient, wrapf("processors: extract-frames: ffmpeg: %w", err))
	}

	entries, err := os.ReadDir(framesDir)
	if err != nil {
		return fail(pipelinecore.KindInternal, wrapf("processors: extract-frames: read frames dir: %w", err))
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	if len(names) == 0 {
		return fail(pipelinecore.KindProviderPermanent, errors.New("processors: extract-frames: ffmpeg produced no frames"))
	}

	frames := make([]pipelinecore.FrameMetadata, 0, len(names))
	for i, name := range names {
		frames = append(frames, pipelinecore.FrameMetadata{
			FrameID:   fmt.Sprintf("%s-%06d", ctx.JobID, i),
			Filename:  name,
			Path:      filepath.Join(framesDir, name),
			Timestamp: float64(i) / fps,
			Index:     i,
		})
		if i%25 == 0 {
			reportItems(ctx, p.StatusKey(), i, len(names))
		}
	}

	report(ctx, p.StatusKey(), 100, fmt.Sprintf("extracted %d frames", len(frames)))

	return pipelinecore.ProcessorResult{
		Success:         true,
		MetadataTouched: true,
		Data: pipelinecore.PipelineData{
			Metadata: pipelinecore.Metadata{Frames: frames},
		},
	}, nil
}

var _ pipelinecore.Processor = (*ExtractFrames)(nil)
