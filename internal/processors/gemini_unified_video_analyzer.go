package processors

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/jmylchreest/commercestack/internal/ffmpeg"
	"github.com/jmylchreest/commercestack/internal/pipelinecore"
	"github.com/jmylchreest/commercestack/internal/providers"
	"github.com/jmylchreest/commercestack/internal/sandbox"
)

// GeminiUnifiedVideoAnalyzerID is this processor's registry id.
const GeminiUnifiedVideoAnalyzerID = "gemini-unified-video-analyzer"

// GeminiUnifiedVideoAnalyzer is an alternative to the
// extract-frames/score-frames/gemini-classify chain:
// a single providers.KindUnifiedAnalyzer call returns a transcript, a
// product summary, and the handful of video timestamps worth keeping
// as candidate frames, which this processor then extracts with ffmpeg
// (grounded on internal/ffmpeg's CommandBuilder, mirroring
// ExtractFrames but seeking to specific timestamps instead of sampling
// at a fixed rate).
type GeminiUnifiedVideoAnalyzer struct {
	registry   *providers.Registry
	ffmpegPath string
	logger     *slog.Logger
}

// NewGeminiUnifiedVideoAnalyzer returns a GeminiUnifiedVideoAnalyzer
// resolving providers.KindUnifiedAnalyzer against registry. ffmpegPath
// is resolved the same way NewExtractFrames resolves it (see
// ffmpeg.ResolveBinary); a resolution failure is logged, not fatal.
func NewGeminiUnifiedVideoAnalyzer(registry *providers.Registry, ffmpegPath string, logger *slog.Logger) *GeminiUnifiedVideoAnalyzer {
	if logger == nil {
		logger = slog.Default()
	}
	resolved, err := ffmpeg.ResolveBinary(ffmpegPath)
	if err != nil {
		logger.Warn("gemini-unified-video-analyzer: ffmpeg binary not resolved at startup", slog.String("error", err.Error()))
		if ffmpegPath == "" {
			ffmpegPath = "ffmpeg"
		}
		resolved = ffmpegPath
	}
	return &GeminiUnifiedVideoAnalyzer{registry: registry, ffmpegPath: resolved, logger: logger}
}

func (p *GeminiUnifiedVideoAnalyzer) ID() string          { return GeminiUnifiedVideoAnalyzerID }
func (p *GeminiUnifiedVideoAnalyzer) DisplayName() string { return "Analyze video end-to-end" }
func (p *GeminiUnifiedVideoAnalyzer) StatusKey() string   { return "analyzing_video" }

func (p *GeminiUnifiedVideoAnalyzer) IO() pipelinecore.ProcessorIO {
	return pipelinecore.ProcessorIO{
		Requires: []pipelinecore.DataPath{pipelinecore.PathVideo},
		Produces: []pipelinecore.DataPath{
			pipelinecore.PathTranscript,
			pipelinecore.PathProductMetadata,
			pipelinecore.PathFrames,
		},
	}
}

func (p *GeminiUnifiedVideoAnalyzer) Execute(ctx *pipelinecore.ProcessorContext, data pipelinecore.PipelineData, options map[string]any) (pipelinecore.ProcessorResult, error) {
	if data.Video == nil || data.Video.Path == "" {
		return fail(pipelinecore.KindPrecondition, errors.New("processors: gemini-unified-video-analyzer requires video.path"))
	}

	sel, err := p.registry.Get(providers.KindUnifiedAnalyzer, optString(options, "providerId", ""), ctx.JobID)
	if err != nil {
		return fail(pipelinecore.KindProviderPermanent, wrapf("processors: gemini-unified-video-analyzer: select provider: %w", err))
	}
	analyzer, ok := sel.Provider.(VideoAnalyzer)
	if !ok {
		return fail(pipelinecore.KindInternal, fmt.Errorf("processors: gemini-unified-video-analyzer: provider %s does not implement VideoAnalyzer", sel.ProviderID))
	}

	report(ctx, p.StatusKey(), 0, "analyzing video")

	analysis, err := analyzer.AnalyzeVideo(ctx, data.Video.Path)
	if err != nil {
		return fail(pipelinecore.KindProviderTransient, wrapf("processors: gemini-unified-video-analyzer: %w", err))
	}

	framesDir, err := ctx.Sandbox.Subpath(string(sandbox.SubpathFrames))
	if err != nil {
		return fail(pipelinecore.KindInternal, wrapf("processors: gemini-unified-video-analyzer: resolve frames subpath: %w", err))
	}

	frames := make([]pipelinecore.FrameMetadata, 0, len(analysis.KeyFrameSeconds))
	for i, ts := range analysis.KeyFrameSeconds {
		filename := fmt.Sprintf("keyframe_%06d.jpg", i)
		outPath := filepath.Join(framesDir, filename)
		cmd := ffmpeg.NewCommandBuilder(p.ffmpegPath).
			HideBanner().
			Overwrite().
			InputArgs("-ss", fmt.Sprintf("%.3f", ts)).
			Input(data.Video.Path).
			OutputArgs("-frames:v", "1", "-qscale:v", "2").
			Output(outPath).
			Build()
		if err := cmd.Run(ctx); err != nil {
			p.logger.WarnContext(ctx, "keyframe extraction failed, skipping", slog.Float64("timestamp", ts), slog.String("error", err.Error()))
			continue
		}
		frames = append(frames, pipelinecore.FrameMetadata{
			FrameID:   fmt.Sprintf("%s-key-%06d", ctx.JobID, i),
			Filename:  filename,
			Path:      outPath,
			Timestamp: ts,
			Index:     i,
		})
		if i%10 == 0 {
			reportItems(ctx, p.StatusKey(), i, len(analysis.KeyFrameSeconds))
		}
	}

	if len(frames) == 0 {
		return fail(pipelinecore.KindProviderPermanent, errors.New("processors: gemini-unified-video-analyzer: no keyframes could be extracted"))
	}

	report(ctx, p.StatusKey(), 100, fmt.Sprintf("extracted %d keyframes", len(frames)))

	return pipelinecore.ProcessorResult{
		Success:         true,
		MetadataTouched: true,
		Data: pipelinecore.PipelineData{
			Metadata: pipelinecore.Metadata{
				Frames:     frames,
				Transcript: analysis.Transcript,
				ProductMetadata: &pipelinecore.ProductMetadata{
					Title:       analysis.Product.Title,
					Description: analysis.Product.Description,
					Category:    analysis.Product.Category,
					Attributes:  analysis.Product.Attributes,
				},
			},
		},
	}, nil
}

var _ pipelinecore.Processor = (*GeminiUnifiedVideoAnalyzer)(nil)
