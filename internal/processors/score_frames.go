package processors

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"golang.org/x/image/draw"

	"github.com/jmylchreest/commercestack/internal/parallel"
	"github.com/jmylchreest/commercestack/internal/pipelinecore"
)

// ScoreFramesID is this processor's registry id.
const ScoreFramesID = "score-frames"

const scoreDownscaleMaxDim = 256

// ScoreFrames computes a sharpness score for every extracted frame and
// uses it as the frame's Score; it does not compute a motion score, so
// Motion stays unset. The per-frame decode/score work is fanned out with
// internal/parallel.Map the way
// internal/pipeline/stages/logocaching/stage.go fans out its own
// per-item downloads. Frames are downscaled with golang.org/x/image/draw
// before scoring, since the Laplacian-variance metric below is O(pixels)
// and a full-resolution frame buys no extra signal over a thumbnail.
type ScoreFrames struct {
	concurrency int
}

// NewScoreFrames returns a ScoreFrames processor bounding decode/score
// fan-out to concurrency workers (parallel.Map's default if <= 0).
func NewScoreFrames(concurrency int) *ScoreFrames {
	return &ScoreFrames{concurrency: concurrency}
}

func (p *ScoreFrames) ID() string          { return ScoreFramesID }
func (p *ScoreFrames) DisplayName() string { return "Score frame sharpness" }
func (p *ScoreFrames) StatusKey() string   { return "scoring_frames" }

func (p *ScoreFrames) IO() pipelinecore.ProcessorIO {
	return pipelinecore.ProcessorIO{
		Requires: []pipelinecore.DataPath{pipelinecore.PathFrames},
		Produces: []pipelinecore.DataPath{pipelinecore.PathFramesScores},
	}
}

func (p *ScoreFrames) Execute(ctx *pipelinecore.ProcessorContext, data pipelinecore.PipelineData, options map[string]any) (pipelinecore.ProcessorResult, error) {
	if len(data.Metadata.Frames) == 0 {
		return fail(pipelinecore.KindPrecondition, errors.New("processors: score-frames requires metadata.frames"))
	}

	report(ctx, p.StatusKey(), 0, "scoring frames")

	result := parallel.Map(ctx, data.Metadata.Frames, func(itemCtx context.Context, f pipelinecore.FrameMetadata) (pipelinecore.FrameMetadata, error) {
		scored := f.Clone()
		sharpness, err := sharpnessScore(f.Path)
		if err != nil {
			return scored, fmt.Errorf("frame %s: %w", f.FrameID, err)
		}
		scored.Sharpness = &sharpness
		score := sharpness
		scored.Score = &score
		return scored, nil
	}, parallel.Options{
		Concurrency: p.concurrency,
		OnItemError: func(index int, err error) {
			// A single unreadable/corrupt frame does not fail the
			// whole stack; it is dropped from metadata.Frames below.
		},
	})

	frames := make([]pipelinecore.FrameMetadata, 0, len(result.Results))
	for i, r := range result.Results {
		if r.Err != nil {
			continue
		}
		frames = append(frames, r.Value)
		if i%25 == 0 {
			reportItems(ctx, p.StatusKey(), i, len(result.Results))
		}
	}
	markBestPerSecond(frames)

	report(ctx, p.StatusKey(), 100, fmt.Sprintf("scored %d/%d frames", len(frames), len(data.Metadata.Frames)))

	return pipelinecore.ProcessorResult{
		Success:         true,
		MetadataTouched: true,
		Data: pipelinecore.PipelineData{
			Metadata: pipelinecore.Metadata{Frames: frames},
		},
	}, nil
}

// markBestPerSecond flags, within each integer-second bucket, the
// highest-scoring frame, giving the next filtering step a stable
// candidate to prefer without it needing its own bucketing pass.
func markBestPerSecond(frames []pipelinecore.FrameMetadata) {
	best := make(map[int]int) // second -> index of best frame in frames
	for i, f := range frames {
		second := int(f.Timestamp)
		cur, ok := best[second]
		if !ok || scoreOf(frames[cur]) < scoreOf(f) {
			best[second] = i
		}
	}
	for _, idx := range best {
		frames[idx].IsBestPerSecond = true
	}
}

func scoreOf(f pipelinecore.FrameMetadata) float64 {
	if f.Score == nil {
		return 0
	}
	return *f.Score
}

// sharpnessScore decodes the frame at path, downscales it, and returns
// the variance of its Laplacian as a sharpness proxy: a blurry frame
// has low-variance edge response, a crisp one high-variance.
func sharpnessScore(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return 0, err
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w > scoreDownscaleMaxDim || h > scoreDownscaleMaxDim {
		scale := float64(scoreDownscaleMaxDim) / float64(max(w, h))
		dw, dh := int(float64(w)*scale), int(float64(h)*scale)
		if dw < 1 {
			dw = 1
		}
		if dh < 1 {
			dh = 1
		}
		dst := image.NewGray(image.Rect(0, 0, dw, dh))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
		return laplacianVariance(dst), nil
	}

	gray := image.NewGray(bounds)
	draw.Draw(gray, bounds, img, bounds.Min, draw.Over)
	return laplacianVariance(gray), nil
}

func laplacianVariance(gray *image.Gray) float64 {
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 3 || h < 3 {
		return 0
	}

	var sum, sumSq float64
	var n int
	at := func(x, y int) float64 { return float64(gray.GrayAt(x, y).Y) }

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			lap := -4*at(x, y) + at(x-1, y) + at(x+1, y) + at(x, y-1) + at(x, y+1)
			sum += lap
			sumSq += lap * lap
			n++
		}
	}
	if n == 0 {
		return 0
	}
	mean := sum / float64(n)
	return sumSq/float64(n) - mean*mean
}

var _ pipelinecore.Processor = (*ScoreFrames)(nil)
