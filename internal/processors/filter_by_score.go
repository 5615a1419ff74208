package processors

import (
	"errors"
	"fmt"

	"github.com/jmylchreest/commercestack/internal/pipelinecore"
)

// FilterByScoreID is this processor's registry id.
const FilterByScoreID = "filter-by-score"

const defaultMinScore = 0.0

// FilterByScore narrows metadata.Frames down to the best-per-second
// candidates at or above a minimum sharpness score, dropping the rest
// before the costlier per-frame classification/transform steps run on
// them. Grounded on internal/pipeline/stages/filtering/stage.go, the
// teacher's own "drop items that fail a predicate" shape, generalized
// from IPTV channel filters to frame candidates.
type FilterByScore struct{}

// NewFilterByScore returns a FilterByScore processor.
func NewFilterByScore() *FilterByScore { return &FilterByScore{} }

func (p *FilterByScore) ID() string          { return FilterByScoreID }
func (p *FilterByScore) DisplayName() string { return "Filter frames by score" }
func (p *FilterByScore) StatusKey() string   { return "filtering_frames" }

func (p *FilterByScore) IO() pipelinecore.ProcessorIO {
	return pipelinecore.ProcessorIO{
		Requires: []pipelinecore.DataPath{pipelinecore.PathFramesScores},
		Produces: []pipelinecore.DataPath{pipelinecore.PathFrames},
	}
}

func (p *FilterByScore) Execute(ctx *pipelinecore.ProcessorContext, data pipelinecore.PipelineData, options map[string]any) (pipelinecore.ProcessorResult, error) {
	if len(data.Metadata.Frames) == 0 {
		return fail(pipelinecore.KindPrecondition, errors.New("processors: filter-by-score requires metadata.frames"))
	}

	minScore := optFloat(options, "minScore", defaultMinScore)
	bestOnly := optBool(options, "bestPerSecondOnly", true)
	maxFrames := optInt(options, "maxFrames", 0)

	var kept []pipelinecore.FrameMetadata
	for _, f := range data.Metadata.Frames {
		if f.Score == nil {
			continue
		}
		if *f.Score < minScore {
			continue
		}
		if bestOnly && !f.IsBestPerSecond {
			continue
		}
		kept = append(kept, f)
	}

	if maxFrames > 0 && len(kept) > maxFrames {
		kept = topScored(kept, maxFrames)
	}

	if len(kept) == 0 {
		return fail(pipelinecore.KindProviderPermanent, errors.New("processors: filter-by-score: no frame met the score threshold"))
	}

	report(ctx, p.StatusKey(), 100, fmt.Sprintf("kept %d/%d frames", len(kept), len(data.Metadata.Frames)))

	return pipelinecore.ProcessorResult{
		Success:         true,
		MetadataTouched: true,
		Data: pipelinecore.PipelineData{
			Metadata: pipelinecore.Metadata{Frames: kept},
		},
	}, nil
}

// topScored returns the n highest-scoring frames, preserving their
// relative Index order so downstream timestamp-adjacent logic still
// sees frames in capture order.
func topScored(frames []pipelinecore.FrameMetadata, n int) []pipelinecore.FrameMetadata {
	sorted := append([]pipelinecore.FrameMetadata(nil), frames...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && *sorted[j].Score > *sorted[j-1].Score; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	top := sorted[:n]
	result := make([]pipelinecore.FrameMetadata, 0, n)
	keep := make(map[string]bool, n)
	for _, f := range top {
		keep[f.FrameID] = true
	}
	for _, f := range frames {
		if keep[f.FrameID] {
			result = append(result, f)
		}
	}
	return result
}

func optFloat(options map[string]any, key string, def float64) float64 {
	if v, ok := options[key]; ok {
		switch n := v.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		}
	}
	return def
}

var _ pipelinecore.Processor = (*FilterByScore)(nil)
