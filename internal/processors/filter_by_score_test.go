package processors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/commercestack/internal/pipelinecore"
)

func scorePtr(v float64) *float64 { return &v }

func TestFilterByScore_DropsBelowThresholdAndNonBest(t *testing.T) {
	p := NewFilterByScore()
	ctx := newTestProcessorContext(t)

	data := pipelinecore.PipelineData{Metadata: pipelinecore.Metadata{Frames: []pipelinecore.FrameMetadata{
		{FrameID: "a", Score: scorePtr(10), IsBestPerSecond: true},
		{FrameID: "b", Score: scorePtr(2), IsBestPerSecond: false},
		{FrameID: "c", Score: scorePtr(0.5), IsBestPerSecond: true},
	}}}

	res, err := p.Execute(ctx, data, map[string]any{"minScore": 1.0})
	require.NoError(t, err)
	require.Len(t, res.Data.Metadata.Frames, 1)
	assert.Equal(t, "a", res.Data.Metadata.Frames[0].FrameID)
}

func TestFilterByScore_MaxFramesCapsResult(t *testing.T) {
	p := NewFilterByScore()
	ctx := newTestProcessorContext(t)

	data := pipelinecore.PipelineData{Metadata: pipelinecore.Metadata{Frames: []pipelinecore.FrameMetadata{
		{FrameID: "a", Score: scorePtr(10), IsBestPerSecond: true},
		{FrameID: "b", Score: scorePtr(20), IsBestPerSecond: true},
		{FrameID: "c", Score: scorePtr(15), IsBestPerSecond: true},
	}}}

	res, err := p.Execute(ctx, data, map[string]any{"maxFrames": 2})
	require.NoError(t, err)
	require.Len(t, res.Data.Metadata.Frames, 2)
}

func TestFilterByScore_NoneSurviveFails(t *testing.T) {
	p := NewFilterByScore()
	ctx := newTestProcessorContext(t)

	data := pipelinecore.PipelineData{Metadata: pipelinecore.Metadata{Frames: []pipelinecore.FrameMetadata{
		{FrameID: "a", Score: scorePtr(0.1), IsBestPerSecond: true},
	}}}

	_, err := p.Execute(ctx, data, map[string]any{"minScore": 5.0})
	require.Error(t, err)
}
