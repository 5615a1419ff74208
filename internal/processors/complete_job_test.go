package processors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/commercestack/internal/pipelinecore"
)

func TestCompleteJob_CollectsUploadedURLs(t *testing.T) {
	p := NewCompleteJob()
	ctx := newTestProcessorContext(t)

	data := pipelinecore.PipelineData{Metadata: pipelinecore.Metadata{Frames: []pipelinecore.FrameMetadata{
		{FrameID: "a", S3URL: "https://cdn/a.png"},
		{FrameID: "b", S3URL: ""},
	}}}

	res, err := p.Execute(ctx, data, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://cdn/a.png"}, res.Data.Images)
}

func TestCompleteJob_FinalSelectionOnly(t *testing.T) {
	p := NewCompleteJob()
	ctx := newTestProcessorContext(t)

	data := pipelinecore.PipelineData{Metadata: pipelinecore.Metadata{Frames: []pipelinecore.FrameMetadata{
		{FrameID: "a", S3URL: "https://cdn/a.png", IsFinalSelection: true},
		{FrameID: "b", S3URL: "https://cdn/b.png", IsFinalSelection: false},
	}}}

	res, err := p.Execute(ctx, data, map[string]any{"finalSelectionOnly": true})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://cdn/a.png"}, res.Data.Images)
}

func TestCompleteJob_NoURLsFails(t *testing.T) {
	p := NewCompleteJob()
	ctx := newTestProcessorContext(t)

	data := pipelinecore.PipelineData{Metadata: pipelinecore.Metadata{Frames: []pipelinecore.FrameMetadata{
		{FrameID: "a"},
	}}}

	_, err := p.Execute(ctx, data, nil)
	require.Error(t, err)
}
