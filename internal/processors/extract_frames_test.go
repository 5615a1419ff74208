package processors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/commercestack/internal/pipelinecore"
)

func TestExtractFrames_MissingVideoPathFails(t *testing.T) {
	p := NewExtractFrames("", nil)
	ctx := newTestProcessorContext(t)

	_, err := p.Execute(ctx, pipelinecore.PipelineData{}, nil)
	require.Error(t, err)
	assert.Equal(t, pipelinecore.KindPrecondition, err.(*pipelinecore.ClassifiedError).Kind)
}

func TestExtractFrames_IO(t *testing.T) {
	p := NewExtractFrames("", nil)
	io := p.IO()
	assert.Contains(t, io.Requires, pipelinecore.PathVideo)
	assert.Contains(t, io.Produces, pipelinecore.PathFrames)
}
