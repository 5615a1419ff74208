package processors

import (
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/commercestack/internal/pipelinecore"
)

func writeTestJPEG(t *testing.T, path string, sharp bool) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			v := uint8(128)
			if sharp && (x+y)%2 == 0 {
				v = 0
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, jpeg.Encode(f, img, nil))
}

func TestScoreFrames_RanksSharperHigher(t *testing.T) {
	dir := t.TempDir()
	sharpPath := filepath.Join(dir, "sharp.jpg")
	flatPath := filepath.Join(dir, "flat.jpg")
	writeTestJPEG(t, sharpPath, true)
	writeTestJPEG(t, flatPath, false)

	p := NewScoreFrames(2)
	ctx := newTestProcessorContext(t)

	data := pipelinecore.PipelineData{Metadata: pipelinecore.Metadata{Frames: []pipelinecore.FrameMetadata{
		{FrameID: "sharp", Path: sharpPath, Timestamp: 0},
		{FrameID: "flat", Path: flatPath, Timestamp: 1},
	}}}

	res, err := p.Execute(ctx, data, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Len(t, res.Data.Metadata.Frames, 2)

	byID := map[string]pipelinecore.FrameMetadata{}
	for _, f := range res.Data.Metadata.Frames {
		byID[f.FrameID] = f
	}
	require.NotNil(t, byID["sharp"].Score)
	require.NotNil(t, byID["flat"].Score)
	assert.Greater(t, *byID["sharp"].Score, *byID["flat"].Score)
	assert.True(t, byID["sharp"].IsBestPerSecond)
	assert.True(t, byID["flat"].IsBestPerSecond)
}

func TestScoreFrames_NoFramesFails(t *testing.T) {
	p := NewScoreFrames(0)
	ctx := newTestProcessorContext(t)

	_, err := p.Execute(ctx, pipelinecore.PipelineData{}, nil)
	require.Error(t, err)
	assert.Equal(t, pipelinecore.KindPrecondition, err.(*pipelinecore.ClassifiedError).Kind)
}
