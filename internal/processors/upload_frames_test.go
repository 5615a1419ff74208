package processors

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/commercestack/internal/pipelinecore"
	"github.com/jmylchreest/commercestack/internal/store"
)

func TestUploadFrames_UploadsAndSetsURL(t *testing.T) {
	srcDir := t.TempDir()
	framePath := filepath.Join(srcDir, "frame.png")
	require.NoError(t, os.WriteFile(framePath, []byte("pixels"), 0o644))

	blobRoot := t.TempDir()
	blobs := store.NewFSBlobStore(blobRoot, "https://cdn.example.test")

	p := NewUploadFrames(blobs, "commercial", 2)
	ctx := newTestProcessorContext(t)

	data := pipelinecore.PipelineData{Metadata: pipelinecore.Metadata{Frames: []pipelinecore.FrameMetadata{
		{FrameID: "a", Path: framePath, Filename: "frame.png"},
	}}}

	res, err := p.Execute(ctx, data, nil)
	require.NoError(t, err)
	require.Len(t, res.Data.Metadata.Frames, 1)
	assert.Contains(t, res.Data.Metadata.Frames[0].S3URL, "https://cdn.example.test/jobs/test-job/commercial/frame.png")
}

func TestUploadFrames_NoFramesFails(t *testing.T) {
	blobs := store.NewFSBlobStore(t.TempDir(), "https://cdn.example.test")
	p := NewUploadFrames(blobs, "", 1)
	ctx := newTestProcessorContext(t)

	_, err := p.Execute(ctx, pipelinecore.PipelineData{}, nil)
	require.Error(t, err)
}
