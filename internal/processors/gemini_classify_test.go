package processors

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/commercestack/internal/pipelinecore"
	"github.com/jmylchreest/commercestack/internal/providers"
)

type fakeClassifier struct {
	id      string
	failIDs map[string]bool
}

func (f *fakeClassifier) ID() string            { return f.id }
func (f *fakeClassifier) Kind() providers.Kind   { return providers.KindClassification }
func (f *fakeClassifier) IsAvailable() bool      { return true }
func (f *fakeClassifier) Classify(ctx context.Context, imagePath string) (ClassificationResult, error) {
	if f.failIDs[imagePath] {
		return ClassificationResult{}, errors.New("boom")
	}
	return ClassificationResult{ProductID: "p1", VariantID: "v1", AngleEstimate: "front"}, nil
}

func newTestRegistry(t *testing.T, p providers.Provider) *providers.Registry {
	t.Helper()
	r := providers.NewRegistry()
	r.Register(p, true)
	return r
}

func TestGeminiClassify_ClassifiesAllFrames(t *testing.T) {
	classifier := &fakeClassifier{id: "fake-classifier"}
	registry := newTestRegistry(t, classifier)
	p := NewGeminiClassify(registry, 2)
	ctx := newTestProcessorContext(t)

	data := pipelinecore.PipelineData{Metadata: pipelinecore.Metadata{Frames: []pipelinecore.FrameMetadata{
		{FrameID: "a", Path: "/a.jpg"},
		{FrameID: "b", Path: "/b.jpg"},
	}}}

	res, err := p.Execute(ctx, data, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Len(t, res.Data.Metadata.Frames, 2)
	for _, f := range res.Data.Metadata.Frames {
		assert.Equal(t, "p1", f.ProductID)
	}
}

func TestGeminiClassify_AllFailuresFail(t *testing.T) {
	classifier := &fakeClassifier{id: "fake-classifier", failIDs: map[string]bool{"/a.jpg": true}}
	registry := newTestRegistry(t, classifier)
	p := NewGeminiClassify(registry, 1)
	ctx := newTestProcessorContext(t)

	data := pipelinecore.PipelineData{Metadata: pipelinecore.Metadata{Frames: []pipelinecore.FrameMetadata{
		{FrameID: "a", Path: "/a.jpg"},
	}}}

	_, err := p.Execute(ctx, data, nil)
	require.Error(t, err)
}
