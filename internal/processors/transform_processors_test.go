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

type fakeImageTransformer struct{ id string }

func (f *fakeImageTransformer) ID() string          { return f.id }
func (f *fakeImageTransformer) Kind() providers.Kind { return providers.KindImageTransform }
func (f *fakeImageTransformer) IsAvailable() bool   { return true }
func (f *fakeImageTransformer) Center(ctx context.Context, imagePath string) (string, error) {
	return imagePath + ".centered", nil
}

type fakeBackgroundRemover struct{ id string }

func (f *fakeBackgroundRemover) ID() string          { return f.id }
func (f *fakeBackgroundRemover) Kind() providers.Kind { return providers.KindBackgroundRemoval }
func (f *fakeBackgroundRemover) IsAvailable() bool   { return true }
func (f *fakeBackgroundRemover) RemoveBackground(ctx context.Context, imagePath string) (string, error) {
	return imagePath + ".nobg", nil
}

type fakeCommercialGenerator struct {
	id   string
	fail bool
}

func (f *fakeCommercialGenerator) ID() string          { return f.id }
func (f *fakeCommercialGenerator) Kind() providers.Kind { return providers.KindCommercialImage }
func (f *fakeCommercialGenerator) IsAvailable() bool   { return true }
func (f *fakeCommercialGenerator) Generate(ctx context.Context, imagePath string, version string) (string, error) {
	if f.fail {
		return "", errors.New("render failed")
	}
	return imagePath + "." + version, nil
}

func TestCenterProduct_CentersFrames(t *testing.T) {
	registry := newTestRegistry(t, &fakeImageTransformer{id: "fake-transform"})
	p := NewCenterProduct(registry, 2)
	ctx := newTestProcessorContext(t)

	data := pipelinecore.PipelineData{Metadata: pipelinecore.Metadata{Frames: []pipelinecore.FrameMetadata{
		{FrameID: "a", Path: "/a.jpg"},
	}}}

	res, err := p.Execute(ctx, data, nil)
	require.NoError(t, err)
	require.Len(t, res.Data.Metadata.Frames, 1)
	assert.Equal(t, "/a.jpg.centered", res.Data.Metadata.Frames[0].Path)
}

func TestRemoveBackground_StripsFrames(t *testing.T) {
	registry := newTestRegistry(t, &fakeBackgroundRemover{id: "fake-remover"})
	p := NewRemoveBackground(registry, 2)
	ctx := newTestProcessorContext(t)

	data := pipelinecore.PipelineData{Metadata: pipelinecore.Metadata{Frames: []pipelinecore.FrameMetadata{
		{FrameID: "a", Path: "/a.jpg"},
	}}}

	res, err := p.Execute(ctx, data, nil)
	require.NoError(t, err)
	require.Len(t, res.Data.Metadata.Frames, 1)
	assert.Equal(t, "/a.jpg.nobg", res.Data.Metadata.Frames[0].Path)
}

func TestGenerateCommercial_ExpandsPerVersion(t *testing.T) {
	registry := newTestRegistry(t, &fakeCommercialGenerator{id: "fake-generator"})
	p := NewGenerateCommercial(registry, 2)
	ctx := newTestProcessorContext(t)

	data := pipelinecore.PipelineData{Metadata: pipelinecore.Metadata{Frames: []pipelinecore.FrameMetadata{
		{FrameID: "a", Path: "/a.png"},
	}}}

	res, err := p.Execute(ctx, data, nil)
	require.NoError(t, err)
	assert.Len(t, res.Data.Metadata.Frames, len(defaultCommercialVersions))
	for _, f := range res.Data.Metadata.Frames {
		assert.Equal(t, "a", f.SourceFrameID)
		assert.NotEmpty(t, f.Version)
	}
}

func TestGenerateCommercial_AllFailuresFail(t *testing.T) {
	registry := newTestRegistry(t, &fakeCommercialGenerator{id: "fake-generator", fail: true})
	p := NewGenerateCommercial(registry, 2)
	ctx := newTestProcessorContext(t)

	data := pipelinecore.PipelineData{Metadata: pipelinecore.Metadata{Frames: []pipelinecore.FrameMetadata{
		{FrameID: "a", Path: "/a.png"},
	}}}

	_, err := p.Execute(ctx, data, nil)
	require.Error(t, err)
}
