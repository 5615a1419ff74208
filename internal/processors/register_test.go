package processors

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jmylchreest/commercestack/internal/pipelinecore"
	"github.com/jmylchreest/commercestack/internal/providers"
	"github.com/jmylchreest/commercestack/internal/store"
)

func TestRegister_RegistersEveryReferenceProcessor(t *testing.T) {
	reg := pipelinecore.NewRegistry()
	Register(reg, Config{
		Providers:   providers.NewRegistry(),
		Blobs:       store.NewFSBlobStore(t.TempDir(), "https://cdn.example.test"),
		Concurrency: 2,
	})

	ids := []string{
		DownloadID, ExtractFramesID, ScoreFramesID, FilterByScoreID,
		GeminiClassifyID, GeminiUnifiedVideoAnalyzerID, CenterProductID,
		RemoveBackgroundID, GenerateCommercialID, UploadFramesID, CompleteJobID,
	}
	for _, id := range ids {
		p, ok := reg.Get(id)
		assert.True(t, ok, "expected processor %q to be registered", id)
		assert.Equal(t, id, p.ID())
	}
}
