package processors

import (
	"log/slog"

	"github.com/jmylchreest/commercestack/internal/pipelinecore"
	"github.com/jmylchreest/commercestack/internal/providers"
	"github.com/jmylchreest/commercestack/internal/store"
	"github.com/jmylchreest/commercestack/pkg/httpclient"
)

// Config collects the shared dependencies the reference processor
// suite needs at construction time. Fields left zero get the same
// defaults each processor's own constructor already falls back to.
type Config struct {
	HTTPClient       *httpclient.Client
	Providers        *providers.Registry
	Blobs            store.BlobStore
	FFmpegPath       string
	Concurrency      int
	Logger           *slog.Logger
	MaxDownloadBytes int64 // 0 = unlimited, see config.StorageConfig
}

// Register constructs and registers the full reference processor
// suite into reg. This is reference wiring (spec §1: "processor wiring
// ... is reference material"); a deployment is free to register a
// different processor for any step id, subject to
// pipelinecore.Swappable at stack-configuration time.
func Register(reg *pipelinecore.Registry, cfg Config) {
	reg.Register(NewDownload(cfg.HTTPClient, cfg.Logger, cfg.MaxDownloadBytes))
	reg.Register(NewExtractFrames(cfg.FFmpegPath, cfg.Logger))
	reg.Register(NewScoreFrames(cfg.Concurrency))
	reg.Register(NewFilterByScore())
	reg.Register(NewGeminiClassify(cfg.Providers, cfg.Concurrency))
	reg.Register(NewGeminiUnifiedVideoAnalyzer(cfg.Providers, cfg.FFmpegPath, cfg.Logger))
	reg.Register(NewCenterProduct(cfg.Providers, cfg.Concurrency))
	reg.Register(NewRemoveBackground(cfg.Providers, cfg.Concurrency))
	reg.Register(NewGenerateCommercial(cfg.Providers, cfg.Concurrency))
	reg.Register(NewUploadFrames(cfg.Blobs, "", cfg.Concurrency))
	reg.Register(NewCompleteJob())
}
