package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/commercestack/internal/config"
	"github.com/jmylchreest/commercestack/internal/database"
	"github.com/jmylchreest/commercestack/internal/health"
	"github.com/jmylchreest/commercestack/internal/httpapi"
	"github.com/jmylchreest/commercestack/internal/httpapi/handlers"
	"github.com/jmylchreest/commercestack/internal/job"
	"github.com/jmylchreest/commercestack/internal/pipelinecore"
	"github.com/jmylchreest/commercestack/internal/processors"
	"github.com/jmylchreest/commercestack/internal/providers"
	"github.com/jmylchreest/commercestack/internal/queue"
	"github.com/jmylchreest/commercestack/internal/store"
	"github.com/jmylchreest/commercestack/internal/templates"
	"github.com/jmylchreest/commercestack/internal/version"
	"github.com/jmylchreest/commercestack/pkg/format"
	"github.com/jmylchreest/commercestack/pkg/httpclient"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the worker pool and admin HTTP API",
	Long: `serve connects to the database, builds the processor/provider
registries and the stack template catalogue, starts the queue's worker
pool, and serves the job-admission/status HTTP API.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("templates-dir", "", "directory of additional StackTemplate YAML files (built-in catalogue always loads)")
	serveCmd.Flags().String("ffmpeg-path", "ffmpeg", "path to the ffmpeg binary used by reference processors")

	mustBindPFlag("templates.dir", serveCmd.Flags().Lookup("templates-dir"))
	mustBindPFlag("processors.ffmpeg_path", serveCmd.Flags().Lookup("ffmpeg-path"))
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.Default()

	var cfg config.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("unmarshaling config: %w", err)
	}

	db, err := database.New(cfg.Database, logger, nil)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	if err := db.AutoMigrate(&store.Job{}, &store.JobHistory{}, &store.Receipt{}); err != nil {
		return fmt.Errorf("running auto-migration: %w", err)
	}

	jobs := store.NewGormJobStore(db.DB, cfg.Database.Driver)
	credits := store.NewGormCreditStore(db.DB)
	blobs := store.NewFSBlobStore(cfg.Storage.BlobPrefix, cfg.Storage.BlobBaseURL)

	catalogue, err := templates.NewBuiltin()
	if err != nil {
		return fmt.Errorf("loading stack template catalogue: %w", err)
	}
	if dir := viper.GetString("templates.dir"); dir != "" {
		extra, err := templates.LoadDir(dir)
		if err != nil {
			return fmt.Errorf("loading extra stack templates from %s: %w", dir, err)
		}
		catalogue.Merge(extra)
	}

	providerRegistry := providers.NewRegistry()
	applyProviderConfig(providerRegistry, cfg.Provider, logger)

	downloadClient := httpclient.NewWithBreaker(httpclient.DefaultConfig(), httpclient.DefaultManager.GetOrCreate("download"))

	reg := pipelinecore.NewRegistry()
	processors.Register(reg, processors.Config{
		HTTPClient:       downloadClient,
		Providers:        providerRegistry,
		Blobs:            blobs,
		FFmpegPath:       viper.GetString("processors.ffmpeg_path"),
		Concurrency:      cfg.Queue.WorkerConcurrency,
		Logger:           logger,
		MaxDownloadBytes: cfg.Storage.MaxDownloadSize.Int64(),
	})

	q := queue.NewDBQueue(jobs, logger, queue.DBQueueConfig{
		PollInterval:       cfg.Queue.PollInterval,
		LockTimeout:        cfg.Queue.LockTimeout,
		WorkerID:           "commercestackd",
		CompletedRetention: cfg.Queue.CompletedRetention.Duration(),
		FailedRetention:    cfg.Queue.FailedRetention.Duration(),
	})

	notifier := job.NewNotifier("", logger)

	jobService := job.New(jobs, credits, q, reg, catalogue, cfg.Storage.SandboxRoot, notifier, logger)

	pool := &workerPoolGauge{capacity: cfg.Queue.WorkerConcurrency}
	collector := health.NewCollector(cfg.Storage.SandboxRoot, pool)
	checker := health.NewChecker(collector, health.DefaultThresholds())
	jobService = jobService.WithAdmissionGate(checker)

	if err := os.MkdirAll(cfg.Storage.SandboxRoot, 0o755); err != nil {
		return fmt.Errorf("creating sandbox root %s: %w", cfg.Storage.SandboxRoot, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	if err := q.Run(ctx, cfg.Queue.WorkerConcurrency, pool.wrap(jobService.Consume)); err != nil {
		return fmt.Errorf("starting queue workers: %w", err)
	}
	defer q.Stop()

	serverConfig := httpapi.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}
	server := httpapi.NewServer(serverConfig, logger, version.Version)

	handlers.NewJobHandler(jobService).Register(server.API())
	handlers.NewCatalogHandler(catalogue, providerRegistry).Register(server.API())
	handlers.NewHealthHandler(collector, httpclient.DefaultManager, version.Version).Register(server.API())

	logger.Info("starting commercestackd",
		slog.String("host", serverConfig.Host),
		slog.Int("port", serverConfig.Port),
		slog.String("version", version.Version),
		slog.String("max_download_size", format.Bytes(cfg.Storage.MaxDownloadSize.Int64())))

	return server.ListenAndServe(ctx)
}

// applyProviderConfig registers the A/B tests declared in config onto
// reg. Concrete provider implementations are registered separately by
// an operator's own wiring, which is expected to consult
// cfg.Provider.Defaults for which id to mark isDefault, so there is
// nothing further for this composition root to apply for
// ProviderDefault entries themselves.
func applyProviderConfig(reg *providers.Registry, cfg config.ProviderConfig, logger *slog.Logger) {
	for _, ab := range cfg.ABTests {
		err := reg.SetABTest(providers.ABTest{
			ID:       ab.ID,
			Kind:     providers.Kind(ab.Kind),
			VariantA: ab.VariantA,
			VariantB: ab.VariantB,
			SplitB:   ab.SplitB,
		})
		if err != nil {
			logger.Warn("provider A/B test not applied",
				slog.String("ab_test_id", ab.ID),
				slog.Any("error", err))
		}
	}
}

// workerPoolGauge implements health.WorkerPoolGauge by counting the
// in-flight Consume calls the queue's handler wrapper passes through.
type workerPoolGauge struct {
	capacity int
	active   int64
}

func (g *workerPoolGauge) Capacity() int { return g.capacity }
func (g *workerPoolGauge) Active() int   { return int(atomic.LoadInt64(&g.active)) }

func (g *workerPoolGauge) wrap(consume func(ctx context.Context, jobID string) error) queue.Handler {
	return func(ctx context.Context, jobID string) error {
		atomic.AddInt64(&g.active, 1)
		defer atomic.AddInt64(&g.active, -1)
		return consume(ctx, jobID)
	}
}
