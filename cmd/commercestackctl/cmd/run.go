package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/commercestack/internal/config"
	"github.com/jmylchreest/commercestack/internal/database"
	"github.com/jmylchreest/commercestack/internal/job"
	"github.com/jmylchreest/commercestack/internal/pipelinecore"
	"github.com/jmylchreest/commercestack/internal/processors"
	"github.com/jmylchreest/commercestack/internal/providers"
	"github.com/jmylchreest/commercestack/internal/queue"
	"github.com/jmylchreest/commercestack/internal/store"
	"github.com/jmylchreest/commercestack/internal/templates"
	"github.com/jmylchreest/commercestack/pkg/format"
	"github.com/jmylchreest/commercestack/pkg/httpclient"
)

var (
	runStackID     string
	runVideo       string
	runOptionsPath string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Admit and run a single job to completion",
	Long: `run admits one job against --stack and --video, executes it
synchronously in this process, and exits 0 on success. A non-zero exit
reports which stage of the failure taxonomy the error belongs to: 1
for a validation failure caught at admission, 2 for a processor
failure during execution, 3 for cooperative cancellation (SIGINT/
SIGTERM), 4 for anything else.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runStackID, "stack", "", "stack template id to run (required)")
	runCmd.Flags().StringVar(&runVideo, "video", "", "source video URL or local path (required)")
	runCmd.Flags().StringVar(&runOptionsPath, "options", "", "path to a JSON file overlaying store.JobConfig fields")
}

func runRun(cmd *cobra.Command, args []string) error {
	logger := slog.Default()

	if runStackID == "" || runVideo == "" {
		fmt.Fprintln(os.Stderr, "validation error: --stack and --video are both required")
		exitCode = ExitValidationFailure
		return nil
	}

	jobCfg := store.JobConfig{StackID: runStackID}
	if runOptionsPath != "" {
		if err := loadOptionsOverlay(runOptionsPath, &jobCfg); err != nil {
			fmt.Fprintln(os.Stderr, "validation error:", err)
			exitCode = ExitValidationFailure
			return nil
		}
		jobCfg.StackID = runStackID
	}

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

	if _, ok := catalogue.Resolve(runStackID); !ok {
		fmt.Fprintf(os.Stderr, "validation error: unknown stack template %q\n", runStackID)
		exitCode = ExitValidationFailure
		return nil
	}

	providerRegistry := providers.NewRegistry()

	reg := pipelinecore.NewRegistry()
	processors.Register(reg, processors.Config{
		HTTPClient:       httpclient.NewWithBreaker(httpclient.DefaultConfig(), httpclient.DefaultManager.GetOrCreate("download")),
		Providers:        providerRegistry,
		Blobs:            blobs,
		FFmpegPath:       viper.GetString("processors.ffmpeg_path"),
		Concurrency:      1,
		Logger:           logger,
		MaxDownloadBytes: cfg.Storage.MaxDownloadSize.Int64(),
	})

	q := queue.NewDBQueue(jobs, logger, queue.DBQueueConfig{WorkerID: "commercestackctl"})
	notifier := job.NewNotifier("", logger)
	jobService := job.New(jobs, credits, q, reg, catalogue, cfg.Storage.SandboxRoot, notifier, logger)

	if err := os.MkdirAll(cfg.Storage.SandboxRoot, 0o755); err != nil {
		return fmt.Errorf("creating sandbox root %s: %w", cfg.Storage.SandboxRoot, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal, cancelling job")
		cancel()
	}()

	admitted, err := jobService.Admit(ctx, job.AdmitRequest{
		VideoURL: runVideo,
		Config:   jobCfg,
	})
	if err != nil {
		if errors.Is(err, pipelinecore.ErrInvalidConfiguration) || errors.Is(err, job.ErrUnknownStack) {
			fmt.Fprintln(os.Stderr, "validation error:", err)
			exitCode = ExitValidationFailure
			return nil
		}
		return fmt.Errorf("admitting job: %w", err)
	}

	logger.Info("job admitted", slog.String("job_id", admitted.ID.String()), slog.String("stack", runStackID))

	consumeErr := jobService.Consume(ctx, admitted.ID.String())

	final, getErr := jobService.Get(context.Background(), admitted.ID.String())
	if getErr != nil {
		return fmt.Errorf("loading final job state: %w", getErr)
	}

	switch final.Status {
	case store.StatusCompleted:
		result, _ := final.Result()
		out, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(out))
		fmt.Fprintf(os.Stderr, "done: %s frames analyzed, %s variants discovered\n",
			format.Number(int64(result.FramesAnalyzed)), format.Number(int64(result.VariantsDiscovered)))
		exitCode = ExitSuccess
	case store.StatusCancelled:
		fmt.Fprintln(os.Stderr, "job cancelled:", final.Error)
		exitCode = ExitCancellation
	case store.StatusFailed:
		exitCode = classifyFailure(consumeErr)
		fmt.Fprintln(os.Stderr, "job failed:", final.Error)
	default:
		fmt.Fprintf(os.Stderr, "job left in non-terminal status %q\n", final.Status)
		exitCode = ExitInternalError
	}

	return nil
}

// classifyFailure maps a Consume error's pipelinecore.ErrorKind onto
// the CLI's exit code taxonomy. An error that was never classified (a
// bug, not a processor outcome) reports ExitInternalError.
func classifyFailure(err error) int {
	if err == nil {
		return ExitInternalError
	}
	var classified *pipelinecore.ClassifiedError
	if !errors.As(err, &classified) {
		return ExitInternalError
	}
	switch classified.Kind {
	case pipelinecore.KindValidation:
		return ExitValidationFailure
	case pipelinecore.KindCancellation:
		return ExitCancellation
	case pipelinecore.KindPrecondition, pipelinecore.KindProviderTransient, pipelinecore.KindProviderPermanent, pipelinecore.KindResource:
		return ExitProcessorFailure
	default:
		return ExitInternalError
	}
}

// loadOptionsOverlay reads the JSON file at path and unmarshals it
// into cfg, overlaying whichever JobConfig fields it sets.
func loadOptionsOverlay(path string, cfg *store.JobConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading options file %s: %w", path, err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing options file %s: %w", path, err)
	}
	return nil
}
