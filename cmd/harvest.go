package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kestreldata/channelharvest/internal/api"
	"github.com/kestreldata/channelharvest/internal/checkpoint"
	"github.com/kestreldata/channelharvest/internal/clock/system"
	"github.com/kestreldata/channelharvest/internal/credentials"
	"github.com/kestreldata/channelharvest/internal/dispatcher"
	"github.com/kestreldata/channelharvest/internal/harvest"
	"github.com/kestreldata/channelharvest/internal/metrics"
	"github.com/kestreldata/channelharvest/internal/source"
	"github.com/kestreldata/channelharvest/internal/storage/postgres"
	"github.com/kestreldata/channelharvest/internal/worker"
	"github.com/kestreldata/channelharvest/internal/youtube"
)

// newHarvestCmd creates the 'harvest' subcommand, which runs the crawl and
// ingestion pipeline end to end.
func newHarvestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "harvest",
		Short: "Crawl the handle list and ingest channel/video metadata",
		Long: `Reads the handle list, resumes from the last checkpoint, and processes
each channel through a bounded worker pool. The run stops cleanly when the
input is done or every API credential is quota-exhausted; either way all
completed work is committed and the next run picks up from the checkpoint.`,
		RunE: runHarvestCommand,
	}
}

func runHarvestCommand(cmd *cobra.Command, _ []string) error {
	rt, err := resolveRuntime(cmd.Context())
	if err != nil {
		return err
	}
	cfg := rt.cfg
	runID := uuid.NewString()
	logger := rt.logger.With(zap.String("run_id", runID))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(cfg.API.Keys) == 0 {
		return errors.New("api.keys must list at least one credential")
	}
	if cfg.Input.File == "" {
		return errors.New("input.file is required")
	}
	if cfg.DB.DSN == "" {
		return errors.New("db.dsn is required")
	}

	pool := credentials.NewPool(cfg.API.Keys)
	if pool.Size() == 0 {
		return errors.New("api.keys contained only empty entries")
	}

	list, err := source.Load(cfg.Input.File)
	if err != nil {
		return fmt.Errorf("load input: %w", err)
	}

	store, err := postgres.NewVideoStore(ctx, postgres.VideoStoreConfig{
		DSN:             cfg.DB.DSN,
		Schema:          cfg.DB.Schema,
		Table:           cfg.DB.Table,
		MaxConns:        cfg.DB.MaxConns,
		MinConns:        cfg.DB.MinConns,
		MaxConnLifetime: time.Duration(cfg.DB.ConnLifetimeMin) * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("init video store: %w", err)
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	clock := system.New()
	ckStore := checkpoint.NewStore(cfg.Checkpoint.File)
	resume := ckStore.Load()
	tracker := checkpoint.NewTracker(ckStore, clock, resume)
	tracker.SetProgressLog(logger, cfg.Harvest.BatchSize)

	tasks := list.Tasks(resume.ProcessedRows)
	logger.Info("resuming harvest",
		zap.Int("input_rows", list.Len()),
		zap.Int("resume_from", resume.ProcessedRows),
		zap.Int("remaining", len(tasks)),
		zap.Int("credentials", pool.Size()),
	)

	metrics.Init()
	go func() {
		srv := api.NewServer(tracker, logger)
		if serr := srv.Serve(ctx, cfg.Server.Port); serr != nil {
			logger.Warn("ops server stopped", zap.Error(serr))
		}
	}()

	fetcher := youtube.NewClient(cfg.API.BaseURL, cfg.APITimeout())
	orch := harvest.NewOrchestrator(
		fetcher,
		store,
		pool,
		harvest.NewRetryPolicy(cfg.Harvest.MaxRetries),
		clock,
		harvest.OrchestratorConfig{
			CallDelay: cfg.CallDelay(),
			MaxPages:  cfg.Harvest.MaxPages,
		},
		logger,
	)

	size := dispatcher.PoolSize(cfg.Harvest.Concurrency, pool.Size())
	d := dispatcher.New(orch, tracker, size, worker.Config{
		TaskDelay:     cfg.TaskDelay(),
		HaltOnFailure: cfg.Harvest.HaltOnFailure,
	}, logger)

	err = d.Run(ctx, tasks)
	final := tracker.State()
	switch {
	case errors.Is(err, harvest.ErrCredentialsExhausted):
		logger.Warn("run stopped: all credentials exhausted; restart after quota reset",
			zap.Int("processed_rows", final.ProcessedRows),
			zap.String("last_handle", final.LastHandle),
		)
		return err
	case err != nil:
		return fmt.Errorf("run harvest: %w", err)
	}

	logger.Info("harvest complete",
		zap.Int("processed_rows", final.ProcessedRows),
		zap.String("last_handle", final.LastHandle),
	)
	return nil
}
