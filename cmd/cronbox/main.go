package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cronbox/core/internal/config"
	"github.com/cronbox/core/pkg/database"
	"github.com/cronbox/core/pkg/executor"
	"github.com/cronbox/core/pkg/logger"
	"github.com/cronbox/core/pkg/models"
	"github.com/cronbox/core/pkg/scheduler"
	"github.com/cronbox/core/pkg/server"
)

func main() {
	// Parse command line flags
	var (
		runJobID = flag.Int64("run-job", 0, "Execute one stored job synchronously and exit")
	)
	flag.Parse()

	// Setup structured logging
	logger.SetupLogger()
	log := logger.New("cronbox")

	// Load configuration
	cfg := config.Load()

	ctx := context.Background()
	store, err := database.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal().
			Err(err).
			Str("action", "store_open_failed").
			Msg("Failed to open store")
	}
	defer func() { _ = store.Close() }()

	sched := scheduler.New(scheduler.Config{
		ExecTimeout:   time.Duration(cfg.Scheduler.ExecTimeoutSeconds) * time.Second,
		RetentionDays: cfg.Scheduler.RetentionDays,
		SweepSchedule: cfg.Scheduler.SweepSchedule,
		SkipIfRunning: cfg.Scheduler.SkipIfRunning,
	}, store, executor.NewShell(), log)

	// Handle single job execution
	if *runJobID != 0 {
		runOnce(ctx, store, sched, *runJobID, log)
		return
	}

	loaded, skipped, err := sched.Init(ctx)
	if err != nil {
		log.Fatal().
			Err(err).
			Str("action", "scheduler_init_failed").
			Msg("Failed to load jobs from store")
	}
	log.Info().
		Int("loaded", loaded).
		Int("skipped", skipped).
		Msg("Jobs loaded from store")

	if err := sched.StartSweeper(); err != nil {
		log.Fatal().
			Err(err).
			Str("action", "sweeper_start_failed").
			Msg("Failed to register retention sweeper")
	}
	sched.Start()

	srv := server.New(cfg, store, sched, log)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info().Msg("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("API server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("API server shutdown failed")
	}
	sched.Stop()
	log.Info().Msg("Cronbox stopped")
}

// runOnce executes a single stored job in the foreground, recording
// its run like any scheduled firing would. Exit status mirrors the
// run outcome for use in scripts and systemd units.
func runOnce(ctx context.Context, store database.Store, sched *scheduler.Scheduler, jobID int64, log *logger.Logger) {
	job, err := store.GetJob(ctx, jobID)
	if err != nil {
		log.Fatal().
			Err(err).
			Int64("job_id", jobID).
			Msg("Failed to load job")
	}

	run, err := sched.RunOnce(ctx, job)
	if err != nil {
		log.Fatal().
			Err(err).
			Int64("job_id", jobID).
			Msg("Job execution could not be recorded")
	}
	if run.Status != models.RunStatusSuccess {
		log.Error().
			Int64("job_id", jobID).
			Int64("run_id", run.ID).
			Str("status", string(run.Status)).
			Msg("Job finished unsuccessfully")
		os.Exit(1)
	}
	log.Info().
		Int64("job_id", jobID).
		Int64("run_id", run.ID).
		Msg("Job finished successfully")
}
