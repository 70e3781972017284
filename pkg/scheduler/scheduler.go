// Package scheduler is the execution core: the in-memory registry of
// live cron triggers, the per-run execution lifecycle against the
// store, and the retention sweeper for old run records.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/semaphore"

	"github.com/cronbox/core/pkg/database"
	"github.com/cronbox/core/pkg/logger"
	"github.com/cronbox/core/pkg/models"
)

// Config controls the scheduler core.
type Config struct {
	// ExecTimeout is the hard wall-clock limit per command execution.
	ExecTimeout time.Duration
	// RetentionDays is the age past which finished runs are purged.
	RetentionDays int
	// SweepSchedule is the cron spec of the retention sweeper.
	SweepSchedule string
	// SkipIfRunning skips a trigger firing while a previous run of the
	// same job is in flight. Default off: overlapping runs of one job
	// are allowed, each with its own run row.
	SkipIfRunning bool
}

func DefaultConfig() Config {
	return Config{
		ExecTimeout:   60 * time.Second,
		RetentionDays: 30,
		SweepSchedule: "0 3 * * *",
	}
}

// Scheduler orchestrates the registry and the engine. It is the only
// entry point the API layer uses to mutate scheduling state.
type Scheduler struct {
	cfg    Config
	store  database.Store
	engine *Engine
	cron   *cron.Cron
	reg    *registry
	log    *logger.Logger

	gateMu sync.Mutex
	gates  map[int64]*semaphore.Weighted
}

func New(cfg Config, store database.Store, runner CommandRunner, log *logger.Logger) *Scheduler {
	def := DefaultConfig()
	if cfg.ExecTimeout <= 0 {
		cfg.ExecTimeout = def.ExecTimeout
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = def.RetentionDays
	}
	if cfg.SweepSchedule == "" {
		cfg.SweepSchedule = def.SweepSchedule
	}

	c := cron.New(cron.WithLocation(time.UTC))
	return &Scheduler{
		cfg:    cfg,
		store:  store,
		engine: NewEngine(store, runner, cfg.ExecTimeout, log),
		cron:   c,
		reg:    newRegistry(c, log),
		log:    log,
		gates:  make(map[int64]*semaphore.Weighted),
	}
}

// ScheduleJob creates a recurring trigger bound to the engine and
// registers it under the job id. With runNow it executes immediately
// instead, without touching the registry. An invalid cron expression
// registers nothing and is returned to the caller.
func (s *Scheduler) ScheduleJob(job models.Job, runNow bool) error {
	if runNow {
		s.RunNow(job)
		return nil
	}

	entryID, err := s.cron.AddFunc(job.Schedule, func() { s.fire(job) })
	if err != nil {
		s.log.Warn().
			Err(err).
			Int64("job_id", job.ID).
			Str("schedule", job.Schedule).
			Msg("Not scheduling job with invalid cron expression")
		return fmt.Errorf("schedule job %d: %w", job.ID, err)
	}
	s.reg.register(job.ID, entryID)
	s.log.Info().
		Int64("job_id", job.ID).
		Str("job_name", job.Name).
		Str("schedule", job.Schedule).
		Msg("Job scheduled")
	return nil
}

// CancelJob stops future trigger firings. It does not interrupt a run
// already in flight, and cancelling an unscheduled job is a warned
// no-op.
func (s *Scheduler) CancelJob(jobID int64) {
	s.reg.unregister(jobID)
}

// RunNow dispatches one immediate asynchronous execution. Exactly one
// JobRun is recorded per manual invocation, by the engine alone.
func (s *Scheduler) RunNow(job models.Job) {
	go s.fire(job)
}

// RunOnce executes the job synchronously and returns the recorded run.
func (s *Scheduler) RunOnce(ctx context.Context, job models.Job) (models.JobRun, error) {
	return s.engine.Execute(ctx, job)
}

// Init rebuilds the transient registry from the store: paused jobs
// are skipped, active jobs are scheduled. A job whose schedule fails
// to parse is logged and does not abort the load; its persisted
// status stays active even though no trigger exists.
func (s *Scheduler) Init(ctx context.Context) (loaded, skipped int, err error) {
	jobs, err := s.store.ListJobs(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("load jobs: %w", err)
	}

	failed := 0
	for _, job := range jobs {
		if job.Status == models.JobStatusPaused {
			skipped++
			continue
		}
		if err := s.ScheduleJob(job, false); err != nil {
			failed++
			continue
		}
		loaded++
	}

	s.log.Info().
		Str("action", "scheduler_init").
		Int("loaded", loaded).
		Int("skipped", skipped).
		Int("failed", failed).
		Msg("Scheduler initialized from store")
	return loaded, skipped, nil
}

// Start begins firing triggers.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().
		Int("scheduled", s.reg.size()).
		Msg("Scheduler started")
}

// Stop halts trigger firings and waits for running callbacks to
// return. Spawned processes already in flight are not interrupted.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info().Msg("Scheduler stopped")
}

// Scheduled reports whether a live trigger exists for the job.
func (s *Scheduler) Scheduled(jobID int64) bool {
	_, ok := s.reg.get(jobID)
	return ok
}

func (s *Scheduler) fire(job models.Job) {
	if s.cfg.SkipIfRunning {
		gate := s.gate(job.ID)
		if !gate.TryAcquire(1) {
			s.log.Warn().
				Int64("job_id", job.ID).
				Str("job_name", job.Name).
				Str("action", "run_skipped").
				Msg("Previous run still in flight, skipping trigger")
			return
		}
		defer gate.Release(1)
	}
	_, _ = s.engine.Execute(context.Background(), job)
}

func (s *Scheduler) gate(jobID int64) *semaphore.Weighted {
	s.gateMu.Lock()
	defer s.gateMu.Unlock()
	g, ok := s.gates[jobID]
	if !ok {
		g = semaphore.NewWeighted(1)
		s.gates[jobID] = g
	}
	return g
}
