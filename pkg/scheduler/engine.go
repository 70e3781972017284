package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cronbox/core/pkg/database"
	"github.com/cronbox/core/pkg/executor"
	"github.com/cronbox/core/pkg/logger"
	"github.com/cronbox/core/pkg/models"
)

// CommandRunner abstracts process spawning for the engine.
type CommandRunner interface {
	Run(ctx context.Context, command string, timeout time.Duration) (executor.Result, error)
}

// noOutputPlaceholder is stored when a command produced no text.
const noOutputPlaceholder = "(no output)"

// finalizeTimeout bounds the store write that closes a run. The
// execution context may already be dead by then.
const finalizeTimeout = 10 * time.Second

// Engine executes one job invocation: it records a running JobRun,
// spawns the external process with the hard timeout, and finalizes
// the run with the outcome. It is safe to invoke concurrently for the
// same job; every invocation owns its own run row.
type Engine struct {
	recorder *runRecorder
	runner   CommandRunner
	timeout  time.Duration
	log      *logger.Logger
}

func NewEngine(store database.Store, runner CommandRunner, timeout time.Duration, log *logger.Logger) *Engine {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Engine{
		recorder: newRunRecorder(store, log),
		runner:   runner,
		timeout:  timeout,
		log:      log,
	}
}

// Execute runs the job exactly once, no retries. A failure to create
// the run row aborts the whole invocation: no process is spawned and
// no record exists for it.
func (e *Engine) Execute(ctx context.Context, job models.Job) (models.JobRun, error) {
	runLog := e.log.WithRequestID(uuid.New().String()).WithJob(job.ID, job.Name)
	startedAt := time.Now().UTC()

	runID, err := e.recorder.CreateRun(ctx, job.ID, startedAt)
	if err != nil {
		runLog.Error().
			Err(err).
			Str("action", "run_insert_failed").
			Msg("Could not record run, aborting execution")
		return models.JobRun{}, fmt.Errorf("create run for job %d: %w", job.ID, err)
	}
	runLog = runLog.WithRun(runID)

	run := models.JobRun{
		ID:        runID,
		JobID:     job.ID,
		Status:    models.RunStatusRunning,
		StartedAt: startedAt,
	}

	defer func() {
		if rec := recover(); rec != nil {
			// The run row already exists; don't leave it running forever.
			e.finalize(runLog, &run, models.RunStatusError, fmt.Sprintf("internal error: %v", rec), time.Now().UTC())
			runLog.Error().
				Str("action", "run_panic").
				Interface("panic", rec).
				Str("stack", string(debug.Stack())).
				Msg("Recovered panic during job execution")
		}
	}()

	runLog.LogRunStart(job.Name, job.Command)
	res, runnerErr := e.runner.Run(ctx, job.Command, e.timeout)
	finishedAt := time.Now().UTC()

	// Success, non-zero exit and timeout all arrive through the
	// result; a runner error means the process never started.
	status := models.RunStatusSuccess
	output := strings.TrimSpace(res.Output)
	if runnerErr != nil {
		status = models.RunStatusError
		if output == "" {
			output = runnerErr.Error()
		}
	} else if !res.Succeeded() {
		status = models.RunStatusError
	}
	if output == "" {
		output = noOutputPlaceholder
	}

	e.finalize(runLog, &run, status, output, finishedAt)
	runLog.LogRunComplete(job.Name, finishedAt.Sub(startedAt), string(status))
	return run, nil
}

func (e *Engine) finalize(runLog *logger.Logger, run *models.JobRun, status models.RunStatus, output string, finishedAt time.Time) {
	if run.Status.Terminal() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	if err := e.recorder.FinalizeRun(ctx, run.ID, status, output, finishedAt); err != nil {
		// Accepted limitation: the row stays stuck at status=running.
		runLog.Error().
			Err(err).
			Str("action", "run_finalize_failed").
			Msg("Could not finalize run, row left at status=running")
		return
	}
	run.Status = status
	run.Output = output
	run.FinishedAt = &finishedAt
}
