package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cronbox/core/pkg/executor"
	"github.com/cronbox/core/pkg/logger"
	"github.com/cronbox/core/pkg/models"
)

// fakeStore is an in-memory database.Store with failure toggles.
type fakeStore struct {
	mu        sync.Mutex
	jobs      map[int64]models.Job
	runs      map[int64]*models.JobRun
	nextJobID int64
	nextRunID int64

	failInsertRun bool
	failUpdateRun bool
	listErr       error

	deleteOldCutoff time.Time
	deleteOldResult int64
	deleteOldErr    error
	deleteOldCalls  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobs: make(map[int64]models.Job),
		runs: make(map[int64]*models.JobRun),
	}
}

func (f *fakeStore) CreateJob(_ context.Context, job models.Job) (models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextJobID++
	job.ID = f.nextJobID
	if job.Status == "" {
		job.Status = models.JobStatusActive
	}
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakeStore) GetJob(_ context.Context, id int64) (models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return models.Job{}, errors.New("fake: job not found")
	}
	return job, nil
}

func (f *fakeStore) ListJobs(_ context.Context) ([]models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var jobs []models.Job
	for _, job := range f.jobs {
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (f *fakeStore) UpdateJobStatus(_ context.Context, id int64, status models.JobStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return errors.New("fake: job not found")
	}
	job.Status = status
	f.jobs[id] = job
	return nil
}

func (f *fakeStore) DeleteJob(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.jobs, id)
	return nil
}

func (f *fakeStore) InsertJobRun(_ context.Context, jobID int64, status models.RunStatus, startedAt time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInsertRun {
		return 0, errors.New("fake: store unavailable")
	}
	f.nextRunID++
	f.runs[f.nextRunID] = &models.JobRun{
		ID:        f.nextRunID,
		JobID:     jobID,
		Status:    status,
		StartedAt: startedAt,
	}
	return f.nextRunID, nil
}

func (f *fakeStore) UpdateJobRun(_ context.Context, id int64, status models.RunStatus, output string, finishedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdateRun {
		return errors.New("fake: store unavailable")
	}
	run, ok := f.runs[id]
	if !ok {
		return errors.New("fake: run not found")
	}
	run.Status = status
	run.Output = output
	run.FinishedAt = &finishedAt
	return nil
}

func (f *fakeStore) ListJobRuns(_ context.Context, jobID int64, _ int) ([]models.JobRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var runs []models.JobRun
	for _, run := range f.runs {
		if run.JobID == jobID {
			runs = append(runs, *run)
		}
	}
	return runs, nil
}

func (f *fakeStore) DeleteOldJobRuns(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteOldCalls++
	f.deleteOldCutoff = cutoff
	return f.deleteOldResult, f.deleteOldErr
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.runs)
}

func (f *fakeStore) run(id int64) models.JobRun {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.runs[id]
}

// fakeRunner returns a canned result without spawning anything.
type fakeRunner struct {
	res      executor.Result
	err      error
	panicMsg string
	calls    atomic.Int32
}

func (r *fakeRunner) Run(_ context.Context, _ string, _ time.Duration) (executor.Result, error) {
	r.calls.Add(1)
	if r.panicMsg != "" {
		panic(r.panicMsg)
	}
	return r.res, r.err
}

func testLogger() *logger.Logger {
	return logger.New("scheduler-test")
}

func TestEngineExecuteSuccess(t *testing.T) {
	store := newFakeStore()
	runner := &fakeRunner{res: executor.Result{Output: "hello\n"}}
	engine := NewEngine(store, runner, time.Minute, testLogger())

	job := models.Job{ID: 1, Name: "echo", Command: "echo hello", Schedule: "* * * * *"}
	run, err := engine.Execute(context.Background(), job)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if run.Status != models.RunStatusSuccess {
		t.Errorf("Expected status success, got %s", run.Status)
	}
	if run.Output != "hello" {
		t.Errorf("Expected trimmed output hello, got %q", run.Output)
	}
	if run.FinishedAt == nil {
		t.Fatal("Expected finished_at to be set")
	}
	if run.FinishedAt.Before(run.StartedAt) {
		t.Errorf("finished_at %v before started_at %v", run.FinishedAt, run.StartedAt)
	}
	if store.runCount() != 1 {
		t.Errorf("Expected exactly one run row, got %d", store.runCount())
	}
	if stored := store.run(run.ID); stored.Status != models.RunStatusSuccess {
		t.Errorf("Stored run status = %s, want success", stored.Status)
	}
}

func TestEngineExecuteNonZeroExit(t *testing.T) {
	store := newFakeStore()
	runner := &fakeRunner{res: executor.Result{Output: "boom", ExitCode: 2}}
	engine := NewEngine(store, runner, time.Minute, testLogger())

	run, err := engine.Execute(context.Background(), models.Job{ID: 1, Name: "fail", Command: "exit 2"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if run.Status != models.RunStatusError {
		t.Errorf("Expected status error, got %s", run.Status)
	}
	if run.Output != "boom" {
		t.Errorf("Expected output boom, got %q", run.Output)
	}
}

func TestEngineExecuteTimeout(t *testing.T) {
	store := newFakeStore()
	runner := &fakeRunner{res: executor.Result{Output: "partial", ExitCode: -1, TimedOut: true}}
	engine := NewEngine(store, runner, time.Minute, testLogger())

	run, err := engine.Execute(context.Background(), models.Job{ID: 1, Name: "slow", Command: "sleep 300"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	// A timeout is indistinguishable from any other failure at the
	// status level.
	if run.Status != models.RunStatusError {
		t.Errorf("Expected status error for timeout, got %s", run.Status)
	}
}

func TestEngineEmptyOutputPlaceholder(t *testing.T) {
	store := newFakeStore()
	runner := &fakeRunner{res: executor.Result{Output: "  \n"}}
	engine := NewEngine(store, runner, time.Minute, testLogger())

	run, err := engine.Execute(context.Background(), models.Job{ID: 1, Name: "quiet", Command: "true"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if run.Output != "(no output)" {
		t.Errorf("Expected placeholder output, got %q", run.Output)
	}
}

func TestEngineInsertFailureAbortsExecution(t *testing.T) {
	store := newFakeStore()
	store.failInsertRun = true
	runner := &fakeRunner{res: executor.Result{Output: "should not run"}}
	engine := NewEngine(store, runner, time.Minute, testLogger())

	_, err := engine.Execute(context.Background(), models.Job{ID: 1, Name: "doomed", Command: "echo hi"})
	if err == nil {
		t.Fatal("Expected an error when the run row cannot be created")
	}
	if runner.calls.Load() != 0 {
		t.Error("No process must be spawned when run creation fails")
	}
	if store.runCount() != 0 {
		t.Errorf("Expected no run rows, got %d", store.runCount())
	}
}

func TestEngineFinalizeFailureLeavesRunning(t *testing.T) {
	store := newFakeStore()
	store.failUpdateRun = true
	runner := &fakeRunner{res: executor.Result{Output: "done"}}
	engine := NewEngine(store, runner, time.Minute, testLogger())

	run, err := engine.Execute(context.Background(), models.Job{ID: 1, Name: "stuck", Command: "echo hi"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	// Accepted limitation: the row stays at running.
	if run.Status != models.RunStatusRunning {
		t.Errorf("Expected returned run to remain running, got %s", run.Status)
	}
	if stored := store.run(run.ID); stored.Status != models.RunStatusRunning {
		t.Errorf("Stored run status = %s, want running", stored.Status)
	}
}

func TestEngineRunnerStartFailure(t *testing.T) {
	store := newFakeStore()
	runner := &fakeRunner{err: errors.New("failed to start command: sh not found")}
	engine := NewEngine(store, runner, time.Minute, testLogger())

	run, err := engine.Execute(context.Background(), models.Job{ID: 1, Name: "noshell", Command: "echo hi"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if run.Status != models.RunStatusError {
		t.Errorf("Expected status error, got %s", run.Status)
	}
	if !strings.Contains(run.Output, "failed to start command") {
		t.Errorf("Expected spawn failure text in output, got %q", run.Output)
	}
}

func TestEnginePanicFinalizesRun(t *testing.T) {
	store := newFakeStore()
	runner := &fakeRunner{panicMsg: "runner blew up"}
	engine := NewEngine(store, runner, time.Minute, testLogger())

	func() {
		defer func() {
			if rec := recover(); rec != nil {
				t.Errorf("Panic escaped the engine: %v", rec)
			}
		}()
		_, _ = engine.Execute(context.Background(), models.Job{ID: 1, Name: "panicky", Command: "echo hi"})
	}()

	if store.runCount() != 1 {
		t.Fatalf("Expected one run row, got %d", store.runCount())
	}
	stored := store.run(1)
	if stored.Status != models.RunStatusError {
		t.Errorf("Expected panicked run to be finalized as error, got %s", stored.Status)
	}
	if !strings.Contains(stored.Output, "runner blew up") {
		t.Errorf("Expected panic text in output, got %q", stored.Output)
	}
	if stored.FinishedAt == nil {
		t.Error("Expected finished_at to be set on panicked run")
	}
}
