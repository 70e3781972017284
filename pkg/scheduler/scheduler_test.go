package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cronbox/core/pkg/executor"
	"github.com/cronbox/core/pkg/models"
)

func newTestScheduler(store *fakeStore, runner CommandRunner, cfg Config) *Scheduler {
	return New(cfg, store, runner, testLogger())
}

func TestScheduleJobInvalidCron(t *testing.T) {
	store := newFakeStore()
	s := newTestScheduler(store, &fakeRunner{}, Config{})

	job := models.Job{ID: 7, Name: "broken", Command: "echo hi", Schedule: "not-a-cron"}
	if err := s.ScheduleJob(job, false); err == nil {
		t.Fatal("Expected an error for an invalid cron expression")
	}
	if s.Scheduled(job.ID) {
		t.Error("Invalid schedule must not create a registry entry")
	}
}

func TestScheduleJobReplacesExistingTrigger(t *testing.T) {
	store := newFakeStore()
	s := newTestScheduler(store, &fakeRunner{}, Config{})

	job := models.Job{ID: 1, Name: "dup", Command: "echo hi", Schedule: "* * * * *"}
	if err := s.ScheduleJob(job, false); err != nil {
		t.Fatalf("First ScheduleJob failed: %v", err)
	}
	first, _ := s.reg.get(job.ID)

	if err := s.ScheduleJob(job, false); err != nil {
		t.Fatalf("Second ScheduleJob failed: %v", err)
	}
	second, _ := s.reg.get(job.ID)

	if s.reg.size() != 1 {
		t.Errorf("Expected a single registry entry, got %d", s.reg.size())
	}
	if first == second {
		t.Error("Expected the replacement to create a new trigger handle")
	}
}

func TestCancelJobIdempotent(t *testing.T) {
	store := newFakeStore()
	s := newTestScheduler(store, &fakeRunner{}, Config{})

	job := models.Job{ID: 3, Name: "cancel me", Command: "echo hi", Schedule: "* * * * *"}
	if err := s.ScheduleJob(job, false); err != nil {
		t.Fatalf("ScheduleJob failed: %v", err)
	}

	s.CancelJob(job.ID)
	if s.Scheduled(job.ID) {
		t.Error("Expected trigger to be gone after cancel")
	}

	// Second cancel is a warned no-op, never a failure.
	s.CancelJob(job.ID)
	s.CancelJob(999)
}

func TestInitCounts(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	active, _ := store.CreateJob(ctx, models.Job{Name: "active", Command: "echo hi", Schedule: "* * * * *", Status: models.JobStatusActive})
	paused, _ := store.CreateJob(ctx, models.Job{Name: "paused", Command: "echo hi", Schedule: "* * * * *", Status: models.JobStatusPaused})

	s := newTestScheduler(store, &fakeRunner{}, Config{})
	loaded, skipped, err := s.Init(ctx)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if loaded != 1 || skipped != 1 {
		t.Errorf("Init counts = (%d loaded, %d skipped), want (1, 1)", loaded, skipped)
	}
	if !s.Scheduled(active.ID) {
		t.Error("Active job should have a live trigger")
	}
	if s.Scheduled(paused.ID) {
		t.Error("Paused job must not have a live trigger")
	}
	if s.reg.size() != 1 {
		t.Errorf("Expected exactly one registry entry, got %d", s.reg.size())
	}
}

func TestInitSkipsUnparseableSchedule(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	bad, _ := store.CreateJob(ctx, models.Job{Name: "bad", Command: "echo hi", Schedule: "61 * * * *", Status: models.JobStatusActive})

	s := newTestScheduler(store, &fakeRunner{}, Config{})
	loaded, skipped, err := s.Init(ctx)
	if err != nil {
		t.Fatalf("Init must not abort on an unparseable schedule: %v", err)
	}
	if loaded != 0 || skipped != 0 {
		t.Errorf("Init counts = (%d loaded, %d skipped), want (0, 0)", loaded, skipped)
	}
	if s.Scheduled(bad.ID) {
		t.Error("Unparseable schedule must not create a registry entry")
	}
}

func TestRunOnceEchoHello(t *testing.T) {
	store := newFakeStore()
	s := newTestScheduler(store, executor.NewShell(), Config{})

	job := models.Job{ID: 1, Name: "hello", Command: "echo hello", Schedule: "* * * * *"}
	run, err := s.RunOnce(context.Background(), job)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if run.Status != models.RunStatusSuccess {
		t.Errorf("Expected status success, got %s", run.Status)
	}
	if run.Output != "hello" {
		t.Errorf("Expected output hello, got %q", run.Output)
	}
}

func TestRunNowRecordsExactlyOneRun(t *testing.T) {
	store := newFakeStore()
	runner := &fakeRunner{res: executor.Result{Output: "ok"}}
	s := newTestScheduler(store, runner, Config{})

	job := models.Job{ID: 4, Name: "manual", Command: "echo ok", Schedule: "* * * * *"}
	s.RunNow(job)

	deadline := time.Now().Add(5 * time.Second)
	for store.runCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if store.runCount() != 1 {
		t.Fatalf("Expected exactly one run row, got %d", store.runCount())
	}
	if s.Scheduled(job.ID) {
		t.Error("RunNow must not register a trigger")
	}
}

// blockingRunner holds executions open until released.
type blockingRunner struct {
	started chan struct{}
	release chan struct{}
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{
		started: make(chan struct{}, 8),
		release: make(chan struct{}),
	}
}

func (r *blockingRunner) Run(_ context.Context, _ string, _ time.Duration) (executor.Result, error) {
	r.started <- struct{}{}
	<-r.release
	return executor.Result{Output: "done"}, nil
}

func TestOverlappingRunsAllowedByDefault(t *testing.T) {
	store := newFakeStore()
	runner := newBlockingRunner()
	s := newTestScheduler(store, runner, Config{})

	job := models.Job{ID: 5, Name: "overlap", Command: "sleep 1", Schedule: "* * * * *"}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.fire(job)
		}()
	}

	// Both invocations must be in flight at once, each with its own run.
	<-runner.started
	<-runner.started
	close(runner.release)
	wg.Wait()

	if store.runCount() != 2 {
		t.Errorf("Expected 2 overlapping run rows, got %d", store.runCount())
	}
}

func TestSkipIfRunningGate(t *testing.T) {
	store := newFakeStore()
	runner := newBlockingRunner()
	s := newTestScheduler(store, runner, Config{SkipIfRunning: true})

	job := models.Job{ID: 6, Name: "serialized", Command: "sleep 1", Schedule: "* * * * *"}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.fire(job)
	}()
	<-runner.started

	// Second firing while the first is in flight: skipped, no run row.
	s.fire(job)

	close(runner.release)
	wg.Wait()

	if store.runCount() != 1 {
		t.Errorf("Expected 1 run row with skip-if-running, got %d", store.runCount())
	}
}
