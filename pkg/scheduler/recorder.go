package scheduler

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/cronbox/core/pkg/database"
	"github.com/cronbox/core/pkg/logger"
	"github.com/cronbox/core/pkg/models"
)

// runRecorder persists the lifecycle of one execution. Store writes go
// through a circuit breaker so a dead store fails fast instead of
// stalling every trigger firing on connection timeouts.
type runRecorder struct {
	store   database.Store
	breaker *gobreaker.CircuitBreaker
}

func newRunRecorder(store database.Store, log *logger.Logger) *runRecorder {
	settings := gobreaker.Settings{
		Name:    "run-recorder",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Run recorder breaker state change")
		},
	}
	return &runRecorder{
		store:   store,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// CreateRun inserts a run row at status=running and returns its id.
func (r *runRecorder) CreateRun(ctx context.Context, jobID int64, startedAt time.Time) (int64, error) {
	id, err := r.breaker.Execute(func() (interface{}, error) {
		return r.store.InsertJobRun(ctx, jobID, models.RunStatusRunning, startedAt)
	})
	if err != nil {
		return 0, err
	}
	return id.(int64), nil
}

// FinalizeRun moves the run to its terminal status. Called at most
// once per run id in the intended flow.
func (r *runRecorder) FinalizeRun(ctx context.Context, runID int64, status models.RunStatus, output string, finishedAt time.Time) error {
	_, err := r.breaker.Execute(func() (interface{}, error) {
		return nil, r.store.UpdateJobRun(ctx, runID, status, output, finishedAt)
	})
	return err
}
