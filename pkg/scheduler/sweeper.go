package scheduler

import (
	"context"
	"fmt"
	"time"
)

// sweepTimeout bounds one retention pass against the store.
const sweepTimeout = 5 * time.Minute

// StartSweeper registers the daily retention sweep on the scheduler's
// cron. The sweeper shares the trigger clock but never touches the
// job registry.
func (s *Scheduler) StartSweeper() error {
	_, err := s.cron.AddFunc(s.cfg.SweepSchedule, s.sweep)
	if err != nil {
		return fmt.Errorf("register retention sweeper: %w", err)
	}
	s.log.Info().
		Str("schedule", s.cfg.SweepSchedule).
		Int("retention_days", s.cfg.RetentionDays).
		Msg("Retention sweeper registered")
	return nil
}

// sweep deletes finished runs older than the retention window. Zero
// deletions is a normal, silent outcome; any failure is logged and
// the sweeper simply waits for its next trigger.
func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	start := time.Now()
	cutoff := time.Now().UTC().AddDate(0, 0, -s.cfg.RetentionDays)

	deleted, err := s.store.DeleteOldJobRuns(ctx, cutoff)
	if err != nil {
		s.log.LogDatabaseOperation("delete", "job_runs", 0, time.Since(start), err)
		return
	}
	if deleted > 0 {
		s.log.LogDatabaseOperation("delete", "job_runs", deleted, time.Since(start), nil)
		s.log.Info().
			Str("action", "retention_sweep").
			Int64("deleted", deleted).
			Time("cutoff", cutoff).
			Msg("Removed run records past retention window")
	}
}
