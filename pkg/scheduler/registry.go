package scheduler

import (
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/cronbox/core/pkg/logger"
)

// registry owns the in-memory mapping from job id to its live cron
// entry. It is transient state: rebuilt from the store on startup and
// gone at shutdown.
type registry struct {
	mu      sync.Mutex
	cron    *cron.Cron
	entries map[int64]cron.EntryID
	log     *logger.Logger
}

func newRegistry(c *cron.Cron, log *logger.Logger) *registry {
	return &registry{
		cron:    c,
		entries: make(map[int64]cron.EntryID),
		log:     log,
	}
}

// register stores the trigger handle for a job, stopping and replacing
// any previous entry for the same key so timers never leak.
func (r *registry) register(jobID int64, entryID cron.EntryID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.entries[jobID]; ok {
		r.cron.Remove(old)
		r.log.Warn().
			Int64("job_id", jobID).
			Str("action", "trigger_replaced").
			Msg("Replacing existing trigger for job")
	}
	r.entries[jobID] = entryID
}

// unregister stops the trigger and removes the mapping. Cancelling a
// job with no live trigger is a no-op, not a failure.
func (r *registry) unregister(jobID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entryID, ok := r.entries[jobID]
	if !ok {
		r.log.Warn().
			Int64("job_id", jobID).
			Str("action", "cancel_missing").
			Msg("Cancel requested for a job with no live trigger")
		return false
	}
	r.cron.Remove(entryID)
	delete(r.entries, jobID)
	return true
}

func (r *registry) get(jobID int64) (cron.EntryID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entryID, ok := r.entries[jobID]
	return entryID, ok
}

func (r *registry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
