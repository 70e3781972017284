package models

import "time"

// JobStatus is the persisted scheduling state of a job.
type JobStatus string

const (
	JobStatusActive JobStatus = "active"
	JobStatusPaused JobStatus = "paused"
)

// RunStatus is the lifecycle state of one execution attempt.
// Transitions are monotonic: queued -> running -> {success, error}.
// Once terminal, a run is never mutated again.
type RunStatus string

const (
	RunStatusQueued  RunStatus = "queued"
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusError   RunStatus = "error"
)

// Terminal reports whether the status is a terminal state.
func (s RunStatus) Terminal() bool {
	return s == RunStatusSuccess || s == RunStatusError
}

// Job is a user-defined shell command plus its recurrence schedule.
type Job struct {
	ID        int64
	Name      string
	Slug      string
	Command   string
	Schedule  string
	Status    JobStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// JobRun records one execution attempt of a Job. FinishedAt stays nil
// until the run reaches a terminal status.
type JobRun struct {
	ID         int64
	JobID      int64
	Status     RunStatus
	StartedAt  time.Time
	FinishedAt *time.Time
	Output     string
}
