package api

import "time"

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// CreateJobRequest is the payload for registering a new job
type CreateJobRequest struct {
	Name     string `json:"name"`
	Command  string `json:"command"`
	Schedule string `json:"schedule"`
	// RunNow additionally triggers one immediate execution after the
	// job has been created.
	RunNow bool `json:"run_now,omitempty"`
}

// JobResponse represents a job in API responses
type JobResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Command   string    `json:"command"`
	Schedule  string    `json:"schedule"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JobRunResponse represents one recorded execution
type JobRunResponse struct {
	ID         int64      `json:"id"`
	JobID      int64      `json:"job_id"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Output     string     `json:"output"`
}

// ErrorResponse is the uniform error payload
type ErrorResponse struct {
	Error string `json:"error"`
}

// InitResponse reports scheduler startup counts
type InitResponse struct {
	Loaded  int `json:"loaded"`
	Skipped int `json:"skipped"`
}
