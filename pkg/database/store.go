// Package database provides the persistence boundary for jobs and
// their run history. Two backends are supported: PostgreSQL (pgx) for
// production and SQLite (modernc, cgo-free) for local and test use.
package database

import (
	"context"
	"errors"
	"time"

	"github.com/gosimple/slug"

	"github.com/cronbox/core/pkg/models"
)

// ErrNotFound is returned when a job or run row does not exist.
var ErrNotFound = errors.New("database: not found")

// Store is the CRUD surface the scheduler core and the API layer use.
// All operations are single-row or simple predicate operations; the
// store's own atomicity for single-row writes is relied upon.
type Store interface {
	CreateJob(ctx context.Context, job models.Job) (models.Job, error)
	GetJob(ctx context.Context, id int64) (models.Job, error)
	ListJobs(ctx context.Context) ([]models.Job, error)
	UpdateJobStatus(ctx context.Context, id int64, status models.JobStatus) error
	DeleteJob(ctx context.Context, id int64) error

	InsertJobRun(ctx context.Context, jobID int64, status models.RunStatus, startedAt time.Time) (int64, error)
	UpdateJobRun(ctx context.Context, id int64, status models.RunStatus, output string, finishedAt time.Time) error
	ListJobRuns(ctx context.Context, jobID int64, limit int) ([]models.JobRun, error)
	DeleteOldJobRuns(ctx context.Context, cutoff time.Time) (int64, error)

	Close() error
}

// jobSlug derives a stable URL-friendly identifier from a job name.
func jobSlug(name string) string {
	if name == "" {
		return "job"
	}
	return slug.Make(name)
}
