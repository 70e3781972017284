package database

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cronbox/core/pkg/database/pool"
	"github.com/cronbox/core/pkg/logger"
	"github.com/cronbox/core/pkg/models"
)

//go:embed schema_postgres.sql
var postgresSchema string

type postgresStore struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

func openPostgres(ctx context.Context, databaseURL string, log *logger.Logger) (Store, error) {
	p, err := pool.New(ctx, databaseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres store: %w", err)
	}

	st := &postgresStore{pool: p, log: log}
	if err := st.migrate(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to migrate postgres schema: %w", err)
	}
	return st, nil
}

func (s *postgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresSchema)
	return err
}

func (s *postgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *postgresStore) CreateJob(ctx context.Context, job models.Job) (models.Job, error) {
	now := time.Now().UTC()
	job.Slug = jobSlug(job.Name)
	if job.Status == "" {
		job.Status = models.JobStatusActive
	}
	job.CreatedAt = now
	job.UpdatedAt = now

	err := s.pool.QueryRow(ctx,
		`INSERT INTO jobs (name, slug, command, schedule, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		job.Name, job.Slug, job.Command, job.Schedule, job.Status, job.CreatedAt, job.UpdatedAt,
	).Scan(&job.ID)
	if err != nil {
		return models.Job{}, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

func (s *postgresStore) GetJob(ctx context.Context, id int64) (models.Job, error) {
	var job models.Job
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, slug, command, schedule, status, created_at, updated_at
		 FROM jobs WHERE id = $1`, id,
	).Scan(&job.ID, &job.Name, &job.Slug, &job.Command, &job.Schedule, &job.Status, &job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Job{}, ErrNotFound
	}
	if err != nil {
		return models.Job{}, fmt.Errorf("get job %d: %w", id, err)
	}
	return job, nil
}

func (s *postgresStore) ListJobs(ctx context.Context) ([]models.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, slug, command, schedule, status, created_at, updated_at
		 FROM jobs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		var job models.Job
		if err := rows.Scan(&job.ID, &job.Name, &job.Slug, &job.Command, &job.Schedule,
			&job.Status, &job.CreatedAt, &job.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *postgresStore) UpdateJobStatus(ctx context.Context, id int64, status models.JobStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update job %d status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *postgresStore) DeleteJob(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete job %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *postgresStore) InsertJobRun(ctx context.Context, jobID int64, status models.RunStatus, startedAt time.Time) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO job_runs (job_id, status, started_at, output)
		 VALUES ($1, $2, $3, '') RETURNING id`,
		jobID, status, startedAt.UTC(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert run for job %d: %w", jobID, err)
	}
	return id, nil
}

func (s *postgresStore) UpdateJobRun(ctx context.Context, id int64, status models.RunStatus, output string, finishedAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE job_runs SET status = $1, output = $2, finished_at = $3 WHERE id = $4`,
		status, output, finishedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("update run %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *postgresStore) ListJobRuns(ctx context.Context, jobID int64, limit int) ([]models.JobRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, job_id, status, started_at, finished_at, output
		 FROM job_runs WHERE job_id = $1 ORDER BY started_at DESC LIMIT $2`,
		jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs for job %d: %w", jobID, err)
	}
	defer rows.Close()

	var runs []models.JobRun
	for rows.Next() {
		var run models.JobRun
		if err := rows.Scan(&run.ID, &run.JobID, &run.Status, &run.StartedAt,
			&run.FinishedAt, &run.Output); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *postgresStore) DeleteOldJobRuns(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM job_runs WHERE finished_at IS NOT NULL AND finished_at < $1`,
		cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete old runs: %w", err)
	}
	return tag.RowsAffected(), nil
}
