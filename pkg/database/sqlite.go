package database

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cronbox/core/pkg/logger"
	"github.com/cronbox/core/pkg/models"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

// timeFormat keeps SQLite timestamps lexically sortable.
const timeFormat = time.RFC3339Nano

type sqliteStore struct {
	db  *sql.DB
	log *logger.Logger
}

func openSQLite(ctx context.Context, path string, log *logger.Logger) (Store, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	// SQLite prefers a single writer connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous = NORMAL")
	_, _ = db.ExecContext(ctx, "PRAGMA busy_timeout = 5000")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite schema: %w", err)
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteSchema)
	return err
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

func (s *sqliteStore) CreateJob(ctx context.Context, job models.Job) (models.Job, error) {
	now := time.Now().UTC()
	job.Slug = jobSlug(job.Name)
	if job.Status == "" {
		job.Status = models.JobStatusActive
	}
	job.CreatedAt = now
	job.UpdatedAt = now

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (name, slug, command, schedule, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.Name, job.Slug, job.Command, job.Schedule, string(job.Status),
		now.Format(timeFormat), now.Format(timeFormat))
	if err != nil {
		return models.Job{}, fmt.Errorf("insert job: %w", err)
	}
	job.ID, err = res.LastInsertId()
	if err != nil {
		return models.Job{}, fmt.Errorf("insert job id: %w", err)
	}
	return job, nil
}

func (s *sqliteStore) GetJob(ctx context.Context, id int64) (models.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, slug, command, schedule, status, created_at, updated_at
		 FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Job{}, ErrNotFound
	}
	if err != nil {
		return models.Job{}, fmt.Errorf("get job %d: %w", id, err)
	}
	return job, nil
}

func (s *sqliteStore) ListJobs(ctx context.Context) ([]models.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, slug, command, schedule, status, created_at, updated_at
		 FROM jobs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *sqliteStore) UpdateJobStatus(ctx context.Context, id int64, status models.JobStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC().Format(timeFormat), id)
	if err != nil {
		return fmt.Errorf("update job %d status: %w", id, err)
	}
	return requireRow(res)
}

func (s *sqliteStore) DeleteJob(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete job %d: %w", id, err)
	}
	return requireRow(res)
}

func (s *sqliteStore) InsertJobRun(ctx context.Context, jobID int64, status models.RunStatus, startedAt time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO job_runs (job_id, status, started_at, output) VALUES (?, ?, ?, '')`,
		jobID, string(status), startedAt.UTC().Format(timeFormat))
	if err != nil {
		return 0, fmt.Errorf("insert run for job %d: %w", jobID, err)
	}
	return res.LastInsertId()
}

func (s *sqliteStore) UpdateJobRun(ctx context.Context, id int64, status models.RunStatus, output string, finishedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE job_runs SET status = ?, output = ?, finished_at = ? WHERE id = ?`,
		string(status), output, finishedAt.UTC().Format(timeFormat), id)
	if err != nil {
		return fmt.Errorf("update run %d: %w", id, err)
	}
	return requireRow(res)
}

func (s *sqliteStore) ListJobRuns(ctx context.Context, jobID int64, limit int) ([]models.JobRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job_id, status, started_at, finished_at, output
		 FROM job_runs WHERE job_id = ? ORDER BY started_at DESC LIMIT ?`,
		jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs for job %d: %w", jobID, err)
	}
	defer rows.Close()

	var runs []models.JobRun
	for rows.Next() {
		var (
			run      models.JobRun
			status   string
			started  string
			finished sql.NullString
		)
		if err := rows.Scan(&run.ID, &run.JobID, &status, &started, &finished, &run.Output); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.Status = models.RunStatus(status)
		run.StartedAt, err = time.Parse(timeFormat, started)
		if err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if finished.Valid {
			t, err := time.Parse(timeFormat, finished.String)
			if err != nil {
				return nil, fmt.Errorf("parse finished_at: %w", err)
			}
			run.FinishedAt = &t
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *sqliteStore) DeleteOldJobRuns(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM job_runs WHERE finished_at IS NOT NULL AND finished_at < ?`,
		cutoff.UTC().Format(timeFormat))
	if err != nil {
		return 0, fmt.Errorf("delete old runs: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (models.Job, error) {
	var (
		job     models.Job
		status  string
		created string
		updated string
	)
	if err := row.Scan(&job.ID, &job.Name, &job.Slug, &job.Command, &job.Schedule,
		&status, &created, &updated); err != nil {
		return models.Job{}, err
	}
	job.Status = models.JobStatus(status)

	var err error
	job.CreatedAt, err = time.Parse(timeFormat, created)
	if err != nil {
		return models.Job{}, fmt.Errorf("parse created_at: %w", err)
	}
	job.UpdatedAt, err = time.Parse(timeFormat, updated)
	if err != nil {
		return models.Job{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return job, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
