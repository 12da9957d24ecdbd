package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/geolumen/nightlights/internal/domain"
)

type PostgresJobsRepository struct {
	pool *pgxpool.Pool
}

const jobColumns = `job_id, area_id, job_type, status, start_date, end_date,
	meta_data, error_message, created_at, updated_at`

func (r *PostgresJobsRepository) CreateJob(ctx context.Context, job *domain.Job) error {
	metadata, err := encodeMetadata(job.Metadata)
	if err != nil {
		return fmt.Errorf("encode job metadata: %w", err)
	}

	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = now
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO processing_jobs (
			job_id, area_id, job_type, status, start_date, end_date,
			meta_data, error_message, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		job.ID,
		job.AreaID,
		string(job.Type),
		string(job.Status),
		job.StartDate,
		job.EndDate,
		metadata,
		job.ErrorMessage,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *PostgresJobsRepository) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM processing_jobs WHERE job_id = $1`, jobID)

	job, err := scanJob(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query job: %w", err)
	}
	return job, nil
}

func (r *PostgresJobsRepository) ListJobs(ctx context.Context, filter domain.JobFilter) ([]*domain.Job, error) {
	where := make([]string, 0, 3)
	args := make([]any, 0, 3)
	if filter.AreaID != 0 {
		args = append(args, filter.AreaID)
		where = append(where, fmt.Sprintf("area_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		where = append(where, fmt.Sprintf("job_type = $%d", len(args)))
	}

	query := `SELECT ` + jobColumns + ` FROM processing_jobs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

func (r *PostgresJobsRepository) ListPending(ctx context.Context, limit int) ([]*domain.Job, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+jobColumns+`
		FROM processing_jobs
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`, string(domain.JobStatusPending), limit)
	if err != nil {
		return nil, fmt.Errorf("list pending jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// Claim is the single coordination point of the whole pipeline: the
// conditional update makes pending -> running atomic across scheduler
// instances.
func (r *PostgresJobsRepository) Claim(ctx context.Context, jobID string) error {
	command, err := r.pool.Exec(ctx, `
		UPDATE processing_jobs
		SET status = $2, updated_at = $3
		WHERE job_id = $1 AND status = $4
	`, jobID, string(domain.JobStatusRunning), time.Now().UTC(), string(domain.JobStatusPending))
	if err != nil {
		return fmt.Errorf("claim job: %w", err)
	}
	if command.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (r *PostgresJobsRepository) MarkCompleted(ctx context.Context, jobID string, metadata map[string]any) error {
	extra, err := encodeMetadata(metadata)
	if err != nil {
		return fmt.Errorf("encode job metadata: %w", err)
	}
	if extra == nil {
		extra = []byte(`{}`)
	}

	command, err := r.pool.Exec(ctx, `
		UPDATE processing_jobs
		SET status = $2, error_message = '', meta_data = COALESCE(meta_data, '{}'::jsonb) || $3::jsonb, updated_at = $4
		WHERE job_id = $1
	`, jobID, string(domain.JobStatusCompleted), extra, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark job completed: %w", err)
	}
	if command.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresJobsRepository) MarkFailed(ctx context.Context, jobID string, errorMessage string) error {
	command, err := r.pool.Exec(ctx, `
		UPDATE processing_jobs
		SET status = $2, error_message = $3, updated_at = $4
		WHERE job_id = $1
	`, jobID, string(domain.JobStatusFailed), errorMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}
	if command.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func collectJobs(rows pgx.Rows) ([]*domain.Job, error) {
	jobs := make([]*domain.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate jobs: %w", rows.Err())
	}
	return jobs, nil
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		job      domain.Job
		jobType  string
		status   string
		metadata []byte
	)
	err := row.Scan(
		&job.ID,
		&job.AreaID,
		&jobType,
		&status,
		&job.StartDate,
		&job.EndDate,
		&metadata,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Type = domain.JobType(jobType)
	job.Status = domain.JobStatus(status)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &job.Metadata); err != nil {
			return nil, fmt.Errorf("decode job metadata: %w", err)
		}
	}
	return &job, nil
}
