package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cuongbtq/chain-job-service/internal/domain"
)

const jobColumns = `id, idempotency_key, event_type, payload, status, error_message, finalized_at, created_at, updated_at`

type Storage struct {
	db *sqlx.DB
}

func NewStorage(db *sqlx.DB) *Storage {
	return &Storage{
		db: db,
	}
}

// CreateJob inserts a QUEUED job. When the idempotency key is already taken
// nothing is written and domain.ErrDuplicateIdempotencyKey is returned.
func (s *Storage) CreateJob(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	query := `
		INSERT INTO chain_jobs (
			id, idempotency_key, event_type, payload, status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4::jsonb, $5, NOW(), NOW()
		)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING ` + jobColumns

	var created domain.Job
	err := s.db.GetContext(ctx, &created, query,
		job.ID,
		job.IdempotencyKey,
		job.EventType,
		string(job.Payload),
		job.Status,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrDuplicateIdempotencyKey
		}
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	return &created, nil
}

func (s *Storage) GetJobByID(ctx context.Context, jobID string) (*domain.Job, error) {
	return s.getJob(ctx, `SELECT `+jobColumns+` FROM chain_jobs WHERE id = $1`, jobID)
}

func (s *Storage) GetJobByIdempotencyKey(ctx context.Context, key string) (*domain.Job, error) {
	return s.getJob(ctx, `SELECT `+jobColumns+` FROM chain_jobs WHERE idempotency_key = $1`, key)
}

func (s *Storage) getJob(ctx context.Context, query string, arg string) (*domain.Job, error) {
	var job domain.Job
	if err := s.db.GetContext(ctx, &job, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// FailQueuedJob records an intake failure (e.g. the job could not be
// enqueued) so the row does not sit in QUEUED forever
func (s *Storage) FailQueuedJob(ctx context.Context, jobID, reason string) error {
	query := `
		UPDATE chain_jobs
		SET status = $1,
		    error_message = $2,
		    finalized_at = NOW(),
		    updated_at = NOW()
		WHERE id = $3 AND status = $4
	`

	_, err := s.db.ExecContext(ctx, query, domain.StatusError, reason, jobID, domain.StatusQueued)
	if err != nil {
		return fmt.Errorf("failed to mark job as failed: %w", err)
	}
	return nil
}

type JobFilter struct {
	EventType string
	Status    string
	PageSize  int
	Cursor    *JobCursor
}

type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

func (s *Storage) ListJobs(ctx context.Context, filter JobFilter) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM chain_jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	// Filters
	if filter.EventType != "" {
		query += fmt.Sprintf(" AND event_type = $%d", argIdx)
		args = append(args, filter.EventType)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	// Order by created_at DESC, id DESC for consistent pagination
	query += " ORDER BY created_at DESC, id DESC"

	// Fetch one extra to determine if there are more results
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var jobs []domain.Job
	err := s.db.SelectContext(ctx, &jobs, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}
