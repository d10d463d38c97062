package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cuongbtq/chain-job-service/internal/domain"
)

const jobColumns = `id, idempotency_key, event_type, payload, status, error_message, finalized_at, created_at, updated_at`

// Storage handles all database operations for the worker
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// GetJobByID retrieves a job from the database by its ID
func (s *Storage) GetJobByID(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM chain_jobs WHERE id = $1`

	var job domain.Job
	if err := s.db.GetContext(ctx, &job, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// ClaimJob moves a job to SUBMITTED under a lease held by claimToken.
// A QUEUED job is always claimable; a SUBMITTED job only once its lease
// is older than lease, so a redelivery cannot run alongside a live holder.
// Returns domain.ErrJobClaimed while another holder's lease is current and
// domain.ErrJobFinalized when the job reached a terminal state first.
func (s *Storage) ClaimJob(ctx context.Context, jobID, claimToken string, lease time.Duration) (*domain.Job, error) {
	query := `
		UPDATE chain_jobs
		SET status = $1,
		    claimed_by = $2,
		    claimed_at = NOW(),
		    updated_at = NOW()
		WHERE id = $3
		  AND (status = $4
		       OR (status = $1 AND (claimed_at IS NULL OR claimed_at < NOW() - make_interval(secs => $5))))
		RETURNING ` + jobColumns

	var job domain.Job
	err := s.db.GetContext(ctx, &job, query,
		domain.StatusSubmitted, claimToken, jobID, domain.StatusQueued, lease.Seconds())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.claimConflict(ctx, jobID)
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	s.logger.Info("Job claimed",
		slog.String("job_id", jobID),
		slog.String("event_type", string(job.EventType)),
		slog.String("claimed_by", claimToken),
	)

	return &job, nil
}

// claimConflict explains why a claim matched no row
func (s *Storage) claimConflict(ctx context.Context, jobID string) error {
	var status domain.Status
	err := s.db.GetContext(ctx, &status, `SELECT status FROM chain_jobs WHERE id = $1`, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrJobNotFound
		}
		return fmt.Errorf("failed to read job status after lost claim: %w", err)
	}

	if status.IsTerminal() {
		s.logger.Warn("Failed to claim job - already finalized",
			slog.String("job_id", jobID),
			slog.String("status", string(status)),
		)
		return domain.ErrJobFinalized
	}

	s.logger.Warn("Failed to claim job - lease held by another execution",
		slog.String("job_id", jobID),
	)
	return domain.ErrJobClaimed
}

// ReleaseJob drops the lease taken by claimToken so the next delivery can
// claim the job at once. A lease that was already taken over is left alone.
func (s *Storage) ReleaseJob(ctx context.Context, jobID, claimToken string) error {
	query := `
		UPDATE chain_jobs
		SET claimed_by = NULL,
		    claimed_at = NULL,
		    updated_at = NOW()
		WHERE id = $1
		  AND claimed_by = $2
		  AND status = $3
	`

	res, err := s.db.ExecContext(ctx, query, jobID, claimToken, domain.StatusSubmitted)
	if err != nil {
		return fmt.Errorf("failed to release job: %w", err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		s.logger.Info("Job lease released", slog.String("job_id", jobID))
	}
	return nil
}

// FinalizeJob writes the terminal status exactly once. The WHERE clause
// refuses rows that are already terminal, so a second call returns
// domain.ErrJobFinalized and leaves the first outcome untouched.
func (s *Storage) FinalizeJob(ctx context.Context, jobID string, status domain.Status, errorMsg *string) (time.Time, error) {
	if !status.IsTerminal() {
		return time.Time{}, fmt.Errorf("cannot finalize job %s with non-terminal status %s", jobID, status)
	}

	query := `
		UPDATE chain_jobs
		SET status = $1,
		    error_message = $2,
		    finalized_at = NOW(),
		    updated_at = NOW()
		WHERE id = $3
		  AND status NOT IN ($4, $5)
		RETURNING finalized_at
	`

	var finalizedAt time.Time
	err := s.db.QueryRowContext(ctx, query,
		status, errorMsg, jobID, domain.StatusSuccess, domain.StatusError,
	).Scan(&finalizedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, domain.ErrJobFinalized
		}
		return time.Time{}, fmt.Errorf("failed to finalize job: %w", err)
	}

	s.logger.Info("Job finalized",
		slog.String("job_id", jobID),
		slog.String("status", string(status)),
	)

	return finalizedAt, nil
}
