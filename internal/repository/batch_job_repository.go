package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/uniguide/corrections-api/internal/models"
)

const batchJobColumns = `id, correction_id, entity_type, entity_id, priority, compiled_mutation,
       status, attempts, last_error, created_at, processed_at`

// ErrJobInFlight signals that a non-terminal job already exists for the
// correction. The batch_jobs table carries a partial unique index on
// (correction_id) WHERE status IN ('PENDING','PROCESSING'); this error is
// what the at-most-one-in-flight guarantee surfaces as.
var ErrJobInFlight = errors.New("a batch job is already in flight for this correction")

// BatchJobRepository persists the durable apply queue.
type BatchJobRepository struct {
	db *sqlx.DB
}

// NewBatchJobRepository constructs the repository.
func NewBatchJobRepository(db *sqlx.DB) *BatchJobRepository {
	return &BatchJobRepository{db: db}
}

// Create inserts a new queue entry. Returns ErrJobInFlight when the partial
// unique index rejects a second non-terminal job for the same correction.
func (r *BatchJobRepository) Create(ctx context.Context, job *models.BatchJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.BatchJobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO batch_jobs
	(id, correction_id, entity_type, entity_id, priority, compiled_mutation, status, attempts, last_error, created_at, processed_at)
	VALUES (:id, :correction_id, :entity_type, :entity_id, :priority, :compiled_mutation, :status, :attempts, :last_error, :created_at, :processed_at)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrJobInFlight
		}
		return fmt.Errorf("create batch job: %w", err)
	}
	return nil
}

// GetByID fetches a queue entry.
func (r *BatchJobRepository) GetByID(ctx context.Context, id string) (*models.BatchJob, error) {
	query := fmt.Sprintf(`SELECT %s FROM batch_jobs WHERE id = $1`, batchJobColumns)
	var job models.BatchJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, err
	}
	return &job, nil
}

// List returns queue entries matching the filter, newest first.
func (r *BatchJobRepository) List(ctx context.Context, filter models.BatchJobFilter) ([]models.BatchJob, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString(fmt.Sprintf(`SELECT %s FROM batch_jobs`, batchJobColumns))

	conditions := make([]string, 0, 3)
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.CorrectionID != "" {
		args = append(args, filter.CorrectionID)
		conditions = append(conditions, fmt.Sprintf("correction_id = $%d", len(args)))
	}
	if filter.EntityID != "" {
		args = append(args, filter.EntityID)
		conditions = append(conditions, fmt.Sprintf("entity_id = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var jobs []models.BatchJob
	if err := r.db.SelectContext(ctx, &jobs, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list batch jobs: %w", err)
	}
	return jobs, nil
}

// HasInFlight reports whether a non-terminal job exists for the correction.
func (r *BatchJobRepository) HasInFlight(ctx context.Context, correctionID string) (bool, error) {
	const query = `SELECT COUNT(*) FROM batch_jobs WHERE correction_id = $1 AND status IN ('PENDING','PROCESSING')`
	var count int
	if err := r.db.GetContext(ctx, &count, query, correctionID); err != nil {
		return false, fmt.Errorf("count in-flight jobs: %w", err)
	}
	return count > 0, nil
}

// MarkProcessing moves a pending job to processing and bumps attempts.
func (r *BatchJobRepository) MarkProcessing(ctx context.Context, id string) error {
	const query = `UPDATE batch_jobs SET status = 'PROCESSING', attempts = attempts + 1 WHERE id = $1 AND status = 'PENDING'`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("mark job processing: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check job processing rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CompleteWithRecord finishes a job and marks its correction applied in a
// single transaction so a completed job can never coexist with a record
// still reading approved.
func (r *BatchJobRepository) CompleteWithRecord(ctx context.Context, jobID, correctionID string, processedAt time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin complete tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const jobQuery = `UPDATE batch_jobs SET status = 'COMPLETED', processed_at = $2, last_error = NULL WHERE id = $1 AND status = 'PROCESSING'`
	result, err := tx.ExecContext(ctx, jobQuery, jobID, processedAt)
	if err != nil {
		return fmt.Errorf("complete batch job: %w", err)
	}
	if rows, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("check complete rows: %w", err)
	} else if rows == 0 {
		return sql.ErrNoRows
	}

	const recordQuery = `UPDATE corrections SET status = 'APPLIED', applied_at = $2 WHERE id = $1 AND status IN ('APPROVED','AUTO_APPROVED')`
	result, err = tx.ExecContext(ctx, recordQuery, correctionID, processedAt)
	if err != nil {
		return fmt.Errorf("mark correction applied: %w", err)
	}
	if rows, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("check applied rows: %w", err)
	} else if rows == 0 {
		return sql.ErrNoRows
	}

	return tx.Commit()
}

// CompleteAbandoned finishes a job as a no-op when its correction is no
// longer applicable (e.g. rejected by administrative override before the
// worker picked it up).
func (r *BatchJobRepository) CompleteAbandoned(ctx context.Context, jobID string, processedAt time.Time, reason string) error {
	const query = `UPDATE batch_jobs SET status = 'COMPLETED', processed_at = $2, last_error = $3 WHERE id = $1 AND status = 'PROCESSING'`
	if _, err := r.db.ExecContext(ctx, query, jobID, processedAt, reason); err != nil {
		return fmt.Errorf("abandon batch job: %w", err)
	}
	return nil
}

// RecordFailure stores the attempt error and returns the job to pending for
// the in-memory retry, or marks it failed once attempts are exhausted.
func (r *BatchJobRepository) RecordFailure(ctx context.Context, id string, lastError string, exhausted bool, processedAt time.Time) error {
	status := models.BatchJobStatusPending
	var processed *time.Time
	if exhausted {
		status = models.BatchJobStatusFailed
		processed = &processedAt
	}
	const query = `UPDATE batch_jobs SET status = $2, last_error = $3, processed_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, lastError, processed); err != nil {
		return fmt.Errorf("record job failure: %w", err)
	}
	return nil
}

// Requeue returns a failed job to pending so operators can retry it.
func (r *BatchJobRepository) Requeue(ctx context.Context, id string) (*models.BatchJob, error) {
	const query = `UPDATE batch_jobs SET status = 'PENDING', last_error = NULL, attempts = 0, processed_at = NULL WHERE id = $1 AND status = 'FAILED'`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("requeue batch job: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("check requeue rows: %w", err)
	}
	if rows == 0 {
		return nil, sql.ErrNoRows
	}
	return r.GetByID(ctx, id)
}

// ResetStale returns crashed PROCESSING rows to PENDING during startup
// recovery, then lists every pending job for re-dispatch.
func (r *BatchJobRepository) ResetStale(ctx context.Context) ([]models.BatchJob, error) {
	const resetQuery = `UPDATE batch_jobs SET status = 'PENDING' WHERE status = 'PROCESSING'`
	if _, err := r.db.ExecContext(ctx, resetQuery); err != nil {
		return nil, fmt.Errorf("reset stale jobs: %w", err)
	}
	query := fmt.Sprintf(`SELECT %s FROM batch_jobs WHERE status = 'PENDING' ORDER BY created_at ASC`, batchJobColumns)
	var jobs []models.BatchJob
	if err := r.db.SelectContext(ctx, &jobs, query); err != nil {
		return nil, fmt.Errorf("list pending jobs: %w", err)
	}
	return jobs, nil
}

// Stats counts jobs per queue status.
func (r *BatchJobRepository) Stats(ctx context.Context) (*models.QueueStats, error) {
	const query = `SELECT
	COUNT(*) FILTER (WHERE status = 'PENDING') AS pending,
	COUNT(*) FILTER (WHERE status = 'PROCESSING') AS processing,
	COUNT(*) FILTER (WHERE status = 'COMPLETED') AS completed,
	COUNT(*) FILTER (WHERE status = 'FAILED') AS failed
	FROM batch_jobs`
	var stats models.QueueStats
	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	return &stats, nil
}
