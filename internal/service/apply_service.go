package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/uniguide/corrections-api/internal/models"
	"github.com/uniguide/corrections-api/internal/repository"
	appErrors "github.com/uniguide/corrections-api/pkg/errors"
	"github.com/uniguide/corrections-api/pkg/jobs"
)

const jobTypeApplyCorrection = "apply_correction"

type batchJobStore interface {
	Create(ctx context.Context, job *models.BatchJob) error
	GetByID(ctx context.Context, id string) (*models.BatchJob, error)
	List(ctx context.Context, filter models.BatchJobFilter) ([]models.BatchJob, error)
	MarkProcessing(ctx context.Context, id string) error
	CompleteWithRecord(ctx context.Context, jobID, correctionID string, processedAt time.Time) error
	CompleteAbandoned(ctx context.Context, jobID string, processedAt time.Time, reason string) error
	RecordFailure(ctx context.Context, id string, lastError string, exhausted bool, processedAt time.Time) error
	Requeue(ctx context.Context, id string) (*models.BatchJob, error)
	ResetStale(ctx context.Context) ([]models.BatchJob, error)
	Stats(ctx context.Context) (*models.QueueStats, error)
}

type correctionLoader interface {
	GetByID(ctx context.Context, id string) (*models.CorrectionRecord, error)
}

type entityWriter interface {
	ApplyWrites(ctx context.Context, mutation models.CompiledMutation) error
}

type applyMetrics interface {
	ObserveApply(entityType string, outcome string, duration time.Duration)
	ObserveDBQuery(label string, duration time.Duration)
	SetQueueDepth(depth int)
}

// ApplyService pairs the durable batch_jobs table with the in-memory
// priority queue. The table is the source of truth: every enqueue writes a
// row first, the dispatcher only carries (jobID, correctionID) pairs, and
// startup recovery re-seeds the dispatcher from rows left PENDING or
// PROCESSING by a previous run.
type ApplyService struct {
	batch       batchJobStore
	corrections correctionLoader
	entities    entityWriter
	locks       *jobs.KeyedMutex
	metrics     applyMetrics
	audit       auditLogger
	logger      *zap.Logger

	queue *jobs.Queue
}

type applyPayload struct {
	JobID        string
	CorrectionID string
}

// NewApplyService constructs the service and its dispatch queue. Start must
// be called before corrections can be enqueued.
func NewApplyService(
	batch batchJobStore,
	corrections correctionLoader,
	entities entityWriter,
	metrics applyMetrics,
	audit auditLogger,
	cfg jobs.QueueConfig,
	logger *zap.Logger,
) *ApplyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ApplyService{
		batch:       batch,
		corrections: corrections,
		entities:    entities,
		locks:       jobs.NewKeyedMutex(),
		metrics:     metrics,
		audit:       audit,
		logger:      logger,
	}
	cfg.OnExhausted = s.onExhausted
	s.queue = jobs.NewQueue("apply", s.handle, cfg)
	return s
}

// Start launches the dispatch workers and re-seeds the queue from the
// batch_jobs table. PROCESSING rows are from a crashed run and go back to
// PENDING before re-dispatch.
func (s *ApplyService) Start(ctx context.Context) error {
	s.queue.Start(ctx)

	recovered, err := s.batch.ResetStale(ctx)
	if err != nil {
		return fmt.Errorf("reset stale batch jobs: %w", err)
	}
	for i := range recovered {
		job := recovered[i]
		if err := s.dispatch(job); err != nil {
			s.logger.Warn("failed to re-dispatch recovered batch job",
				zap.String("job_id", job.ID), zap.Error(err))
		}
	}
	if len(recovered) > 0 {
		s.logger.Info("recovered batch jobs from previous run", zap.Int("count", len(recovered)))
	}
	return nil
}

// Stop drains the dispatch workers.
func (s *ApplyService) Stop() {
	s.queue.Stop()
}

// EnqueueCorrection persists a batch job for an approved correction and
// hands it to the dispatcher. The partial unique index on batch_jobs keeps
// at most one PENDING or PROCESSING job per correction; a duplicate enqueue
// surfaces as repository.ErrJobInFlight.
func (s *ApplyService) EnqueueCorrection(ctx context.Context, record *models.CorrectionRecord, mutation *models.CompiledMutation) error {
	if record == nil || mutation == nil {
		return appErrors.Clone(appErrors.ErrInternal, "nothing to enqueue")
	}
	job := &models.BatchJob{
		CorrectionID:     record.ID,
		EntityType:       record.EntityType,
		EntityID:         record.EntityID,
		Priority:         record.Priority,
		CompiledMutation: *mutation,
		Status:           models.BatchJobStatusPending,
	}
	if err := s.batch.Create(ctx, job); err != nil {
		return err
	}
	if err := s.dispatch(*job); err != nil {
		// The row stays PENDING; startup recovery or a requeue picks it up.
		s.logger.Warn("batch job persisted but not dispatched",
			zap.String("job_id", job.ID), zap.Error(err))
	}
	s.observeDepth()
	return nil
}

// RequeueJob resets a FAILED job to PENDING with a fresh attempt budget and
// re-dispatches it.
func (s *ApplyService) RequeueJob(ctx context.Context, jobID string, actorID string) (*models.BatchJob, error) {
	job, err := s.batch.Requeue(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "only failed jobs can be requeued")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to requeue batch job")
	}
	if err := s.dispatch(*job); err != nil {
		s.logger.Warn("requeued batch job not dispatched",
			zap.String("job_id", job.ID), zap.Error(err))
	}
	if s.audit != nil && actorID != "" {
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &actorID,
			Action:     models.AuditActionJobRequeue,
			Resource:   "batch_job",
			ResourceID: &job.ID,
			NewValues:  []byte(`{"status":"requeued"}`),
			IPAddress:  "system",
			UserAgent:  "apply-service",
		}); err != nil {
			s.logger.Warn("failed to record requeue audit log", zap.Error(err))
		}
	}
	s.observeDepth()
	return job, nil
}

// GetJob returns a single batch job.
func (s *ApplyService) GetJob(ctx context.Context, id string) (*models.BatchJob, error) {
	job, err := s.batch.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch job")
	}
	return job, nil
}

// ListJobs returns batch jobs matching the filter.
func (s *ApplyService) ListJobs(ctx context.Context, filter models.BatchJobFilter) ([]models.BatchJob, error) {
	out, err := s.batch.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list batch jobs")
	}
	return out, nil
}

// QueueStats reports durable status counts plus the in-memory dispatch
// depth.
func (s *ApplyService) QueueStats(ctx context.Context) (*models.QueueStats, error) {
	stats, err := s.batch.Stats(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load queue stats")
	}
	stats.Depth = s.queue.Depth()
	return stats, nil
}

// dispatch hands a durable row to the in-memory queue. The attempt counter
// is seeded from the row's attempts column so jobs recovered after a crash
// keep the budget they already spent instead of starting fresh.
func (s *ApplyService) dispatch(job models.BatchJob) error {
	return s.queue.Enqueue(jobs.Job{
		ID:       job.ID,
		Type:     jobTypeApplyCorrection,
		Key:      entityKey(job.EntityType, job.EntityID),
		Priority: job.Priority.Rank(),
		Payload:  applyPayload{JobID: job.ID, CorrectionID: job.CorrectionID},
		Attempt:  job.Attempts,
	})
}

// handle executes one apply attempt. The keyed mutex serialises jobs that
// target the same entity row; jobs for distinct entities run on whichever
// workers are free.
func (s *ApplyService) handle(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(applyPayload)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", job.Payload)
	}

	if !s.locks.Lock(ctx, job.Key) {
		return ctx.Err()
	}
	defer s.locks.Unlock(job.Key)

	started := time.Now()
	entityType, err := s.applyOnce(ctx, payload)
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	if s.metrics != nil {
		s.metrics.ObserveApply(entityType, outcome, time.Since(started))
	}
	s.observeDepth()
	return err
}

// applyOnce claims the job row, re-checks the correction status and applies
// the mutation. Job completion and the correction's move to APPLIED commit
// in one transaction so neither can be observed without the other. Every
// failure after the claim returns the row to PENDING so the next attempt
// can re-claim it.
func (s *ApplyService) applyOnce(ctx context.Context, payload applyPayload) (string, error) {
	if err := s.batch.MarkProcessing(ctx, payload.JobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Row is no longer PENDING: completed, abandoned or requeued by
			// another path. Nothing to do.
			return "", nil
		}
		return "", fmt.Errorf("claim batch job: %w", err)
	}

	record, err := s.corrections.GetByID(ctx, payload.CorrectionID)
	if err != nil {
		err = fmt.Errorf("load correction %s: %w", payload.CorrectionID, err)
		// The row is PROCESSING now; put it back so the retry can re-claim
		// it instead of finding nothing PENDING and dropping the job.
		s.recordFailure(ctx, payload.JobID, err, false)
		return "", err
	}

	// The correction may have been rejected or manually applied between
	// enqueue and dispatch. The job is abandoned, never failed, so it does
	// not burn retry budget or land in FAILED.
	if !record.Status.Applicable() {
		reason := fmt.Sprintf("correction is %s, not applicable", record.Status)
		if err := s.batch.CompleteAbandoned(ctx, payload.JobID, time.Now().UTC(), reason); err != nil {
			err = fmt.Errorf("abandon batch job: %w", err)
			s.recordFailure(ctx, payload.JobID, err, false)
			return record.EntityType, err
		}
		s.logger.Info("abandoned batch job",
			zap.String("job_id", payload.JobID),
			zap.String("correction_id", record.ID),
			zap.String("status", string(record.Status)))
		return record.EntityType, nil
	}

	job, err := s.batch.GetByID(ctx, payload.JobID)
	if err != nil {
		err = fmt.Errorf("load batch job: %w", err)
		s.recordFailure(ctx, payload.JobID, err, false)
		return record.EntityType, err
	}

	writeStart := time.Now()
	err = s.entities.ApplyWrites(ctx, job.CompiledMutation)
	if s.metrics != nil {
		s.metrics.ObserveDBQuery("apply_writes", time.Since(writeStart))
	}
	if err != nil {
		s.recordFailure(ctx, payload.JobID, err, false)
		return record.EntityType, appErrors.Wrap(err, appErrors.ErrApply.Code, appErrors.ErrApply.Status, appErrors.ErrApply.Message)
	}

	if err := s.batch.CompleteWithRecord(ctx, payload.JobID, payload.CorrectionID, time.Now().UTC()); err != nil {
		s.recordFailure(ctx, payload.JobID, err, false)
		return record.EntityType, fmt.Errorf("complete batch job: %w", err)
	}

	s.logger.Info("applied correction",
		zap.String("job_id", payload.JobID),
		zap.String("correction_id", payload.CorrectionID),
		zap.String("entity_type", record.EntityType),
		zap.String("entity_id", record.EntityID))
	return record.EntityType, nil
}

// onExhausted pins the durable row to FAILED once the dispatcher gives up.
// The correction stays approved; an operator requeues the job after fixing
// whatever kept the mutation from applying.
func (s *ApplyService) onExhausted(ctx context.Context, job jobs.Job, err error) {
	payload, ok := job.Payload.(applyPayload)
	if !ok {
		return
	}
	s.recordFailure(ctx, payload.JobID, err, true)
	s.logger.Error("batch job exhausted retries",
		zap.String("job_id", payload.JobID),
		zap.String("correction_id", payload.CorrectionID),
		zap.Error(err))
}

func (s *ApplyService) recordFailure(ctx context.Context, jobID string, cause error, exhausted bool) {
	msg := "unknown failure"
	if cause != nil {
		msg = cause.Error()
	}
	if err := s.batch.RecordFailure(ctx, jobID, msg, exhausted, time.Now().UTC()); err != nil {
		s.logger.Warn("failed to record batch job failure",
			zap.String("job_id", jobID), zap.Error(err))
	}
}

func (s *ApplyService) observeDepth() {
	if s.metrics != nil {
		s.metrics.SetQueueDepth(s.queue.Depth())
	}
}

func entityKey(entityType, entityID string) string {
	return entityType + ":" + entityID
}

// Interface checks.
var (
	_ MutationEnqueuer = (*ApplyService)(nil)
	_ inFlightChecker  = (*repository.BatchJobRepository)(nil)
)
