package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/uniguide/corrections-api/internal/dto"
	"github.com/uniguide/corrections-api/internal/models"
	"github.com/uniguide/corrections-api/internal/repository"
	appErrors "github.com/uniguide/corrections-api/pkg/errors"
)

type correctionStore interface {
	Create(ctx context.Context, record *models.CorrectionRecord) error
	GetByID(ctx context.Context, id string) (*models.CorrectionRecord, error)
	List(ctx context.Context, filter models.CorrectionFilter) ([]models.CorrectionRecord, error)
	Transition(ctx context.Context, params repository.TransitionParams) error
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type submitterStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type inFlightChecker interface {
	HasInFlight(ctx context.Context, correctionID string) (bool, error)
}

// MutationEnqueuer hands compiled mutations to the batch apply queue.
type MutationEnqueuer interface {
	EnqueueCorrection(ctx context.Context, record *models.CorrectionRecord, mutation *models.CompiledMutation) error
}

type statsInvalidator interface {
	Invalidate(ctx context.Context)
}

// CorrectionService orchestrates the correction workflow: submissions flow
// through the diff validator and the auto-approval engine, reviews through
// the state machine, and approvals through the compiler into the apply
// queue.
type CorrectionService struct {
	repo      correctionStore
	jobs      inFlightChecker
	users     submitterStore
	audit     auditLogger
	validator *DiffValidator
	rules     *AutoApprovalEngine
	compiler  *MutationCompiler
	enqueuer  MutationEnqueuer
	stats     statsInvalidator
	logger    *zap.Logger
}

// NewCorrectionService constructs the service.
func NewCorrectionService(
	repo correctionStore,
	jobs inFlightChecker,
	users submitterStore,
	audit auditLogger,
	validator *DiffValidator,
	rules *AutoApprovalEngine,
	compiler *MutationCompiler,
	enqueuer MutationEnqueuer,
	stats statsInvalidator,
	logger *zap.Logger,
) *CorrectionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CorrectionService{
		repo:      repo,
		jobs:      jobs,
		users:     users,
		audit:     audit,
		validator: validator,
		rules:     rules,
		compiler:  compiler,
		enqueuer:  enqueuer,
		stats:     stats,
		logger:    logger,
	}
}

// Submit validates a raw submission and creates the correction record. The
// submitter's trust level and verified flag are snapshotted from the user
// row at this moment and never re-read. Auto-approved records are compiled
// and enqueued immediately.
func (s *CorrectionService) Submit(ctx context.Context, req dto.SubmitCorrectionRequest, submitterID string) (*models.CorrectionRecord, error) {
	submitter, err := s.users.FindByID(ctx, submitterID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrUnauthorized
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submitter")
	}
	if !submitter.Active {
		return nil, appErrors.ErrInactiveAccount
	}

	record, err := s.validator.Validate(ctx, req, submitter)
	if err != nil {
		return nil, err
	}

	decision := s.rules.Decide(record)
	if decision.AutoApprove {
		record.Status = models.CorrectionStatusAutoApproved
		record.AutoApprovalReason = &decision.Reason
		now := time.Now().UTC()
		record.ReviewedAt = &now
	}

	if err := s.repo.Create(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create correction")
	}

	s.emitAudit(ctx, submitterID, models.AuditActionCorrectionSubmit, record, nil)
	s.invalidateStats(ctx)

	if record.Status == models.CorrectionStatusAutoApproved {
		if err := s.compileAndEnqueue(ctx, record); err != nil {
			// The record stays auto_approved; the mutation endpoint and a
			// later requeue can recover it.
			s.logger.Warn("failed to enqueue auto-approved correction",
				zap.String("correction_id", record.ID), zap.Error(err))
		}
	}

	return record, nil
}

// List returns corrections visible to the actor. Submitters only see their
// own records; moderators and admins see everything.
func (s *CorrectionService) List(ctx context.Context, query dto.CorrectionQuery, actor *models.JWTClaims) ([]models.CorrectionRecord, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	filter := models.CorrectionFilter{
		EntityType: strings.ToLower(strings.TrimSpace(query.EntityType)),
		Status:     query.Status,
		Priority:   query.Priority,
		Limit:      query.Limit,
		Offset:     query.Offset,
	}
	switch actor.Role {
	case models.RoleAdmin, models.RoleModerator:
		// full access
	case models.RoleUser:
		filter.SubmitterID = actor.UserID
	default:
		return nil, appErrors.ErrForbidden
	}
	records, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list corrections")
	}
	return records, nil
}

// Get returns a correction enforcing the same visibility rules as List.
func (s *CorrectionService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.CorrectionRecord, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	record, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleUser && record.SubmitterID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	return record, nil
}

// StartReview claims a pending correction for review.
func (s *CorrectionService) StartReview(ctx context.Context, id string, reviewerID string) (*models.CorrectionRecord, error) {
	record, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(record.Status, models.CorrectionStatusUnderReview) {
		return nil, transitionError(record.Status, models.CorrectionStatusUnderReview)
	}
	now := time.Now().UTC()
	params := repository.TransitionParams{
		ID:         id,
		From:       []models.CorrectionStatus{models.CorrectionStatusPending},
		To:         models.CorrectionStatusUnderReview,
		ReviewerID: &reviewerID,
		ReviewedAt: &now,
	}
	if err := s.transition(ctx, params); err != nil {
		return nil, err
	}
	record.Status = models.CorrectionStatusUnderReview
	record.ReviewerID = &reviewerID
	record.ReviewedAt = &now
	s.invalidateStats(ctx)
	return record, nil
}

// Approve moves a reviewable correction to approved, compiles its mutation
// and enqueues it. A compile failure leaves the record approved but
// unqueued and surfaces as a compile error so the reviewer knows it needs
// re-review.
func (s *CorrectionService) Approve(ctx context.Context, id string, req dto.ApproveCorrectionRequest, reviewerID string) (*models.CorrectionRecord, error) {
	record, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !record.Status.Reviewable() {
		return nil, transitionError(record.Status, models.CorrectionStatusApproved)
	}

	now := time.Now().UTC()
	params := repository.TransitionParams{
		ID:         id,
		From:       []models.CorrectionStatus{models.CorrectionStatusPending, models.CorrectionStatusUnderReview},
		To:         models.CorrectionStatusApproved,
		ReviewerID: &reviewerID,
		ReviewedAt: &now,
	}
	if notes := strings.TrimSpace(req.Notes); notes != "" {
		params.AdminNotes = &notes
	}
	if err := s.transition(ctx, params); err != nil {
		return nil, err
	}

	record.Status = models.CorrectionStatusApproved
	record.ReviewerID = &reviewerID
	record.ReviewedAt = &now
	record.AdminNotes = params.AdminNotes

	s.emitAudit(ctx, reviewerID, models.AuditActionCorrectionApprove, record, nil)
	s.invalidateStats(ctx)

	if err := s.compileAndEnqueue(ctx, record); err != nil {
		return record, err
	}
	return record, nil
}

// Reject moves a reviewable correction to rejected. The reason is
// mandatory: rejected records are the primary feedback the statistics
// aggregator reports on, and silent rejections are disallowed.
func (s *CorrectionService) Reject(ctx context.Context, id string, req dto.RejectCorrectionRequest, reviewerID string) (*models.CorrectionRecord, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, appErrors.Clone(appErrors.ErrTransition, "rejecting a correction requires a reason")
	}

	record, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !record.Status.Reviewable() {
		return nil, transitionError(record.Status, models.CorrectionStatusRejected)
	}

	now := time.Now().UTC()
	params := repository.TransitionParams{
		ID:         id,
		From:       []models.CorrectionStatus{models.CorrectionStatusPending, models.CorrectionStatusUnderReview},
		To:         models.CorrectionStatusRejected,
		ReviewerID: &reviewerID,
		ReviewedAt: &now,
		AdminNotes: &reason,
	}
	if err := s.transition(ctx, params); err != nil {
		return nil, err
	}

	record.Status = models.CorrectionStatusRejected
	record.ReviewerID = &reviewerID
	record.ReviewedAt = &now
	record.AdminNotes = &reason

	s.emitAudit(ctx, reviewerID, models.AuditActionCorrectionReject, record, nil)
	s.invalidateStats(ctx)
	return record, nil
}

// GenerateMutation compiles the correction and returns the statement text
// for audit inspection. It never enqueues anything.
func (s *CorrectionService) GenerateMutation(ctx context.Context, id string, actor *models.JWTClaims) (*dto.CompiledMutationResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	record, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	mutation, err := s.compiler.Compile(record)
	if err != nil {
		return nil, err
	}
	return &dto.CompiledMutationResponse{
		CorrectionID: record.ID,
		Statements:   mutation.Statements,
		SQL:          strings.Join(mutation.Statements, "\n"),
	}, nil
}

// MarkApplied is the manual reconciliation escape hatch: an admin asserts
// the mutation was applied out of band. It refuses while a batch job is
// still in flight so the queue remains the single writer of the applied
// edge in normal operation.
func (s *CorrectionService) MarkApplied(ctx context.Context, id string, actorID string) (*models.CorrectionRecord, error) {
	record, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !record.Status.Applicable() {
		return nil, transitionError(record.Status, models.CorrectionStatusApplied)
	}

	inFlight, err := s.jobs.HasInFlight(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check queue state")
	}
	if inFlight {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a batch job for this correction is still in flight")
	}

	now := time.Now().UTC()
	params := repository.TransitionParams{
		ID:        id,
		From:      []models.CorrectionStatus{models.CorrectionStatusApproved, models.CorrectionStatusAutoApproved},
		To:        models.CorrectionStatusApplied,
		AppliedAt: &now,
	}
	if err := s.transition(ctx, params); err != nil {
		return nil, err
	}

	record.Status = models.CorrectionStatusApplied
	record.AppliedAt = &now

	s.emitAudit(ctx, actorID, models.AuditActionManualApply, record, nil)
	s.invalidateStats(ctx)
	return record, nil
}

func (s *CorrectionService) compileAndEnqueue(ctx context.Context, record *models.CorrectionRecord) error {
	mutation, err := s.compiler.Compile(record)
	if err != nil {
		return err
	}
	if s.enqueuer == nil {
		return appErrors.Clone(appErrors.ErrInternal, "apply queue is not configured")
	}
	if err := s.enqueuer.EnqueueCorrection(ctx, record, mutation); err != nil {
		if errors.Is(err, repository.ErrJobInFlight) {
			// Already queued; nothing to do.
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue mutation")
	}
	return nil
}

func (s *CorrectionService) invalidateStats(ctx context.Context) {
	if s.stats != nil {
		s.stats.Invalidate(ctx)
	}
}

func (s *CorrectionService) load(ctx context.Context, id string) (*models.CorrectionRecord, error) {
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load correction")
	}
	return record, nil
}

func (s *CorrectionService) transition(ctx context.Context, params repository.TransitionParams) error {
	if err := s.repo.Transition(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrTransition, "correction was modified concurrently, reload and retry")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update correction")
	}
	return nil
}

func (s *CorrectionService) emitAudit(ctx context.Context, actorID, action string, record *models.CorrectionRecord, oldValues []byte) {
	if s.audit == nil || record == nil {
		return
	}
	changes, err := json.Marshal(record.Changes)
	if err != nil {
		changes = nil
	}
	log := &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   record.EntityType,
		ResourceID: &record.EntityID,
		OldValues:  oldValues,
		NewValues:  changes,
		IPAddress:  "system",
		UserAgent:  "correction-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func transitionError(from, to models.CorrectionStatus) error {
	return appErrors.Clone(appErrors.ErrTransition,
		fmt.Sprintf("cannot transition correction from %s to %s", from, to))
}
