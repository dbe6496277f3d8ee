package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/uniguide/corrections-api/internal/dto"
	"github.com/uniguide/corrections-api/internal/models"
	"github.com/uniguide/corrections-api/internal/repository"
	"github.com/uniguide/corrections-api/internal/schema"
	appErrors "github.com/uniguide/corrections-api/pkg/errors"
)

type correctionRepoStub struct {
	records map[string]*models.CorrectionRecord
	filter  models.CorrectionFilter
}

func newCorrectionRepoStub() *correctionRepoStub {
	return &correctionRepoStub{records: make(map[string]*models.CorrectionRecord)}
}

func (s *correctionRepoStub) Create(ctx context.Context, record *models.CorrectionRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	clone := *record
	s.records[record.ID] = &clone
	return nil
}

func (s *correctionRepoStub) GetByID(ctx context.Context, id string) (*models.CorrectionRecord, error) {
	if record, ok := s.records[id]; ok {
		clone := *record
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (s *correctionRepoStub) List(ctx context.Context, filter models.CorrectionFilter) ([]models.CorrectionRecord, error) {
	s.filter = filter
	out := make([]models.CorrectionRecord, 0, len(s.records))
	for _, record := range s.records {
		out = append(out, *record)
	}
	return out, nil
}

func (s *correctionRepoStub) Transition(ctx context.Context, params repository.TransitionParams) error {
	record, ok := s.records[params.ID]
	if !ok {
		return sql.ErrNoRows
	}
	matched := false
	for _, from := range params.From {
		if record.Status == from {
			matched = true
			break
		}
	}
	if !matched {
		return sql.ErrNoRows
	}
	record.Status = params.To
	record.ReviewerID = params.ReviewerID
	record.ReviewedAt = params.ReviewedAt
	record.AppliedAt = params.AppliedAt
	if params.AdminNotes != nil {
		record.AdminNotes = params.AdminNotes
	}
	return nil
}

type inFlightStub struct {
	inFlight map[string]bool
}

func (s *inFlightStub) HasInFlight(ctx context.Context, correctionID string) (bool, error) {
	return s.inFlight[correctionID], nil
}

type userStoreStub struct {
	users map[string]*models.User
}

func (s *userStoreStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := s.users[id]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

type auditStub struct {
	logs []*models.AuditLog
}

func (a *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type enqueuerStub struct {
	enqueued []string
	err      error
}

func (e *enqueuerStub) EnqueueCorrection(ctx context.Context, record *models.CorrectionRecord, mutation *models.CompiledMutation) error {
	if e.err != nil {
		return e.err
	}
	e.enqueued = append(e.enqueued, record.ID)
	return nil
}

type correctionTestEnv struct {
	svc      *CorrectionService
	repo     *correctionRepoStub
	users    *userStoreStub
	audit    *auditStub
	enqueuer *enqueuerStub
	inFlight *inFlightStub
}

func newCorrectionTestEnv(t *testing.T, autoApprove bool) *correctionTestEnv {
	t.Helper()
	registry := schema.Default()
	repo := newCorrectionRepoStub()
	audit := &auditStub{}
	enqueuer := &enqueuerStub{}
	inFlight := &inFlightStub{inFlight: make(map[string]bool)}
	users := &userStoreStub{users: map[string]*models.User{
		"user-low":  {ID: "user-low", TrustLevel: 2, Verified: true, Active: true},
		"user-high": {ID: "user-high", TrustLevel: 5, Verified: true, Active: true},
		"reviewer":  {ID: "reviewer", Role: models.RoleModerator, Active: true},
	}}
	snapshots := &snapshotStub{snapshots: map[string]*repository.EntitySnapshot{
		"institution:inst-1": institutionSnapshot(),
	}}

	svc := NewCorrectionService(
		repo, inFlight, users, audit,
		NewDiffValidator(registry, snapshots, 10, 5),
		NewAutoApprovalEngine(registry, autoApprove, 4),
		NewMutationCompiler(registry),
		enqueuer, nil, nil)

	return &correctionTestEnv{svc: svc, repo: repo, users: users, audit: audit, enqueuer: enqueuer, inFlight: inFlight}
}

func TestSubmitCreatesPendingRecord(t *testing.T) {
	env := newCorrectionTestEnv(t, true)

	record, err := env.svc.Submit(context.Background(), validSubmission(), "user-low")
	require.NoError(t, err)
	require.Equal(t, models.CorrectionStatusPending, record.Status)
	require.Nil(t, record.AutoApprovalReason)
	require.Empty(t, env.enqueuer.enqueued)
	require.Len(t, env.audit.logs, 1)
	require.Equal(t, models.AuditActionCorrectionSubmit, env.audit.logs[0].Action)
}

func TestSubmitAutoApprovesAndEnqueues(t *testing.T) {
	env := newCorrectionTestEnv(t, true)

	record, err := env.svc.Submit(context.Background(), validSubmission(), "user-high")
	require.NoError(t, err)
	require.Equal(t, models.CorrectionStatusAutoApproved, record.Status)
	require.NotNil(t, record.AutoApprovalReason)
	require.Equal(t, []string{record.ID}, env.enqueuer.enqueued)
}

func TestSubmitValidationFailureWritesNothing(t *testing.T) {
	env := newCorrectionTestEnv(t, true)

	req := validSubmission()
	req.Changes = []dto.ProposedChange{{FieldKey: "ranking", ProposedValue: "twelve"}}
	_, err := env.svc.Submit(context.Background(), req, "user-low")
	require.Error(t, err)
	require.Empty(t, env.repo.records)
	require.Empty(t, env.audit.logs)
}

func TestSubmitUnknownSubmitter(t *testing.T) {
	env := newCorrectionTestEnv(t, true)

	_, err := env.svc.Submit(context.Background(), validSubmission(), "ghost")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)
}

func TestApproveEnqueuesMutation(t *testing.T) {
	env := newCorrectionTestEnv(t, false)

	record, err := env.svc.Submit(context.Background(), validSubmission(), "user-high")
	require.NoError(t, err)
	require.Equal(t, models.CorrectionStatusPending, record.Status)

	approved, err := env.svc.Approve(context.Background(), record.ID, dto.ApproveCorrectionRequest{Notes: "verified against website"}, "reviewer")
	require.NoError(t, err)
	require.Equal(t, models.CorrectionStatusApproved, approved.Status)
	require.Equal(t, "reviewer", *approved.ReviewerID)
	require.Equal(t, "verified against website", *approved.AdminNotes)
	require.Equal(t, []string{record.ID}, env.enqueuer.enqueued)
}

func TestApproveTerminalRecordFails(t *testing.T) {
	env := newCorrectionTestEnv(t, false)

	record, err := env.svc.Submit(context.Background(), validSubmission(), "user-low")
	require.NoError(t, err)
	_, err = env.svc.Reject(context.Background(), record.ID, dto.RejectCorrectionRequest{Reason: "no supporting source"}, "reviewer")
	require.NoError(t, err)

	_, err = env.svc.Approve(context.Background(), record.ID, dto.ApproveCorrectionRequest{}, "reviewer")
	requireTransitionError(t, err)
}

func TestRejectRequiresReason(t *testing.T) {
	env := newCorrectionTestEnv(t, false)

	record, err := env.svc.Submit(context.Background(), validSubmission(), "user-low")
	require.NoError(t, err)

	_, err = env.svc.Reject(context.Background(), record.ID, dto.RejectCorrectionRequest{Reason: "   "}, "reviewer")
	requireTransitionError(t, err)

	// The record is untouched.
	stored, err := env.repo.GetByID(context.Background(), record.ID)
	require.NoError(t, err)
	require.Equal(t, models.CorrectionStatusPending, stored.Status)
	require.Nil(t, stored.AdminNotes)
}

func TestRejectRecordsReason(t *testing.T) {
	env := newCorrectionTestEnv(t, false)

	record, err := env.svc.Submit(context.Background(), validSubmission(), "user-low")
	require.NoError(t, err)

	rejected, err := env.svc.Reject(context.Background(), record.ID, dto.RejectCorrectionRequest{Reason: "no supporting source"}, "reviewer")
	require.NoError(t, err)
	require.Equal(t, models.CorrectionStatusRejected, rejected.Status)
	require.Equal(t, "no supporting source", *rejected.AdminNotes)
	require.Len(t, env.audit.logs, 2)
	require.Equal(t, models.AuditActionCorrectionReject, env.audit.logs[1].Action)
}

func TestStartReviewClaimsPending(t *testing.T) {
	env := newCorrectionTestEnv(t, false)

	record, err := env.svc.Submit(context.Background(), validSubmission(), "user-low")
	require.NoError(t, err)

	claimed, err := env.svc.StartReview(context.Background(), record.ID, "reviewer")
	require.NoError(t, err)
	require.Equal(t, models.CorrectionStatusUnderReview, claimed.Status)

	// A second claim races against the first and loses.
	_, err = env.svc.StartReview(context.Background(), record.ID, "reviewer-2")
	requireTransitionError(t, err)
}

func TestMarkAppliedRefusesWhileInFlight(t *testing.T) {
	env := newCorrectionTestEnv(t, true)

	record, err := env.svc.Submit(context.Background(), validSubmission(), "user-high")
	require.NoError(t, err)
	require.Equal(t, models.CorrectionStatusAutoApproved, record.Status)

	env.inFlight.inFlight[record.ID] = true
	_, err = env.svc.MarkApplied(context.Background(), record.ID, "admin-1")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrConflict.Code, appErr.Code)

	env.inFlight.inFlight[record.ID] = false
	applied, err := env.svc.MarkApplied(context.Background(), record.ID, "admin-1")
	require.NoError(t, err)
	require.Equal(t, models.CorrectionStatusApplied, applied.Status)
	require.NotNil(t, applied.AppliedAt)
}

func TestGenerateMutationDoesNotEnqueue(t *testing.T) {
	env := newCorrectionTestEnv(t, false)

	record, err := env.svc.Submit(context.Background(), validSubmission(), "user-low")
	require.NoError(t, err)
	_, err = env.svc.Approve(context.Background(), record.ID, dto.ApproveCorrectionRequest{}, "reviewer")
	require.NoError(t, err)
	queuedBefore := len(env.enqueuer.enqueued)

	actor := &models.JWTClaims{UserID: "reviewer", Role: models.RoleModerator}
	mutation, err := env.svc.GenerateMutation(context.Background(), record.ID, actor)
	require.NoError(t, err)
	require.Equal(t, record.ID, mutation.CorrectionID)
	require.NotEmpty(t, mutation.Statements)
	require.Len(t, env.enqueuer.enqueued, queuedBefore)
}

func TestListScopesSubmitters(t *testing.T) {
	env := newCorrectionTestEnv(t, false)

	_, err := env.svc.List(context.Background(), dto.CorrectionQuery{}, &models.JWTClaims{UserID: "user-low", Role: models.RoleUser})
	require.NoError(t, err)
	require.Equal(t, "user-low", env.repo.filter.SubmitterID)

	_, err = env.svc.List(context.Background(), dto.CorrectionQuery{}, &models.JWTClaims{UserID: "reviewer", Role: models.RoleModerator})
	require.NoError(t, err)
	require.Empty(t, env.repo.filter.SubmitterID)
}

func TestGetEnforcesOwnership(t *testing.T) {
	env := newCorrectionTestEnv(t, false)

	record, err := env.svc.Submit(context.Background(), validSubmission(), "user-low")
	require.NoError(t, err)

	_, err = env.svc.Get(context.Background(), record.ID, &models.JWTClaims{UserID: "user-high", Role: models.RoleUser})
	require.Error(t, err)

	got, err := env.svc.Get(context.Background(), record.ID, &models.JWTClaims{UserID: "user-low", Role: models.RoleUser})
	require.NoError(t, err)
	require.Equal(t, record.ID, got.ID)
}

func requireTransitionError(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrTransition.Code, appErr.Code)
}
