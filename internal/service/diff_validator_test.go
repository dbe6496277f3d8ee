package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/uniguide/corrections-api/internal/dto"
	"github.com/uniguide/corrections-api/internal/models"
	"github.com/uniguide/corrections-api/internal/repository"
	"github.com/uniguide/corrections-api/internal/schema"
	appErrors "github.com/uniguide/corrections-api/pkg/errors"
)

type snapshotStub struct {
	snapshots map[string]*repository.EntitySnapshot
}

func (s *snapshotStub) Snapshot(ctx context.Context, entityType, entityID string) (*repository.EntitySnapshot, error) {
	if snap, ok := s.snapshots[entityType+":"+entityID]; ok {
		return snap, nil
	}
	return nil, sql.ErrNoRows
}

func strptr(v string) *string { return &v }

func testSubmitter() *models.User {
	return &models.User{ID: "user-1", TrustLevel: 3, Verified: true, Active: true}
}

func institutionSnapshot() *repository.EntitySnapshot {
	return &repository.EntitySnapshot{
		EntityType:  "institution",
		EntityID:    "inst-1",
		DisplayName: "Quaid University",
		Active:      true,
		Fields: map[string]*string{
			"name":        strptr("Quaid University"),
			"city":        strptr("Islamabad"),
			"tuition_fee": strptr("120000.00"),
			"ranking":     strptr("12"),
		},
	}
}

func newTestValidator(snapshots map[string]*repository.EntitySnapshot) *DiffValidator {
	return NewDiffValidator(schema.Default(), &snapshotStub{snapshots: snapshots}, 10, 5)
}

func validSubmission() dto.SubmitCorrectionRequest {
	return dto.SubmitCorrectionRequest{
		EntityType:    "institution",
		EntityID:      "inst-1",
		OverallReason: "official website lists the updated city campus",
		Changes: []dto.ProposedChange{
			{FieldKey: "city", ProposedValue: "Rawalpindi"},
		},
	}
}

func TestDiffValidatorAccepts(t *testing.T) {
	v := newTestValidator(map[string]*repository.EntitySnapshot{
		"institution:inst-1": institutionSnapshot(),
	})

	record, err := v.Validate(context.Background(), validSubmission(), testSubmitter())
	require.NoError(t, err)
	require.Equal(t, models.CorrectionStatusPending, record.Status)
	require.Equal(t, "institution", record.EntityType)
	require.Equal(t, "Quaid University", record.EntityDisplayName)
	require.Equal(t, models.PriorityMedium, record.Priority)
	require.Equal(t, 3, record.SubmitterTrustLevel)
	require.True(t, record.SubmitterVerified)
	require.Len(t, record.Changes, 1)
	require.Equal(t, "city", record.Changes[0].FieldKey)
	require.Equal(t, "City", record.Changes[0].FieldLabel)
	require.Equal(t, "Islamabad", *record.Changes[0].CurrentValue)
	require.Equal(t, "Rawalpindi", record.Changes[0].ProposedValue)
}

func TestDiffValidatorUnknownEntityType(t *testing.T) {
	v := newTestValidator(nil)
	req := validSubmission()
	req.EntityType = "dormitory"

	_, err := v.Validate(context.Background(), req, testSubmitter())
	requireValidationError(t, err)
}

func TestDiffValidatorUnknownField(t *testing.T) {
	v := newTestValidator(map[string]*repository.EntitySnapshot{
		"institution:inst-1": institutionSnapshot(),
	})
	req := validSubmission()
	req.Changes = []dto.ProposedChange{{FieldKey: "mascot", ProposedValue: "eagle"}}

	_, err := v.Validate(context.Background(), req, testSubmitter())
	requireValidationError(t, err)
}

func TestDiffValidatorShortReason(t *testing.T) {
	v := newTestValidator(map[string]*repository.EntitySnapshot{
		"institution:inst-1": institutionSnapshot(),
	})
	req := validSubmission()
	req.OverallReason = "typo"

	_, err := v.Validate(context.Background(), req, testSubmitter())
	requireValidationError(t, err)
}

func TestDiffValidatorTypeMismatch(t *testing.T) {
	v := newTestValidator(map[string]*repository.EntitySnapshot{
		"institution:inst-1": institutionSnapshot(),
	})
	req := validSubmission()
	req.Changes = []dto.ProposedChange{{FieldKey: "ranking", ProposedValue: "twelve"}}

	_, err := v.Validate(context.Background(), req, testSubmitter())
	requireValidationError(t, err)
}

func TestDiffValidatorNoOpChange(t *testing.T) {
	v := newTestValidator(map[string]*repository.EntitySnapshot{
		"institution:inst-1": institutionSnapshot(),
	})
	req := validSubmission()
	// Differently formatted but numerically identical to the current fee.
	req.Changes = []dto.ProposedChange{{FieldKey: "tuition_fee", ProposedValue: "Rs. 120,000"}}

	_, err := v.Validate(context.Background(), req, testSubmitter())
	requireValidationError(t, err)
}

func TestDiffValidatorDuplicateField(t *testing.T) {
	v := newTestValidator(map[string]*repository.EntitySnapshot{
		"institution:inst-1": institutionSnapshot(),
	})
	req := validSubmission()
	req.Changes = []dto.ProposedChange{
		{FieldKey: "city", ProposedValue: "Lahore"},
		{FieldKey: "city", ProposedValue: "Karachi"},
	}

	_, err := v.Validate(context.Background(), req, testSubmitter())
	requireValidationError(t, err)
}

func TestDiffValidatorMissingEntity(t *testing.T) {
	v := newTestValidator(nil)

	_, err := v.Validate(context.Background(), validSubmission(), testSubmitter())
	requireValidationError(t, err)
}

func TestDiffValidatorInactiveEntity(t *testing.T) {
	snap := institutionSnapshot()
	snap.Active = false
	v := newTestValidator(map[string]*repository.EntitySnapshot{
		"institution:inst-1": snap,
	})

	_, err := v.Validate(context.Background(), validSubmission(), testSubmitter())
	requireValidationError(t, err)
}

func TestDiffValidatorSourceProof(t *testing.T) {
	v := newTestValidator(map[string]*repository.EntitySnapshot{
		"institution:inst-1": institutionSnapshot(),
	})

	req := validSubmission()
	req.SourceProof = "https://example.edu/fees"
	record, err := v.Validate(context.Background(), req, testSubmitter())
	require.NoError(t, err)
	require.Equal(t, "https://example.edu/fees", *record.SourceProof)

	req.SourceProof = "ftp://example.edu/fees"
	_, err = v.Validate(context.Background(), req, testSubmitter())
	requireValidationError(t, err)
}

func TestDiffValidatorTooManyChanges(t *testing.T) {
	v := newTestValidator(map[string]*repository.EntitySnapshot{
		"institution:inst-1": institutionSnapshot(),
	})
	req := validSubmission()
	req.Changes = []dto.ProposedChange{
		{FieldKey: "name", ProposedValue: "A"},
		{FieldKey: "city", ProposedValue: "B"},
		{FieldKey: "website", ProposedValue: "C"},
		{FieldKey: "closing_merit", ProposedValue: "D"},
		{FieldKey: "ranking", ProposedValue: "5"},
		{FieldKey: "tuition_fee", ProposedValue: "600"},
	}

	_, err := v.Validate(context.Background(), req, testSubmitter())
	requireValidationError(t, err)
}

func requireValidationError(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}
