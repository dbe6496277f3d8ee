package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/uniguide/corrections-api/internal/models"
	"github.com/uniguide/corrections-api/internal/schema"
)

func lowSensitivityRecord() *models.CorrectionRecord {
	return &models.CorrectionRecord{
		EntityType:          "institution",
		EntityID:            "inst-1",
		SubmitterTrustLevel: 5,
		SubmitterVerified:   true,
		Changes: models.FieldCorrections{
			{FieldKey: "city", ProposedValue: "Rawalpindi"},
			{FieldKey: "ranking", ProposedValue: "14"},
		},
	}
}

func TestAutoApproveGrants(t *testing.T) {
	engine := NewAutoApprovalEngine(schema.Default(), true, 4)

	decision := engine.Decide(lowSensitivityRecord())
	require.True(t, decision.AutoApprove)
	require.NotEmpty(t, decision.Reason)
}

func TestAutoApproveHighSensitivityField(t *testing.T) {
	engine := NewAutoApprovalEngine(schema.Default(), true, 4)

	record := lowSensitivityRecord()
	record.Changes = append(record.Changes, models.FieldCorrection{
		FieldKey: "tuition_fee", ProposedValue: "150000",
	})

	decision := engine.Decide(record)
	require.False(t, decision.AutoApprove)
	require.Contains(t, decision.Reason, "tuition_fee")
}

func TestAutoApproveTrustBelowFloor(t *testing.T) {
	engine := NewAutoApprovalEngine(schema.Default(), true, 4)

	record := lowSensitivityRecord()
	record.SubmitterTrustLevel = 3

	decision := engine.Decide(record)
	require.False(t, decision.AutoApprove)
}

func TestAutoApproveTrustAtFloor(t *testing.T) {
	engine := NewAutoApprovalEngine(schema.Default(), true, 4)

	record := lowSensitivityRecord()
	record.SubmitterTrustLevel = 4

	decision := engine.Decide(record)
	require.True(t, decision.AutoApprove)
}

func TestAutoApproveUnverifiedSubmitter(t *testing.T) {
	engine := NewAutoApprovalEngine(schema.Default(), true, 4)

	record := lowSensitivityRecord()
	record.SubmitterVerified = false

	decision := engine.Decide(record)
	require.False(t, decision.AutoApprove)
}

func TestAutoApproveDisabled(t *testing.T) {
	engine := NewAutoApprovalEngine(schema.Default(), false, 4)

	decision := engine.Decide(lowSensitivityRecord())
	require.False(t, decision.AutoApprove)
	require.Equal(t, "auto-approval disabled", decision.Reason)
}

// High-sensitivity wins over trust: even a maximally trusted, verified
// submitter cannot auto-approve a monetary field.
func TestAutoApproveSensitivityBeatsTrust(t *testing.T) {
	engine := NewAutoApprovalEngine(schema.Default(), true, 4)

	record := &models.CorrectionRecord{
		EntityType:          "financial_aid",
		SubmitterTrustLevel: 10,
		SubmitterVerified:   true,
		Changes: models.FieldCorrections{
			{FieldKey: "amount", ProposedValue: "50000"},
		},
	}

	decision := engine.Decide(record)
	require.False(t, decision.AutoApprove)
}

func TestAutoApproveMistypedValue(t *testing.T) {
	engine := NewAutoApprovalEngine(schema.Default(), true, 4)

	record := lowSensitivityRecord()
	record.Changes = models.FieldCorrections{
		{FieldKey: "ranking", ProposedValue: "twelve"},
	}

	decision := engine.Decide(record)
	require.False(t, decision.AutoApprove)
}
