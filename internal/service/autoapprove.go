package service

import (
	"fmt"

	"github.com/uniguide/corrections-api/internal/models"
	"github.com/uniguide/corrections-api/internal/schema"
)

// AutoApproveDecision is the rule engine's verdict for one correction.
type AutoApproveDecision struct {
	AutoApprove bool
	Reason      string
}

// AutoApprovalEngine decides whether a validated correction may bypass
// human review. Decide is deterministic and side-effect free.
type AutoApprovalEngine struct {
	registry   *schema.Registry
	enabled    bool
	trustFloor int
}

// NewAutoApprovalEngine constructs the engine.
func NewAutoApprovalEngine(registry *schema.Registry, enabled bool, trustFloor int) *AutoApprovalEngine {
	if trustFloor <= 0 {
		trustFloor = 4
	}
	return &AutoApprovalEngine{registry: registry, enabled: enabled, trustFloor: trustFloor}
}

// Decide evaluates the auto-approval policy in order; the first matching
// rule wins:
//  1. any high-sensitivity field always requires human review
//  2. trust below the configured floor always requires human review
//  3. verified submitter, all low-sensitivity fields, and values that still
//     type-check auto-approve
//  4. everything else requires human review
func (e *AutoApprovalEngine) Decide(record *models.CorrectionRecord) AutoApproveDecision {
	if !e.enabled {
		return AutoApproveDecision{AutoApprove: false, Reason: "auto-approval disabled"}
	}

	entSchema, err := e.registry.Entity(record.EntityType)
	if err != nil {
		return AutoApproveDecision{AutoApprove: false, Reason: err.Error()}
	}

	for _, change := range record.Changes {
		field, err := entSchema.Field(change.FieldKey)
		if err != nil {
			return AutoApproveDecision{AutoApprove: false, Reason: err.Error()}
		}
		if field.Sensitivity == schema.SensitivityHigh {
			return AutoApproveDecision{
				AutoApprove: false,
				Reason:      fmt.Sprintf("field %s is high-sensitivity and requires human review", change.FieldKey),
			}
		}
	}

	if record.SubmitterTrustLevel < e.trustFloor {
		return AutoApproveDecision{
			AutoApprove: false,
			Reason:      fmt.Sprintf("submitter trust level %d is below the floor of %d", record.SubmitterTrustLevel, e.trustFloor),
		}
	}

	if !record.SubmitterVerified {
		return AutoApproveDecision{AutoApprove: false, Reason: "submitter identity is not verified"}
	}

	// Values were validated at submission; re-check so a record constructed
	// any other way still cannot slip a mistyped value past review.
	for _, change := range record.Changes {
		field, _ := entSchema.Field(change.FieldKey)
		if _, err := field.ParseValue(change.ProposedValue); err != nil {
			return AutoApproveDecision{AutoApprove: false, Reason: err.Error()}
		}
	}

	return AutoApproveDecision{
		AutoApprove: true,
		Reason:      "verified submitter above trust floor changing only low-sensitivity fields",
	}
}
