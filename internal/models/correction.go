package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// CorrectionStatus captures review workflow states for correction records.
type CorrectionStatus string

const (
	CorrectionStatusPending      CorrectionStatus = "PENDING"
	CorrectionStatusUnderReview  CorrectionStatus = "UNDER_REVIEW"
	CorrectionStatusApproved     CorrectionStatus = "APPROVED"
	CorrectionStatusAutoApproved CorrectionStatus = "AUTO_APPROVED"
	CorrectionStatusRejected     CorrectionStatus = "REJECTED"
	CorrectionStatusApplied      CorrectionStatus = "APPLIED"
)

// CorrectionPriority orders queue dispatch. Informational only; it never
// affects review correctness.
type CorrectionPriority string

const (
	PriorityLow    CorrectionPriority = "LOW"
	PriorityMedium CorrectionPriority = "MEDIUM"
	PriorityHigh   CorrectionPriority = "HIGH"
	PriorityUrgent CorrectionPriority = "URGENT"
)

// Rank maps the priority to its dispatch weight (urgent highest).
func (p CorrectionPriority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// Valid reports whether the priority is a known tier.
func (p CorrectionPriority) Valid() bool {
	return p.Rank() > 0
}

// FieldCorrection is one atomic proposed change to a named entity field.
// CurrentValue is the snapshot at submission time; nil means the field was
// unset when the correction was submitted.
type FieldCorrection struct {
	FieldKey      string  `json:"fieldKey"`
	FieldLabel    string  `json:"fieldLabel"`
	CurrentValue  *string `json:"currentValue"`
	ProposedValue string  `json:"proposedValue"`
}

// FieldCorrections serializes the change list into a JSONB column.
type FieldCorrections []FieldCorrection

// Value implements driver.Valuer.
func (f FieldCorrections) Value() (driver.Value, error) {
	return json.Marshal(f)
}

// Scan implements sql.Scanner.
func (f *FieldCorrections) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*f = nil
		return nil
	case []byte:
		return json.Unmarshal(v, f)
	case string:
		return json.Unmarshal([]byte(v), f)
	default:
		return fmt.Errorf("unsupported scan type %T for FieldCorrections", src)
	}
}

// CorrectionRecord is the unit of work: one user-submitted set of field
// corrections against a single entity, tracked through the review
// lifecycle. Status, ReviewedAt, ReviewerID and AppliedAt are only ever
// written through transition operations, never by direct assignment.
type CorrectionRecord struct {
	ID                   string             `db:"id" json:"id"`
	EntityType           string             `db:"entity_type" json:"entityType"`
	EntityID             string             `db:"entity_id" json:"entityId"`
	EntityDisplayName    string             `db:"entity_display_name" json:"entityDisplayName"`
	Changes              FieldCorrections   `db:"changes" json:"changes"`
	Priority             CorrectionPriority `db:"priority" json:"priority"`
	SubmitterID          string             `db:"submitter_id" json:"submitterId"`
	SubmitterTrustLevel  int                `db:"submitter_trust_level" json:"submitterTrustLevel"`
	SubmitterVerified    bool               `db:"submitter_verified" json:"submitterVerified"`
	OverallReason        string             `db:"overall_reason" json:"overallReason"`
	SourceProof          *string            `db:"source_proof" json:"sourceProof,omitempty"`
	Status               CorrectionStatus   `db:"status" json:"status"`
	AutoApprovalReason   *string            `db:"auto_approval_reason" json:"autoApprovalReason,omitempty"`
	AdminNotes           *string            `db:"admin_notes" json:"adminNotes,omitempty"`
	ReviewerID           *string            `db:"reviewer_id" json:"reviewerId,omitempty"`
	CreatedAt            time.Time          `db:"created_at" json:"createdAt"`
	ReviewedAt           *time.Time         `db:"reviewed_at" json:"reviewedAt,omitempty"`
	AppliedAt            *time.Time         `db:"applied_at" json:"appliedAt,omitempty"`
}

// CorrectionFilter constrains listing queries.
type CorrectionFilter struct {
	EntityType  string
	EntityID    string
	Status      []CorrectionStatus
	Priority    CorrectionPriority
	SubmitterID string
	Limit       int
	Offset      int
}
