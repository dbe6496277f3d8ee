package dto

import "github.com/uniguide/corrections-api/internal/models"

// ProposedChange is one field/value pair in a submission payload.
type ProposedChange struct {
	FieldKey      string `json:"fieldKey" binding:"required"`
	ProposedValue string `json:"proposedValue" binding:"required"`
}

// SubmitCorrectionRequest is the payload for submitting a correction.
type SubmitCorrectionRequest struct {
	EntityType    string                    `json:"entityType" binding:"required"`
	EntityID      string                    `json:"entityId" binding:"required"`
	Changes       []ProposedChange          `json:"changes" binding:"required"`
	OverallReason string                    `json:"overallReason" binding:"required"`
	SourceProof   string                    `json:"sourceProof"`
	Priority      models.CorrectionPriority `json:"priority"`
}

// ApproveCorrectionRequest carries the reviewer's optional notes.
type ApproveCorrectionRequest struct {
	Notes string `json:"notes"`
}

// RejectCorrectionRequest carries the mandatory rejection reason.
type RejectCorrectionRequest struct {
	Reason string `json:"reason"`
}

// CorrectionQuery mirrors supported listing filters.
type CorrectionQuery struct {
	EntityType string
	Status     []models.CorrectionStatus
	Priority   models.CorrectionPriority
	Limit      int
	Offset     int
}

// CompiledMutationResponse exposes compiled statement text for audit
// inspection. Returning it never enqueues anything.
type CompiledMutationResponse struct {
	CorrectionID string   `json:"correctionId"`
	Statements   []string `json:"statements"`
	SQL          string   `json:"sql"`
}
