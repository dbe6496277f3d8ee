package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/uniguide/corrections-api/internal/dto"
	"github.com/uniguide/corrections-api/internal/models"
	"github.com/uniguide/corrections-api/internal/repository"
	"github.com/uniguide/corrections-api/internal/schema"
	appErrors "github.com/uniguide/corrections-api/pkg/errors"
)

// SnapshotProvider resolves the current entity snapshot for validation.
type SnapshotProvider interface {
	Snapshot(ctx context.Context, entityType, entityID string) (*repository.EntitySnapshot, error)
}

// DiffValidator checks raw submissions against the schema registry and the
// live entity snapshot. On success it emits a pending CorrectionRecord; on
// failure it returns a validation error and writes nothing.
type DiffValidator struct {
	registry        *schema.Registry
	snapshots       SnapshotProvider
	minReasonLength int
	maxChanges      int
}

// NewDiffValidator constructs the validator.
func NewDiffValidator(registry *schema.Registry, snapshots SnapshotProvider, minReasonLength, maxChanges int) *DiffValidator {
	if minReasonLength <= 0 {
		minReasonLength = 10
	}
	if maxChanges <= 0 {
		maxChanges = 20
	}
	return &DiffValidator{
		registry:        registry,
		snapshots:       snapshots,
		minReasonLength: minReasonLength,
		maxChanges:      maxChanges,
	}
}

// Validate builds a pending CorrectionRecord from the submission, rejecting
// unknown fields, type mismatches, short reasons, and no-op diffs.
func (v *DiffValidator) Validate(ctx context.Context, req dto.SubmitCorrectionRequest, submitter *models.User) (*models.CorrectionRecord, error) {
	entityType := strings.ToLower(strings.TrimSpace(req.EntityType))
	entSchema, err := v.registry.Entity(entityType)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	reason := strings.TrimSpace(req.OverallReason)
	if len(reason) < v.minReasonLength {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("overall reason must be at least %d characters", v.minReasonLength))
	}

	if len(req.Changes) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one change is required")
	}
	if len(req.Changes) > v.maxChanges {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("a correction may contain at most %d changes", v.maxChanges))
	}

	var sourceProof *string
	if trimmed := strings.TrimSpace(req.SourceProof); trimmed != "" {
		parsed, err := url.Parse(trimmed)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return nil, appErrors.Clone(appErrors.ErrValidation, "source proof must be an http(s) URL")
		}
		sourceProof = &trimmed
	}

	priority := req.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	if !priority.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown priority: %s", req.Priority))
	}

	snapshot, err := v.snapshots.Snapshot(ctx, entityType, req.EntityID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("entity %s/%s does not exist", entityType, req.EntityID))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load entity snapshot")
	}
	if !snapshot.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("entity %s/%s is not active", entityType, req.EntityID))
	}

	changes := make(models.FieldCorrections, 0, len(req.Changes))
	seen := make(map[string]struct{}, len(req.Changes))
	for _, change := range req.Changes {
		key := strings.TrimSpace(change.FieldKey)
		if _, dup := seen[key]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duplicate field: %s", key))
		}
		seen[key] = struct{}{}

		field, err := entSchema.Field(key)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
		}
		proposed, err := field.ParseValue(change.ProposedValue)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
		}

		current := snapshot.Fields[key]
		if current != nil && field.Equal(*current, proposed) {
			return nil, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("field %s: proposed value equals the current value", key))
		}

		changes = append(changes, models.FieldCorrection{
			FieldKey:      key,
			FieldLabel:    field.Label,
			CurrentValue:  current,
			ProposedValue: proposed,
		})
	}

	return &models.CorrectionRecord{
		EntityType:          entityType,
		EntityID:            req.EntityID,
		EntityDisplayName:   snapshot.DisplayName,
		Changes:             changes,
		Priority:            priority,
		SubmitterID:         submitter.ID,
		SubmitterTrustLevel: submitter.TrustLevel,
		SubmitterVerified:   submitter.Verified,
		OverallReason:       reason,
		SourceProof:         sourceProof,
		Status:              models.CorrectionStatusPending,
	}, nil
}
