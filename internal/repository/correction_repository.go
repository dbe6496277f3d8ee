package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/uniguide/corrections-api/internal/models"
)

const correctionColumns = `id, entity_type, entity_id, entity_display_name, changes, priority,
       submitter_id, submitter_trust_level, submitter_verified, overall_reason, source_proof,
       status, auto_approval_reason, admin_notes, reviewer_id, created_at, reviewed_at, applied_at`

// CorrectionRepository persists correction workflow records. It is the sole
// writer of status, reviewed_at and applied_at; status changes go through
// conditional updates so concurrent reviewers cannot double-apply an edge.
type CorrectionRepository struct {
	db *sqlx.DB
}

// NewCorrectionRepository constructs the repository.
func NewCorrectionRepository(db *sqlx.DB) *CorrectionRepository {
	return &CorrectionRepository{db: db}
}

// Create inserts a new correction row.
func (r *CorrectionRepository) Create(ctx context.Context, record *models.CorrectionRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Status == "" {
		record.Status = models.CorrectionStatusPending
	}
	if record.Priority == "" {
		record.Priority = models.PriorityMedium
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO corrections
	(id, entity_type, entity_id, entity_display_name, changes, priority, submitter_id, submitter_trust_level, submitter_verified, overall_reason, source_proof, status, auto_approval_reason, admin_notes, reviewer_id, created_at, reviewed_at, applied_at)
	VALUES (:id, :entity_type, :entity_id, :entity_display_name, :changes, :priority, :submitter_id, :submitter_trust_level, :submitter_verified, :overall_reason, :source_proof, :status, :auto_approval_reason, :admin_notes, :reviewer_id, :created_at, :reviewed_at, :applied_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("create correction: %w", err)
	}
	return nil
}

// GetByID fetches a correction by identifier.
func (r *CorrectionRepository) GetByID(ctx context.Context, id string) (*models.CorrectionRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM corrections WHERE id = $1`, correctionColumns)
	var record models.CorrectionRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		return nil, err
	}
	return &record, nil
}

// List returns corrections matching the filter, urgent first then newest.
func (r *CorrectionRepository) List(ctx context.Context, filter models.CorrectionFilter) ([]models.CorrectionRecord, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 6)
	builder.WriteString(fmt.Sprintf(`SELECT %s FROM corrections`, correctionColumns))

	conditions := make([]string, 0, 4)
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.EntityType != "" {
		args = append(args, filter.EntityType)
		conditions = append(conditions, fmt.Sprintf("entity_type = $%d", len(args)))
	}
	if filter.EntityID != "" {
		args = append(args, filter.EntityID)
		conditions = append(conditions, fmt.Sprintf("entity_id = $%d", len(args)))
	}
	if filter.Priority != "" {
		args = append(args, filter.Priority)
		conditions = append(conditions, fmt.Sprintf("priority = $%d", len(args)))
	}
	if filter.SubmitterID != "" {
		args = append(args, filter.SubmitterID)
		conditions = append(conditions, fmt.Sprintf("submitter_id = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(` ORDER BY CASE priority WHEN 'URGENT' THEN 4 WHEN 'HIGH' THEN 3 WHEN 'MEDIUM' THEN 2 ELSE 1 END DESC, created_at DESC`)

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var records []models.CorrectionRecord
	if err := r.db.SelectContext(ctx, &records, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list corrections: %w", err)
	}
	return records, nil
}

// TransitionParams groups mutable columns for a status transition.
type TransitionParams struct {
	ID         string
	From       []models.CorrectionStatus
	To         models.CorrectionStatus
	ReviewerID *string
	ReviewedAt *time.Time
	AppliedAt  *time.Time
	AdminNotes *string
}

// Transition performs a conditional status update. sql.ErrNoRows signals the
// record was not in one of the expected From states, leaving it unchanged.
func (r *CorrectionRepository) Transition(ctx context.Context, params TransitionParams) error {
	setParts := []string{"status = :status"}
	if params.ReviewerID != nil {
		setParts = append(setParts, "reviewer_id = :reviewer_id")
	}
	if params.ReviewedAt != nil {
		setParts = append(setParts, "reviewed_at = :reviewed_at")
	}
	if params.AppliedAt != nil {
		setParts = append(setParts, "applied_at = :applied_at")
	}
	if params.AdminNotes != nil {
		setParts = append(setParts, "admin_notes = :admin_notes")
	}

	fromValues := make([]string, len(params.From))
	for i, status := range params.From {
		fromValues[i] = fmt.Sprintf("'%s'", status)
	}
	query := fmt.Sprintf("UPDATE corrections SET %s WHERE id = :id AND status IN (%s)",
		strings.Join(setParts, ", "),
		strings.Join(fromValues, ","),
	)
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":          params.ID,
		"status":      params.To,
		"reviewer_id": params.ReviewerID,
		"reviewed_at": params.ReviewedAt,
		"applied_at":  params.AppliedAt,
		"admin_notes": params.AdminNotes,
	})
	if err != nil {
		return fmt.Errorf("transition correction status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check transition rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
