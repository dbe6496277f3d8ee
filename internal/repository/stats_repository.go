package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/uniguide/corrections-api/internal/models"
)

// StatsRepository runs the read-only aggregate queries behind the
// statistics screens. It never mutates workflow state.
type StatsRepository struct {
	db *sqlx.DB
}

// NewStatsRepository constructs the repository.
func NewStatsRepository(db *sqlx.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// StatusCounts returns the number of corrections per status.
func (r *StatsRepository) StatusCounts(ctx context.Context) ([]models.StatusCount, error) {
	const query = `SELECT status, COUNT(*) AS count FROM corrections GROUP BY status ORDER BY status`
	var counts []models.StatusCount
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("status counts: %w", err)
	}
	return counts, nil
}

// RejectionReasons returns the top-N exact-match rejection reason buckets.
func (r *StatsRepository) RejectionReasons(ctx context.Context, limit int) ([]models.ReasonCount, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	const query = `SELECT admin_notes AS reason, COUNT(*) AS count FROM corrections
	WHERE status = 'REJECTED' AND admin_notes IS NOT NULL
	GROUP BY admin_notes ORDER BY count DESC, reason ASC LIMIT $1`
	var reasons []models.ReasonCount
	if err := r.db.SelectContext(ctx, &reasons, query, limit); err != nil {
		return nil, fmt.Errorf("rejection reasons: %w", err)
	}
	return reasons, nil
}

// TrustDistribution returns submission counts per snapshotted trust level.
func (r *StatsRepository) TrustDistribution(ctx context.Context) ([]models.TrustLevelCount, error) {
	const query = `SELECT submitter_trust_level AS trust_level, COUNT(*) AS count FROM corrections
	GROUP BY submitter_trust_level ORDER BY trust_level`
	var counts []models.TrustLevelCount
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("trust distribution: %w", err)
	}
	return counts, nil
}

// EntityTypeCounts returns submission counts per entity type.
func (r *StatsRepository) EntityTypeCounts(ctx context.Context) ([]models.EntityTypeCount, error) {
	const query = `SELECT entity_type, COUNT(*) AS count FROM corrections GROUP BY entity_type ORDER BY count DESC`
	var counts []models.EntityTypeCount
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("entity type counts: %w", err)
	}
	return counts, nil
}
