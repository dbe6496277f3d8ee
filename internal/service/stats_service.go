package service

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/uniguide/corrections-api/internal/models"
	appErrors "github.com/uniguide/corrections-api/pkg/errors"
	"github.com/uniguide/corrections-api/pkg/export"
)

const statsCacheKey = "stats:corrections"

type statsStore interface {
	StatusCounts(ctx context.Context) ([]models.StatusCount, error)
	RejectionReasons(ctx context.Context, limit int) ([]models.ReasonCount, error)
	TrustDistribution(ctx context.Context) ([]models.TrustLevelCount, error)
	EntityTypeCounts(ctx context.Context) ([]models.EntityTypeCount, error)
}

type queueStatsProvider interface {
	QueueStats(ctx context.Context) (*models.QueueStats, error)
}

// StatsService aggregates correction and queue statistics. Results are
// cached briefly in Redis because the dashboards poll aggressively and
// every rollup is a pile of GROUP BY queries.
type StatsService struct {
	stats      statsStore
	queue      queueStatsProvider
	cache      *CacheService
	cacheTTL   time.Duration
	topReasons int
	logger     *zap.Logger
}

// NewStatsService constructs the service. cache may be nil when Redis is
// disabled.
func NewStatsService(stats statsStore, queue queueStatsProvider, cache *CacheService, cacheTTL time.Duration, topReasons int, logger *zap.Logger) *StatsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if topReasons <= 0 {
		topReasons = 10
	}
	return &StatsService{
		stats:      stats,
		queue:      queue,
		cache:      cache,
		cacheTTL:   cacheTTL,
		topReasons: topReasons,
		logger:     logger,
	}
}

// Statistics computes the full rollup, serving from cache when fresh.
func (s *StatsService) Statistics(ctx context.Context) (*models.CorrectionStatistics, error) {
	if s.cache != nil && s.cache.Enabled() {
		var cached models.CorrectionStatistics
		hit, err := s.cache.Get(ctx, statsCacheKey, &cached)
		if err != nil {
			s.logger.Warn("stats cache read failed", zap.Error(err))
		}
		if hit {
			return &cached, nil
		}
	}

	out, err := s.compute(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil && s.cache.Enabled() {
		if err := s.cache.Set(ctx, statsCacheKey, out, s.cacheTTL); err != nil {
			s.logger.Warn("stats cache write failed", zap.Error(err))
		}
	}
	return out, nil
}

// Invalidate drops the cached rollup. Called after reviews and applies so
// the next dashboard poll sees fresh numbers.
func (s *StatsService) Invalidate(ctx context.Context) {
	if s.cache == nil || !s.cache.Enabled() {
		return
	}
	if err := s.cache.Invalidate(ctx, statsCacheKey); err != nil {
		s.logger.Warn("stats cache invalidation failed", zap.Error(err))
	}
}

func (s *StatsService) compute(ctx context.Context) (*models.CorrectionStatistics, error) {
	statuses, err := s.stats.StatusCounts(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count statuses")
	}
	reasons, err := s.stats.RejectionReasons(ctx, s.topReasons)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count rejection reasons")
	}
	trust, err := s.stats.TrustDistribution(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute trust distribution")
	}
	byEntity, err := s.stats.EntityTypeCounts(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count entity types")
	}
	queue, err := s.queue.QueueStats(ctx)
	if err != nil {
		return nil, err
	}

	return &models.CorrectionStatistics{
		Submissions:       summariseSubmissions(statuses),
		Queue:             *queue,
		TrustDistribution: trust,
		RejectionReasons:  reasons,
		ByEntityType:      byEntity,
	}, nil
}

// summariseSubmissions derives totals and rates from raw status counts.
// Approval rate is approved plus auto-approved over every submission;
// auto-approval rate is the auto-approved share of those approvals.
func summariseSubmissions(statuses []models.StatusCount) models.SubmissionStats {
	out := models.SubmissionStats{ByStatus: statuses}
	var approved, autoApproved int
	for _, sc := range statuses {
		out.Total += sc.Count
		switch sc.Status {
		case models.CorrectionStatusApproved:
			approved += sc.Count
		case models.CorrectionStatusAutoApproved:
			autoApproved += sc.Count
		}
	}
	accepted := approved + autoApproved
	if out.Total > 0 {
		out.ApprovalRate = float64(accepted) / float64(out.Total)
	}
	if accepted > 0 {
		out.AutoApprovalRate = float64(autoApproved) / float64(accepted)
	}
	return out
}

// ExportDataset flattens the rollup into the tabular form the CSV and PDF
// exporters consume.
func (s *StatsService) ExportDataset(ctx context.Context) (*export.Dataset, error) {
	stats, err := s.Statistics(ctx)
	if err != nil {
		return nil, err
	}

	ds := &export.Dataset{
		Headers: []string{"Section", "Key", "Count"},
	}
	row := func(section, key string, count int) {
		ds.Rows = append(ds.Rows, map[string]string{
			"Section": section,
			"Key":     key,
			"Count":   strconv.Itoa(count),
		})
	}
	for _, sc := range stats.Submissions.ByStatus {
		row("status", string(sc.Status), sc.Count)
	}
	for _, tc := range stats.TrustDistribution {
		row("trust_level", strconv.Itoa(tc.TrustLevel), tc.Count)
	}
	for _, rc := range stats.RejectionReasons {
		row("rejection_reason", rc.Reason, rc.Count)
	}
	for _, ec := range stats.ByEntityType {
		row("entity_type", ec.EntityType, ec.Count)
	}
	row("queue", "pending", stats.Queue.Pending)
	row("queue", "processing", stats.Queue.Processing)
	row("queue", "completed", stats.Queue.Completed)
	row("queue", "failed", stats.Queue.Failed)
	return ds, nil
}
