package models

import "time"

// StatusCount pairs a correction status with its record count.
type StatusCount struct {
	Status CorrectionStatus `db:"status" json:"status"`
	Count  int              `db:"count" json:"count"`
}

// ReasonCount buckets rejection reasons by exact admin-notes text.
type ReasonCount struct {
	Reason string `db:"reason" json:"reason"`
	Count  int    `db:"count" json:"count"`
}

// TrustLevelCount buckets submissions by snapshotted submitter trust level.
type TrustLevelCount struct {
	TrustLevel int `db:"trust_level" json:"trustLevel"`
	Count      int `db:"count" json:"count"`
}

// EntityTypeCount buckets submissions by target entity type.
type EntityTypeCount struct {
	EntityType string `db:"entity_type" json:"entityType"`
	Count      int    `db:"count" json:"count"`
}

// SubmissionStats aggregates review outcomes across all corrections.
type SubmissionStats struct {
	Total            int           `json:"total"`
	ByStatus         []StatusCount `json:"byStatus"`
	ApprovalRate     float64       `json:"approvalRate"`
	AutoApprovalRate float64       `json:"autoApprovalRate"`
}

// CorrectionStatistics is the full aggregator payload for the reporting
// screens. Eventually consistent with the record store; short staleness is
// acceptable.
type CorrectionStatistics struct {
	Submissions       SubmissionStats   `json:"submissions"`
	Queue             QueueStats        `json:"queue"`
	TrustDistribution []TrustLevelCount `json:"trustDistribution"`
	RejectionReasons  []ReasonCount     `json:"rejectionReasons"`
	ByEntityType      []EntityTypeCount `json:"byEntityType"`
}

// SystemMetrics is a lightweight snapshot of runtime counters exposed on
// the statistics endpoints alongside the Prometheus scrape.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cacheHitRatio"`
	CacheHits                uint64    `json:"cacheHits"`
	CacheMisses              uint64    `json:"cacheMisses"`
	RequestsTotal            uint64    `json:"requestsTotal"`
	AverageRequestDurationMs float64   `json:"averageRequestDurationMs"`
	DBQueryCount             uint64    `json:"dbQueryCount"`
	AverageDBQueryDurationMs float64   `json:"averageDbQueryDurationMs"`
	QueueDepth               int       `json:"queueDepth"`
	AppliesTotal             uint64    `json:"appliesTotal"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generatedAt"`
}
