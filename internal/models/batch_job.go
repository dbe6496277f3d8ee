package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// BatchJobStatus tracks a queued mutation through the apply pipeline.
type BatchJobStatus string

const (
	BatchJobStatusPending    BatchJobStatus = "PENDING"
	BatchJobStatusProcessing BatchJobStatus = "PROCESSING"
	BatchJobStatusCompleted  BatchJobStatus = "COMPLETED"
	BatchJobStatusFailed     BatchJobStatus = "FAILED"
)

// Terminal reports whether the job can no longer change state.
func (s BatchJobStatus) Terminal() bool {
	return s == BatchJobStatusCompleted || s == BatchJobStatusFailed
}

// FieldWrite is one absolute column assignment within a compiled mutation.
type FieldWrite struct {
	Column string `json:"column"`
	Value  string `json:"value"`
}

// CompiledMutation is the deterministic, idempotent statement set produced
// by the compiler for one approved correction. Writes are sorted by column
// so compiling the same record always yields identical output, and every
// write is an unconditional assignment so applying twice equals applying
// once.
type CompiledMutation struct {
	EntityTable string       `json:"entityTable"`
	EntityID    string       `json:"entityId"`
	Writes      []FieldWrite `json:"writes"`
	Statements  []string     `json:"statements"`
}

// Value implements driver.Valuer.
func (m CompiledMutation) Value() (driver.Value, error) {
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *CompiledMutation) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*m = CompiledMutation{}
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("unsupported scan type %T for CompiledMutation", src)
	}
}

// BatchJob wraps one approved correction's compiled mutation in the durable
// apply queue. At most one non-terminal job may exist per correction; the
// batch_jobs table enforces this with a partial unique index.
type BatchJob struct {
	ID               string             `db:"id" json:"id"`
	CorrectionID     string             `db:"correction_id" json:"correctionId"`
	EntityType       string             `db:"entity_type" json:"entityType"`
	EntityID         string             `db:"entity_id" json:"entityId"`
	Priority         CorrectionPriority `db:"priority" json:"priority"`
	CompiledMutation CompiledMutation   `db:"compiled_mutation" json:"compiledMutation"`
	Status           BatchJobStatus     `db:"status" json:"status"`
	Attempts         int                `db:"attempts" json:"attempts"`
	LastError        *string            `db:"last_error" json:"lastError,omitempty"`
	CreatedAt        time.Time          `db:"created_at" json:"createdAt"`
	ProcessedAt      *time.Time         `db:"processed_at" json:"processedAt,omitempty"`
}

// BatchJobFilter constrains queue listing queries.
type BatchJobFilter struct {
	Status       []BatchJobStatus
	CorrectionID string
	EntityID     string
	Limit        int
	Offset       int
}

// QueueStats summarises queue health for the statistics screens.
type QueueStats struct {
	Pending    int `db:"pending" json:"pending"`
	Processing int `db:"processing" json:"processing"`
	Completed  int `db:"completed" json:"completed"`
	Failed     int `db:"failed" json:"failed"`
	Depth      int `db:"-" json:"depth"`
}
