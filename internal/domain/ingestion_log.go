package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditStatus is the outcome of one ingestion attempt.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusFailure AuditStatus = "failure"
)

// IngestionAuditRecord is the immutable provenance entry written for every
// ingestion attempt, successful or not.
type IngestionAuditRecord struct {
	ID           uuid.UUID   `json:"id"`
	RunID        uuid.UUID   `json:"run_id"`
	EntityName   string      `json:"entity_name"`
	SourceFile   string      `json:"source_file"`
	RowCount     int         `json:"row_count"`
	Checksum     string      `json:"checksum"`
	Status       AuditStatus `json:"status"`
	ErrorMessage string      `json:"error_message,omitempty"`
	StartedAt    time.Time   `json:"started_at"`
	RecordedAt   time.Time   `json:"recorded_at"`
}

// NewIngestionAuditRecord stamps a new record with an id.
func NewIngestionAuditRecord(runID uuid.UUID, entity, sourceFile string, startedAt time.Time) IngestionAuditRecord {
	return IngestionAuditRecord{
		ID:         uuid.New(),
		RunID:      runID,
		EntityName: entity,
		SourceFile: sourceFile,
		StartedAt:  startedAt,
	}
}

// Duration is the time spent between the start of the attempt and the record.
func (r IngestionAuditRecord) Duration() time.Duration {
	if r.RecordedAt.IsZero() || r.StartedAt.IsZero() {
		return 0
	}
	return r.RecordedAt.Sub(r.StartedAt)
}

// QuarantineRecord is one raw row rejected by a quality rule.
type QuarantineRecord struct {
	ID         int64           `json:"id"`
	RunID      uuid.UUID       `json:"run_id"`
	TableName  string          `json:"table_name"`
	RuleName   string          `json:"rule_name"`
	Reason     string          `json:"rejection_reason"`
	RejectedAt time.Time       `json:"rejected_at"`
	RowData    json.RawMessage `json:"row_data"`
}
