package repository

import (
	"context"

	"github.com/rpattn/medallion/internal/domain"

	"github.com/google/uuid"
)

// RawRepository owns writes to the raw (bronze) tier.
type RawRepository interface {
	// Replace atomically swaps the entity's raw contents for rows.
	Replace(ctx context.Context, entity domain.Entity, columns []string, rows [][]any) (int64, error)
}

// IngestionLogRepository appends and reads ingestion audit records.
type IngestionLogRepository interface {
	Record(ctx context.Context, entry domain.IngestionAuditRecord) error
	List(ctx context.Context, filter AuditFilter) ([]domain.IngestionAuditRecord, error)
}

// QuarantineRepository reads rows captured by reject rules.
type QuarantineRepository interface {
	List(ctx context.Context, filter QuarantineFilter) ([]domain.QuarantineRecord, error)
	CountByRule(ctx context.Context, runID uuid.UUID) (map[string]int64, error)
}

// AuditFilter narrows an audit listing. Zero values mean "any".
type AuditFilter struct {
	EntityName string
	RunID      uuid.UUID
	Limit      int
	Offset     int
}

// QuarantineFilter narrows a quarantine listing. Zero values mean "any".
type QuarantineFilter struct {
	TableName string
	RuleName  string
	RunID     uuid.UUID
	Limit     int
	Offset    int
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
