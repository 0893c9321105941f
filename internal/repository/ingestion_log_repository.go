package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/rpattn/medallion/internal/db"
	"github.com/rpattn/medallion/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type ingestionLogRepository struct {
	q db.Querier
}

// NewIngestionLogRepository wires a repository backed by the given querier.
func NewIngestionLogRepository(q db.Querier) IngestionLogRepository {
	return &ingestionLogRepository{q: q}
}

func (r *ingestionLogRepository) Record(ctx context.Context, entry domain.IngestionAuditRecord) error {
	if r.q == nil {
		return fmt.Errorf("ingestion log repository not initialized")
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	var errorMessage any
	if entry.ErrorMessage != "" {
		errorMessage = entry.ErrorMessage
	}
	var recordedAt any
	if !entry.RecordedAt.IsZero() {
		recordedAt = entry.RecordedAt
	}

	_, err := r.q.Exec(
		ctx,
		`INSERT INTO audit.ingestion_log
		   (id, run_id, entity_name, source_file, row_count, checksum, status, error_message, started_at, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, COALESCE($10, CURRENT_TIMESTAMP))`,
		entry.ID,
		entry.RunID,
		entry.EntityName,
		entry.SourceFile,
		entry.RowCount,
		entry.Checksum,
		string(entry.Status),
		errorMessage,
		entry.StartedAt,
		recordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record ingestion log: %w", err)
	}

	return nil
}

func (r *ingestionLogRepository) List(ctx context.Context, filter AuditFilter) ([]domain.IngestionAuditRecord, error) {
	if r.q == nil {
		return nil, fmt.Errorf("ingestion log repository not initialized")
	}

	limit, offset := normalizePage(filter.Limit, filter.Offset)

	var (
		conditions []string
		args       []any
	)
	if filter.EntityName != "" {
		args = append(args, filter.EntityName)
		conditions = append(conditions, fmt.Sprintf("entity_name = $%d", len(args)))
	}
	if filter.RunID != uuid.Nil {
		args = append(args, filter.RunID)
		conditions = append(conditions, fmt.Sprintf("run_id = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	args = append(args, limit, offset)

	rows, err := r.q.Query(
		ctx,
		fmt.Sprintf(
			`SELECT id, run_id, entity_name, source_file, row_count, checksum, status, error_message, started_at, recorded_at
			 FROM audit.ingestion_log
			 %s
			 ORDER BY recorded_at DESC, id
			 LIMIT $%d OFFSET $%d`,
			where, len(args)-1, len(args),
		),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list ingestion logs: %w", err)
	}
	defer rows.Close()

	logs := []domain.IngestionAuditRecord{}
	for rows.Next() {
		var (
			entry        domain.IngestionAuditRecord
			status       string
			errorMessage pgtype.Text
			startedAt    pgtype.Timestamptz
			recordedAt   pgtype.Timestamptz
		)
		if scanErr := rows.Scan(
			&entry.ID,
			&entry.RunID,
			&entry.EntityName,
			&entry.SourceFile,
			&entry.RowCount,
			&entry.Checksum,
			&status,
			&errorMessage,
			&startedAt,
			&recordedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan ingestion log: %w", scanErr)
		}

		entry.Status = domain.AuditStatus(status)
		if errorMessage.Valid {
			entry.ErrorMessage = errorMessage.String
		}
		if startedAt.Valid {
			entry.StartedAt = startedAt.Time
		}
		if recordedAt.Valid {
			entry.RecordedAt = recordedAt.Time
		}

		logs = append(logs, entry)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate ingestion logs: %w", rowsErr)
	}

	return logs, nil
}
