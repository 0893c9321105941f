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

type quarantineRepository struct {
	q db.Querier
}

// NewQuarantineRepository wires a read-only view of audit.rejected_rows.
// Rows are written by the rule engine's reject captures.
func NewQuarantineRepository(q db.Querier) QuarantineRepository {
	return &quarantineRepository{q: q}
}

func (r *quarantineRepository) List(ctx context.Context, filter QuarantineFilter) ([]domain.QuarantineRecord, error) {
	if r.q == nil {
		return nil, fmt.Errorf("quarantine repository not initialized")
	}

	limit, offset := normalizePage(filter.Limit, filter.Offset)

	var (
		conditions []string
		args       []any
	)
	if filter.TableName != "" {
		args = append(args, filter.TableName)
		conditions = append(conditions, fmt.Sprintf("table_name = $%d", len(args)))
	}
	if filter.RuleName != "" {
		args = append(args, filter.RuleName)
		conditions = append(conditions, fmt.Sprintf("rule_name = $%d", len(args)))
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
			`SELECT id, run_id, table_name, rule_name, rejection_reason, rejected_at, row_data
			 FROM audit.rejected_rows
			 %s
			 ORDER BY rejected_at DESC, id DESC
			 LIMIT $%d OFFSET $%d`,
			where, len(args)-1, len(args),
		),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list quarantined rows: %w", err)
	}
	defer rows.Close()

	records := []domain.QuarantineRecord{}
	for rows.Next() {
		var (
			record     domain.QuarantineRecord
			runID      pgtype.UUID
			rejectedAt pgtype.Timestamptz
			rowData    []byte
		)
		if scanErr := rows.Scan(
			&record.ID,
			&runID,
			&record.TableName,
			&record.RuleName,
			&record.Reason,
			&rejectedAt,
			&rowData,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan quarantined row: %w", scanErr)
		}
		if runID.Valid {
			record.RunID = uuid.UUID(runID.Bytes)
		}
		if rejectedAt.Valid {
			record.RejectedAt = rejectedAt.Time
		}
		record.RowData = rowData
		records = append(records, record)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate quarantined rows: %w", rowsErr)
	}

	return records, nil
}

// CountByRule counts quarantined rows per "table.rule"; uuid.Nil counts every run.
func (r *quarantineRepository) CountByRule(ctx context.Context, runID uuid.UUID) (map[string]int64, error) {
	if r.q == nil {
		return nil, fmt.Errorf("quarantine repository not initialized")
	}

	query := `SELECT table_name || '.' || rule_name, COUNT(*) FROM audit.rejected_rows`
	var args []any
	if runID != uuid.Nil {
		query += ` WHERE run_id = $1`
		args = append(args, runID)
	}
	query += ` GROUP BY table_name, rule_name`

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count quarantined rows: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var (
			key   string
			count int64
		)
		if err := rows.Scan(&key, &count); err != nil {
			return nil, fmt.Errorf("failed to scan quarantine count: %w", err)
		}
		counts[key] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate quarantine counts: %w", err)
	}
	return counts, nil
}
