package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/rpattn/medallion/internal/db"
	"github.com/rpattn/medallion/internal/domain"

	"github.com/jackc/pgx/v5"
)

type rawRepository struct {
	tx db.Transactor
}

// NewRawRepository wires a raw-tier repository. Every Replace runs in its own
// transaction so readers never see a cleared but unfilled table.
func NewRawRepository(tx db.Transactor) RawRepository {
	return &rawRepository{tx: tx}
}

func (r *rawRepository) Replace(ctx context.Context, entity domain.Entity, columns []string, rows [][]any) (int64, error) {
	if r.tx == nil {
		return 0, fmt.Errorf("raw repository not initialized")
	}
	for _, col := range columns {
		if !domain.IsIdentifier(col) {
			return 0, fmt.Errorf("%w: invalid column %q for %s", domain.ErrSchemaMismatch, col, entity.Name)
		}
	}

	var copied int64
	err := r.tx.WithTx(ctx, func(q db.Querier) error {
		// No foreign keys are declared on the raw tier, so nothing cascades.
		if _, err := q.Exec(ctx, "TRUNCATE TABLE "+entity.RawTable()); err != nil {
			return fmt.Errorf("failed to clear %s: %w", entity.RawTable(), err)
		}
		if len(rows) == 0 {
			return nil
		}
		n, err := q.CopyFrom(ctx, pgx.Identifier{"bronze", entity.Name}, columns, pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("failed to copy rows into %s: %w", entity.RawTable(), err)
		}
		copied = n
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrTransactionFailure, err)
	}
	return copied, nil
}

// RawTableDDL renders the CREATE TABLE statement for an entity's raw table.
func RawTableDDL(entity domain.Entity) string {
	defs := make([]string, 0, len(entity.Fields)+1)
	for _, f := range entity.Fields {
		defs = append(defs, fmt.Sprintf("%s %s", f.Name, strings.ToUpper(f.Type.SQLType())))
	}
	defs = append(defs, domain.ExtraColumnsField+" JSONB")
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n    %s\n)", entity.RawTable(), strings.Join(defs, ",\n    "))
}

// EnsureRawTables creates the raw table of every entity that does not have one.
func EnsureRawTables(ctx context.Context, q db.Querier, entities []domain.Entity) error {
	for _, e := range entities {
		if _, err := q.Exec(ctx, RawTableDDL(e)); err != nil {
			return fmt.Errorf("failed to create %s: %w", e.RawTable(), err)
		}
	}
	return nil
}
