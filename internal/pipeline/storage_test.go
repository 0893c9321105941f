package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rpattn/medallion/internal/db"
	"github.com/rpattn/medallion/internal/domain"
	"github.com/rpattn/medallion/internal/rules"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingQuerier struct {
	statements []string
}

func (r *recordingQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r.statements = append(r.statements, sql)
	return pgconn.NewCommandTag("CREATE TABLE"), nil
}

func (r *recordingQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (r *recordingQuerier) CopyFrom(ctx context.Context, table pgx.Identifier, cols []string, src pgx.CopyFromSource) (int64, error) {
	return 0, errors.New("not implemented")
}

type singleTx struct {
	q *recordingQuerier
}

func (s singleTx) WithTx(ctx context.Context, fn func(db.Querier) error) error {
	return fn(s.q)
}

func TestStorageInitializerCreatesBothTiers(t *testing.T) {
	catalog := domain.DefaultCatalog()
	book, err := rules.Default(catalog)
	require.NoError(t, err)

	migrated := 0
	q := &recordingQuerier{}
	initializer := NewStorageInitializer(func() error { migrated++; return nil }, singleTx{q: q}, catalog, book, nil)

	require.NoError(t, initializer.Init(context.Background()))
	assert.Equal(t, 1, migrated)
	require.Len(t, q.statements, 10)

	var bronze, silver int
	for _, stmt := range q.statements {
		switch {
		case strings.HasPrefix(stmt, "CREATE TABLE IF NOT EXISTS bronze."):
			bronze++
		case strings.HasPrefix(stmt, "CREATE TABLE IF NOT EXISTS silver."):
			silver++
		}
	}
	assert.Equal(t, 5, bronze)
	assert.Equal(t, 5, silver)
}

func TestStorageInitializerStopsOnMigrationError(t *testing.T) {
	catalog := domain.DefaultCatalog()
	book, err := rules.Default(catalog)
	require.NoError(t, err)

	q := &recordingQuerier{}
	initializer := NewStorageInitializer(func() error { return errors.New("connection refused") }, singleTx{q: q}, catalog, book, nil)

	require.Error(t, initializer.Init(context.Background()))
	assert.Empty(t, q.statements)
}
