package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/rpattn/medallion/internal/db"
	"github.com/rpattn/medallion/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQuerier struct {
	execs      []string
	copiedInto pgx.Identifier
	copiedCols []string
	copied     [][]any
	execErr    error
	copyErr    error
}

func (f *fakeQuerier) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)
	return pgconn.CommandTag{}, f.execErr
}

func (f *fakeQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not supported")
}

func (f *fakeQuerier) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	if f.copyErr != nil {
		return 0, f.copyErr
	}
	f.copiedInto = tableName
	f.copiedCols = columnNames
	for rowSrc.Next() {
		values, err := rowSrc.Values()
		if err != nil {
			return 0, err
		}
		f.copied = append(f.copied, values)
	}
	return int64(len(f.copied)), nil
}

type fakeTransactor struct {
	q          *fakeQuerier
	committed  int
	rolledBack int
}

func (f *fakeTransactor) WithTx(ctx context.Context, fn func(db.Querier) error) error {
	if err := fn(f.q); err != nil {
		f.rolledBack++
		return err
	}
	f.committed++
	return nil
}

func usersEntity(t *testing.T) domain.Entity {
	t.Helper()
	users, ok := domain.DefaultCatalog().Lookup("users")
	require.True(t, ok)
	return users
}

func TestRawRepositoryReplaceTruncatesThenCopies(t *testing.T) {
	q := &fakeQuerier{}
	tx := &fakeTransactor{q: q}
	repo := NewRawRepository(tx)

	cols := []string{"user_id", "age"}
	rows := [][]any{{"u1", int64(30)}, {"u2", int64(3)}}
	n, err := repo.Replace(context.Background(), usersEntity(t), cols, rows)
	require.NoError(t, err)

	assert.Equal(t, int64(2), n)
	assert.Equal(t, []string{"TRUNCATE TABLE bronze.users"}, q.execs)
	assert.Equal(t, pgx.Identifier{"bronze", "users"}, q.copiedInto)
	assert.Equal(t, cols, q.copiedCols)
	assert.Equal(t, rows, q.copied)
	assert.Equal(t, 1, tx.committed)
}

func TestRawRepositoryReplaceEmptyStillClears(t *testing.T) {
	q := &fakeQuerier{}
	repo := NewRawRepository(&fakeTransactor{q: q})

	n, err := repo.Replace(context.Background(), usersEntity(t), []string{"user_id"}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, q.execs, 1)
	assert.Nil(t, q.copiedInto)
}

func TestRawRepositoryReplaceRollsBackOnCopyFailure(t *testing.T) {
	q := &fakeQuerier{copyErr: errors.New("disk full")}
	tx := &fakeTransactor{q: q}
	repo := NewRawRepository(tx)

	_, err := repo.Replace(context.Background(), usersEntity(t), []string{"user_id"}, [][]any{{"u1"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTransactionFailure)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 1, tx.rolledBack)
	assert.Zero(t, tx.committed)
}

func TestRawRepositoryReplaceRejectsUnsafeColumns(t *testing.T) {
	q := &fakeQuerier{}
	repo := NewRawRepository(&fakeTransactor{q: q})

	_, err := repo.Replace(context.Background(), usersEntity(t), []string{"user_id; drop"}, nil)
	require.ErrorIs(t, err, domain.ErrSchemaMismatch)
	assert.Empty(t, q.execs)
}

func TestRawTableDDL(t *testing.T) {
	want := "CREATE TABLE IF NOT EXISTS bronze.users (\n" +
		"    user_id TEXT,\n" +
		"    signup_date DATE,\n" +
		"    country TEXT,\n" +
		"    age INTEGER,\n" +
		"    device_type TEXT,\n" +
		"    extra_columns JSONB\n" +
		")"
	assert.Equal(t, want, RawTableDDL(usersEntity(t)))
}

func TestEnsureRawTables(t *testing.T) {
	q := &fakeQuerier{}
	err := EnsureRawTables(context.Background(), q, domain.DefaultCatalog().Entities())
	require.NoError(t, err)
	assert.Len(t, q.execs, 5)
	assert.Contains(t, q.execs[3], "bronze.payments")
	assert.Contains(t, q.execs[3], "amount NUMERIC")
}
