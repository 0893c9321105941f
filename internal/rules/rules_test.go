package rules

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rpattn/medallion/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultBook(t *testing.T) *Rules {
	t.Helper()
	r, err := Default(domain.DefaultCatalog())
	require.NoError(t, err)
	return r
}

func TestDefaultRulesCoverEveryEntity(t *testing.T) {
	r := defaultBook(t)
	assert.Equal(t, []string{"content", "payments", "subscriptions", "users", "viewing_logs"}, r.Entities())
}

func TestUsersTransformSQL(t *testing.T) {
	set, ok := defaultBook(t).For("users")
	require.True(t, ok)
	require.Len(t, set.Transforms, 1)
	tr := set.Transforms[0]

	assert.Equal(t, "TRUNCATE TABLE silver.users", tr.TruncateSQL())
	assert.Equal(t,
		"INSERT INTO silver.users (user_id, signup_date, country, age, device_type) "+
			"SELECT DISTINCT user_id, signup_date, country, age, device_type FROM bronze.users u "+
			"WHERE (user_id IS NOT NULL) AND (age IS NOT NULL) AND (age BETWEEN 0 AND 150)",
		tr.InsertSQL())
	assert.Equal(t,
		"CREATE TABLE IF NOT EXISTS silver.users (\n"+
			"    user_id TEXT,\n"+
			"    signup_date DATE,\n"+
			"    country TEXT,\n"+
			"    age INTEGER,\n"+
			"    device_type TEXT\n)",
		tr.TableDDL())
}

func TestRejectCaptureSQL(t *testing.T) {
	r := defaultBook(t)

	users, _ := r.For("users")
	assert.Equal(t,
		"INSERT INTO audit.rejected_rows (run_id, table_name, rule_name, rejection_reason, rejected_at, row_data) "+
			"SELECT $1::uuid, $2::text, $3::text, $4::text, CURRENT_TIMESTAMP, to_jsonb(u) FROM bronze.users u "+
			"WHERE age < 5 OR age > 120",
		users.Rejects[0].CaptureSQL())
	assert.Equal(t, "silver.users", users.Rejects[0].Table)

	subs, _ := r.For("subscriptions")
	sql := subs.Rejects[0].CaptureSQL()
	assert.Contains(t, sql, "to_jsonb(s) FROM bronze.subscriptions s LEFT JOIN silver.users u ON s.user_id = u.user_id WHERE u.user_id IS NULL")
}

func TestViewingLogsCompletionFlag(t *testing.T) {
	set, _ := defaultBook(t).For("viewing_logs")
	tr := set.Transforms[0]

	last := tr.Columns[len(tr.Columns)-1]
	assert.Equal(t, "completed", last.Name)
	assert.Equal(t, domain.FieldTypeBoolean, last.Type)
	assert.Contains(t, tr.InsertSQL(), "WHEN completion_flag ILIKE 'y%' THEN TRUE")
	assert.Contains(t, tr.InsertSQL(), "ELSE NULL END AS completed FROM bronze.viewing_logs v WHERE log_id IS NOT NULL")
	assert.Contains(t, tr.InsertSQL(), "SELECT DISTINCT log_id, user_id, content_id")
	assert.Contains(t, tr.TableDDL(), "completed BOOLEAN")
}

func TestDefaultTransformsDropExactDuplicates(t *testing.T) {
	r := defaultBook(t)
	for _, name := range r.Entities() {
		set, _ := r.For(name)
		for _, tr := range set.Transforms {
			assert.True(t, tr.Distinct, "%s -> %s", name, tr.Target)
			assert.Contains(t, tr.InsertSQL(), "SELECT DISTINCT ", "%s -> %s", name, tr.Target)
		}
	}
}

func TestLoadRejectsInvalidRules(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", ""},
		{"unknown entity", "rule_sets:\n  - entity: ghosts\n    transforms:\n      - columns: [{name: id}]\n"},
		{"unknown key", "rule_sets:\n  - entity: users\n    filters: []\n"},
		{"no transform", "rule_sets:\n  - entity: users\n"},
		{"bad target", "rule_sets:\n  - entity: users\n    target: \"silver.users; drop\"\n    transforms:\n      - columns: [{name: user_id}]\n"},
		{"bad column", "rule_sets:\n  - entity: users\n    transforms:\n      - columns: [{name: \"User Id\"}]\n"},
		{"untyped column", "rule_sets:\n  - entity: users\n    transforms:\n      - columns: [{name: score, expr: age * 2}]\n"},
		{"duplicate rule", "rule_sets:\n  - entity: users\n    transforms:\n      - columns: [{name: user_id}]\n    rejects:\n" +
			"      - {name: r, reason: x, condition: age < 0}\n      - {name: r, reason: y, condition: age > 9}\n"},
		{"rule without condition", "rule_sets:\n  - entity: users\n    transforms:\n      - columns: [{name: user_id}]\n    rejects:\n      - {name: r, reason: x}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.doc), domain.DefaultCatalog())
			require.ErrorIs(t, err, domain.ErrConfiguration)
		})
	}
}

func TestLoadAppliesOverrides(t *testing.T) {
	doc := `
rule_sets:
  - entity: payments
    transforms:
      - target: silver.payments_eur
        columns:
          - name: payment_id
          - name: amount_eur
            expr: amount * 0.9
            type: decimal
        where: [payment_id IS NOT NULL]
`
	r, err := Load(strings.NewReader(doc), domain.DefaultCatalog())
	require.NoError(t, err)
	set, ok := r.For("payments")
	require.True(t, ok)
	assert.Equal(t,
		"INSERT INTO silver.payments_eur (payment_id, amount_eur) SELECT payment_id, amount * 0.9 AS amount_eur FROM bronze.payments payments WHERE payment_id IS NOT NULL",
		set.Transforms[0].InsertSQL())
	_, ok = r.For("users")
	assert.False(t, ok)
}

type execCall struct {
	sql  string
	args []any
}

type fakeQuerier struct {
	calls  []execCall
	tags   map[string]string
	failOn string
}

func (f *fakeQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	if f.failOn != "" && strings.Contains(sql, f.failOn) {
		return pgconn.CommandTag{}, errors.New("boom")
	}
	for prefix, tag := range f.tags {
		if strings.HasPrefix(sql, prefix) {
			return pgconn.NewCommandTag(tag), nil
		}
	}
	return pgconn.NewCommandTag("OK"), nil
}

func (f *fakeQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeQuerier) CopyFrom(ctx context.Context, table pgx.Identifier, cols []string, src pgx.CopyFromSource) (int64, error) {
	return 0, errors.New("not implemented")
}

func TestApplyRunsTransformsThenRejects(t *testing.T) {
	set, _ := defaultBook(t).For("users")
	q := &fakeQuerier{tags: map[string]string{
		"INSERT INTO silver.users":        "INSERT 0 2",
		"INSERT INTO audit.rejected_rows": "INSERT 0 1",
	}}
	runID := uuid.New()

	outcome, err := NewEngine(nil).Apply(context.Background(), q, runID, set)
	require.NoError(t, err)
	assert.Equal(t, int64(2), outcome.Accepted)
	assert.Equal(t, map[string]int64{"age_range_check": 1}, outcome.Rejected)
	assert.Equal(t, int64(1), outcome.TotalRejected())

	require.Len(t, q.calls, 3)
	assert.Equal(t, "TRUNCATE TABLE silver.users", q.calls[0].sql)
	assert.True(t, strings.HasPrefix(q.calls[1].sql, "INSERT INTO silver.users"))
	assert.Equal(t, []any{runID, "silver.users", "age_range_check", "Age must be between 5 and 120"}, q.calls[2].args)
}

func TestApplyStopsOnFailure(t *testing.T) {
	set, _ := defaultBook(t).For("subscriptions")
	q := &fakeQuerier{failOn: "INSERT INTO silver.subscriptions"}

	_, err := NewEngine(nil).Apply(context.Background(), q, uuid.New(), set)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to populate silver.subscriptions")
	assert.Len(t, q.calls, 2)
}

func TestEnsureTargets(t *testing.T) {
	q := &fakeQuerier{}
	require.NoError(t, EnsureTargets(context.Background(), q, defaultBook(t)))
	require.Len(t, q.calls, 5)
	assert.True(t, strings.HasPrefix(q.calls[0].sql, "CREATE TABLE IF NOT EXISTS silver.content"))
	assert.Contains(t, q.calls[1].sql, "amount NUMERIC")
}
