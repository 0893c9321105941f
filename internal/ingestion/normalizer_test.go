package ingestion

import (
	"testing"

	"github.com/rpattn/medallion/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entity(t *testing.T, name string) domain.Entity {
	t.Helper()
	e, ok := domain.DefaultCatalog().Lookup(name)
	require.True(t, ok, "entity %s", name)
	return e
}

func TestNormalizeHeader(t *testing.T) {
	assert.Equal(t, "signup_date", NormalizeHeader("  Signup   Date "))
	assert.Equal(t, "unnamed:_0", NormalizeHeader("Unnamed: 0"))
	assert.Equal(t, "user_id", NormalizeHeader("user_id"))
	assert.Equal(t, "", NormalizeHeader("   "))
}

func TestNormalizeRenamesSyntheticKeyAndDropsJunk(t *testing.T) {
	m, err := NewNormalizer(entity(t, "viewing_logs")).Normalize([]string{
		"Unnamed: 0", "User ID", "content_id", "genre", "watch_time_m", "date", "completion_flag", "Unnamed: 8", "",
	})
	require.NoError(t, err)

	actions := make([]ColumnAction, len(m.Columns))
	for i, c := range m.Columns {
		actions[i] = c.Action
	}
	assert.Equal(t, []ColumnAction{
		ColumnRenamed, ColumnCanonical, ColumnCanonical, ColumnCanonical, ColumnCanonical,
		ColumnCanonical, ColumnCanonical, ColumnDropped, ColumnDropped,
	}, actions)
	assert.Equal(t, "log_id", m.Columns[0].Name)

	idx, ok := m.SourceIndex("log_id")
	require.True(t, ok)
	assert.Equal(t, 0, idx)
	assert.Empty(t, m.Missing())
}

func TestNormalizeKeepsUnknownNamedColumns(t *testing.T) {
	m, err := NewNormalizer(entity(t, "users")).Normalize([]string{"user_id", "Age", "Referrer", "referrer"})
	require.NoError(t, err)

	assert.Equal(t, ColumnPassthrough, m.Columns[2].Action)
	assert.Equal(t, "referrer", m.Columns[2].Name)
	assert.Equal(t, ColumnPassthrough, m.Columns[3].Action)
	assert.Equal(t, "referrer_2", m.Columns[3].Name)
	assert.Equal(t, []int{2, 3}, m.Passthrough())
	assert.Equal(t, []string{"signup_date", "country", "device_type"}, m.Missing())
}

func TestNormalizeAppliesAliasRename(t *testing.T) {
	m, err := NewNormalizer(entity(t, "content")).Normalize([]string{"content_id", "release_date"})
	require.NoError(t, err)
	assert.Equal(t, ColumnRenamed, m.Columns[1].Action)
	assert.Equal(t, "release_year", m.Columns[1].Name)
}

func TestNormalizeRejectsMissingKey(t *testing.T) {
	_, err := NewNormalizer(entity(t, "users")).Normalize([]string{"age", "country"})
	require.ErrorIs(t, err, domain.ErrSchemaMismatch)
	assert.Contains(t, err.Error(), "user_id")
}

func TestNormalizeRejectsAmbiguousColumns(t *testing.T) {
	_, err := NewNormalizer(entity(t, "users")).Normalize([]string{"user_id", "User ID"})
	require.ErrorIs(t, err, domain.ErrSchemaMismatch)
}

func TestNormalizeDropsIndexColumnWhenKeyIsNamed(t *testing.T) {
	m, err := NewNormalizer(entity(t, "users")).Normalize([]string{
		"Unnamed: 0", "user_id", "signup_date", "country", "age", "device_type",
	})
	require.NoError(t, err)

	assert.Equal(t, ColumnDropped, m.Columns[0].Action)
	assert.Equal(t, ColumnCanonical, m.Columns[1].Action)
	idx, ok := m.SourceIndex("user_id")
	require.True(t, ok)
	assert.Equal(t, 1, idx)
	assert.Empty(t, m.Passthrough())
	assert.Empty(t, m.Missing())
}

func TestNormalizeKeepsAliasWhenTargetIsNamed(t *testing.T) {
	m, err := NewNormalizer(entity(t, "content")).Normalize([]string{"content_id", "release_year", "release_date"})
	require.NoError(t, err)

	assert.Equal(t, ColumnCanonical, m.Columns[1].Action)
	assert.Equal(t, ColumnPassthrough, m.Columns[2].Action)
	assert.Equal(t, "release_date", m.Columns[2].Name)
	assert.Equal(t, []int{2}, m.Passthrough())
}
