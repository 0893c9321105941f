package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(entities []Entity) []string {
	out := make([]string, len(entities))
	for i, e := range entities {
		out[i] = e.Name
	}
	return out
}

func TestDefaultCatalogTopologicalOrder(t *testing.T) {
	order, err := DefaultCatalog().TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"users", "content", "subscriptions", "payments", "viewing_logs"}, names(order))
}

func TestTopologicalOrderMovesDependencyFirst(t *testing.T) {
	entities := DefaultEntities()
	// declare subscriptions before users
	entities[0], entities[2] = entities[2], entities[0]

	c, err := NewCatalog(entities)
	require.NoError(t, err)

	order, err := c.TopologicalOrder()
	require.NoError(t, err)
	got := names(order)
	assert.Less(t, indexOf(got, "users"), indexOf(got, "subscriptions"))
}

func TestNewCatalogRejectsCycle(t *testing.T) {
	entities := DefaultEntities()
	entities[0].ForeignKeys = []ForeignKey{{Field: "user_id", Entity: "subscriptions", ReferencedField: "user_id"}}

	_, err := NewCatalog(entities)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfiguration))
	assert.Contains(t, err.Error(), "cycle")
}

func TestNewCatalogRejectsUnknownReference(t *testing.T) {
	entities := DefaultEntities()
	entities[3].ForeignKeys = []ForeignKey{{Field: "subscription_id", Entity: "plans", ReferencedField: "id"}}

	_, err := NewCatalog(entities)
	require.ErrorIs(t, err, ErrConfiguration)
	assert.Contains(t, err.Error(), "unknown entity plans")
}

func TestNewCatalogRejectsBadDefinitions(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(e *Entity)
	}{
		{"bad name", func(e *Entity) { e.Name = "Users; drop" }},
		{"no source", func(e *Entity) { e.SourceFile = "" }},
		{"unknown type", func(e *Entity) { e.Fields[1].Type = "money" }},
		{"key not a field", func(e *Entity) { e.NaturalKey = []string{"id"} }},
		{"rename to unknown", func(e *Entity) { e.Renames = map[string]string{"x": "nope"} }},
		{"reserved field", func(e *Entity) { e.Fields[2].Name = ExtraColumnsField }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entities := DefaultEntities()
			tt.mutate(&entities[0])
			_, err := NewCatalog(entities)
			require.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestResolveEnforcesDependencyOrder(t *testing.T) {
	c := DefaultCatalog()

	_, err := c.Resolve([]string{"subscriptions", "users"}, false)
	require.ErrorIs(t, err, ErrConfiguration)

	_, err = c.Resolve([]string{"subscriptions"}, false)
	require.ErrorIs(t, err, ErrConfiguration)

	resolved, err := c.Resolve([]string{"subscriptions"}, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"subscriptions"}, names(resolved))

	resolved, err = c.Resolve([]string{"users", "subscriptions", "payments"}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"users", "subscriptions", "payments"}, names(resolved))

	_, err = c.Resolve([]string{"users", "ghosts"}, true)
	require.ErrorIs(t, err, ErrConfiguration)

	_, err = c.Resolve([]string{"users", "users"}, true)
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestDependents(t *testing.T) {
	c := DefaultCatalog()
	assert.Equal(t, map[string]bool{"subscriptions": true}, c.Dependents("users"))
	assert.Empty(t, c.Dependents("payments"))
}

func TestWithSourceFiles(t *testing.T) {
	c, err := DefaultCatalog().WithSourceFiles(map[string]string{"users": "people.xlsx"})
	require.NoError(t, err)
	users, ok := c.Lookup("users")
	require.True(t, ok)
	assert.Equal(t, "people.xlsx", users.SourceFile)

	_, err = DefaultCatalog().WithSourceFiles(map[string]string{"ghosts": "g.csv"})
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestRequiredFieldsIncludesNaturalKey(t *testing.T) {
	users, _ := DefaultCatalog().Lookup("users")
	assert.Equal(t, []string{"user_id", "age"}, users.RequiredFields())
}

func indexOf(list []string, v string) int {
	for i, s := range list {
		if s == v {
			return i
		}
	}
	return -1
}
