package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/rpattn/medallion/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o644))
	return dir
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, cfg.File)
	assert.Equal(t, Default().Database, cfg.Database)
	assert.Equal(t, "bronze_inputs", cfg.Pipeline.SourceDir)
	assert.Equal(t, "batch", cfg.Pipeline.TransactionScope)
	assert.False(t, cfg.Pipeline.ContinueOnError)
}

func TestLoadReadsFile(t *testing.T) {
	dir := writeConfig(t, `
database:
  host: warehouse
  port: 6543
  dbname: lake
pipeline:
  source_dir: /data/inputs
  files:
    users: people.xlsx
  order: [users, content]
  rules_file: rules.yaml
  transaction_scope: entity
  continue_on_error: true
log:
  level: debug
  format: json
  file: logs/pipeline.log
`)
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config.yaml"), cfg.File)
	assert.Equal(t, "warehouse", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, "lake", cfg.Database.DBName)
	assert.Equal(t, "postgres", cfg.Database.User)
	assert.Equal(t, "/data/inputs", cfg.Pipeline.SourceDir)
	assert.Equal(t, map[string]string{"users": "people.xlsx"}, cfg.Pipeline.Files)
	assert.Equal(t, []string{"users", "content"}, cfg.Pipeline.Order)
	assert.Equal(t, "rules.yaml", cfg.Pipeline.RulesFile)
	assert.Equal(t, "entity", cfg.Pipeline.TransactionScope)
	assert.True(t, cfg.Pipeline.ContinueOnError)
	assert.Equal(t, "logs/pipeline.log", cfg.Log.File)

	level, err := cfg.Log.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	catalog, err := cfg.Catalog()
	require.NoError(t, err)
	users, _ := catalog.Lookup("users")
	assert.Equal(t, "people.xlsx", users.SourceFile)

	order, err := cfg.EntityOrder(catalog)
	require.NoError(t, err)
	assert.Equal(t, []string{"users", "content"}, order)
}

func TestLoadExplicitFile(t *testing.T) {
	dir := writeConfig(t, "pipeline:\n  source_dir: in\n")
	cfg, err := Load(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "in", cfg.Pipeline.SourceDir)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	dir := writeConfig(t, "database:\n  host: from-file\n")
	t.Setenv("DB_HOST", "from-env")
	t.Setenv("DB_PASSWORD", "s3cret")
	t.Setenv("MEDALLION_PIPELINE_SOURCE_DIR", "/env/inputs")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Database.Host)
	assert.Equal(t, "s3cret", cfg.Database.Password)
	assert.Equal(t, "/env/inputs", cfg.Pipeline.SourceDir)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"scope":      "pipeline:\n  transaction_scope: table\n",
		"log level":  "log:\n  level: loud\n",
		"log format": "log:\n  format: xml\n",
		"source dir": "pipeline:\n  source_dir: \"\"\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.ErrorIs(t, err, domain.ErrConfiguration)
		})
	}
}

func TestCatalogRejectsUnknownFileMapping(t *testing.T) {
	cfg := Default()
	cfg.Pipeline.Files = map[string]string{"ghosts": "ghosts.csv"}
	_, err := cfg.Catalog()
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestEntityOrderDefaultsToDependencyOrder(t *testing.T) {
	cfg := Default()
	catalog, err := cfg.Catalog()
	require.NoError(t, err)

	order, err := cfg.EntityOrder(catalog)
	require.NoError(t, err)
	assert.Equal(t, []string{"users", "content", "subscriptions", "payments", "viewing_logs"}, order)

	cfg.Pipeline.Order = []string{"subscriptions", "users"}
	_, err = cfg.EntityOrder(catalog)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
