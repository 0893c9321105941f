package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/rpattn/medallion/internal/db"
	"github.com/rpattn/medallion/internal/domain"
	"github.com/rpattn/medallion/internal/promotion"
)

// Config is the full pipeline configuration.
type Config struct {
	Database db.Config      `mapstructure:"database"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Log      LogConfig      `mapstructure:"log"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-"`
}

// PipelineConfig controls which sources are read and how they are promoted.
type PipelineConfig struct {
	SourceDir string `mapstructure:"source_dir"`
	// Files maps entity names to source file names inside SourceDir.
	Files map[string]string `mapstructure:"files"`
	// Order lists entity names in processing order. Empty means dependency order.
	Order                   []string `mapstructure:"order"`
	RulesFile               string   `mapstructure:"rules_file"`
	TransactionScope        string   `mapstructure:"transaction_scope"`
	AllowAbsentDependencies bool     `mapstructure:"allow_absent_dependencies"`
	ContinueOnError         bool     `mapstructure:"continue_on_error"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Database: db.DefaultConfig(),
		Pipeline: PipelineConfig{
			SourceDir:        "bronze_inputs",
			TransactionScope: string(promotion.ScopeBatch),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks values that cannot be checked by type alone.
func (c Config) Validate() error {
	if c.Pipeline.SourceDir == "" {
		return fmt.Errorf("%w: pipeline.source_dir is empty", domain.ErrConfiguration)
	}
	if _, err := promotion.ParseScope(c.Pipeline.TransactionScope); err != nil {
		return err
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: invalid log format %q: must be text or json", domain.ErrConfiguration, c.Log.Format)
	}
	return nil
}

// SlogLevel parses the configured log level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("%w: invalid log level %q", domain.ErrConfiguration, l.Level)
	}
	return level, nil
}

// Catalog builds the entity catalog with the configured file mapping applied.
func (c Config) Catalog() (*domain.Catalog, error) {
	return domain.DefaultCatalog().WithSourceFiles(c.Pipeline.Files)
}

// EntityOrder returns the entity names to process, in order. A configured
// order may omit dependencies; whether that is allowed depends on the stages
// run and is checked by the pipeline runner before any stage starts.
func (c Config) EntityOrder(catalog *domain.Catalog) ([]string, error) {
	if len(c.Pipeline.Order) > 0 {
		if _, err := catalog.Resolve(c.Pipeline.Order, true); err != nil {
			return nil, err
		}
		return append([]string(nil), c.Pipeline.Order...), nil
	}
	ordered, err := catalog.TopologicalOrder()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(ordered))
	for i, e := range ordered {
		names[i] = e.Name
	}
	return names, nil
}
