package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rpattn/medallion/internal/domain"

	"github.com/spf13/viper"
)

// Load reads config.yaml from configPath (a directory or a file path), then
// applies DB_* environment overrides to the database block and MEDALLION_*
// overrides to everything else.
func Load(configPath string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetEnvPrefix("MEDALLION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, cfg)

	// Database keys keep the short DB_* names.
	for _, key := range []string{"host", "port", "user", "password", "dbname", "sslmode"} {
		if err := v.BindEnv("database."+key, "DB_"+strings.ToUpper(key)); err != nil {
			return cfg, fmt.Errorf("failed to bind env for database.%s: %w", key, err)
		}
	}

	explicit := strings.HasSuffix(configPath, ".yaml") || strings.HasSuffix(configPath, ".yml")
	if explicit {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if configPath == "" {
			configPath = "."
		}
		v.AddConfigPath(configPath)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("%w: failed to read config: %w", domain.ErrConfiguration, err)
		}
	} else {
		cfg.File = v.ConfigFileUsed()
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("%w: failed to decode config: %w", domain.ErrConfiguration, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("database.host", cfg.Database.Host)
	v.SetDefault("database.port", cfg.Database.Port)
	v.SetDefault("database.user", cfg.Database.User)
	v.SetDefault("database.password", cfg.Database.Password)
	v.SetDefault("database.dbname", cfg.Database.DBName)
	v.SetDefault("database.sslmode", cfg.Database.SSLMode)

	v.SetDefault("pipeline.source_dir", cfg.Pipeline.SourceDir)
	v.SetDefault("pipeline.files", map[string]string{})
	v.SetDefault("pipeline.order", []string{})
	v.SetDefault("pipeline.rules_file", cfg.Pipeline.RulesFile)
	v.SetDefault("pipeline.transaction_scope", cfg.Pipeline.TransactionScope)
	v.SetDefault("pipeline.allow_absent_dependencies", cfg.Pipeline.AllowAbsentDependencies)
	v.SetDefault("pipeline.continue_on_error", cfg.Pipeline.ContinueOnError)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.file", cfg.Log.File)
}
