package cli

import (
	"context"
	"io"
	"log/slog"

	"github.com/rpattn/medallion/internal/config"
	"github.com/rpattn/medallion/internal/db"
	"github.com/rpattn/medallion/internal/domain"
	"github.com/rpattn/medallion/internal/ingestion"
	"github.com/rpattn/medallion/internal/pipeline"
	"github.com/rpattn/medallion/internal/promotion"
	"github.com/rpattn/medallion/internal/repository"
	"github.com/rpattn/medallion/internal/rules"
)

// app holds everything a command needs once configuration is loaded.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	closeLog func() error
	catalog  *domain.Catalog
	rules    *rules.Rules
	conn     *db.Connection
}

// loadApp reads configuration, sets up logging and validates the catalog and
// rules. It does not touch the database.
func loadApp(opts *RootOptions, stderr io.Writer, adjust func(*config.Config)) (*app, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	if adjust != nil {
		adjust(&cfg)
		if err := cfg.Validate(); err != nil {
			return nil, WrapExitError(ExitCommandError, "invalid flags", err)
		}
	}

	logger, closeLog, err := newLogger(cfg.Log, opts.Verbose, stderr)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to set up logging", err)
	}
	if cfg.File != "" {
		logger.Debug("configuration loaded", "file", cfg.File)
	}

	a := &app{cfg: cfg, logger: logger, closeLog: closeLog}

	a.catalog, err = cfg.Catalog()
	if err != nil {
		a.close()
		return nil, WrapExitError(ExitCommandError, "invalid entity catalog", err)
	}
	a.rules, err = rules.LoadFile(cfg.Pipeline.RulesFile, a.catalog)
	if err != nil {
		a.close()
		return nil, WrapExitError(ExitCommandError, "invalid rules", err)
	}
	return a, nil
}

func (a *app) connect(ctx context.Context) error {
	conn, err := db.NewConnection(ctx, a.cfg.Database, a.logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to connect to database", err)
	}
	a.conn = conn
	return nil
}

func (a *app) close() {
	if a.conn != nil {
		a.conn.Close()
	}
	if a.closeLog != nil {
		if err := a.closeLog(); err != nil {
			a.logger.Warn("failed to close log file", "error", err)
		}
	}
}

// runner wires the storage-backed stages. connect must have succeeded.
func (a *app) runner() (*pipeline.Runner, error) {
	scope, err := promotion.ParseScope(a.cfg.Pipeline.TransactionScope)
	if err != nil {
		return nil, err
	}
	order, err := a.cfg.EntityOrder(a.catalog)
	if err != nil {
		return nil, err
	}

	storage := pipeline.NewStorageInitializer(
		func() error { return db.RunMigrations(a.cfg.Database, a.logger) },
		a.conn, a.catalog, a.rules, a.logger,
	)
	ingester := ingestion.NewService(
		ingestion.NewDirSource(nil, a.cfg.Pipeline.SourceDir),
		repository.NewRawRepository(a.conn),
		repository.NewIngestionLogRepository(a.conn.Pool),
		a.logger,
	)
	promoter := promotion.NewOrchestrator(
		a.conn, a.catalog, a.rules, rules.NewEngine(a.logger),
		promotion.Options{Scope: scope, AllowAbsentDependencies: a.cfg.Pipeline.AllowAbsentDependencies},
		a.logger,
	)

	return pipeline.NewRunner(a.catalog, storage, ingester, promoter, pipeline.Options{
		Order:           order,
		ContinueOnError: a.cfg.Pipeline.ContinueOnError,
	}, a.logger), nil
}
