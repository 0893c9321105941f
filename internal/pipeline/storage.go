package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rpattn/medallion/internal/db"
	"github.com/rpattn/medallion/internal/domain"
	"github.com/rpattn/medallion/internal/repository"
	"github.com/rpattn/medallion/internal/rules"
)

// StorageInitializer prepares the three tiers: it applies the schema
// migrations and then creates every raw and validated entity table.
type StorageInitializer struct {
	migrate func() error
	tx      db.Transactor
	catalog *domain.Catalog
	rules   *rules.Rules
	logger  *slog.Logger
}

// NewStorageInitializer creates an initializer. migrate may be nil when the
// schemas are managed elsewhere.
func NewStorageInitializer(migrate func() error, tx db.Transactor, catalog *domain.Catalog, ruleBook *rules.Rules, logger *slog.Logger) *StorageInitializer {
	if logger == nil {
		logger = slog.Default()
	}
	return &StorageInitializer{migrate: migrate, tx: tx, catalog: catalog, rules: ruleBook, logger: logger}
}

// Init is safe to run repeatedly.
func (s *StorageInitializer) Init(ctx context.Context) error {
	if s.migrate != nil {
		if err := s.migrate(); err != nil {
			return err
		}
	}

	err := s.tx.WithTx(ctx, func(q db.Querier) error {
		if err := repository.EnsureRawTables(ctx, q, s.catalog.Entities()); err != nil {
			return err
		}
		return rules.EnsureTargets(ctx, q, s.rules)
	})
	if err != nil {
		return fmt.Errorf("failed to create entity tables: %w", err)
	}
	s.logger.Info("entity tables ready", "entities", len(s.catalog.Entities()))
	return nil
}
