package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rpattn/medallion/internal/domain"
	"github.com/rpattn/medallion/internal/fingerprint"
	"github.com/rpattn/medallion/internal/repository"

	"github.com/google/uuid"
)

// Service loads entity source files into the raw tier.
type Service struct {
	sources SourceReader
	rawRepo repository.RawRepository
	logRepo repository.IngestionLogRepository
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates a new ingestion service.
func NewService(
	sources SourceReader,
	rawRepo repository.RawRepository,
	logRepo repository.IngestionLogRepository,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		sources: sources,
		rawRepo: rawRepo,
		logRepo: logRepo,
		logger:  logger.With("stage", "ingest"),
		now:     time.Now,
	}
}

// EntityResult is the outcome of loading one entity.
type EntityResult struct {
	Entity   string
	Source   string
	Rows     int
	Checksum string
	Mapping  []ColumnMapping
	Warnings []CoercionWarning
	Duration time.Duration
	// Err is set when the raw tier was not replaced.
	Err error
	// AuditErr is set when the audit record could not be written.
	AuditErr error
}

// OK reports whether the entity was loaded.
func (r EntityResult) OK() bool {
	return r.Err == nil
}

// Report summarises one ingestion run.
type Report struct {
	RunID   uuid.UUID
	Results []EntityResult
}

// OK reports whether every entity was loaded.
func (r Report) OK() bool {
	return len(r.Failed()) == 0
}

// Failed names the entities that were not loaded.
func (r Report) Failed() []string {
	var failed []string
	for _, res := range r.Results {
		if !res.OK() {
			failed = append(failed, res.Entity)
		}
	}
	return failed
}

// Result returns the result for one entity.
func (r Report) Result(entity string) (EntityResult, bool) {
	for _, res := range r.Results {
		if res.Entity == entity {
			return res, true
		}
	}
	return EntityResult{}, false
}

// IngestAll loads each entity in the given order. A failing entity is recorded
// and skipped; it never stops the remaining entities from loading.
func (s *Service) IngestAll(ctx context.Context, runID uuid.UUID, entities []domain.Entity) Report {
	report := Report{RunID: runID, Results: make([]EntityResult, 0, len(entities))}
	for _, entity := range entities {
		report.Results = append(report.Results, s.IngestEntity(ctx, runID, entity))
	}
	return report
}

// IngestEntity runs locate → normalize → coerce → replace → audit for one entity.
// Exactly one audit record is appended per call.
func (s *Service) IngestEntity(ctx context.Context, runID uuid.UUID, entity domain.Entity) EntityResult {
	started := s.now()
	record := domain.NewIngestionAuditRecord(runID, entity.Name, entity.SourceFile, started)
	result := EntityResult{Entity: entity.Name, Source: entity.SourceFile, Checksum: fingerprint.Unavailable}

	result.Err = s.load(ctx, entity, &result)

	record.SourceFile = result.Source
	record.RowCount = result.Rows
	record.Checksum = result.Checksum
	record.RecordedAt = s.now()
	result.Duration = record.Duration()
	if result.Err != nil {
		record.Status = domain.AuditStatusFailure
		record.ErrorMessage = result.Err.Error()
	} else {
		record.Status = domain.AuditStatusSuccess
	}

	if s.logRepo != nil {
		if err := s.logRepo.Record(ctx, record); err != nil {
			result.AuditErr = err
			s.logger.Error("failed to record ingestion audit", "entity", entity.Name, "error", err)
		}
	}

	s.logResult(result)
	return result
}

func (s *Service) load(ctx context.Context, entity domain.Entity, result *EntityResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	src, err := s.sources.Read(entity)
	if src.Path != "" {
		result.Source = src.Path
	}
	if err != nil {
		return err
	}
	if len(src.Payload) == 0 {
		return fmt.Errorf("%w: %s is empty", domain.ErrSchemaMismatch, src.Path)
	}
	s.logger.Debug("source read", "entity", entity.Name, "path", src.Path,
		"bytes", len(src.Payload), "file_checksum", fingerprint.Bytes(src.Payload))

	tbl, err := parseTable(src.Path, src.Payload)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrSchemaMismatch, err)
	}

	mapping, err := NewNormalizer(entity).Normalize(tbl.headers)
	if err != nil {
		return err
	}
	result.Mapping = mapping.Columns
	if missing := mapping.Missing(); len(missing) > 0 {
		s.logger.Warn("source is missing fields, loading them as null", "entity", entity.Name, "fields", missing)
	}

	coerced, warnings := Coerce(mapping, tbl.rows)
	result.Warnings = warnings
	for _, w := range warnings {
		s.logger.Debug("coercion warning", "entity", entity.Name, "row", w.Row, "field", w.Field, "value", w.Value)
	}

	result.Rows = len(coerced.Rows)
	result.Checksum = fingerprint.Rows(coerced.Columns, coerced.Rows)

	if _, err := s.rawRepo.Replace(ctx, entity, coerced.Columns, coerced.Rows); err != nil {
		if !errors.Is(err, domain.ErrTransactionFailure) {
			err = fmt.Errorf("%w: %w", domain.ErrTransactionFailure, err)
		}
		return err
	}
	return nil
}

func (s *Service) logResult(result EntityResult) {
	if result.Err != nil {
		s.logger.Error("entity load failed",
			"entity", result.Entity,
			"source", result.Source,
			"status", domain.AuditStatusFailure,
			"duration", result.Duration,
			"error", result.Err,
		)
		return
	}
	s.logger.Info("entity loaded",
		"entity", result.Entity,
		"source", result.Source,
		"rows", result.Rows,
		"checksum", result.Checksum,
		"coercion_warnings", len(result.Warnings),
		"status", domain.AuditStatusSuccess,
		"duration", result.Duration,
	)
}
