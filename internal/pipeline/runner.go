package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rpattn/medallion/internal/domain"
	"github.com/rpattn/medallion/internal/ingestion"
	"github.com/rpattn/medallion/internal/promotion"
	"github.com/rpattn/medallion/internal/rules"

	"github.com/google/uuid"
)

// ErrStageFailed marks a stage that finished with failed entities.
var ErrStageFailed = errors.New("stage failed")

// Stage names one step of the pipeline.
type Stage string

const (
	StageInit    Stage = "init"
	StageIngest  Stage = "ingest"
	StagePromote Stage = "promote-silver"
)

// AllStages is the sequence run by run-all.
var AllStages = []Stage{StageInit, StageIngest, StagePromote}

// Initializer prepares storage.
type Initializer interface {
	Init(ctx context.Context) error
}

// Ingester loads sources into the raw tier.
type Ingester interface {
	IngestAll(ctx context.Context, runID uuid.UUID, entities []domain.Entity) ingestion.Report
}

// Promoter promotes raw entities into the validated tier. Plan validates an
// order without touching storage.
type Promoter interface {
	Plan(names []string) ([]rules.RuleSet, error)
	PromoteAll(ctx context.Context, runID uuid.UUID, names []string) (promotion.Report, error)
}

// StageResult is the outcome of one stage.
type StageResult struct {
	Stage    Stage
	Duration time.Duration
	Err      error
	Ingest   *ingestion.Report
	Promote  *promotion.Report
}

// OK reports whether the stage succeeded for every entity.
func (r StageResult) OK() bool {
	return r.Err == nil
}

// Result summarises a pipeline invocation.
type Result struct {
	RunID  uuid.UUID
	Stages []StageResult
}

// OK reports whether every stage that ran succeeded.
func (r Result) OK() bool {
	return r.Err() == nil
}

// Err returns the error of the first failed stage, or nil.
func (r Result) Err() error {
	for _, s := range r.Stages {
		if s.Err != nil {
			return fmt.Errorf("stage %s: %w", s.Stage, s.Err)
		}
	}
	return nil
}

// FailedStages names the stages that failed.
func (r Result) FailedStages() []Stage {
	var failed []Stage
	for _, s := range r.Stages {
		if s.Err != nil {
			failed = append(failed, s.Stage)
		}
	}
	return failed
}

// Options configures a Runner.
type Options struct {
	// Order lists the entities to process. Empty means catalog dependency order.
	Order []string
	// ContinueOnError runs later stages after a stage fails.
	ContinueOnError bool
}

// Runner sequences pipeline stages.
type Runner struct {
	catalog  *domain.Catalog
	storage  Initializer
	ingester Ingester
	promoter Promoter
	opts     Options
	logger   *slog.Logger
	now      func() time.Time
}

// NewRunner creates a stage runner. Stages whose dependency is nil fail when run.
func NewRunner(catalog *domain.Catalog, storage Initializer, ingester Ingester, promoter Promoter, opts Options, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		catalog:  catalog,
		storage:  storage,
		ingester: ingester,
		promoter: promoter,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// Run executes stages in order under a fresh run id. It stops after the
// first failed stage unless ContinueOnError is set.
func (r *Runner) Run(ctx context.Context, stages ...Stage) Result {
	return r.RunWithID(ctx, uuid.New(), stages...)
}

// RunWithID is Run with a caller-chosen run id. Every requested stage is
// checked before the first one runs; a configuration error leaves storage
// untouched.
func (r *Runner) RunWithID(ctx context.Context, runID uuid.UUID, stages ...Stage) Result {
	result := Result{RunID: runID}
	logger := r.logger.With("run_id", runID)

	if stage, err := r.preflight(stages); err != nil {
		logger.Error("run rejected", "stage", stage, "error", err)
		result.Stages = append(result.Stages, StageResult{Stage: stage, Err: err})
		return result
	}

	for _, stage := range stages {
		logger.Info("stage started", "stage", stage)
		started := r.now()
		res := r.runStage(ctx, runID, stage)
		res.Duration = r.now().Sub(started)
		result.Stages = append(result.Stages, res)

		if res.Err != nil {
			logger.Error("stage failed", "stage", stage, "duration", res.Duration, "error", res.Err)
			if !r.opts.ContinueOnError || errors.Is(res.Err, domain.ErrConfiguration) {
				break
			}
			continue
		}
		logger.Info("stage finished", "stage", stage, "duration", res.Duration)
	}
	return result
}

// preflight validates stage names, dependencies and the entity order.
func (r *Runner) preflight(stages []Stage) (Stage, error) {
	for _, stage := range stages {
		switch stage {
		case StageInit:
			if r.storage == nil {
				return stage, fmt.Errorf("%w: storage initializer not configured", domain.ErrConfiguration)
			}
		case StageIngest:
			if r.ingester == nil {
				return stage, fmt.Errorf("%w: ingester not configured", domain.ErrConfiguration)
			}
			if _, err := r.catalog.Resolve(r.order(), true); err != nil {
				return stage, err
			}
		case StagePromote:
			if r.promoter == nil {
				return stage, fmt.Errorf("%w: promoter not configured", domain.ErrConfiguration)
			}
			if _, err := r.promoter.Plan(r.order()); err != nil {
				return stage, err
			}
		default:
			return stage, fmt.Errorf("%w: unknown stage %q", domain.ErrConfiguration, stage)
		}
	}
	return "", nil
}

func (r *Runner) runStage(ctx context.Context, runID uuid.UUID, stage Stage) StageResult {
	res := StageResult{Stage: stage}
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	switch stage {
	case StageInit:
		if r.storage == nil {
			res.Err = fmt.Errorf("%w: storage initializer not configured", domain.ErrConfiguration)
			return res
		}
		res.Err = r.storage.Init(ctx)

	case StageIngest:
		if r.ingester == nil {
			res.Err = fmt.Errorf("%w: ingester not configured", domain.ErrConfiguration)
			return res
		}
		entities, err := r.catalog.Resolve(r.order(), true)
		if err != nil {
			res.Err = err
			return res
		}
		report := r.ingester.IngestAll(ctx, runID, entities)
		res.Ingest = &report
		if failed := report.Failed(); len(failed) > 0 {
			res.Err = fmt.Errorf("%w: entities not loaded: %s", ErrStageFailed, strings.Join(failed, ", "))
		}

	case StagePromote:
		if r.promoter == nil {
			res.Err = fmt.Errorf("%w: promoter not configured", domain.ErrConfiguration)
			return res
		}
		report, err := r.promoter.PromoteAll(ctx, runID, r.order())
		if err != nil {
			res.Err = err
			return res
		}
		res.Promote = &report
		if !report.OK() {
			res.Err = fmt.Errorf("%w: entities not promoted: %s", ErrStageFailed, strings.Join(notPromoted(report), ", "))
		}

	default:
		res.Err = fmt.Errorf("%w: unknown stage %q", domain.ErrConfiguration, stage)
	}
	return res
}

func (r *Runner) order() []string {
	if len(r.opts.Order) > 0 {
		return r.opts.Order
	}
	ordered, err := r.catalog.TopologicalOrder()
	if err != nil {
		return nil
	}
	names := make([]string, len(ordered))
	for i, e := range ordered {
		names[i] = e.Name
	}
	return names
}

func notPromoted(report promotion.Report) []string {
	var names []string
	for _, res := range report.Results {
		if res.Status != promotion.StatusSuccess {
			names = append(names, fmt.Sprintf("%s (%s)", res.Entity, res.Status))
		}
	}
	return names
}
