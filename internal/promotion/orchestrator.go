package promotion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rpattn/medallion/internal/db"
	"github.com/rpattn/medallion/internal/domain"
	"github.com/rpattn/medallion/internal/rules"

	"github.com/google/uuid"
)

// Scope selects how promotion work is grouped into transactions.
type Scope string

const (
	// ScopeBatch promotes every entity in one transaction.
	ScopeBatch Scope = "batch"
	// ScopeEntity commits each entity on its own and skips the dependents of a
	// failed entity.
	ScopeEntity Scope = "entity"
)

// ParseScope validates a configured transaction scope. Empty means batch.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case "", ScopeBatch:
		return ScopeBatch, nil
	case ScopeEntity:
		return ScopeEntity, nil
	default:
		return "", fmt.Errorf("%w: unknown transaction scope %q", domain.ErrConfiguration, s)
	}
}

// Status is the outcome of promoting one entity.
type Status string

const (
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
	StatusRolledBack Status = "rolled_back"
)

// Applier runs one rule set inside a transaction.
type Applier interface {
	Apply(ctx context.Context, q db.Querier, runID uuid.UUID, set rules.RuleSet) (rules.Outcome, error)
}

// EntityResult is the outcome of promoting one entity.
type EntityResult struct {
	Entity   string
	Status   Status
	Accepted int64
	Rejected map[string]int64
	Duration time.Duration
	Err      error
}

// Report summarises one promotion run.
type Report struct {
	RunID   uuid.UUID
	Scope   Scope
	Results []EntityResult
}

// OK reports whether every entity was promoted and committed.
func (r Report) OK() bool {
	for _, res := range r.Results {
		if res.Status != StatusSuccess {
			return false
		}
	}
	return true
}

// Failed names the entities whose own rules failed.
func (r Report) Failed() []string {
	var failed []string
	for _, res := range r.Results {
		if res.Status == StatusFailed {
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

// Options tunes an Orchestrator.
type Options struct {
	Scope Scope
	// AllowAbsentDependencies lets an entity be promoted without its
	// dependencies in the same run, trusting their validated tables as they are.
	AllowAbsentDependencies bool
}

// Orchestrator promotes raw entities into the validated tier in dependency order.
type Orchestrator struct {
	tx      db.Transactor
	catalog *domain.Catalog
	rules   *rules.Rules
	applier Applier
	opts    Options
	logger  *slog.Logger
	now     func() time.Time
}

// NewOrchestrator creates a promotion orchestrator.
func NewOrchestrator(
	tx db.Transactor,
	catalog *domain.Catalog,
	ruleBook *rules.Rules,
	applier Applier,
	opts Options,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Scope == "" {
		opts.Scope = ScopeBatch
	}
	return &Orchestrator{
		tx:      tx,
		catalog: catalog,
		rules:   ruleBook,
		applier: applier,
		opts:    opts,
		logger:  logger.With("stage", "promote"),
		now:     time.Now,
	}
}

// Plan resolves names into the rule sets to run, enforcing dependency order.
// It never touches storage.
func (o *Orchestrator) Plan(names []string) ([]rules.RuleSet, error) {
	entities, err := o.catalog.Resolve(names, o.opts.AllowAbsentDependencies)
	if err != nil {
		return nil, err
	}
	sets := make([]rules.RuleSet, 0, len(entities))
	for _, e := range entities {
		set, ok := o.rules.For(e.Name)
		if !ok {
			return nil, fmt.Errorf("%w: no rules defined for entity %s", domain.ErrConfiguration, e.Name)
		}
		sets = append(sets, set)
	}
	return sets, nil
}

// PromoteAll promotes the named entities in order. Configuration problems are
// returned as an error before anything is written; entity failures are
// reported in the Report.
func (o *Orchestrator) PromoteAll(ctx context.Context, runID uuid.UUID, names []string) (Report, error) {
	sets, err := o.Plan(names)
	if err != nil {
		return Report{}, err
	}

	report := Report{RunID: runID, Scope: o.opts.Scope}
	switch o.opts.Scope {
	case ScopeEntity:
		report.Results = o.promoteEach(ctx, runID, sets)
	default:
		report.Results = o.promoteBatch(ctx, runID, sets)
	}

	for _, res := range report.Results {
		o.logResult(res)
	}
	return report, nil
}

func (o *Orchestrator) promoteBatch(ctx context.Context, runID uuid.UUID, sets []rules.RuleSet) []EntityResult {
	results := make([]EntityResult, len(sets))
	for i, set := range sets {
		results[i] = EntityResult{Entity: set.Entity, Status: StatusSkipped}
	}

	failedAt := -1
	err := o.tx.WithTx(ctx, func(q db.Querier) error {
		for i, set := range sets {
			results[i] = o.apply(ctx, q, runID, set)
			if results[i].Err != nil {
				failedAt = i
				return results[i].Err
			}
		}
		return nil
	})
	if err == nil {
		return results
	}

	wrapped := fmt.Errorf("%w: %w", domain.ErrTransactionFailure, err)
	for i := range results {
		switch {
		case failedAt < 0:
			// commit or begin failed: nothing was kept
			results[i].Status = StatusFailed
			results[i].Err = wrapped
		case i < failedAt:
			results[i].Status = StatusRolledBack
			results[i].Err = fmt.Errorf("rolled back after %s failed", sets[failedAt].Entity)
		case i == failedAt:
			results[i].Status = StatusFailed
			results[i].Err = wrapped
		default:
			results[i].Err = fmt.Errorf("not attempted after %s failed", sets[failedAt].Entity)
		}
		results[i].Accepted = 0
		results[i].Rejected = nil
	}
	return results
}

func (o *Orchestrator) promoteEach(ctx context.Context, runID uuid.UUID, sets []rules.RuleSet) []EntityResult {
	results := make([]EntityResult, 0, len(sets))
	blocked := make(map[string]string)

	for _, set := range sets {
		if cause, ok := blocked[set.Entity]; ok {
			results = append(results, EntityResult{
				Entity: set.Entity,
				Status: StatusSkipped,
				Err:    fmt.Errorf("dependency %s was not promoted", cause),
			})
			continue
		}

		var res EntityResult
		err := o.tx.WithTx(ctx, func(q db.Querier) error {
			res = o.apply(ctx, q, runID, set)
			return res.Err
		})
		if err != nil {
			res.Entity = set.Entity
			res.Status = StatusFailed
			res.Accepted = 0
			res.Rejected = nil
			res.Err = fmt.Errorf("%w: %w", domain.ErrTransactionFailure, err)
			for dependent := range o.catalog.Dependents(set.Entity) {
				if _, ok := blocked[dependent]; !ok {
					blocked[dependent] = set.Entity
				}
			}
		}
		results = append(results, res)
	}
	return results
}

func (o *Orchestrator) apply(ctx context.Context, q db.Querier, runID uuid.UUID, set rules.RuleSet) EntityResult {
	started := o.now()
	res := EntityResult{Entity: set.Entity}

	if err := ctx.Err(); err != nil {
		res.Status = StatusFailed
		res.Err = err
		return res
	}

	outcome, err := o.applier.Apply(ctx, q, runID, set)
	res.Duration = o.now().Sub(started)
	if err != nil {
		res.Status = StatusFailed
		res.Err = fmt.Errorf("failed to promote %s: %w", set.Entity, err)
		return res
	}
	res.Status = StatusSuccess
	res.Accepted = outcome.Accepted
	res.Rejected = outcome.Rejected
	return res
}

func (o *Orchestrator) logResult(res EntityResult) {
	if res.Status == StatusSuccess {
		var rejected int64
		for _, n := range res.Rejected {
			rejected += n
		}
		o.logger.Info("entity promoted",
			"entity", res.Entity,
			"accepted", res.Accepted,
			"rejected", rejected,
			"status", res.Status,
			"duration", res.Duration,
		)
		return
	}

	level := slog.LevelWarn
	if res.Status == StatusFailed {
		level = slog.LevelError
	}
	o.logger.Log(context.Background(), level, "entity not promoted",
		"entity", res.Entity,
		"status", res.Status,
		"error", res.Err,
	)
}
