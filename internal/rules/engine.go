package rules

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rpattn/medallion/internal/db"

	"github.com/google/uuid"
)

// Outcome counts what one rule set did to storage.
type Outcome struct {
	Entity   string
	Accepted int64
	// Rejected is keyed by rule name.
	Rejected map[string]int64
}

// TotalRejected sums the rejected counts over all rules.
func (o Outcome) TotalRejected() int64 {
	var total int64
	for _, n := range o.Rejected {
		total += n
	}
	return total
}

// Engine executes compiled rule sets against storage.
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates a rule engine.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger}
}

// Apply rebuilds the validated tables of the rule set and then captures every
// reject rule into quarantine, all through q. The caller owns the transaction.
func (e *Engine) Apply(ctx context.Context, q db.Querier, runID uuid.UUID, set RuleSet) (Outcome, error) {
	outcome := Outcome{Entity: set.Entity, Rejected: make(map[string]int64, len(set.Rejects))}

	for _, t := range set.Transforms {
		if _, err := q.Exec(ctx, t.TruncateSQL()); err != nil {
			return outcome, fmt.Errorf("failed to clear %s: %w", t.Target, err)
		}
		tag, err := q.Exec(ctx, t.InsertSQL())
		if err != nil {
			return outcome, fmt.Errorf("failed to populate %s: %w", t.Target, err)
		}
		outcome.Accepted += tag.RowsAffected()
	}

	for _, r := range set.Rejects {
		tag, err := q.Exec(ctx, r.CaptureSQL(), runID, r.Table, r.Name, r.Reason)
		if err != nil {
			return outcome, fmt.Errorf("failed to apply rule %s: %w", r.Name, err)
		}
		outcome.Rejected[r.Name] = tag.RowsAffected()
		if n := tag.RowsAffected(); n > 0 {
			e.logger.Debug("rows quarantined", "entity", set.Entity, "rule", r.Name, "rows", n)
		}
	}
	return outcome, nil
}

// EnsureTargets creates every validated table the rules write to.
func EnsureTargets(ctx context.Context, q db.Querier, rules *Rules) error {
	for _, entity := range rules.Entities() {
		set, _ := rules.For(entity)
		for _, t := range set.Transforms {
			if _, err := q.Exec(ctx, t.TableDDL()); err != nil {
				return fmt.Errorf("failed to create %s: %w", t.Target, err)
			}
		}
	}
	return nil
}
