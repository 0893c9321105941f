package rules

import (
	"fmt"
	"regexp"

	"github.com/rpattn/medallion/internal/domain"
)

// RuleSet holds the accept transforms and reject captures for one entity.
// Source, Alias and Target default to the entity's raw table, its name and its
// validated table; transforms and rejects may override them.
type RuleSet struct {
	Entity     string      `yaml:"entity"`
	Source     string      `yaml:"source,omitempty"`
	Alias      string      `yaml:"alias,omitempty"`
	Target     string      `yaml:"target,omitempty"`
	Transforms []Transform `yaml:"transforms"`
	Rejects    []Reject    `yaml:"rejects"`
}

// Transform rebuilds a validated table from the rows of a raw table that pass
// every Where condition.
type Transform struct {
	Target   string       `yaml:"target,omitempty"`
	Source   string       `yaml:"source,omitempty"`
	Alias    string       `yaml:"alias,omitempty"`
	Distinct bool         `yaml:"distinct,omitempty"`
	Columns  []Projection `yaml:"columns"`
	Where    []string     `yaml:"where,omitempty"`
}

// Projection is one output column. Expr defaults to the column of the same
// name; Type defaults to the entity field type of the same name.
type Projection struct {
	Name string           `yaml:"name"`
	Expr string           `yaml:"expr,omitempty"`
	Type domain.FieldType `yaml:"type,omitempty"`
}

// Reject captures raw rows matching Condition into quarantine.
type Reject struct {
	Name      string `yaml:"name"`
	Reason    string `yaml:"reason"`
	Source    string `yaml:"source,omitempty"`
	Alias     string `yaml:"alias,omitempty"`
	Table     string `yaml:"table,omitempty"`
	Join      string `yaml:"join,omitempty"`
	Condition string `yaml:"condition"`
}

var (
	namePattern      = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)
	qualifiedPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*(\.[a-z_][a-z0-9_]*)?$`)
)

func checkName(kind, value string) error {
	if !namePattern.MatchString(value) {
		return fmt.Errorf("%w: invalid %s %q", domain.ErrConfiguration, kind, value)
	}
	return nil
}

func checkTable(kind, value string) error {
	if !qualifiedPattern.MatchString(value) {
		return fmt.Errorf("%w: invalid %s %q", domain.ErrConfiguration, kind, value)
	}
	return nil
}

// bind fills defaults from the entity and validates every identifier.
func (s *RuleSet) bind(entity domain.Entity) error {
	if s.Source == "" {
		s.Source = entity.RawTable()
	}
	if s.Alias == "" {
		s.Alias = entity.Name
	}
	if s.Target == "" {
		s.Target = entity.ValidatedTable()
	}
	if err := checkTable("source", s.Source); err != nil {
		return err
	}
	if err := checkName("alias", s.Alias); err != nil {
		return err
	}
	if err := checkTable("target", s.Target); err != nil {
		return err
	}
	if len(s.Transforms) == 0 {
		return fmt.Errorf("%w: rules for %s define no transform", domain.ErrConfiguration, s.Entity)
	}

	for i := range s.Transforms {
		if err := s.bindTransform(entity, &s.Transforms[i]); err != nil {
			return fmt.Errorf("transform %d of %s: %w", i, s.Entity, err)
		}
	}

	seen := make(map[string]bool, len(s.Rejects))
	for i := range s.Rejects {
		r := &s.Rejects[i]
		if err := checkName("rule name", r.Name); err != nil {
			return err
		}
		if seen[r.Name] {
			return fmt.Errorf("%w: duplicate rule %s for %s", domain.ErrConfiguration, r.Name, s.Entity)
		}
		seen[r.Name] = true
		if r.Condition == "" {
			return fmt.Errorf("%w: rule %s has no condition", domain.ErrConfiguration, r.Name)
		}
		if r.Reason == "" {
			return fmt.Errorf("%w: rule %s has no reason", domain.ErrConfiguration, r.Name)
		}
		if r.Source == "" {
			r.Source = s.Source
		}
		if r.Alias == "" {
			r.Alias = s.Alias
		}
		if r.Table == "" {
			r.Table = s.Target
		}
		if err := checkTable("source", r.Source); err != nil {
			return err
		}
		if err := checkName("alias", r.Alias); err != nil {
			return err
		}
		if err := checkTable("table", r.Table); err != nil {
			return err
		}
	}
	return nil
}

func (s *RuleSet) bindTransform(entity domain.Entity, t *Transform) error {
	if t.Target == "" {
		t.Target = s.Target
	}
	if t.Source == "" {
		t.Source = s.Source
	}
	if t.Alias == "" {
		t.Alias = s.Alias
	}
	if err := checkTable("target", t.Target); err != nil {
		return err
	}
	if err := checkTable("source", t.Source); err != nil {
		return err
	}
	if err := checkName("alias", t.Alias); err != nil {
		return err
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("%w: no columns", domain.ErrConfiguration)
	}

	seen := make(map[string]bool, len(t.Columns))
	for i := range t.Columns {
		c := &t.Columns[i]
		if err := checkName("column", c.Name); err != nil {
			return err
		}
		if seen[c.Name] {
			return fmt.Errorf("%w: duplicate column %s", domain.ErrConfiguration, c.Name)
		}
		seen[c.Name] = true
		if c.Expr == "" {
			c.Expr = c.Name
		}
		if c.Type == "" {
			field, ok := entity.FieldByName(c.Name)
			if !ok {
				return fmt.Errorf("%w: column %s needs a type", domain.ErrConfiguration, c.Name)
			}
			c.Type = field.Type
		}
		if !c.Type.Valid() {
			return fmt.Errorf("%w: column %s has unknown type %s", domain.ErrConfiguration, c.Name, c.Type)
		}
	}
	return nil
}
