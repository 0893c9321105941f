package rules

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/rpattn/medallion/internal/domain"

	"gopkg.in/yaml.v3"
)

//go:embed default_rules.yaml
var defaultRules []byte

// Rules is a validated collection of rule sets keyed by entity.
type Rules struct {
	sets map[string]RuleSet
}

type document struct {
	RuleSets []RuleSet `yaml:"rule_sets"`
}

// Load decodes a rule file and binds it to the catalog. Every rule set must
// name a catalog entity.
func Load(r io.Reader, catalog *domain.Catalog) (*Rules, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("%w: rule file is empty", domain.ErrConfiguration)
		}
		return nil, fmt.Errorf("%w: failed to parse rules: %w", domain.ErrConfiguration, err)
	}

	rules := &Rules{sets: make(map[string]RuleSet, len(doc.RuleSets))}
	for _, set := range doc.RuleSets {
		entity, ok := catalog.Lookup(set.Entity)
		if !ok {
			return nil, fmt.Errorf("%w: rules reference unknown entity %q", domain.ErrConfiguration, set.Entity)
		}
		if _, dup := rules.sets[set.Entity]; dup {
			return nil, fmt.Errorf("%w: duplicate rules for %s", domain.ErrConfiguration, set.Entity)
		}
		if err := set.bind(entity); err != nil {
			return nil, err
		}
		rules.sets[set.Entity] = set
	}
	return rules, nil
}

// LoadFile loads rules from path, or the built-in rules when path is empty.
func LoadFile(path string, catalog *domain.Catalog) (*Rules, error) {
	if path == "" {
		return Default(catalog)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open rule file: %w", domain.ErrConfiguration, err)
	}
	defer f.Close()
	return Load(f, catalog)
}

// Default returns the built-in rules for the streaming-platform entities.
func Default(catalog *domain.Catalog) (*Rules, error) {
	return Load(bytes.NewReader(defaultRules), catalog)
}

// For returns the rule set for an entity.
func (r *Rules) For(entity string) (RuleSet, bool) {
	set, ok := r.sets[entity]
	return set, ok
}

// Entities lists the entities that have rules, sorted by name.
func (r *Rules) Entities() []string {
	names := make([]string, 0, len(r.sets))
	for name := range r.sets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
