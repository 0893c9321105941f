package ingestion

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rpattn/medallion/internal/domain"
)

// ColumnAction records what normalization did with one source column.
type ColumnAction string

const (
	ColumnCanonical   ColumnAction = "canonical"
	ColumnRenamed     ColumnAction = "renamed"
	ColumnDropped     ColumnAction = "dropped"
	ColumnPassthrough ColumnAction = "passthrough"
)

// syntheticHeader matches headers produced by exporters for unnamed columns,
// e.g. a dataframe index written as "Unnamed: 0".
var syntheticHeader = regexp.MustCompile(`^(unnamed(:?_?[0-9]+)?|column_?[0-9]+|_*)$`)

// ColumnMapping is the fate of one source column.
type ColumnMapping struct {
	Source string       `json:"source"`
	Name   string       `json:"name"`
	Action ColumnAction `json:"action"`
}

// Mapping maps every source column of a file onto an entity.
type Mapping struct {
	Entity  domain.Entity
	Columns []ColumnMapping
	index   map[string]int
}

// SourceIndex returns the source column index feeding a canonical field.
func (m Mapping) SourceIndex(field string) (int, bool) {
	idx, ok := m.index[field]
	return idx, ok
}

// Missing lists canonical fields no source column maps onto.
func (m Mapping) Missing() []string {
	var missing []string
	for _, f := range m.Entity.Fields {
		if _, ok := m.index[f.Name]; !ok {
			missing = append(missing, f.Name)
		}
	}
	return missing
}

// Passthrough returns the indexes of named columns kept outside the canonical fields.
func (m Mapping) Passthrough() []int {
	var out []int
	for i, c := range m.Columns {
		if c.Action == ColumnPassthrough {
			out = append(out, i)
		}
	}
	return out
}

// Normalizer maps irregular source headers onto an entity's canonical fields.
type Normalizer struct {
	entity domain.Entity
}

// NewNormalizer creates a normalizer for one entity.
func NewNormalizer(entity domain.Entity) *Normalizer {
	return &Normalizer{entity: entity}
}

// NormalizeHeader trims, lowercases and collapses internal whitespace to "_".
func NormalizeHeader(raw string) string {
	return strings.Join(strings.Fields(strings.ToLower(raw)), "_")
}

// Normalize maps the source headers. Every column is renamed, dropped, kept as
// a canonical field or passed through; none is silently lost. A missing natural
// key or two columns claiming the same field is a schema mismatch.
func (n *Normalizer) Normalize(headers []string) (Mapping, error) {
	m := Mapping{
		Entity:  n.entity,
		Columns: make([]ColumnMapping, len(headers)),
		index:   make(map[string]int, len(n.entity.Fields)),
	}
	passthroughSeen := make(map[string]int)

	// A rename only applies when no header already names its target.
	provided := make(map[string]bool)
	for _, raw := range headers {
		name := NormalizeHeader(raw)
		if _, renamed := n.entity.Renames[name]; renamed {
			continue
		}
		if _, ok := n.entity.FieldByName(name); ok {
			provided[name] = true
		}
	}

	for i, raw := range headers {
		name := NormalizeHeader(raw)
		col := ColumnMapping{Source: raw, Name: name}

		if target, ok := n.entity.Renames[name]; ok && !provided[target] {
			col.Name = target
			col.Action = ColumnRenamed
		} else if syntheticHeader.MatchString(name) {
			col.Action = ColumnDropped
		} else if _, ok := n.entity.FieldByName(name); ok {
			col.Action = ColumnCanonical
		} else {
			col.Action = ColumnPassthrough
			count := passthroughSeen[name]
			if count > 0 {
				col.Name = fmt.Sprintf("%s_%d", name, count+1)
			}
			passthroughSeen[name] = count + 1
		}

		if col.Action == ColumnCanonical || col.Action == ColumnRenamed {
			if prev, dup := m.index[col.Name]; dup {
				return Mapping{}, fmt.Errorf("%w: %s: columns %q and %q both map to %s",
					domain.ErrSchemaMismatch, n.entity.Name, headers[prev], raw, col.Name)
			}
			m.index[col.Name] = i
		}
		m.Columns[i] = col
	}

	for _, key := range n.entity.NaturalKey {
		if _, ok := m.index[key]; !ok {
			return Mapping{}, fmt.Errorf("%w: %s: natural key column %s not found in %v",
				domain.ErrSchemaMismatch, n.entity.Name, key, headers)
		}
	}

	return m, nil
}
