package domain

import "fmt"

// FieldType represents the storage type of an entity field
type FieldType string

const (
	FieldTypeString  FieldType = "string"
	FieldTypeInteger FieldType = "integer"
	FieldTypeDecimal FieldType = "decimal"
	FieldTypeDate    FieldType = "date"
	FieldTypeBoolean FieldType = "boolean"
	// FieldTypeYear is an integer column that also accepts a full date.
	FieldTypeYear FieldType = "year"
)

// Valid reports whether the type is one the pipeline knows how to coerce.
func (t FieldType) Valid() bool {
	switch t {
	case FieldTypeString, FieldTypeInteger, FieldTypeDecimal, FieldTypeDate, FieldTypeBoolean, FieldTypeYear:
		return true
	default:
		return false
	}
}

// SQLType returns the Postgres column type used for the field.
func (t FieldType) SQLType() string {
	switch t {
	case FieldTypeInteger, FieldTypeYear:
		return "integer"
	case FieldTypeDecimal:
		return "numeric"
	case FieldTypeDate:
		return "date"
	case FieldTypeBoolean:
		return "boolean"
	default:
		return "text"
	}
}

// Field is one typed column of an entity
type Field struct {
	Name     string    `json:"name" yaml:"name"`
	Type     FieldType `json:"type" yaml:"type"`
	Required bool      `json:"required" yaml:"required"`
}

// ForeignKey declares that Field references Entity.ReferencedField.
type ForeignKey struct {
	Field           string `json:"field" yaml:"field"`
	Entity          string `json:"entity" yaml:"entity"`
	ReferencedField string `json:"referenced_field" yaml:"referenced_field"`
}

// Entity describes a dataset kind tracked through every tier.
type Entity struct {
	Name        string       `json:"name" yaml:"name"`
	SourceFile  string       `json:"source_file" yaml:"source_file"`
	Fields      []Field      `json:"fields" yaml:"fields"`
	NaturalKey  []string     `json:"natural_key" yaml:"natural_key"`
	ForeignKeys []ForeignKey `json:"foreign_keys,omitempty" yaml:"foreign_keys,omitempty"`
	// Renames maps normalized source headers onto canonical field names. It is
	// how positional or synthetic headers (e.g. an exported index column) become
	// the entity's key.
	Renames map[string]string `json:"renames,omitempty" yaml:"renames,omitempty"`
}

// ExtraColumnsField holds named source columns that are not canonical fields.
const ExtraColumnsField = "extra_columns"

// RawTable is the qualified raw-tier table name.
func (e Entity) RawTable() string {
	return "bronze." + e.Name
}

// ValidatedTable is the qualified validated-tier table name.
func (e Entity) ValidatedTable() string {
	return "silver." + e.Name
}

// FieldNames returns the canonical field names in declaration order.
func (e Entity) FieldNames() []string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Name
	}
	return names
}

// FieldByName looks up a field definition.
func (e Entity) FieldByName(name string) (Field, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// RequiredFields lists fields that must be non-null, natural key included.
func (e Entity) RequiredFields() []string {
	seen := make(map[string]bool)
	var out []string
	for _, k := range e.NaturalKey {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	for _, f := range e.Fields {
		if f.Required && !seen[f.Name] {
			seen[f.Name] = true
			out = append(out, f.Name)
		}
	}
	return out
}

// DependsOn returns the distinct entity names referenced by foreign keys.
func (e Entity) DependsOn() []string {
	seen := make(map[string]bool)
	var deps []string
	for _, fk := range e.ForeignKeys {
		if fk.Entity == e.Name || seen[fk.Entity] {
			continue
		}
		seen[fk.Entity] = true
		deps = append(deps, fk.Entity)
	}
	return deps
}

// Validate checks the entity definition in isolation.
func (e Entity) Validate() error {
	if !identifierPattern.MatchString(e.Name) {
		return fmt.Errorf("%w: invalid entity name %q", ErrConfiguration, e.Name)
	}
	if e.SourceFile == "" {
		return fmt.Errorf("%w: entity %s has no source file", ErrConfiguration, e.Name)
	}
	if len(e.Fields) == 0 {
		return fmt.Errorf("%w: entity %s has no fields", ErrConfiguration, e.Name)
	}
	seen := make(map[string]bool, len(e.Fields))
	for _, f := range e.Fields {
		if !identifierPattern.MatchString(f.Name) || f.Name == ExtraColumnsField {
			return fmt.Errorf("%w: entity %s: invalid field name %q", ErrConfiguration, e.Name, f.Name)
		}
		if !f.Type.Valid() {
			return fmt.Errorf("%w: entity %s: field %s has unknown type %q", ErrConfiguration, e.Name, f.Name, f.Type)
		}
		if seen[f.Name] {
			return fmt.Errorf("%w: entity %s: duplicate field %s", ErrConfiguration, e.Name, f.Name)
		}
		seen[f.Name] = true
	}
	if len(e.NaturalKey) == 0 {
		return fmt.Errorf("%w: entity %s has no natural key", ErrConfiguration, e.Name)
	}
	for _, k := range e.NaturalKey {
		if !seen[k] {
			return fmt.Errorf("%w: entity %s: natural key %s is not a field", ErrConfiguration, e.Name, k)
		}
	}
	for _, fk := range e.ForeignKeys {
		if !seen[fk.Field] {
			return fmt.Errorf("%w: entity %s: foreign key field %s is not a field", ErrConfiguration, e.Name, fk.Field)
		}
	}
	for from, to := range e.Renames {
		if !seen[to] {
			return fmt.Errorf("%w: entity %s: rename %q targets unknown field %s", ErrConfiguration, e.Name, from, to)
		}
	}
	return nil
}
