package ingestion

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rpattn/medallion/internal/domain"

	"github.com/jackc/pgx/v5/pgtype"
)

var timeLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05.000000",
	"2006-01-02T15:04:05",
	"2006/01/02",
	"01/02/2006",
	"02/01/2006",
	"02-01-2006",
}

// CoercionWarning records a value that could not be typed. The value is stored
// as NULL and surfaces later as a data-quality rejection, never as a load failure.
type CoercionWarning struct {
	Row    int              `json:"row"`
	Field  string           `json:"field"`
	Type   domain.FieldType `json:"type"`
	Value  string           `json:"value"`
	Reason string           `json:"reason"`
}

func (w CoercionWarning) String() string {
	return fmt.Sprintf("row %d: %s=%q: %s", w.Row, w.Field, w.Value, w.Reason)
}

// CoercedTable holds typed rows ready for bulk write. Columns are the entity's
// fields followed by domain.ExtraColumnsField.
type CoercedTable struct {
	Columns []string
	Rows    [][]any
}

// Coerce types every mapped value according to the entity's field definitions.
// Fields without a source column are NULL. Passthrough columns are collected
// into the extra columns object.
func Coerce(m Mapping, rows [][]string) (CoercedTable, []CoercionWarning) {
	fields := m.Entity.Fields
	columns := append(m.Entity.FieldNames(), domain.ExtraColumnsField)
	passthrough := m.Passthrough()

	out := CoercedTable{Columns: columns, Rows: make([][]any, 0, len(rows))}
	var warnings []CoercionWarning

	for rowIdx, row := range rows {
		values := make([]any, len(columns))
		for fi, field := range fields {
			src, ok := m.SourceIndex(field.Name)
			if !ok || src >= len(row) {
				continue
			}
			raw := strings.TrimSpace(row[src])
			if raw == "" {
				continue
			}
			value, err := coerceValue(field.Type, raw)
			if err != nil {
				warnings = append(warnings, CoercionWarning{
					Row:    rowIdx + 1,
					Field:  field.Name,
					Type:   field.Type,
					Value:  raw,
					Reason: err.Error(),
				})
				continue
			}
			values[fi] = value
		}

		if len(passthrough) > 0 {
			extra := make(map[string]string, len(passthrough))
			for _, src := range passthrough {
				if src < len(row) {
					extra[m.Columns[src].Name] = row[src]
				}
			}
			values[len(fields)] = extra
		}

		out.Rows = append(out.Rows, values)
	}

	return out, warnings
}

func coerceValue(fieldType domain.FieldType, raw string) (any, error) {
	switch fieldType {
	case domain.FieldTypeString:
		return raw, nil
	case domain.FieldTypeInteger:
		if i, err := strconv.ParseInt(raw, 10, 32); err == nil {
			return i, nil
		}
		// Exporters often write whole numbers as floats ("30.0").
		if f, err := strconv.ParseFloat(raw, 64); err == nil && math.Mod(f, 1) == 0 &&
			f >= math.MinInt32 && f <= math.MaxInt32 {
			return int64(f), nil
		}
		return nil, fmt.Errorf("unable to coerce %q to integer", raw)
	case domain.FieldTypeYear:
		if year, err := coerceValue(domain.FieldTypeInteger, raw); err == nil {
			return year, nil
		}
		ts, err := parseTimestamp(raw)
		if err != nil {
			return nil, fmt.Errorf("unable to coerce %q to year", raw)
		}
		return int64(ts.Year()), nil
	case domain.FieldTypeDecimal:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("unable to coerce %q to decimal", raw)
		}
		text := raw
		if strings.ContainsAny(text, "eE") {
			text = strconv.FormatFloat(f, 'f', -1, 64)
		}
		var n pgtype.Numeric
		if err := n.Scan(text); err != nil {
			return nil, fmt.Errorf("unable to coerce %q to decimal: %w", raw, err)
		}
		return n, nil
	case domain.FieldTypeBoolean:
		value := strings.ToLower(raw)
		switch value {
		case "1", "yes", "y":
			return true, nil
		case "0", "no", "n":
			return false, nil
		}
		boolVal, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("unable to coerce %q to boolean", raw)
		}
		return boolVal, nil
	case domain.FieldTypeDate:
		ts, err := parseTimestamp(raw)
		if err != nil {
			return nil, fmt.Errorf("unable to coerce %q to date: %w", raw, err)
		}
		return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC), nil
	default:
		return raw, nil
	}
}

func parseTimestamp(raw string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format")
}
