package rules

import (
	"fmt"
	"strings"
)

// TruncateSQL clears the transform's target table.
func (t Transform) TruncateSQL() string {
	return "TRUNCATE TABLE " + t.Target
}

// InsertSQL selects the accepted raw rows into the target table.
func (t Transform) InsertSQL() string {
	names := make([]string, len(t.Columns))
	exprs := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
		if c.Expr == c.Name {
			exprs[i] = c.Name
		} else {
			exprs[i] = fmt.Sprintf("%s AS %s", c.Expr, c.Name)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) SELECT ", t.Target, strings.Join(names, ", "))
	if t.Distinct {
		b.WriteString("DISTINCT ")
	}
	fmt.Fprintf(&b, "%s FROM %s %s", strings.Join(exprs, ", "), t.Source, t.Alias)
	if where := conjunction(t.Where); where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}
	return b.String()
}

// TableDDL creates the target table when it does not exist yet.
func (t Transform) TableDDL() string {
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = fmt.Sprintf("    %s %s", c.Name, strings.ToUpper(c.Type.SQLType()))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n)", t.Target, strings.Join(cols, ",\n"))
}

// CaptureSQL copies every matching raw row into quarantine. It takes the run id,
// table name, rule name and reason as $1..$4.
func (r Reject) CaptureSQL() string {
	var b strings.Builder
	b.WriteString("INSERT INTO audit.rejected_rows (run_id, table_name, rule_name, rejection_reason, rejected_at, row_data) ")
	fmt.Fprintf(&b, "SELECT $1::uuid, $2::text, $3::text, $4::text, CURRENT_TIMESTAMP, to_jsonb(%s) FROM %s %s", r.Alias, r.Source, r.Alias)
	if r.Join != "" {
		b.WriteString(" ")
		b.WriteString(strings.TrimSpace(r.Join))
	}
	b.WriteString(" WHERE ")
	b.WriteString(strings.TrimSpace(r.Condition))
	return b.String()
}

func conjunction(conds []string) string {
	trimmed := make([]string, 0, len(conds))
	for _, c := range conds {
		if c = strings.TrimSpace(c); c != "" {
			trimmed = append(trimmed, c)
		}
	}
	switch len(trimmed) {
	case 0:
		return ""
	case 1:
		return trimmed[0]
	}
	for i, c := range trimmed {
		trimmed[i] = "(" + c + ")"
	}
	return strings.Join(trimmed, " AND ")
}
