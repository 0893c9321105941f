package export

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rpattn/medallion/internal/domain"

	"github.com/xuri/excelize/v2"
)

// Summary describes a written export file.
type Summary struct {
	Path         string
	Rows         int
	BytesWritten int64
}

var fixedColumns = []string{"rejected_at", "run_id", "table_name", "rule_name", "rejection_reason"}

// Quarantine writes records to path as CSV or XLSX, chosen by extension. The
// original row payload is flattened into one column per field. The file is
// written next to its destination and renamed into place once complete.
func Quarantine(path string, records []domain.QuarantineRecord) (Summary, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".csv" && ext != ".xlsx" {
		return Summary{}, fmt.Errorf("unsupported export format %q: use .csv or .xlsx", ext)
	}

	payloads, fields, err := decodePayloads(records)
	if err != nil {
		return Summary{}, err
	}
	headers := append(append([]string(nil), fixedColumns...), fields...)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Summary{}, fmt.Errorf("create export directory: %w", err)
	}
	tempFile, err := os.CreateTemp(dir, "quarantine-*"+ext)
	if err != nil {
		return Summary{}, fmt.Errorf("create temp export file: %w", err)
	}
	tempPath := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = tempFile.Close()
			_ = os.Remove(tempPath)
		}
	}()

	buffered := bufio.NewWriterSize(tempFile, 1<<20)
	counter := &countingWriter{writer: buffered}

	row := make([]string, len(headers))
	rowAt := func(i int) []string {
		r := records[i]
		row[0] = r.RejectedAt.UTC().Format(time.RFC3339)
		row[1] = r.RunID.String()
		row[2] = r.TableName
		row[3] = r.RuleName
		row[4] = r.Reason
		for j, field := range fields {
			row[len(fixedColumns)+j] = formatValue(payloads[i][field])
		}
		return row
	}

	if ext == ".csv" {
		err = writeCSV(counter, headers, len(records), rowAt)
	} else {
		err = writeXLSX(counter, headers, len(records), rowAt)
	}
	if err != nil {
		return Summary{}, err
	}

	if err := buffered.Flush(); err != nil {
		return Summary{}, fmt.Errorf("flush export file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		return Summary{}, fmt.Errorf("sync export file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return Summary{}, fmt.Errorf("close export file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return Summary{}, fmt.Errorf("move export file into place: %w", err)
	}
	cleanup = false

	return Summary{Path: path, Rows: len(records), BytesWritten: counter.count}, nil
}

func decodePayloads(records []domain.QuarantineRecord) ([]map[string]any, []string, error) {
	payloads := make([]map[string]any, len(records))
	seen := make(map[string]struct{})
	for i, r := range records {
		if len(r.RowData) == 0 {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(r.RowData))
		dec.UseNumber()
		if err := dec.Decode(&payloads[i]); err != nil {
			return nil, nil, fmt.Errorf("decode quarantined row %d: %w", r.ID, err)
		}
		for k := range payloads[i] {
			seen[k] = struct{}{}
		}
	}
	fields := make([]string, 0, len(seen))
	for k := range seen {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return payloads, fields, nil
}

func writeCSV(w io.Writer, headers []string, n int, rowAt func(int) []string) error {
	csvWriter := csv.NewWriter(w)
	if err := csvWriter.Write(headers); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i := 0; i < n; i++ {
		if err := csvWriter.Write(rowAt(i)); err != nil {
			return fmt.Errorf("write quarantined row: %w", err)
		}
	}
	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return fmt.Errorf("flush rows: %w", err)
	}
	return nil
}

const sheetName = "quarantine"

func writeXLSX(w io.Writer, headers []string, n int, rowAt func(int) []string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		return fmt.Errorf("open sheet writer: %w", err)
	}

	if err := sw.SetRow("A1", cells(headers)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i := 0; i < n; i++ {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, cells(rowAt(i))); err != nil {
			return fmt.Errorf("write quarantined row: %w", err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush sheet: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func cells(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

type countingWriter struct {
	writer *bufio.Writer
	count  int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.writer.Write(p)
	c.count += int64(n)
	return n, err
}

func formatValue(value any) string {
	if value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case bool:
		if v {
			return "true"
		}
		return "false"
	case json.Number:
		return v.String()
	case map[string]any, []any:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	default:
		return fmt.Sprintf("%v", v)
	}
}
