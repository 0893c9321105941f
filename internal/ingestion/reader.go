package ingestion

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	// ErrUnsupportedFormat is returned when a source file is neither CSV nor XLSX.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}
)

// table is a decoded source file: the raw header row and the data rows padded
// to the header width.
type table struct {
	headers []string
	rows    [][]string
}

func parseTable(fileName string, payload []byte) (table, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv", ".txt", "":
		return parseCSV(payload, ',')
	case ".tsv":
		return parseCSV(payload, '\t')
	case ".xlsx":
		return parseExcel(payload)
	default:
		return table{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

func parseCSV(payload []byte, comma rune) (table, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.Comma = comma
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return table{}, fmt.Errorf("failed to read csv: %w", err)
	}

	return normalizeTable(records)
}

func parseExcel(payload []byte) (table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return table{}, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return table{}, errors.New("excel file has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return table{}, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}

	return normalizeTable(rows)
}

// normalizeTable takes the first non-blank record as the header row and pads
// or truncates every following record to the header width. Blank records are
// skipped.
func normalizeTable(records [][]string) (table, error) {
	var headerRow []string
	var dataRows [][]string

	for _, row := range records {
		if isBlank(row) {
			continue
		}
		if headerRow == nil {
			headerRow = row
			continue
		}
		dataRows = append(dataRows, row)
	}

	if headerRow == nil {
		return table{}, errors.New("no header row found in file")
	}

	for i := range dataRows {
		dataRows[i] = padRow(dataRows[i], len(headerRow))
	}

	return table{headers: headerRow, rows: dataRows}, nil
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func padRow(row []string, length int) []string {
	if len(row) >= length {
		return row[:length]
	}
	padded := make([]string, length)
	copy(padded, row)
	return padded
}
