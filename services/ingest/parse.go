package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"agroguard/pkg/upload"
)

// ErrXLSUnsupported marks legacy spreadsheets, which are stored but not parsed.
var ErrXLSUnsupported = errors.New("xls ingestion is not supported")

// row is one data line keyed by lower-cased header name. line is 1-based and
// counts the header.
type row struct {
	line   int
	values map[string]string
}

func (r row) get(key string) string { return r.values[key] }

// RowError locates a failure in an uploaded file.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string { return fmt.Sprintf("row %d: %v", e.Line, e.Err) }

func (e *RowError) Unwrap() error { return e.Err }

func parse(format upload.Format, data []byte) ([]row, error) {
	switch format {
	case upload.FormatCSV:
		return parseCSV(data)
	case upload.FormatXLSX:
		return parseXLSX(data)
	case upload.FormatXLS:
		return nil, ErrXLSUnsupported
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

func parseCSV(data []byte) ([]row, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var records [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		records = append(records, rec)
	}
	return tabulate(records)
}

func parseXLSX(data []byte) ([]row, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return tabulate(records)
}

// tabulate keys every record after the first by the first record's headers.
// Blank lines are skipped.
func tabulate(records [][]string) ([]row, error) {
	if len(records) == 0 {
		return nil, errors.New("file has no header row")
	}
	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.ToLower(strings.TrimSpace(h))
	}

	out := make([]row, 0, len(records)-1)
	for i, rec := range records[1:] {
		values := make(map[string]string, len(header))
		blank := true
		for j, cell := range rec {
			if j >= len(header) || header[j] == "" {
				continue
			}
			cell = strings.TrimSpace(cell)
			if cell != "" {
				blank = false
			}
			values[header[j]] = cell
		}
		if blank {
			continue
		}
		out = append(out, row{line: i + 2, values: values})
	}
	return out, nil
}

var dateLayouts = []string{time.RFC3339, "2006-01-02", "02/01/2006", "2006-01-02 15:04:05"}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// parseNumber accepts a decimal comma.
func parseNumber(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return v, nil
}

func optionalNumber(r row, key string) (*float64, error) {
	s := r.get(key)
	if s == "" {
		return nil, nil
	}
	v, err := parseNumber(s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return &v, nil
}
