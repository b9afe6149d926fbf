// Package upload holds the acceptance policy for operational data files.
package upload

import (
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
)

// MaxSize is the largest accepted file, in bytes.
const MaxSize = 5 * 1024 * 1024

// Format identifies an accepted spreadsheet format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLS  Format = "xls"
	FormatXLSX Format = "xlsx"
)

var (
	ErrEmptyFile         = errors.New("file is empty")
	ErrTooLarge          = fmt.Errorf("file exceeds the %d MB limit", MaxSize/(1024*1024))
	ErrUnsupportedFormat = errors.New("unsupported file format: use CSV, XLS or XLSX")
)

var mimeFormats = map[string]Format{
	"text/csv":                 FormatCSV,
	"application/csv":          FormatCSV,
	"application/vnd.ms-excel": FormatXLS,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": FormatXLSX,
}

var extFormats = map[string]Format{
	".csv":  FormatCSV,
	".xls":  FormatXLS,
	".xlsx": FormatXLSX,
}

// Check applies the allow-list and the size ceiling. A file is accepted when either
// its MIME type or its extension is allowed; the extension wins when both resolve,
// since browsers commonly report CSV files as application/vnd.ms-excel.
func Check(fileName, contentType string, size int64) (Format, error) {
	if size <= 0 {
		return "", ErrEmptyFile
	}
	if size > MaxSize {
		return "", ErrTooLarge
	}

	if f, ok := extFormats[strings.ToLower(filepath.Ext(fileName))]; ok {
		return f, nil
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err == nil {
		if f, ok := mimeFormats[strings.ToLower(mediaType)]; ok {
			return f, nil
		}
	}
	return "", ErrUnsupportedFormat
}
