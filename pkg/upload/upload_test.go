package upload

import (
	"errors"
	"testing"
)

func TestCheck(t *testing.T) {
	tests := []struct {
		name        string
		file        string
		contentType string
		size        int64
		want        Format
		wantErr     error
	}{
		{name: "csv by extension", file: "dados.CSV", contentType: "application/octet-stream", size: 10, want: FormatCSV},
		{name: "xlsx by mime", file: "export", contentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", size: 10, want: FormatXLSX},
		{name: "csv with charset", file: "upload", contentType: "text/csv; charset=utf-8", size: 10, want: FormatCSV},
		{name: "excel mime on csv file", file: "horas.csv", contentType: "application/vnd.ms-excel", size: 10, want: FormatCSV},
		{name: "xls", file: "legado.xls", contentType: "", size: 10, want: FormatXLS},
		{name: "exactly five megabytes", file: "a.csv", contentType: "text/csv", size: MaxSize, want: FormatCSV},
		{name: "over limit", file: "a.csv", contentType: "text/csv", size: MaxSize + 1, wantErr: ErrTooLarge},
		{name: "empty", file: "a.csv", contentType: "text/csv", size: 0, wantErr: ErrEmptyFile},
		{name: "pdf rejected", file: "manual.pdf", contentType: "application/pdf", size: 10, wantErr: ErrUnsupportedFormat},
		{name: "garbage mime", file: "x", contentType: ";;", size: 10, wantErr: ErrUnsupportedFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Check(tt.file, tt.contentType, tt.size)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Check() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("Check() = %q, want %q", got, tt.want)
			}
		})
	}
}
