// Package render executes the text templates embedded in the binary.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
	"time"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

const (
	ReportTemplate = "report.txt.tmpl"
	AlertTemplate  = "alert.txt.tmpl"
)

// Engine renders templates embedded in the package.
type Engine struct {
	templates *template.Template
}

var funcs = template.FuncMap{
	"upper": strings.ToUpper,
	"date": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.UTC().Format("02/01/2006 15:04")
	},
}

// New parses all embedded templates.
func New() (*Engine, error) {
	t, err := template.New("render").Funcs(funcs).Option("missingkey=error").ParseFS(templatesFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Engine{templates: t}, nil
}

// Render executes the named template with data.
func (e *Engine) Render(name string, data any) (string, error) {
	if e == nil || e.templates == nil {
		return "", fmt.Errorf("nil engine")
	}

	buf := bytes.NewBuffer(nil)
	if err := e.templates.ExecuteTemplate(buf, name, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

// Section is one titled block of a rendered report.
type Section struct {
	Heading string
	Lines   []string
}

// ReportDoc is the data the report template expects.
type ReportDoc struct {
	Title         string
	EquipmentName string
	Type          string
	GeneratedAt   time.Time
	Sections      []Section
}

// AlertDoc is the data the alert notification template expects.
type AlertDoc struct {
	EquipmentName     string
	Severity          string
	Message           string
	RecommendedAction string
	RaisedAt          time.Time
}
