package render

import (
	"strings"
	"testing"
	"time"
)

func TestRenderReport(t *testing.T) {
	e, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	out, err := e.Render(ReportTemplate, ReportDoc{
		Title:         "Relatório de saúde",
		EquipmentName: "Trator 7200J",
		Type:          "health",
		GeneratedAt:   time.Date(2024, 5, 1, 13, 30, 0, 0, time.UTC),
		Sections: []Section{
			{Heading: "Resumo", Lines: []string{"Saúde geral: 70%"}},
			{Heading: "Componentes críticos"},
		},
	})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	for _, want := range []string{
		"AGROGUARD - RELATÓRIO DE SAÚDE",
		"Equipamento: Trator 7200J",
		"Gerado em: 01/05/2024 13:30",
		"== Resumo ==",
		"- Saúde geral: 70%",
		"- (sem dados)",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderAlert(t *testing.T) {
	e, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	out, err := e.Render(AlertTemplate, AlertDoc{
		EquipmentName:     "Motor WEG W22",
		Severity:          "high",
		Message:           "Risco elevado",
		RecommendedAction: "Verificar sensores",
	})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !strings.HasPrefix(out, "[HIGH] Motor WEG W22") {
		t.Fatalf("unexpected header:\n%s", out)
	}
	if !strings.Contains(out, "Registrado em: -") {
		t.Fatalf("zero time should render as dash:\n%s", out)
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	e, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := e.Render("missing.tmpl", nil); err == nil {
		t.Fatalf("expected error for unknown template")
	}
	var nilEngine *Engine
	if _, err := nilEngine.Render(AlertTemplate, nil); err == nil {
		t.Fatalf("expected error for nil engine")
	}
}
