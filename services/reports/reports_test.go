package reports

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"agroguard/pkg/lifecycle"
	"agroguard/pkg/render"
	"agroguard/pkg/risk"
	"agroguard/pkg/s3"
	"agroguard/pkg/store"
	"agroguard/pkg/store/memstore"
)

type fixture struct {
	store   *memstore.Store
	objects *s3.Memory
	svc     *Service
	owner   uuid.UUID
	now     time.Time
}

func newFixture(t *testing.T, withObjects bool) *fixture {
	t.Helper()
	now := time.Date(2024, 5, 2, 9, 30, 0, 0, time.UTC)
	st := memstore.New(memstore.WithClock(func() time.Time { return now }))
	engine, err := render.New()
	if err != nil {
		t.Fatalf("render.New() error = %v", err)
	}
	f := &fixture{store: st, owner: uuid.New(), now: now}
	opts := Options{Bucket: "agroguard", URLTTL: time.Minute}
	if withObjects {
		f.objects = s3.NewMemory()
		opts.Objects = f.objects
	}
	svc, err := New(st, engine, opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	svc.SetClock(func() time.Time { return now })
	f.svc = svc
	return f
}

func (f *fixture) equipment(t *testing.T, e store.Equipment) store.Equipment {
	t.Helper()
	e.OwnerID = f.owner
	if e.Status == "" {
		e.Status = store.EquipmentActive
	}
	if _, err := e.Reclassify(); err != nil {
		t.Fatalf("Reclassify() error = %v", err)
	}
	if err := f.store.CreateEquipment(context.Background(), &e); err != nil {
		t.Fatalf("CreateEquipment() error = %v", err)
	}
	return e
}

func ptr(v float64) *float64 { return &v }

func TestNewRequiresDependencies(t *testing.T) {
	engine, _ := render.New()
	if _, err := New(nil, engine, Options{}); err == nil {
		t.Fatal("expected error for nil store")
	}
	if _, err := New(memstore.New(), nil, Options{}); err == nil {
		t.Fatal("expected error for nil engine")
	}
}

func TestGenerateDefaultTitleAndStatus(t *testing.T) {
	f := newFixture(t, false)
	e := f.equipment(t, store.Equipment{Name: "Trator 01", HoursUsed: 100, MTBF: 1000})

	r, err := f.svc.Generate(context.Background(), f.owner, e.ID, store.ReportHealth, "  ")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if r.Title != "Relatório de saúde - Trator 01" {
		t.Fatalf("title = %q", r.Title)
	}
	if r.Status != store.ReportGenerated {
		t.Fatalf("status = %q, want generated", r.Status)
	}
	if r.EquipmentName != "Trator 01" {
		t.Fatalf("equipment name = %q", r.EquipmentName)
	}
	if got := r.Content["risk_level"]; got != string(risk.TierLow) {
		t.Fatalf("risk_level = %v, want low", got)
	}
	if got := r.Content["overall_health"]; got != float64(100) {
		t.Fatalf("overall_health = %v, want 100", got)
	}
}

func TestGenerateRejectsUnknownTypeAndForeignEquipment(t *testing.T) {
	f := newFixture(t, false)
	e := f.equipment(t, store.Equipment{Name: "Colheitadeira", HoursUsed: 10, MTBF: 100})

	if _, err := f.svc.Generate(context.Background(), f.owner, e.ID, "weekly", ""); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("err = %v, want ErrUnknownType", err)
	}
	if _, err := f.svc.Generate(context.Background(), uuid.New(), e.ID, store.ReportHealth, ""); !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
	if _, err := f.svc.Generate(context.Background(), f.owner, uuid.New(), store.ReportHealth, ""); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestHealthFlagsCriticalComponents(t *testing.T) {
	e := store.Equipment{
		Name:               "Pulverizador",
		HoursUsed:          6000,
		MTBF:               10000,
		CriticalComponents: []string{"motor", "bomba", "filtro", "correia", "rolamento"},
	}
	h := buildHealth(e)
	// 100 85 70 55 40
	if h.OverallHealth != 70 {
		t.Fatalf("overall = %v, want 70", h.OverallHealth)
	}
	if len(h.CriticalComponents) != 1 || h.CriticalComponents[0] != "rolamento" {
		t.Fatalf("critical = %v, want [rolamento]", h.CriticalComponents)
	}
	if len(h.Recommendations) != 2 {
		t.Fatalf("recommendations = %v", h.Recommendations)
	}
	if !strings.Contains(h.Recommendations[1], "revisão geral") {
		t.Fatalf("missing overhaul recommendation: %v", h.Recommendations)
	}
}

func TestMaintenanceTotalsCountCompletedOnly(t *testing.T) {
	done := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	records := []store.Maintenance{
		{ID: uuid.New(), Status: store.MaintenanceCompleted, Cost: 500, DowntimeHours: 4, CompletedDate: &done, ComponentsReplaced: []string{"filtro"}},
		{ID: uuid.New(), Status: store.MaintenanceCompleted, Cost: 300, DowntimeHours: 2, CompletedDate: &done},
		{ID: uuid.New(), Status: store.MaintenanceScheduled, Cost: 900},
	}
	m := buildMaintenance(store.Equipment{}, records)
	if m.TotalCost != 800 {
		t.Fatalf("total cost = %v, want 800", m.TotalCost)
	}
	if m.DowntimeHours != 6 {
		t.Fatalf("downtime = %v, want 6", m.DowntimeHours)
	}
	if len(m.History) != 3 {
		t.Fatalf("history = %d entries, want 3", len(m.History))
	}
	if len(m.ComponentsReplaced) != 1 || m.ComponentsReplaced[0].Name != "filtro" {
		t.Fatalf("components replaced = %+v", m.ComponentsReplaced)
	}
	if m.Efficiency == nil || *m.Efficiency != 70 {
		t.Fatalf("efficiency = %v, want 70", m.Efficiency)
	}

	if got := buildMaintenance(store.Equipment{}, nil); got.Efficiency != nil {
		t.Fatalf("efficiency without history = %v, want nil", *got.Efficiency)
	}
}

func TestPredictionTrends(t *testing.T) {
	base := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	var readings []store.Reading
	temps := []float64{60, 65, 70, 80}
	for i, temp := range temps {
		readings = append(readings, store.Reading{Date: base.AddDate(0, 0, i), Temperature: ptr(temp), Vibration: ptr(2)})
	}
	// newest first
	for i, j := 0, len(readings)-1; i < j; i, j = i+1, j-1 {
		readings[i], readings[j] = readings[j], readings[i]
	}

	p := buildPrediction(store.Equipment{HoursUsed: 100, MTBF: 1000}, readings)
	if p.DataPointsAnalyzed != 4 {
		t.Fatalf("data points = %d, want 4", p.DataPointsAnalyzed)
	}
	if len(p.PredictedFailures) != 1 || p.PredictedFailures[0].Component != "Sistema de refrigeração" {
		t.Fatalf("predicted failures = %+v", p.PredictedFailures)
	}
	if p.ReliabilityScore != 85 {
		t.Fatalf("reliability = %d, want 85", p.ReliabilityScore)
	}
	if p.ConfidenceLevel != 75 {
		t.Fatalf("confidence = %v, want 75", p.ConfidenceLevel)
	}

	quiet := buildPrediction(store.Equipment{HoursUsed: 100, MTBF: 1000}, readings[:2])
	if len(quiet.PredictedFailures) != 0 || quiet.ReliabilityScore != defaultReliability || quiet.ConfidenceLevel != defaultConfidence {
		t.Fatalf("short series = %+v", quiet)
	}
}

func TestPredictionComponentDays(t *testing.T) {
	e := store.Equipment{
		HoursUsed:          900,
		MTBF:               1000,
		CriticalComponents: []string{"a", "b", "c", "d", "e"},
	}
	p := buildPrediction(e, nil)
	if len(p.PredictedFailures) != 1 {
		t.Fatalf("predicted failures = %+v", p.PredictedFailures)
	}
	got := p.PredictedFailures[0]
	if got.Component != "e" || got.DaysToFailure != 12 || got.RecommendedAction != "Substituir componente" {
		t.Fatalf("failure = %+v", got)
	}
	if got.Confidence != 60 {
		t.Fatalf("confidence = %v, want 60", got.Confidence)
	}
}

func TestSummaryIncludesRecentAlerts(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	e := f.equipment(t, store.Equipment{Name: "Plantadeira", HoursUsed: 950, MTBF: 1000})
	for i := 0; i < 7; i++ {
		a := store.Alert{OwnerID: f.owner, EquipmentID: e.ID, Message: "risco", Severity: risk.TierHigh, Status: store.AlertResolved}
		if i == 0 {
			a.Status = store.AlertActive
		}
		if err := f.store.CreateAlert(ctx, &a); err != nil {
			t.Fatalf("CreateAlert() error = %v", err)
		}
	}

	r, err := f.svc.Generate(ctx, f.owner, e.ID, store.ReportSummary, "Resumo")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	alerts, ok := r.Content["recent_alerts"].([]any)
	if !ok {
		t.Fatalf("recent_alerts = %T", r.Content["recent_alerts"])
	}
	if len(alerts) != recentAlertCount {
		t.Fatalf("recent alerts = %d, want %d", len(alerts), recentAlertCount)
	}
	info := r.Content["equipment_info"].(map[string]any)
	if info["name"] != "Plantadeira" {
		t.Fatalf("equipment_info = %v", info)
	}
}

func TestGetMarksViewedAndArchiveIsFinal(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	e := f.equipment(t, store.Equipment{Name: "Trator", HoursUsed: 10, MTBF: 100})
	r, err := f.svc.Generate(ctx, f.owner, e.ID, store.ReportMaintenance, "")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	got, err := f.svc.Get(ctx, f.owner, r.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != store.ReportViewed {
		t.Fatalf("status = %q, want viewed", got.Status)
	}
	again, err := f.svc.Get(ctx, f.owner, r.ID)
	if err != nil || again.Status != store.ReportViewed {
		t.Fatalf("second Get() = %q, %v", again.Status, err)
	}

	archived, err := f.svc.Archive(ctx, f.owner, r.ID)
	if err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	if archived.Status != store.ReportArchived {
		t.Fatalf("status = %q, want archived", archived.Status)
	}
	if _, err := f.svc.Archive(ctx, f.owner, r.ID); !errors.Is(err, lifecycle.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
	if got, _ := f.svc.Get(ctx, f.owner, r.ID); got.Status != store.ReportArchived {
		t.Fatalf("Get() changed archived report to %q", got.Status)
	}
	if _, err := f.svc.Get(ctx, uuid.New(), r.ID); !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}

func TestListFiltersByType(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	e := f.equipment(t, store.Equipment{Name: "Trator", HoursUsed: 10, MTBF: 100})
	for _, kind := range []store.ReportType{store.ReportHealth, store.ReportPrediction, store.ReportHealth} {
		if _, err := f.svc.Generate(ctx, f.owner, e.ID, kind, ""); err != nil {
			t.Fatalf("Generate(%s) error = %v", kind, err)
		}
	}
	got, err := f.svc.List(ctx, f.owner, store.ReportFilter{Type: store.ReportHealth})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
}

func TestExportStoresTextAndPresigns(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	e := f.equipment(t, store.Equipment{Name: "Trator 07", HoursUsed: 10, MTBF: 100, CriticalComponents: []string{"motor"}})
	r, err := f.svc.Generate(ctx, f.owner, e.ID, store.ReportHealth, "Saúde do trator")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	text, exported, err := f.svc.Export(ctx, f.owner, r.ID)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	for _, want := range []string{"SAÚDE DO TRATOR", "Equipamento: Trator 07", "02/05/2024 09:30", "== Saúde geral ==", "- 100"} {
		if !strings.Contains(text, want) {
			t.Fatalf("export missing %q:\n%s", want, text)
		}
	}
	if exported.ExportKey != ExportKey(r) {
		t.Fatalf("export key = %q, want %q", exported.ExportKey, ExportKey(r))
	}
	stored, err := f.objects.GetObject(ctx, "agroguard", exported.ExportKey, 0)
	if err != nil {
		t.Fatalf("GetObject() error = %v", err)
	}
	if string(stored) != text {
		t.Fatal("stored export differs from rendered text")
	}

	url, err := f.svc.DownloadURL(ctx, f.owner, r.ID)
	if err != nil {
		t.Fatalf("DownloadURL() error = %v", err)
	}
	if !strings.HasPrefix(url, "memory://agroguard/reports/") {
		t.Fatalf("url = %q", url)
	}
}

func TestDownloadURLWithoutObjectStore(t *testing.T) {
	f := newFixture(t, false)
	e := f.equipment(t, store.Equipment{Name: "Trator", HoursUsed: 10, MTBF: 100})
	r, err := f.svc.Generate(context.Background(), f.owner, e.ID, store.ReportHealth, "")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if _, err := f.svc.DownloadURL(context.Background(), f.owner, r.ID); !errors.Is(err, ErrExportUnavailable) {
		t.Fatalf("err = %v, want ErrExportUnavailable", err)
	}
	text, _, err := f.svc.Export(context.Background(), f.owner, r.ID)
	if err != nil || text == "" {
		t.Fatalf("Export() = %q, %v", text, err)
	}
}

func TestInlineFormatting(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, "-"},
		{float64(3), "3"},
		{2.5, "2.50"},
		{"texto", "texto"},
		{map[string]any{"b": 1.0, "a": "x"}, "a=x, b=1"},
		{[]any{"a", 2.0}, "a, 2"},
	}
	for _, tt := range tests {
		if got := inline(tt.in); got != tt.want {
			t.Fatalf("inline(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
