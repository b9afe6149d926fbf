// Package reports generates, stores and exports equipment reports.
package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"

	"agroguard/pkg/lifecycle"
	"agroguard/pkg/metrics"
	"agroguard/pkg/render"
	"agroguard/pkg/s3"
	"agroguard/pkg/store"
)

const recentAlertCount = 5

// ErrExportUnavailable is returned for download links when no object store is
// configured.
var ErrExportUnavailable = errors.New("report export storage is not configured")

// ErrUnknownType is returned for report types outside the four known ones.
var ErrUnknownType = errors.New("unknown report type")

// Store is the slice of the repository reports need.
type Store interface {
	store.ReportStore
	GetEquipment(ctx context.Context, id uuid.UUID) (store.Equipment, error)
	ListReadings(ctx context.Context, equipmentID uuid.UUID, limit int) ([]store.Reading, error)
	ListMaintenance(ctx context.Context, owner uuid.UUID, f store.MaintenanceFilter) ([]store.Maintenance, error)
	ListAlerts(ctx context.Context, owner uuid.UUID, f store.AlertFilter) ([]store.Alert, error)
}

// Options wires the optional export storage.
type Options struct {
	Objects s3.ObjectStore
	Bucket  string
	URLTTL  time.Duration
}

// Service builds report content and manages report status.
type Service struct {
	store  Store
	engine *render.Engine
	opts   Options
	now    func() time.Time
}

func New(st Store, engine *render.Engine, opts Options) (*Service, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	if engine == nil {
		return nil, errors.New("render engine is required")
	}
	if opts.URLTTL <= 0 {
		opts.URLTTL = 15 * time.Minute
	}
	return &Service{store: st, engine: engine, opts: opts, now: func() time.Time { return time.Now().UTC() }}, nil
}

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// URLTTL is the lifetime of links returned by DownloadURL.
func (s *Service) URLTTL() time.Duration { return s.opts.URLTTL }

var titles = map[store.ReportType]string{
	store.ReportHealth:      "Relatório de saúde",
	store.ReportMaintenance: "Relatório de manutenção",
	store.ReportPrediction:  "Relatório de previsão",
	store.ReportSummary:     "Relatório resumido",
}

// Generate builds a report of type kind for a machine owned by owner. An
// empty title gets a default derived from the type and machine name.
func (s *Service) Generate(ctx context.Context, owner, equipmentID uuid.UUID, kind store.ReportType, title string) (store.Report, error) {
	label, ok := titles[kind]
	if !ok {
		return store.Report{}, fmt.Errorf("%w: %q", ErrUnknownType, kind)
	}
	e, err := s.store.GetEquipment(ctx, equipmentID)
	e, err = store.Authorize(e, err, owner)
	if err != nil {
		return store.Report{}, err
	}

	body, err := s.content(ctx, owner, e, kind)
	if err != nil {
		return store.Report{}, err
	}
	content, err := toMap(body)
	if err != nil {
		return store.Report{}, err
	}

	if strings.TrimSpace(title) == "" {
		title = label + " - " + e.Name
	}
	r := store.Report{
		OwnerID:       owner,
		EquipmentID:   e.ID,
		EquipmentName: e.Name,
		Type:          kind,
		Title:         title,
		Status:        store.ReportGenerated,
		Content:       content,
	}
	if err := s.store.CreateReport(ctx, &r); err != nil {
		return store.Report{}, err
	}
	metrics.ReportsGenerated.WithLabelValues(string(kind)).Inc()
	return r, nil
}

func (s *Service) content(ctx context.Context, owner uuid.UUID, e store.Equipment, kind store.ReportType) (any, error) {
	switch kind {
	case store.ReportHealth:
		return buildHealth(e), nil
	case store.ReportMaintenance:
		records, err := s.store.ListMaintenance(ctx, owner, store.MaintenanceFilter{EquipmentID: e.ID})
		if err != nil {
			return nil, err
		}
		return buildMaintenance(e, records), nil
	case store.ReportPrediction:
		readings, err := s.store.ListReadings(ctx, e.ID, 0)
		if err != nil {
			return nil, err
		}
		return buildPrediction(e, readings), nil
	default:
		records, err := s.store.ListMaintenance(ctx, owner, store.MaintenanceFilter{EquipmentID: e.ID})
		if err != nil {
			return nil, err
		}
		readings, err := s.store.ListReadings(ctx, e.ID, 0)
		if err != nil {
			return nil, err
		}
		alerts, err := s.store.ListAlerts(ctx, owner, store.AlertFilter{EquipmentID: e.ID, Limit: recentAlertCount})
		if err != nil {
			return nil, err
		}
		return buildSummary(e, buildHealth(e), buildMaintenance(e, records), buildPrediction(e, readings), alerts, s.now()), nil
	}
}

func toMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode content: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}
	return out, nil
}

func (s *Service) List(ctx context.Context, owner uuid.UUID, f store.ReportFilter) ([]store.Report, error) {
	return s.store.ListReports(ctx, owner, f)
}

const (
	eventView    = "view"
	eventArchive = "archive"
)

var machine lifecycle.Machine = func(initial string) *fsm.FSM {
	return fsm.NewFSM(initial,
		fsm.Events{
			{Name: eventView, Src: []string{string(store.ReportGenerated)}, Dst: string(store.ReportViewed)},
			{Name: eventArchive, Src: []string{string(store.ReportGenerated), string(store.ReportViewed)}, Dst: string(store.ReportArchived)},
		},
		fsm.Callbacks{},
	)
}

// Get returns a report and marks it viewed on the owner's first read.
func (s *Service) Get(ctx context.Context, owner, id uuid.UUID) (store.Report, error) {
	r, err := s.lookup(ctx, owner, id)
	if err != nil {
		return store.Report{}, err
	}
	if !machine.Allowed(string(r.Status), eventView) {
		return r, nil
	}
	if err := s.apply(ctx, &r, eventView); err != nil {
		return store.Report{}, err
	}
	return r, nil
}

// Archive moves a report out of the active list.
func (s *Service) Archive(ctx context.Context, owner, id uuid.UUID) (store.Report, error) {
	r, err := s.lookup(ctx, owner, id)
	if err != nil {
		return store.Report{}, err
	}
	if err := s.apply(ctx, &r, eventArchive); err != nil {
		return store.Report{}, err
	}
	return r, nil
}

func (s *Service) lookup(ctx context.Context, owner, id uuid.UUID) (store.Report, error) {
	r, err := s.store.GetReport(ctx, id)
	return store.Authorize(r, err, owner)
}

func (s *Service) apply(ctx context.Context, r *store.Report, event string) error {
	next, err := machine.Fire(ctx, string(r.Status), event)
	if err != nil {
		return err
	}
	r.Status = store.ReportStatus(next)
	return s.store.UpdateReport(ctx, r)
}

// Render formats a report as plain text.
func (s *Service) Render(r store.Report) (string, error) {
	return s.engine.Render(render.ReportTemplate, render.ReportDoc{
		Title:         r.Title,
		EquipmentName: r.EquipmentName,
		Type:          string(r.Type),
		GeneratedAt:   r.CreatedAt,
		Sections:      sections(r.Content),
	})
}

// ExportKey is where a report's text export is stored.
func ExportKey(r store.Report) string {
	return fmt.Sprintf("reports/%s/%s.txt", r.OwnerID, r.ID)
}

// Export renders a report and, when object storage is configured, stores the
// text under ExportKey.
func (s *Service) Export(ctx context.Context, owner, id uuid.UUID) (string, store.Report, error) {
	r, err := s.lookup(ctx, owner, id)
	if err != nil {
		return "", store.Report{}, err
	}
	text, err := s.Render(r)
	if err != nil {
		return "", store.Report{}, fmt.Errorf("render report: %w", err)
	}
	if s.opts.Objects == nil {
		return text, r, nil
	}
	key := ExportKey(r)
	if err := s3.PutBytes(ctx, s.opts.Objects, s.opts.Bucket, key, []byte(text)); err != nil {
		return "", store.Report{}, fmt.Errorf("store export: %w", err)
	}
	if r.ExportKey != key {
		r.ExportKey = key
		if err := s.store.UpdateReport(ctx, &r); err != nil {
			return "", store.Report{}, err
		}
	}
	return text, r, nil
}

// DownloadURL exports the report and returns a presigned link to the text.
func (s *Service) DownloadURL(ctx context.Context, owner, id uuid.UUID) (string, error) {
	if s.opts.Objects == nil {
		return "", ErrExportUnavailable
	}
	_, r, err := s.Export(ctx, owner, id)
	if err != nil {
		return "", err
	}
	return s.opts.Objects.PresignGet(ctx, s.opts.Bucket, r.ExportKey, s.opts.URLTTL)
}

var headings = map[string]string{
	"overall_health":         "Saúde geral",
	"risk_level":             "Nível de risco",
	"components_health":      "Saúde dos componentes",
	"critical_components":    "Componentes críticos",
	"operational_metrics":    "Métricas operacionais",
	"recommendations":        "Recomendações",
	"maintenance_history":    "Histórico de manutenção",
	"components_replaced":    "Componentes substituídos",
	"total_maintenance_cost": "Custo total de manutenção",
	"downtime_hours":         "Horas de inatividade",
	"maintenance_efficiency": "Eficiência da manutenção",
	"last_maintenance_date":  "Última manutenção",
	"next_maintenance_date":  "Próxima manutenção",
	"predicted_failures":     "Falhas previstas",
	"risk_factors":           "Fatores de risco",
	"reliability_score":      "Confiabilidade",
	"confidence_level":       "Nível de confiança",
	"data_points_analyzed":   "Pontos de dados analisados",
	"equipment_info":         "Equipamento",
	"health_summary":         "Resumo de saúde",
	"maintenance_summary":    "Resumo de manutenção",
	"prediction_summary":     "Resumo de previsão",
	"recent_alerts":          "Alertas recentes",
	"report_date":            "Data do relatório",
}

// sections flattens stored content into template sections, ordered by key.
func sections(content map[string]any) []render.Section {
	keys := make([]string, 0, len(content))
	for k := range content {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]render.Section, 0, len(keys))
	for _, k := range keys {
		heading := headings[k]
		if heading == "" {
			heading = k
		}
		out = append(out, render.Section{Heading: heading, Lines: lines(content[k])})
	}
	return out
}

func lines(v any) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			out = append(out, inline(item))
		}
		return out
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]string, 0, len(keys))
		for _, k := range keys {
			out = append(out, k+": "+inline(val[k]))
		}
		return out
	default:
		return []string{inline(val)}
	}
}

func inline(v any) string {
	switch val := v.(type) {
	case nil:
		return "-"
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%.2f", val)
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+"="+inline(val[k]))
		}
		return strings.Join(parts, ", ")
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, inline(item))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(val)
	}
}
