package reports

import (
	"math"
	"sort"
	"strings"
	"time"

	"agroguard/pkg/risk"
	"agroguard/pkg/store"
)

const (
	criticalHealth     = 50
	overhaulHours      = 5000
	trendWindow        = 5
	trendMinimum       = 3
	temperatureRise    = 1.2
	vibrationRise      = 1.3
	hoursPerWorkDay    = 8
	defaultReliability = 85
	defaultConfidence  = 70
)

// tierHealth stands in for component health when a machine lists none.
func tierHealth(t risk.Tier) float64 {
	switch t {
	case risk.TierHigh:
		return 30
	case risk.TierMedium:
		return 60
	default:
		return 100
	}
}

func buildHealth(e store.Equipment) HealthContent {
	components := risk.PlaceholderComponentHealth(e.CriticalComponents)
	critical := []string{}
	overall := tierHealth(e.RiskLevel)
	if len(components) > 0 {
		sum := 0
		for _, c := range components {
			sum += c.HealthPercent
			if c.HealthPercent < criticalHealth {
				critical = append(critical, c.Name)
			}
		}
		overall = float64(sum) / float64(len(components))
	}

	recs := []string{}
	if overall < criticalHealth {
		recs = append(recs, "Realizar manutenção preventiva urgente")
	}
	if len(critical) > 0 {
		recs = append(recs, "Verificar componentes críticos: "+strings.Join(critical, ", "))
	}
	if e.HoursUsed > overhaulHours {
		recs = append(recs, "Considerar revisão geral devido ao alto tempo de uso")
	}

	return HealthContent{
		OverallHealth:      overall,
		RiskLevel:          tierOrLow(e.RiskLevel),
		ComponentsHealth:   components,
		CriticalComponents: critical,
		OperationalMetrics: OperationalMetrics{
			TotalUsageHours: e.HoursUsed,
			LastMaintenance: e.LastMaintenanceAt,
			NextMaintenance: e.NextMaintenanceAt,
		},
		Recommendations: recs,
	}
}

func buildMaintenance(e store.Equipment, records []store.Maintenance) MaintenanceContent {
	out := MaintenanceContent{
		LastMaintenanceDate: e.LastMaintenanceAt,
		NextMaintenanceDate: e.NextMaintenanceAt,
		History:             []HistoryEntry{},
		ComponentsReplaced:  []ReplacedComponent{},
	}
	completed := 0
	for _, m := range records {
		out.History = append(out.History, HistoryEntry{
			ID:            m.ID.String(),
			Type:          m.Type,
			Description:   m.Description,
			Status:        m.Status,
			ScheduledDate: m.ScheduledDate,
			CompletedDate: m.CompletedDate,
			Cost:          m.Cost,
		})
		if m.Status != store.MaintenanceCompleted {
			continue
		}
		completed++
		out.TotalCost += m.Cost
		out.DowntimeHours += m.DowntimeHours
		for _, name := range m.ComponentsReplaced {
			out.ComponentsReplaced = append(out.ComponentsReplaced, ReplacedComponent{
				Name:          name,
				Date:          m.CompletedDate,
				MaintenanceID: m.ID.String(),
			})
		}
	}
	if completed > 0 {
		eff := math.Max(0, math.Min(100, 100-(out.DowntimeHours/float64(completed))*10))
		out.Efficiency = &eff
	}
	return out
}

// buildPrediction expects readings newest first, as ListReadings returns them.
func buildPrediction(e store.Equipment, readings []store.Reading) PredictionContent {
	out := PredictionContent{
		PredictedFailures:  []PredictedFailure{},
		RiskFactors:        []RiskFactor{},
		DataPointsAnalyzed: len(readings),
	}

	remaining := math.Max(0, e.MTBF-e.HoursUsed)
	days := int(remaining / hoursPerWorkDay)
	for _, c := range risk.PlaceholderComponentHealth(e.CriticalComponents) {
		if c.HealthPercent >= criticalHealth {
			continue
		}
		action, impact := "Monitorar de perto", "Médio"
		if days < 30 {
			action, impact = "Substituir componente", "Alto"
		}
		out.PredictedFailures = append(out.PredictedFailures, PredictedFailure{
			Component:         c.Name,
			DaysToFailure:     days,
			Confidence:        math.Max(50, math.Min(95, float64(100-c.HealthPercent))),
			RecommendedAction: action,
		})
		out.RiskFactors = append(out.RiskFactors, RiskFactor{
			Factor:     "Desgaste de " + c.Name,
			Impact:     impact,
			Mitigation: "Substituição preventiva",
		})
	}

	if len(readings) >= trendMinimum {
		recent := chronological(readings, trendWindow)
		if rising(recent, func(r store.Reading) *float64 { return r.Temperature }, temperatureRise) {
			out.PredictedFailures = append(out.PredictedFailures, PredictedFailure{
				Component:         "Sistema de refrigeração",
				DaysToFailure:     45,
				Confidence:        75,
				RecommendedAction: "Verificar sistema de refrigeração",
			})
			out.RiskFactors = append(out.RiskFactors, RiskFactor{
				Factor:     "Aumento de temperatura",
				Impact:     "Médio",
				Mitigation: "Manutenção do sistema de refrigeração",
			})
		}
		if rising(recent, func(r store.Reading) *float64 { return r.Vibration }, vibrationRise) {
			out.PredictedFailures = append(out.PredictedFailures, PredictedFailure{
				Component:         "Sistema de transmissão",
				DaysToFailure:     30,
				Confidence:        80,
				RecommendedAction: "Verificar alinhamento e balanceamento",
			})
			out.RiskFactors = append(out.RiskFactors, RiskFactor{
				Factor:     "Aumento de vibração",
				Impact:     "Alto",
				Mitigation: "Alinhamento e balanceamento",
			})
		}
	}

	out.ReliabilityScore = defaultReliability
	out.ConfidenceLevel = defaultConfidence
	if n := len(out.PredictedFailures); n > 0 {
		out.ReliabilityScore = max(30, 100-15*n)
		total := 0.0
		for _, f := range out.PredictedFailures {
			total += f.Confidence
		}
		out.ConfidenceLevel = total / float64(n)
	}
	return out
}

// chronological returns the newest n readings oldest first.
func chronological(newestFirst []store.Reading, n int) []store.Reading {
	if len(newestFirst) > n {
		newestFirst = newestFirst[:n]
	}
	out := make([]store.Reading, len(newestFirst))
	copy(out, newestFirst)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// rising reports whether the last present value exceeds the first by factor.
// At least three present values are needed.
func rising(readings []store.Reading, value func(store.Reading) *float64, factor float64) bool {
	var series []float64
	for _, r := range readings {
		if v := value(r); v != nil {
			series = append(series, *v)
		}
	}
	if len(series) < trendMinimum {
		return false
	}
	return series[len(series)-1] > series[0]*factor
}

func buildSummary(e store.Equipment, h HealthContent, m MaintenanceContent, p PredictionContent, alerts []store.Alert, now time.Time) SummaryContent {
	recent := make([]AlertEntry, 0, len(alerts))
	for _, a := range alerts {
		recent = append(recent, AlertEntry{
			ID:        a.ID.String(),
			Message:   a.Message,
			Severity:  a.Severity,
			Status:    a.Status,
			CreatedAt: a.CreatedAt,
		})
	}
	return SummaryContent{
		Equipment: EquipmentInfo{
			Name:            e.Name,
			Model:           e.Model,
			Manufacturer:    e.Manufacturer,
			Status:          e.Status,
			TotalUsageHours: e.HoursUsed,
		},
		Health: HealthSummary{
			OverallHealth:      h.OverallHealth,
			RiskLevel:          h.RiskLevel,
			CriticalComponents: h.CriticalComponents,
		},
		Maintenance: MaintenanceSummary{
			LastMaintenance:  m.LastMaintenanceDate,
			NextMaintenance:  m.NextMaintenanceDate,
			TotalCost:        m.TotalCost,
			MaintenanceCount: len(m.History),
		},
		Prediction: PredictionSummary{
			ReliabilityScore:  p.ReliabilityScore,
			PredictedFailures: p.PredictedFailures,
			ConfidenceLevel:   p.ConfidenceLevel,
		},
		RecentAlerts:    recent,
		Recommendations: h.Recommendations,
		ReportDate:      now,
	}
}

func tierOrLow(t risk.Tier) risk.Tier {
	if t == "" {
		return risk.TierLow
	}
	return t
}
