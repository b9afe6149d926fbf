package maintenance

import (
	"math"
	"sort"
	"time"

	"agroguard/pkg/risk"
	"agroguard/pkg/store"
)

// Recommendation is the suggested next maintenance for one machine.
type Recommendation struct {
	IntervalDays        int                   `json:"recommended_interval_days"`
	NextMaintenanceDate time.Time             `json:"next_maintenance_date"`
	Type                store.MaintenanceType `json:"maintenance_type"`
	Priority            risk.Tier             `json:"priority"`
	Recommendations     []string              `json:"recommendations"`
}

// Recommend derives the next maintenance from the machine's tier and its
// completed history. Records that are not completed are ignored.
func Recommend(e store.Equipment, history []store.Maintenance, now time.Time) Recommendation {
	interval := baseInterval(e.RiskLevel)
	if mean, ok := meanCompletedInterval(history); ok {
		switch e.RiskLevel {
		case risk.TierHigh:
			interval = math.Max(7, mean*0.5)
		case risk.TierMedium:
			interval = math.Max(14, mean*0.7)
		default:
			interval = mean
		}
	}
	days := int(interval)

	from := now
	if e.LastMaintenanceAt != nil {
		from = *e.LastMaintenanceAt
	}

	rec := Recommendation{
		IntervalDays:        days,
		NextMaintenanceDate: from.AddDate(0, 0, days),
		Type:                store.MaintenancePreventive,
		Priority:            e.RiskLevel,
	}
	if rec.Priority == "" {
		rec.Priority = risk.TierLow
	}

	switch e.RiskLevel {
	case risk.TierHigh:
		rec.Type = store.MaintenanceCorrective
		rec.Recommendations = []string{
			"Realizar manutenção preventiva completa",
			"Verificar componentes críticos com prioridade",
		}
	case risk.TierMedium:
		rec.Recommendations = []string{
			"Realizar inspeção detalhada",
			"Monitorar parâmetros operacionais com maior frequência",
		}
	default:
		rec.Recommendations = []string{"Seguir cronograma de manutenção regular"}
	}

	for _, c := range risk.PlaceholderComponentHealth(e.CriticalComponents) {
		switch {
		case c.HealthPercent < 50:
			rec.Recommendations = append(rec.Recommendations, "Substituir "+c.Name)
		case c.HealthPercent < 70:
			rec.Recommendations = append(rec.Recommendations, "Inspecionar "+c.Name)
		}
	}
	return rec
}

func baseInterval(t risk.Tier) float64 {
	switch t {
	case risk.TierHigh:
		return 30
	case risk.TierMedium:
		return 60
	default:
		return 90
	}
}

// meanCompletedInterval averages the whole-day gaps between consecutive
// completions. It needs at least two completed records.
func meanCompletedInterval(history []store.Maintenance) (float64, bool) {
	var dates []time.Time
	for _, m := range history {
		if m.Status == store.MaintenanceCompleted && m.CompletedDate != nil {
			dates = append(dates, *m.CompletedDate)
		}
	}
	if len(dates) < 2 {
		return 0, false
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	total := 0
	for i := 1; i < len(dates); i++ {
		total += int(dates[i].Sub(dates[i-1]).Hours() / 24)
	}
	return float64(total) / float64(len(dates)-1), true
}
