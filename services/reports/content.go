package reports

import (
	"time"

	"agroguard/pkg/risk"
	"agroguard/pkg/store"
)

// HealthContent is the body of a health report.
type HealthContent struct {
	OverallHealth      float64                `json:"overall_health"`
	RiskLevel          risk.Tier              `json:"risk_level"`
	ComponentsHealth   []risk.ComponentHealth `json:"components_health"`
	CriticalComponents []string               `json:"critical_components"`
	OperationalMetrics OperationalMetrics     `json:"operational_metrics"`
	Recommendations    []string               `json:"recommendations"`
}

type OperationalMetrics struct {
	TotalUsageHours float64    `json:"total_usage_hours"`
	LastMaintenance *time.Time `json:"last_maintenance,omitempty"`
	NextMaintenance *time.Time `json:"next_maintenance,omitempty"`
}

// MaintenanceContent is the body of a maintenance report.
type MaintenanceContent struct {
	LastMaintenanceDate *time.Time          `json:"last_maintenance_date,omitempty"`
	NextMaintenanceDate *time.Time          `json:"next_maintenance_date,omitempty"`
	History             []HistoryEntry      `json:"maintenance_history"`
	ComponentsReplaced  []ReplacedComponent `json:"components_replaced"`
	TotalCost           float64             `json:"total_maintenance_cost"`
	DowntimeHours       float64             `json:"downtime_hours"`
	Efficiency          *float64            `json:"maintenance_efficiency"`
}

type HistoryEntry struct {
	ID            string                  `json:"id"`
	Type          store.MaintenanceType   `json:"type"`
	Description   string                  `json:"description"`
	Status        store.MaintenanceStatus `json:"status"`
	ScheduledDate time.Time               `json:"scheduled_date"`
	CompletedDate *time.Time              `json:"completed_date,omitempty"`
	Cost          float64                 `json:"cost"`
}

type ReplacedComponent struct {
	Name          string     `json:"name"`
	Date          *time.Time `json:"date,omitempty"`
	MaintenanceID string     `json:"maintenance_id"`
}

// PredictionContent is the body of a prediction report.
type PredictionContent struct {
	PredictedFailures  []PredictedFailure `json:"predicted_failures"`
	RiskFactors        []RiskFactor       `json:"risk_factors"`
	ReliabilityScore   int                `json:"reliability_score"`
	ConfidenceLevel    float64            `json:"confidence_level"`
	DataPointsAnalyzed int                `json:"data_points_analyzed"`
}

type PredictedFailure struct {
	Component         string  `json:"component"`
	DaysToFailure     int     `json:"days_to_failure"`
	Confidence        float64 `json:"confidence"`
	RecommendedAction string  `json:"recommended_action"`
}

type RiskFactor struct {
	Factor     string `json:"factor"`
	Impact     string `json:"impact"`
	Mitigation string `json:"mitigation"`
}

// SummaryContent condenses the other three report types.
type SummaryContent struct {
	Equipment       EquipmentInfo      `json:"equipment_info"`
	Health          HealthSummary      `json:"health_summary"`
	Maintenance     MaintenanceSummary `json:"maintenance_summary"`
	Prediction      PredictionSummary  `json:"prediction_summary"`
	RecentAlerts    []AlertEntry       `json:"recent_alerts"`
	Recommendations []string           `json:"recommendations"`
	ReportDate      time.Time          `json:"report_date"`
}

type EquipmentInfo struct {
	Name            string                `json:"name"`
	Model           string                `json:"model"`
	Manufacturer    string                `json:"manufacturer"`
	Status          store.EquipmentStatus `json:"status"`
	TotalUsageHours float64               `json:"total_usage_hours"`
}

type HealthSummary struct {
	OverallHealth      float64   `json:"overall_health"`
	RiskLevel          risk.Tier `json:"risk_level"`
	CriticalComponents []string  `json:"critical_components"`
}

type MaintenanceSummary struct {
	LastMaintenance  *time.Time `json:"last_maintenance,omitempty"`
	NextMaintenance  *time.Time `json:"next_maintenance,omitempty"`
	TotalCost        float64    `json:"total_cost"`
	MaintenanceCount int        `json:"maintenance_count"`
}

type PredictionSummary struct {
	ReliabilityScore  int                `json:"reliability_score"`
	PredictedFailures []PredictedFailure `json:"predicted_failures"`
	ConfidenceLevel   float64            `json:"confidence_level"`
}

type AlertEntry struct {
	ID        string            `json:"id"`
	Message   string            `json:"message"`
	Severity  risk.Tier         `json:"severity"`
	Status    store.AlertStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
}
