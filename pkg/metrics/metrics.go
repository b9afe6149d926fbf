// Package metrics holds the Prometheus collectors exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Classifications counts risk classifications by resulting tier.
	Classifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agroguard_risk_classifications_total",
			Help: "Risk classifications performed, by resulting tier.",
		},
		[]string{"tier"},
	)

	// AlertsRaised counts alerts created automatically or on demand.
	AlertsRaised = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agroguard_alerts_raised_total",
			Help: "Alerts raised, by severity.",
		},
		[]string{"severity"},
	)

	AlertTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agroguard_alert_transitions_total",
			Help: "Alert lifecycle transitions, by event and result.",
		},
		[]string{"event", "result"}, // result: ok/rejected
	)

	// Uploads counts accepted and rejected upload requests.
	Uploads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agroguard_uploads_total",
			Help: "Upload requests, by result.",
		},
		[]string{"result"},
	)

	// IngestedRows counts readings appended by the ingestion paths.
	IngestedRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agroguard_ingested_rows_total",
			Help: "Rows ingested, by source.",
		},
		[]string{"source"}, // upload/mqtt
	)

	ReportsGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agroguard_reports_generated_total",
			Help: "Reports generated, by type.",
		},
		[]string{"type"},
	)

	IngestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agroguard_ingest_duration_seconds",
			Help:    "Time spent ingesting one uploaded file.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"format"},
	)
)

func init() {
	prometheus.MustRegister(Classifications)
	prometheus.MustRegister(AlertsRaised)
	prometheus.MustRegister(AlertTransitions)
	prometheus.MustRegister(Uploads)
	prometheus.MustRegister(IngestedRows)
	prometheus.MustRegister(ReportsGenerated)
	prometheus.MustRegister(IngestDuration)
}
