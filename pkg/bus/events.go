package bus

import (
	"time"

	"github.com/google/uuid"

	"agroguard/pkg/risk"
)

const (
	SubjectRiskChanged    = "agroguard.equipment.risk"
	SubjectUploadReceived = "agroguard.uploads.received"
	SubjectAlertRaised    = "agroguard.alerts.raised"
)

// RiskChanged is published whenever an equipment's tier moves.
type RiskChanged struct {
	EquipmentID uuid.UUID `json:"equipment_id"`
	OwnerID     uuid.UUID `json:"owner_id"`
	Previous    risk.Tier `json:"previous"`
	Current     risk.Tier `json:"current"`
	HoursUsed   float64   `json:"hours_used"`
	MTBF        float64   `json:"mtbf"`
	At          time.Time `json:"at"`
}

// Escalated reports whether the tier moved up.
func (e RiskChanged) Escalated() bool {
	return e.Current.Rank() > e.Previous.Rank()
}

// UploadReceived signals that an uploaded object is ready for ingestion.
type UploadReceived struct {
	UploadID  uuid.UUID `json:"upload_id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	ObjectKey string    `json:"object_key"`
	At        time.Time `json:"at"`
}

type AlertRaised struct {
	AlertID     uuid.UUID `json:"alert_id"`
	OwnerID     uuid.UUID `json:"owner_id"`
	EquipmentID uuid.UUID `json:"equipment_id"`
	Severity    risk.Tier `json:"severity"`
	At          time.Time `json:"at"`
}
