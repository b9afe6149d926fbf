package store

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"agroguard/pkg/risk"
)

// EquipmentStatus is the operational state of a machine.
type EquipmentStatus string

const (
	EquipmentActive      EquipmentStatus = "active"
	EquipmentInactive    EquipmentStatus = "inactive"
	EquipmentMaintenance EquipmentStatus = "maintenance"
	EquipmentRetired     EquipmentStatus = "retired"
)

// Equipment is a monitored machine. Risk fields are derived from HoursUsed and
// MTBF by Reclassify and are never written independently.
type Equipment struct {
	ID                   uuid.UUID       `json:"id"`
	OwnerID              uuid.UUID       `json:"owner_id"`
	Name                 string          `json:"name"`
	Manufacturer         string          `json:"manufacturer"`
	Model                string          `json:"model"`
	Type                 string          `json:"type"`
	Location             string          `json:"location"`
	Responsible          string          `json:"responsible"`
	InstalledAt          *time.Time      `json:"installed_at,omitempty"`
	HoursUsed            float64         `json:"hours_used"`
	MTBF                 float64         `json:"mtbf"`
	CurrentTemperature   *float64        `json:"current_temperature,omitempty"`
	CurrentVibration     *float64        `json:"current_vibration,omitempty"`
	CriticalComponents   []string        `json:"critical_components"`
	LastFailureAt        *time.Time      `json:"last_failure_at,omitempty"`
	LastMaintenanceAt    *time.Time      `json:"last_maintenance_at,omitempty"`
	NextMaintenanceAt    *time.Time      `json:"next_maintenance_at,omitempty"`
	Status               EquipmentStatus `json:"status"`
	RiskLevel            risk.Tier       `json:"risk_level"`
	RiskScore            string          `json:"risk_score"`
	FailureForecast      string          `json:"failure_forecast"`
	FailureProbability5d string          `json:"failure_probability_5d"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// OwnedBy implements Owned.
func (e Equipment) OwnedBy() uuid.UUID { return e.OwnerID }

// Reclassify recomputes the derived risk fields from the usage counters.
func (e *Equipment) Reclassify() (risk.Assessment, error) {
	a, err := risk.Classify(e.HoursUsed, e.MTBF)
	if err != nil {
		return risk.Assessment{}, err
	}
	e.RiskLevel = a.Tier
	e.RiskScore = a.RiskScore()
	e.FailureForecast = a.FailureForecast()
	e.FailureProbability5d = a.FailureProbability()
	return a, nil
}

// ErrNegativeHours is returned when a reading would lower the usage counter.
var ErrNegativeHours = errors.New("hours used cannot decrease")

// ApplyReading adds the reading's hours to the counter, overwrites the sensor
// snapshot with any values it carries and reclassifies.
func (e *Equipment) ApplyReading(r Reading) (risk.Assessment, error) {
	if r.HoursUsed < 0 {
		return risk.Assessment{}, ErrNegativeHours
	}
	e.HoursUsed += r.HoursUsed
	if r.Temperature != nil {
		v := *r.Temperature
		e.CurrentTemperature = &v
	}
	if r.Vibration != nil {
		v := *r.Vibration
		e.CurrentVibration = &v
	}
	return e.Reclassify()
}

// ReadingSource records where an operational data point came from.
type ReadingSource string

const (
	SourceManual ReadingSource = "manual"
	SourceUpload ReadingSource = "upload"
	SourceMQTT   ReadingSource = "mqtt"
)

// Reading is one operational data point. HoursUsed is the increment since the
// previous reading.
type Reading struct {
	ID          uuid.UUID     `json:"id"`
	EquipmentID uuid.UUID     `json:"equipment_id"`
	OwnerID     uuid.UUID     `json:"owner_id"`
	Date        time.Time     `json:"date"`
	HoursUsed   float64       `json:"hours_used"`
	Temperature *float64      `json:"temperature,omitempty"`
	Vibration   *float64      `json:"vibration,omitempty"`
	Consumption *float64      `json:"consumption,omitempty"`
	NoiseLevel  *float64      `json:"noise_level,omitempty"`
	Cycles      *int          `json:"cycles,omitempty"`
	Source      ReadingSource `json:"source"`
	CreatedAt   time.Time     `json:"created_at"`
}

type AlertStatus string

const (
	AlertActive       AlertStatus = "active"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
)

// Alert notifies an owner about elevated risk on a machine.
type Alert struct {
	ID                uuid.UUID   `json:"id"`
	OwnerID           uuid.UUID   `json:"owner_id"`
	EquipmentID       uuid.UUID   `json:"equipment_id"`
	EquipmentName     string      `json:"equipment_name"`
	Message           string      `json:"message"`
	Severity          risk.Tier   `json:"severity"`
	Status            AlertStatus `json:"status"`
	RecommendedAction string      `json:"recommended_action"`
	ResolutionNote    string      `json:"resolution_note,omitempty"`
	AcknowledgedAt    *time.Time  `json:"acknowledged_at,omitempty"`
	ResolvedAt        *time.Time  `json:"resolved_at,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

func (a Alert) OwnedBy() uuid.UUID { return a.OwnerID }

type MaintenanceType string

const (
	MaintenancePreventive MaintenanceType = "preventive"
	MaintenanceCorrective MaintenanceType = "corrective"
	MaintenancePredictive MaintenanceType = "predictive"
)

type MaintenanceStatus string

const (
	MaintenanceScheduled  MaintenanceStatus = "scheduled"
	MaintenanceInProgress MaintenanceStatus = "in_progress"
	MaintenanceCompleted  MaintenanceStatus = "completed"
	MaintenanceCancelled  MaintenanceStatus = "cancelled"
)

// Maintenance is a planned or performed intervention on a machine.
type Maintenance struct {
	ID                 uuid.UUID         `json:"id"`
	OwnerID            uuid.UUID         `json:"owner_id"`
	EquipmentID        uuid.UUID         `json:"equipment_id"`
	EquipmentName      string            `json:"equipment_name"`
	Type               MaintenanceType   `json:"maintenance_type"`
	Status             MaintenanceStatus `json:"status"`
	Description        string            `json:"description"`
	ScheduledDate      time.Time         `json:"scheduled_date"`
	CompletedDate      *time.Time        `json:"completed_date,omitempty"`
	Technician         string            `json:"technician,omitempty"`
	Cost               float64           `json:"cost"`
	DowntimeHours      float64           `json:"downtime_hours"`
	ComponentsReplaced []string          `json:"components_replaced"`
	Notes              string            `json:"notes,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

func (m Maintenance) OwnedBy() uuid.UUID { return m.OwnerID }

// Pending reports whether the record still blocks auto-scheduling.
func (m Maintenance) Pending() bool {
	return m.Status == MaintenanceScheduled || m.Status == MaintenanceInProgress
}

type ReportType string

const (
	ReportHealth      ReportType = "health"
	ReportMaintenance ReportType = "maintenance"
	ReportPrediction  ReportType = "prediction"
	ReportSummary     ReportType = "summary"
)

type ReportStatus string

const (
	ReportGenerated ReportStatus = "generated"
	ReportViewed    ReportStatus = "viewed"
	ReportArchived  ReportStatus = "archived"
)

// Report is a generated document about one machine.
type Report struct {
	ID            uuid.UUID      `json:"id"`
	OwnerID       uuid.UUID      `json:"owner_id"`
	EquipmentID   uuid.UUID      `json:"equipment_id"`
	EquipmentName string         `json:"equipment_name"`
	Type          ReportType     `json:"report_type"`
	Title         string         `json:"title"`
	Status        ReportStatus   `json:"status"`
	Content       map[string]any `json:"content"`
	ExportKey     string         `json:"export_key,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func (r Report) OwnedBy() uuid.UUID { return r.OwnerID }

type UploadStatus string

const (
	UploadPending   UploadStatus = "pending"
	UploadProcessed UploadStatus = "processed"
	UploadError     UploadStatus = "error"
)

type DataType string

const (
	DataOperational DataType = "operational"
	DataMaintenance DataType = "maintenance"
	DataFailure     DataType = "failure"
)

// Upload tracks a data file from acceptance to ingestion. EquipmentID is nil
// when the file targets every machine of the owner.
type Upload struct {
	ID            uuid.UUID    `json:"id"`
	OwnerID       uuid.UUID    `json:"owner_id"`
	EquipmentID   *uuid.UUID   `json:"equipment_id,omitempty"`
	DataType      DataType     `json:"data_type"`
	FileName      string       `json:"file_name"`
	ContentType   string       `json:"content_type"`
	Format        string       `json:"format"`
	Size          int64        `json:"size"`
	ObjectKey     string       `json:"object_key"`
	Status        UploadStatus `json:"status"`
	RowsProcessed int          `json:"rows_processed"`
	Error         string       `json:"error,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

func (u Upload) OwnedBy() uuid.UUID { return u.OwnerID }

// User is an account of the built-in identity provider.
type User struct {
	ID                 uuid.UUID `json:"id"`
	Email              string    `json:"email"`
	Name               string    `json:"name"`
	PasswordHash       string    `json:"-"`
	Company            string    `json:"company,omitempty"`
	Phone              string    `json:"phone,omitempty"`
	EmailNotifications bool      `json:"email_notifications"`
	SMSNotifications   bool      `json:"sms_notifications"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Session is the persisted side of a login.
type Session struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	AccessHash       string
	RefreshHash      string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	RevokedAt        *time.Time
	CreatedAt        time.Time
}

// Audit is an append-only change record.
type Audit struct {
	ID      int64          `json:"id"`
	Actor   string         `json:"actor"`
	Action  string         `json:"action"`
	Object  string         `json:"object"`
	Details map[string]any `json:"details"`
	At      time.Time      `json:"at"`
}

// EquipmentStats aggregates an owner's fleet.
type EquipmentStats struct {
	Total      int            `json:"total"`
	ByRisk     map[string]int `json:"by_risk"`
	ByStatus   map[string]int `json:"by_status"`
	TotalHours float64        `json:"total_hours"`
}
