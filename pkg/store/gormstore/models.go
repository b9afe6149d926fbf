package gormstore

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"agroguard/pkg/risk"
	"agroguard/pkg/store"
)

type userModel struct {
	ID                 uuid.UUID `gorm:"type:uuid;primaryKey"`
	Email              string    `gorm:"type:text;uniqueIndex;not null"`
	Name               string    `gorm:"type:text;not null"`
	PasswordHash       string    `gorm:"type:text;not null"`
	Company            string    `gorm:"type:text"`
	Phone              string    `gorm:"type:text"`
	EmailNotifications bool      `gorm:"not null"`
	SMSNotifications   bool      `gorm:"column:sms_notifications;not null"`
	CreatedAt          time.Time `gorm:"type:timestamptz;not null;autoCreateTime"`
	UpdatedAt          time.Time `gorm:"type:timestamptz;not null;autoUpdateTime"`
}

func (userModel) TableName() string { return "users" }

func (m userModel) toDomain() store.User {
	return store.User{
		ID:                 m.ID,
		Email:              m.Email,
		Name:               m.Name,
		PasswordHash:       m.PasswordHash,
		Company:            m.Company,
		Phone:              m.Phone,
		EmailNotifications: m.EmailNotifications,
		SMSNotifications:   m.SMSNotifications,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

func userFromDomain(u store.User) userModel {
	return userModel{
		ID:                 u.ID,
		Email:              u.Email,
		Name:               u.Name,
		PasswordHash:       u.PasswordHash,
		Company:            u.Company,
		Phone:              u.Phone,
		EmailNotifications: u.EmailNotifications,
		SMSNotifications:   u.SMSNotifications,
		CreatedAt:          u.CreatedAt,
		UpdatedAt:          u.UpdatedAt,
	}
}

type sessionModel struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey"`
	UserID           uuid.UUID  `gorm:"type:uuid;not null"`
	AccessHash       string     `gorm:"type:text;not null"`
	RefreshHash      string     `gorm:"type:text;not null"`
	AccessExpiresAt  time.Time  `gorm:"type:timestamptz;not null"`
	RefreshExpiresAt time.Time  `gorm:"type:timestamptz;not null"`
	RevokedAt        *time.Time `gorm:"type:timestamptz"`
	CreatedAt        time.Time  `gorm:"type:timestamptz;not null;autoCreateTime"`
}

func (sessionModel) TableName() string { return "sessions" }

func (m sessionModel) toDomain() store.Session {
	return store.Session(m)
}

type equipmentModel struct {
	ID                   uuid.UUID      `gorm:"type:uuid;primaryKey"`
	OwnerID              uuid.UUID      `gorm:"type:uuid;not null"`
	Name                 string         `gorm:"type:text;not null"`
	Manufacturer         string         `gorm:"type:text"`
	Model                string         `gorm:"type:text"`
	Type                 string         `gorm:"type:text"`
	Location             string         `gorm:"type:text"`
	Responsible          string         `gorm:"type:text"`
	InstalledAt          *time.Time     `gorm:"type:date"`
	HoursUsed            float64        `gorm:"type:double precision;not null"`
	MTBF                 float64        `gorm:"column:mtbf;type:double precision;not null"`
	CurrentTemperature   *float64       `gorm:"type:double precision"`
	CurrentVibration     *float64       `gorm:"type:double precision"`
	CriticalComponents   datatypes.JSON `gorm:"type:jsonb"`
	LastFailureAt        *time.Time     `gorm:"type:timestamptz"`
	LastMaintenanceAt    *time.Time     `gorm:"type:timestamptz"`
	NextMaintenanceAt    *time.Time     `gorm:"type:timestamptz"`
	Status               string         `gorm:"type:text;not null"`
	RiskLevel            string         `gorm:"type:text;not null"`
	RiskScore            string         `gorm:"type:text;not null"`
	FailureForecast      string         `gorm:"type:text;not null"`
	FailureProbability5d string         `gorm:"column:failure_probability_5d;type:text;not null"`
	CreatedAt            time.Time      `gorm:"type:timestamptz;not null;autoCreateTime"`
	UpdatedAt            time.Time      `gorm:"type:timestamptz;not null;autoUpdateTime"`
}

func (equipmentModel) TableName() string { return "equipment" }

func (m equipmentModel) toDomain() store.Equipment {
	return store.Equipment{
		ID:                   m.ID,
		OwnerID:              m.OwnerID,
		Name:                 m.Name,
		Manufacturer:         m.Manufacturer,
		Model:                m.Model,
		Type:                 m.Type,
		Location:             m.Location,
		Responsible:          m.Responsible,
		InstalledAt:          m.InstalledAt,
		HoursUsed:            m.HoursUsed,
		MTBF:                 m.MTBF,
		CurrentTemperature:   m.CurrentTemperature,
		CurrentVibration:     m.CurrentVibration,
		CriticalComponents:   decodeStrings(m.CriticalComponents),
		LastFailureAt:        m.LastFailureAt,
		LastMaintenanceAt:    m.LastMaintenanceAt,
		NextMaintenanceAt:    m.NextMaintenanceAt,
		Status:               store.EquipmentStatus(m.Status),
		RiskLevel:            risk.Tier(m.RiskLevel),
		RiskScore:            m.RiskScore,
		FailureForecast:      m.FailureForecast,
		FailureProbability5d: m.FailureProbability5d,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}
}

func equipmentFromDomain(e store.Equipment) equipmentModel {
	return equipmentModel{
		ID:                   e.ID,
		OwnerID:              e.OwnerID,
		Name:                 e.Name,
		Manufacturer:         e.Manufacturer,
		Model:                e.Model,
		Type:                 e.Type,
		Location:             e.Location,
		Responsible:          e.Responsible,
		InstalledAt:          e.InstalledAt,
		HoursUsed:            e.HoursUsed,
		MTBF:                 e.MTBF,
		CurrentTemperature:   e.CurrentTemperature,
		CurrentVibration:     e.CurrentVibration,
		CriticalComponents:   encodeStrings(e.CriticalComponents),
		LastFailureAt:        e.LastFailureAt,
		LastMaintenanceAt:    e.LastMaintenanceAt,
		NextMaintenanceAt:    e.NextMaintenanceAt,
		Status:               string(e.Status),
		RiskLevel:            string(e.RiskLevel),
		RiskScore:            e.RiskScore,
		FailureForecast:      e.FailureForecast,
		FailureProbability5d: e.FailureProbability5d,
		CreatedAt:            e.CreatedAt,
		UpdatedAt:            e.UpdatedAt,
	}
}

type readingModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	EquipmentID uuid.UUID `gorm:"type:uuid;not null"`
	OwnerID     uuid.UUID `gorm:"type:uuid;not null"`
	Date        time.Time `gorm:"type:timestamptz;not null"`
	HoursUsed   float64   `gorm:"type:double precision;not null"`
	Temperature *float64  `gorm:"type:double precision"`
	Vibration   *float64  `gorm:"type:double precision"`
	Consumption *float64  `gorm:"type:double precision"`
	NoiseLevel  *float64  `gorm:"type:double precision"`
	Cycles      *int      `gorm:"type:integer"`
	Source      string    `gorm:"type:text;not null"`
	CreatedAt   time.Time `gorm:"type:timestamptz;not null;autoCreateTime"`
}

func (readingModel) TableName() string { return "readings" }

func (m readingModel) toDomain() store.Reading {
	return store.Reading{
		ID:          m.ID,
		EquipmentID: m.EquipmentID,
		OwnerID:     m.OwnerID,
		Date:        m.Date,
		HoursUsed:   m.HoursUsed,
		Temperature: m.Temperature,
		Vibration:   m.Vibration,
		Consumption: m.Consumption,
		NoiseLevel:  m.NoiseLevel,
		Cycles:      m.Cycles,
		Source:      store.ReadingSource(m.Source),
		CreatedAt:   m.CreatedAt,
	}
}

func readingFromDomain(r store.Reading) readingModel {
	return readingModel{
		ID:          r.ID,
		EquipmentID: r.EquipmentID,
		OwnerID:     r.OwnerID,
		Date:        r.Date,
		HoursUsed:   r.HoursUsed,
		Temperature: r.Temperature,
		Vibration:   r.Vibration,
		Consumption: r.Consumption,
		NoiseLevel:  r.NoiseLevel,
		Cycles:      r.Cycles,
		Source:      string(r.Source),
		CreatedAt:   r.CreatedAt,
	}
}

type alertModel struct {
	ID                uuid.UUID  `gorm:"type:uuid;primaryKey"`
	OwnerID           uuid.UUID  `gorm:"type:uuid;not null"`
	EquipmentID       uuid.UUID  `gorm:"type:uuid;not null"`
	EquipmentName     string     `gorm:"type:text"`
	Message           string     `gorm:"type:text;not null"`
	Severity          string     `gorm:"type:text;not null"`
	Status            string     `gorm:"type:text;not null"`
	RecommendedAction string     `gorm:"type:text"`
	ResolutionNote    string     `gorm:"type:text"`
	AcknowledgedAt    *time.Time `gorm:"type:timestamptz"`
	ResolvedAt        *time.Time `gorm:"type:timestamptz"`
	CreatedAt         time.Time  `gorm:"type:timestamptz;not null;autoCreateTime"`
	UpdatedAt         time.Time  `gorm:"type:timestamptz;not null;autoUpdateTime"`
}

func (alertModel) TableName() string { return "alerts" }

func (m alertModel) toDomain() store.Alert {
	return store.Alert{
		ID:                m.ID,
		OwnerID:           m.OwnerID,
		EquipmentID:       m.EquipmentID,
		EquipmentName:     m.EquipmentName,
		Message:           m.Message,
		Severity:          risk.Tier(m.Severity),
		Status:            store.AlertStatus(m.Status),
		RecommendedAction: m.RecommendedAction,
		ResolutionNote:    m.ResolutionNote,
		AcknowledgedAt:    m.AcknowledgedAt,
		ResolvedAt:        m.ResolvedAt,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func alertFromDomain(a store.Alert) alertModel {
	return alertModel{
		ID:                a.ID,
		OwnerID:           a.OwnerID,
		EquipmentID:       a.EquipmentID,
		EquipmentName:     a.EquipmentName,
		Message:           a.Message,
		Severity:          string(a.Severity),
		Status:            string(a.Status),
		RecommendedAction: a.RecommendedAction,
		ResolutionNote:    a.ResolutionNote,
		AcknowledgedAt:    a.AcknowledgedAt,
		ResolvedAt:        a.ResolvedAt,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
}

type maintenanceModel struct {
	ID                 uuid.UUID      `gorm:"type:uuid;primaryKey"`
	OwnerID            uuid.UUID      `gorm:"type:uuid;not null"`
	EquipmentID        uuid.UUID      `gorm:"type:uuid;not null"`
	EquipmentName      string         `gorm:"type:text"`
	Type               string         `gorm:"column:maintenance_type;type:text;not null"`
	Status             string         `gorm:"type:text;not null"`
	Description        string         `gorm:"type:text"`
	ScheduledDate      time.Time      `gorm:"type:timestamptz;not null"`
	CompletedDate      *time.Time     `gorm:"type:timestamptz"`
	Technician         string         `gorm:"type:text"`
	Cost               float64        `gorm:"type:double precision;not null"`
	DowntimeHours      float64        `gorm:"type:double precision;not null"`
	ComponentsReplaced datatypes.JSON `gorm:"type:jsonb"`
	Notes              string         `gorm:"type:text"`
	CreatedAt          time.Time      `gorm:"type:timestamptz;not null;autoCreateTime"`
	UpdatedAt          time.Time      `gorm:"type:timestamptz;not null;autoUpdateTime"`
}

func (maintenanceModel) TableName() string { return "maintenance" }

func (m maintenanceModel) toDomain() store.Maintenance {
	return store.Maintenance{
		ID:                 m.ID,
		OwnerID:            m.OwnerID,
		EquipmentID:        m.EquipmentID,
		EquipmentName:      m.EquipmentName,
		Type:               store.MaintenanceType(m.Type),
		Status:             store.MaintenanceStatus(m.Status),
		Description:        m.Description,
		ScheduledDate:      m.ScheduledDate,
		CompletedDate:      m.CompletedDate,
		Technician:         m.Technician,
		Cost:               m.Cost,
		DowntimeHours:      m.DowntimeHours,
		ComponentsReplaced: decodeStrings(m.ComponentsReplaced),
		Notes:              m.Notes,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

func maintenanceFromDomain(m store.Maintenance) maintenanceModel {
	return maintenanceModel{
		ID:                 m.ID,
		OwnerID:            m.OwnerID,
		EquipmentID:        m.EquipmentID,
		EquipmentName:      m.EquipmentName,
		Type:               string(m.Type),
		Status:             string(m.Status),
		Description:        m.Description,
		ScheduledDate:      m.ScheduledDate,
		CompletedDate:      m.CompletedDate,
		Technician:         m.Technician,
		Cost:               m.Cost,
		DowntimeHours:      m.DowntimeHours,
		ComponentsReplaced: encodeStrings(m.ComponentsReplaced),
		Notes:              m.Notes,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

type reportModel struct {
	ID            uuid.UUID         `gorm:"type:uuid;primaryKey"`
	OwnerID       uuid.UUID         `gorm:"type:uuid;not null"`
	EquipmentID   uuid.UUID         `gorm:"type:uuid;not null"`
	EquipmentName string            `gorm:"type:text"`
	Type          string            `gorm:"column:report_type;type:text;not null"`
	Title         string            `gorm:"type:text;not null"`
	Status        string            `gorm:"type:text;not null"`
	Content       datatypes.JSONMap `gorm:"type:jsonb"`
	ExportKey     string            `gorm:"type:text"`
	CreatedAt     time.Time         `gorm:"type:timestamptz;not null;autoCreateTime"`
	UpdatedAt     time.Time         `gorm:"type:timestamptz;not null;autoUpdateTime"`
}

func (reportModel) TableName() string { return "reports" }

func (m reportModel) toDomain() store.Report {
	content := map[string]any(m.Content)
	if content == nil {
		content = map[string]any{}
	}
	return store.Report{
		ID:            m.ID,
		OwnerID:       m.OwnerID,
		EquipmentID:   m.EquipmentID,
		EquipmentName: m.EquipmentName,
		Type:          store.ReportType(m.Type),
		Title:         m.Title,
		Status:        store.ReportStatus(m.Status),
		Content:       content,
		ExportKey:     m.ExportKey,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func reportFromDomain(r store.Report) reportModel {
	return reportModel{
		ID:            r.ID,
		OwnerID:       r.OwnerID,
		EquipmentID:   r.EquipmentID,
		EquipmentName: r.EquipmentName,
		Type:          string(r.Type),
		Title:         r.Title,
		Status:        string(r.Status),
		Content:       datatypes.JSONMap(r.Content),
		ExportKey:     r.ExportKey,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

type uploadModel struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey"`
	OwnerID       uuid.UUID  `gorm:"type:uuid;not null"`
	EquipmentID   *uuid.UUID `gorm:"type:uuid"`
	DataType      string     `gorm:"type:text;not null"`
	FileName      string     `gorm:"type:text;not null"`
	ContentType   string     `gorm:"type:text"`
	Format        string     `gorm:"type:text;not null"`
	Size          int64      `gorm:"type:bigint;not null"`
	ObjectKey     string     `gorm:"type:text;not null"`
	Status        string     `gorm:"type:text;not null"`
	RowsProcessed int        `gorm:"type:integer;not null"`
	Error         string     `gorm:"type:text"`
	CreatedAt     time.Time  `gorm:"type:timestamptz;not null;autoCreateTime"`
	UpdatedAt     time.Time  `gorm:"type:timestamptz;not null;autoUpdateTime"`
}

func (uploadModel) TableName() string { return "uploads" }

func (m uploadModel) toDomain() store.Upload {
	return store.Upload{
		ID:            m.ID,
		OwnerID:       m.OwnerID,
		EquipmentID:   m.EquipmentID,
		DataType:      store.DataType(m.DataType),
		FileName:      m.FileName,
		ContentType:   m.ContentType,
		Format:        m.Format,
		Size:          m.Size,
		ObjectKey:     m.ObjectKey,
		Status:        store.UploadStatus(m.Status),
		RowsProcessed: m.RowsProcessed,
		Error:         m.Error,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func uploadFromDomain(u store.Upload) uploadModel {
	return uploadModel{
		ID:            u.ID,
		OwnerID:       u.OwnerID,
		EquipmentID:   u.EquipmentID,
		DataType:      string(u.DataType),
		FileName:      u.FileName,
		ContentType:   u.ContentType,
		Format:        u.Format,
		Size:          u.Size,
		ObjectKey:     u.ObjectKey,
		Status:        string(u.Status),
		RowsProcessed: u.RowsProcessed,
		Error:         u.Error,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

type auditModel struct {
	ID      int64             `gorm:"primaryKey;autoIncrement"`
	Actor   string            `gorm:"type:text;not null"`
	Action  string            `gorm:"type:text;not null"`
	Obj     string            `gorm:"type:text"`
	Details datatypes.JSONMap `gorm:"type:jsonb"`
	At      time.Time         `gorm:"type:timestamptz;not null;autoCreateTime"`
}

func (auditModel) TableName() string { return "audit" }

func encodeStrings(values []string) datatypes.JSON {
	if values == nil {
		values = []string{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(raw)
}

func decodeStrings(raw datatypes.JSON) []string {
	out := []string{}
	if len(raw) == 0 {
		return out
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return []string{}
	}
	return out
}
