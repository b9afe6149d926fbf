// Package store defines the persisted records and the repositories that hold them.
//
// Owner-scoped List methods return records newest first by creation time.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"agroguard/pkg/risk"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrForbidden = errors.New("record belongs to another user")
	ErrConflict  = errors.New("record already exists")
	// ErrUnchanged is returned by a ModifyEquipment callback to skip the write.
	ErrUnchanged = errors.New("record unchanged")
)

// Owned is implemented by every owner-scoped record.
type Owned interface {
	OwnedBy() uuid.UUID
}

// Authorize passes a lookup result through, turning a record owned by someone
// else into ErrForbidden.
func Authorize[T Owned](rec T, err error, owner uuid.UUID) (T, error) {
	if err != nil {
		var zero T
		return zero, err
	}
	if rec.OwnedBy() != owner {
		var zero T
		return zero, ErrForbidden
	}
	return rec, nil
}

type EquipmentFilter struct {
	Risk   risk.Tier
	Status EquipmentStatus
	Search string
}

type AlertFilter struct {
	Status      AlertStatus
	EquipmentID uuid.UUID
	Limit       int
}

type MaintenanceFilter struct {
	EquipmentID uuid.UUID
	Statuses    []MaintenanceStatus
	// ScheduledBefore keeps records scheduled strictly before the given time.
	ScheduledBefore *time.Time
}

type ReportFilter struct {
	Type        ReportType
	EquipmentID uuid.UUID
}

type UserStore interface {
	CreateUser(ctx context.Context, u *User) error
	UserByEmail(ctx context.Context, email string) (User, error)
	UserByID(ctx context.Context, id uuid.UUID) (User, error)
	UpdateUser(ctx context.Context, u *User) error
}

type SessionStore interface {
	CreateSession(ctx context.Context, s *Session) error
	SessionByAccessHash(ctx context.Context, hash string) (Session, error)
	SessionByRefreshHash(ctx context.Context, hash string) (Session, error)
	UpdateSession(ctx context.Context, s *Session) error
}

type EquipmentStore interface {
	CreateEquipment(ctx context.Context, e *Equipment) error
	GetEquipment(ctx context.Context, id uuid.UUID) (Equipment, error)
	ListEquipment(ctx context.Context, owner uuid.UUID, f EquipmentFilter) ([]Equipment, error)
	// ModifyEquipment loads machine id, lets fn change it and stores the
	// result in one atomic step. Writers of the same machine are serialized,
	// so fn always sees the latest row. A reading returned by fn is stored in
	// the same step. When fn fails nothing is written; ErrUnchanged skips the
	// write and returns the row as loaded. fn must not call the store.
	ModifyEquipment(ctx context.Context, id uuid.UUID, fn func(e *Equipment) (*Reading, error)) (before, after Equipment, err error)
	EquipmentStats(ctx context.Context, owner uuid.UUID) (EquipmentStats, error)
	AddReading(ctx context.Context, r *Reading) error
	// ListReadings returns the most recent readings first, by reading date.
	ListReadings(ctx context.Context, equipmentID uuid.UUID, limit int) ([]Reading, error)
}

type AlertStore interface {
	CreateAlert(ctx context.Context, a *Alert) error
	GetAlert(ctx context.Context, id uuid.UUID) (Alert, error)
	ListAlerts(ctx context.Context, owner uuid.UUID, f AlertFilter) ([]Alert, error)
	UpdateAlert(ctx context.Context, a *Alert) error
}

type MaintenanceStore interface {
	CreateMaintenance(ctx context.Context, m *Maintenance) error
	GetMaintenance(ctx context.Context, id uuid.UUID) (Maintenance, error)
	ListMaintenance(ctx context.Context, owner uuid.UUID, f MaintenanceFilter) ([]Maintenance, error)
	UpdateMaintenance(ctx context.Context, m *Maintenance) error
}

type ReportStore interface {
	CreateReport(ctx context.Context, r *Report) error
	GetReport(ctx context.Context, id uuid.UUID) (Report, error)
	ListReports(ctx context.Context, owner uuid.UUID, f ReportFilter) ([]Report, error)
	UpdateReport(ctx context.Context, r *Report) error
}

type UploadStore interface {
	CreateUpload(ctx context.Context, u *Upload) error
	GetUpload(ctx context.Context, id uuid.UUID) (Upload, error)
	ListUploads(ctx context.Context, owner uuid.UUID) ([]Upload, error)
	UpdateUpload(ctx context.Context, u *Upload) error
}

type AuditStore interface {
	RecordAudit(ctx context.Context, a *Audit) error
}

// Store is the full repository used by the binaries.
type Store interface {
	UserStore
	SessionStore
	EquipmentStore
	AlertStore
	MaintenanceStore
	ReportStore
	UploadStore
	AuditStore
	Ping(ctx context.Context) error
}

// Stamp fills the identity and timestamps of a new record.
func Stamp(id *uuid.UUID, created, updated *time.Time, now time.Time) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
	if created.IsZero() {
		*created = now
	}
	if updated != nil {
		*updated = now
	}
}
