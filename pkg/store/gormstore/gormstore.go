// Package gormstore implements store.Store on Postgres. Row-level CRUD goes
// through gorm; aggregate queries use the pgx pool directly.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"agroguard/pkg/db"
	"agroguard/pkg/store"
)

// Store persists records in Postgres.
type Store struct {
	orm  *gorm.DB
	pool *pgxpool.Pool
	now  func() time.Time
}

var _ store.Store = (*Store)(nil)

// New wires the store to an open gorm handle and pgx pool.
func New(orm *gorm.DB, pool *pgxpool.Pool) (*Store, error) {
	if orm == nil {
		return nil, errors.New("gorm handle is required")
	}
	if pool == nil {
		return nil, errors.New("pgx pool is required")
	}
	return &Store{orm: orm, pool: pool, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return db.Ping(ctx, s.pool)
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return store.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return store.ErrConflict
	default:
		return err
	}
}

// update rewrites every column of an existing row.
func (s *Store) update(ctx context.Context, model any, id uuid.UUID) error {
	res := s.orm.WithContext(ctx).Model(model).Where("id = ?", id).Select("*").Omit("created_at").Updates(model)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateUser(ctx context.Context, u *store.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	store.Stamp(&u.ID, &u.CreatedAt, &u.UpdatedAt, s.now())
	m := userFromDomain(*u)
	return translate(s.orm.WithContext(ctx).Create(&m).Error)
}

func (s *Store) UserByEmail(ctx context.Context, email string) (store.User, error) {
	var m userModel
	err := s.orm.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&m).Error
	if err != nil {
		return store.User{}, translate(err)
	}
	return m.toDomain(), nil
}

func (s *Store) UserByID(ctx context.Context, id uuid.UUID) (store.User, error) {
	var m userModel
	if err := s.orm.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return store.User{}, translate(err)
	}
	return m.toDomain(), nil
}

func (s *Store) UpdateUser(ctx context.Context, u *store.User) error {
	u.UpdatedAt = s.now()
	m := userFromDomain(*u)
	return s.update(ctx, &m, u.ID)
}

func (s *Store) CreateSession(ctx context.Context, sess *store.Session) error {
	store.Stamp(&sess.ID, &sess.CreatedAt, nil, s.now())
	m := sessionModel(*sess)
	return translate(s.orm.WithContext(ctx).Create(&m).Error)
}

func (s *Store) SessionByAccessHash(ctx context.Context, hash string) (store.Session, error) {
	return s.sessionBy(ctx, "access_hash", hash)
}

func (s *Store) SessionByRefreshHash(ctx context.Context, hash string) (store.Session, error) {
	return s.sessionBy(ctx, "refresh_hash", hash)
}

func (s *Store) sessionBy(ctx context.Context, column, hash string) (store.Session, error) {
	var m sessionModel
	if err := s.orm.WithContext(ctx).Where(column+" = ?", hash).First(&m).Error; err != nil {
		return store.Session{}, translate(err)
	}
	return m.toDomain(), nil
}

func (s *Store) UpdateSession(ctx context.Context, sess *store.Session) error {
	m := sessionModel(*sess)
	return s.update(ctx, &m, sess.ID)
}

func (s *Store) CreateEquipment(ctx context.Context, e *store.Equipment) error {
	store.Stamp(&e.ID, &e.CreatedAt, &e.UpdatedAt, s.now())
	m := equipmentFromDomain(*e)
	return translate(s.orm.WithContext(ctx).Create(&m).Error)
}

func (s *Store) GetEquipment(ctx context.Context, id uuid.UUID) (store.Equipment, error) {
	var m equipmentModel
	if err := s.orm.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return store.Equipment{}, translate(err)
	}
	return m.toDomain(), nil
}

func (s *Store) ListEquipment(ctx context.Context, owner uuid.UUID, f store.EquipmentFilter) ([]store.Equipment, error) {
	q := s.orm.WithContext(ctx).Where("owner_id = ?", owner)
	if f.Risk != "" {
		q = q.Where("risk_level = ?", string(f.Risk))
	}
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	if needle := strings.TrimSpace(f.Search); needle != "" {
		like := "%" + escapeLike(needle) + "%"
		q = q.Where("(name ILIKE ? OR manufacturer ILIKE ? OR model ILIKE ? OR type ILIKE ? OR location ILIKE ?)",
			like, like, like, like, like)
	}
	var rows []equipmentModel
	if err := q.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	out := make([]store.Equipment, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.toDomain())
	}
	return out, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// ModifyEquipment holds a row lock on the machine for the whole callback, so
// concurrent readings and edits apply one after another.
func (s *Store) ModifyEquipment(ctx context.Context, id uuid.UUID, fn func(e *store.Equipment) (*store.Reading, error)) (store.Equipment, store.Equipment, error) {
	var before, after store.Equipment
	err := s.orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m equipmentModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&m, "id = ?", id).Error; err != nil {
			return translate(err)
		}
		before = m.toDomain()
		e := m.toDomain()

		r, err := fn(&e)
		if errors.Is(err, store.ErrUnchanged) {
			after = before
			return nil
		}
		if err != nil {
			return err
		}
		e.ID = id
		now := s.now()
		if r != nil {
			r.EquipmentID = id
			store.Stamp(&r.ID, &r.CreatedAt, nil, now)
			if r.Date.IsZero() {
				r.Date = r.CreatedAt
			}
			rm := readingFromDomain(*r)
			if err := tx.Create(&rm).Error; err != nil {
				return fmt.Errorf("insert reading: %w", translate(err))
			}
		}
		e.UpdatedAt = now
		updated := equipmentFromDomain(e)
		res := tx.Model(&updated).Where("id = ?", id).Select("*").Omit("created_at").Updates(&updated)
		if res.Error != nil {
			return translate(res.Error)
		}
		after = e
		return nil
	})
	if err != nil {
		return store.Equipment{}, store.Equipment{}, err
	}
	return before, after, nil
}

type statBucket struct {
	Key   string  `db:"key"`
	Count int     `db:"count"`
	Hours float64 `db:"hours"`
}

func (s *Store) EquipmentStats(ctx context.Context, owner uuid.UUID) (store.EquipmentStats, error) {
	stats := store.EquipmentStats{ByRisk: map[string]int{}, ByStatus: map[string]int{}}

	var byRisk []statBucket
	if err := db.Select(ctx, s.pool, &byRisk,
		`SELECT risk_level AS key, COUNT(*) AS count, COALESCE(SUM(hours_used), 0) AS hours
		   FROM equipment WHERE owner_id = $1 GROUP BY risk_level`, owner); err != nil {
		return store.EquipmentStats{}, fmt.Errorf("risk buckets: %w", err)
	}
	for _, b := range byRisk {
		stats.ByRisk[b.Key] = b.Count
		stats.Total += b.Count
		stats.TotalHours += b.Hours
	}

	var byStatus []statBucket
	if err := db.Select(ctx, s.pool, &byStatus,
		`SELECT status AS key, COUNT(*) AS count, 0::float8 AS hours
		   FROM equipment WHERE owner_id = $1 GROUP BY status`, owner); err != nil {
		return store.EquipmentStats{}, fmt.Errorf("status buckets: %w", err)
	}
	for _, b := range byStatus {
		stats.ByStatus[b.Key] = b.Count
	}
	return stats, nil
}

func (s *Store) AddReading(ctx context.Context, r *store.Reading) error {
	var count int64
	if err := s.orm.WithContext(ctx).Model(&equipmentModel{}).Where("id = ?", r.EquipmentID).Count(&count).Error; err != nil {
		return translate(err)
	}
	if count == 0 {
		return store.ErrNotFound
	}
	store.Stamp(&r.ID, &r.CreatedAt, nil, s.now())
	if r.Date.IsZero() {
		r.Date = r.CreatedAt
	}
	m := readingFromDomain(*r)
	return translate(s.orm.WithContext(ctx).Create(&m).Error)
}

func (s *Store) ListReadings(ctx context.Context, equipmentID uuid.UUID, limit int) ([]store.Reading, error) {
	q := s.orm.WithContext(ctx).Where("equipment_id = ?", equipmentID).Order("date DESC").Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []readingModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	out := make([]store.Reading, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.toDomain())
	}
	return out, nil
}

func (s *Store) CreateAlert(ctx context.Context, a *store.Alert) error {
	store.Stamp(&a.ID, &a.CreatedAt, &a.UpdatedAt, s.now())
	m := alertFromDomain(*a)
	return translate(s.orm.WithContext(ctx).Create(&m).Error)
}

func (s *Store) GetAlert(ctx context.Context, id uuid.UUID) (store.Alert, error) {
	var m alertModel
	if err := s.orm.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return store.Alert{}, translate(err)
	}
	return m.toDomain(), nil
}

func (s *Store) ListAlerts(ctx context.Context, owner uuid.UUID, f store.AlertFilter) ([]store.Alert, error) {
	q := s.orm.WithContext(ctx).Where("owner_id = ?", owner)
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	if f.EquipmentID != uuid.Nil {
		q = q.Where("equipment_id = ?", f.EquipmentID)
	}
	q = q.Order("created_at DESC")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var rows []alertModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	out := make([]store.Alert, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.toDomain())
	}
	return out, nil
}

func (s *Store) UpdateAlert(ctx context.Context, a *store.Alert) error {
	a.UpdatedAt = s.now()
	m := alertFromDomain(*a)
	return s.update(ctx, &m, a.ID)
}

func (s *Store) CreateMaintenance(ctx context.Context, mt *store.Maintenance) error {
	store.Stamp(&mt.ID, &mt.CreatedAt, &mt.UpdatedAt, s.now())
	m := maintenanceFromDomain(*mt)
	return translate(s.orm.WithContext(ctx).Create(&m).Error)
}

func (s *Store) GetMaintenance(ctx context.Context, id uuid.UUID) (store.Maintenance, error) {
	var m maintenanceModel
	if err := s.orm.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return store.Maintenance{}, translate(err)
	}
	return m.toDomain(), nil
}

func (s *Store) ListMaintenance(ctx context.Context, owner uuid.UUID, f store.MaintenanceFilter) ([]store.Maintenance, error) {
	q := s.orm.WithContext(ctx).Where("owner_id = ?", owner)
	if f.EquipmentID != uuid.Nil {
		q = q.Where("equipment_id = ?", f.EquipmentID)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, 0, len(f.Statuses))
		for _, st := range f.Statuses {
			statuses = append(statuses, string(st))
		}
		q = q.Where("status IN ?", statuses)
	}
	if f.ScheduledBefore != nil {
		q = q.Where("scheduled_date < ?", *f.ScheduledBefore)
	}
	var rows []maintenanceModel
	if err := q.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	out := make([]store.Maintenance, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.toDomain())
	}
	return out, nil
}

func (s *Store) UpdateMaintenance(ctx context.Context, mt *store.Maintenance) error {
	mt.UpdatedAt = s.now()
	m := maintenanceFromDomain(*mt)
	return s.update(ctx, &m, mt.ID)
}

func (s *Store) CreateReport(ctx context.Context, r *store.Report) error {
	store.Stamp(&r.ID, &r.CreatedAt, &r.UpdatedAt, s.now())
	m := reportFromDomain(*r)
	return translate(s.orm.WithContext(ctx).Create(&m).Error)
}

func (s *Store) GetReport(ctx context.Context, id uuid.UUID) (store.Report, error) {
	var m reportModel
	if err := s.orm.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return store.Report{}, translate(err)
	}
	return m.toDomain(), nil
}

func (s *Store) ListReports(ctx context.Context, owner uuid.UUID, f store.ReportFilter) ([]store.Report, error) {
	q := s.orm.WithContext(ctx).Where("owner_id = ?", owner)
	if f.Type != "" {
		q = q.Where("report_type = ?", string(f.Type))
	}
	if f.EquipmentID != uuid.Nil {
		q = q.Where("equipment_id = ?", f.EquipmentID)
	}
	var rows []reportModel
	if err := q.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	out := make([]store.Report, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.toDomain())
	}
	return out, nil
}

func (s *Store) UpdateReport(ctx context.Context, r *store.Report) error {
	r.UpdatedAt = s.now()
	m := reportFromDomain(*r)
	return s.update(ctx, &m, r.ID)
}

func (s *Store) CreateUpload(ctx context.Context, u *store.Upload) error {
	store.Stamp(&u.ID, &u.CreatedAt, &u.UpdatedAt, s.now())
	m := uploadFromDomain(*u)
	return translate(s.orm.WithContext(ctx).Create(&m).Error)
}

func (s *Store) GetUpload(ctx context.Context, id uuid.UUID) (store.Upload, error) {
	var m uploadModel
	if err := s.orm.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return store.Upload{}, translate(err)
	}
	return m.toDomain(), nil
}

func (s *Store) ListUploads(ctx context.Context, owner uuid.UUID) ([]store.Upload, error) {
	var rows []uploadModel
	if err := s.orm.WithContext(ctx).Where("owner_id = ?", owner).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	out := make([]store.Upload, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.toDomain())
	}
	return out, nil
}

func (s *Store) UpdateUpload(ctx context.Context, u *store.Upload) error {
	u.UpdatedAt = s.now()
	m := uploadFromDomain(*u)
	return s.update(ctx, &m, u.ID)
}

func (s *Store) RecordAudit(ctx context.Context, a *store.Audit) error {
	if a.At.IsZero() {
		a.At = s.now()
	}
	m := auditModel{Actor: a.Actor, Action: a.Action, Obj: a.Object, Details: datatypes.JSONMap(a.Details), At: a.At}
	if err := s.orm.WithContext(ctx).Create(&m).Error; err != nil {
		return translate(err)
	}
	a.ID = m.ID
	return nil
}
