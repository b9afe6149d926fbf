// Package memstore is an in-memory store.Store used by tests and demo mode.
package memstore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"agroguard/pkg/store"
)

// Store keeps every record in maps guarded by one RWMutex.
type Store struct {
	mu  sync.RWMutex
	now func() time.Time
	seq int64

	order       map[uuid.UUID]int64
	users       map[uuid.UUID]store.User
	sessions    map[uuid.UUID]store.Session
	equipment   map[uuid.UUID]store.Equipment
	readings    map[uuid.UUID]store.Reading
	alerts      map[uuid.UUID]store.Alert
	maintenance map[uuid.UUID]store.Maintenance
	reports     map[uuid.UUID]store.Report
	uploads     map[uuid.UUID]store.Upload
	audit       []store.Audit
}

var _ store.Store = (*Store)(nil)

// Option customises a Store.
type Option func(*Store)

// WithClock sets the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		now:         func() time.Time { return time.Now().UTC() },
		order:       make(map[uuid.UUID]int64),
		users:       make(map[uuid.UUID]store.User),
		sessions:    make(map[uuid.UUID]store.Session),
		equipment:   make(map[uuid.UUID]store.Equipment),
		readings:    make(map[uuid.UUID]store.Reading),
		alerts:      make(map[uuid.UUID]store.Alert),
		maintenance: make(map[uuid.UUID]store.Maintenance),
		reports:     make(map[uuid.UUID]store.Report),
		uploads:     make(map[uuid.UUID]store.Upload),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Ping(context.Context) error { return nil }

// track assigns the insertion sequence used to break creation-time ties.
func (s *Store) track(id uuid.UUID) {
	s.seq++
	s.order[id] = s.seq
}

func newestFirst[T any](s *Store, items []T, created func(T) time.Time, id func(T) uuid.UUID) {
	sort.SliceStable(items, func(i, j int) bool {
		ci, cj := created(items[i]), created(items[j])
		if !ci.Equal(cj) {
			return ci.After(cj)
		}
		return s.order[id(items[i])] > s.order[id(items[j])]
	})
}

func cloneStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (s *Store) CreateUser(_ context.Context, u *store.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(strings.TrimSpace(u.Email))
	for _, existing := range s.users {
		if existing.Email == email {
			return store.ErrConflict
		}
	}
	u.Email = email
	store.Stamp(&u.ID, &u.CreatedAt, &u.UpdatedAt, s.now())
	s.users[u.ID] = *u
	s.track(u.ID)
	return nil
}

func (s *Store) UserByEmail(_ context.Context, email string) (store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return store.User{}, store.ErrNotFound
}

func (s *Store) UserByID(_ context.Context, id uuid.UUID) (store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return u, nil
}

func (s *Store) UpdateUser(_ context.Context, u *store.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return store.ErrNotFound
	}
	u.UpdatedAt = s.now()
	s.users[u.ID] = *u
	return nil
}

func (s *Store) CreateSession(_ context.Context, sess *store.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	store.Stamp(&sess.ID, &sess.CreatedAt, nil, s.now())
	s.sessions[sess.ID] = *sess
	s.track(sess.ID)
	return nil
}

func (s *Store) SessionByAccessHash(_ context.Context, hash string) (store.Session, error) {
	return s.findSession(func(sess store.Session) bool { return sess.AccessHash == hash })
}

func (s *Store) SessionByRefreshHash(_ context.Context, hash string) (store.Session, error) {
	return s.findSession(func(sess store.Session) bool { return sess.RefreshHash == hash })
}

func (s *Store) findSession(match func(store.Session) bool) (store.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sess := range s.sessions {
		if match(sess) {
			return sess, nil
		}
	}
	return store.Session{}, store.ErrNotFound
}

func (s *Store) UpdateSession(_ context.Context, sess *store.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; !ok {
		return store.ErrNotFound
	}
	s.sessions[sess.ID] = *sess
	return nil
}

func (s *Store) CreateEquipment(_ context.Context, e *store.Equipment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	store.Stamp(&e.ID, &e.CreatedAt, &e.UpdatedAt, s.now())
	e.CriticalComponents = cloneStrings(e.CriticalComponents)
	s.equipment[e.ID] = *e
	s.track(e.ID)
	return nil
}

func (s *Store) GetEquipment(_ context.Context, id uuid.UUID) (store.Equipment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.equipment[id]
	if !ok {
		return store.Equipment{}, store.ErrNotFound
	}
	e.CriticalComponents = cloneStrings(e.CriticalComponents)
	return e, nil
}

func (s *Store) ListEquipment(_ context.Context, owner uuid.UUID, f store.EquipmentFilter) ([]store.Equipment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := []store.Equipment{}
	for _, e := range s.equipment {
		if e.OwnerID != owner {
			continue
		}
		if f.Risk != "" && e.RiskLevel != f.Risk {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		if search != "" && !matchesSearch(e, search) {
			continue
		}
		e.CriticalComponents = cloneStrings(e.CriticalComponents)
		out = append(out, e)
	}
	newestFirst(s, out, func(e store.Equipment) time.Time { return e.CreatedAt }, func(e store.Equipment) uuid.UUID { return e.ID })
	return out, nil
}

func matchesSearch(e store.Equipment, needle string) bool {
	for _, field := range []string{e.Name, e.Manufacturer, e.Model, e.Type, e.Location} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

func (s *Store) ModifyEquipment(_ context.Context, id uuid.UUID, fn func(e *store.Equipment) (*store.Reading, error)) (store.Equipment, store.Equipment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before, ok := s.equipment[id]
	if !ok {
		return store.Equipment{}, store.Equipment{}, store.ErrNotFound
	}
	before.CriticalComponents = cloneStrings(before.CriticalComponents)
	e := before
	e.CriticalComponents = cloneStrings(before.CriticalComponents)

	r, err := fn(&e)
	if errors.Is(err, store.ErrUnchanged) {
		return before, before, nil
	}
	if err != nil {
		return store.Equipment{}, store.Equipment{}, err
	}
	e.ID = id
	now := s.now()
	if r != nil {
		r.EquipmentID = id
		s.addReading(r, now)
	}
	e.UpdatedAt = now
	s.equipment[id] = e
	e.CriticalComponents = cloneStrings(e.CriticalComponents)
	return before, e, nil
}

func (s *Store) EquipmentStats(_ context.Context, owner uuid.UUID) (store.EquipmentStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := store.EquipmentStats{ByRisk: map[string]int{}, ByStatus: map[string]int{}}
	for _, e := range s.equipment {
		if e.OwnerID != owner {
			continue
		}
		stats.Total++
		stats.ByRisk[string(e.RiskLevel)]++
		stats.ByStatus[string(e.Status)]++
		stats.TotalHours += e.HoursUsed
	}
	return stats, nil
}

func (s *Store) AddReading(_ context.Context, r *store.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.equipment[r.EquipmentID]; !ok {
		return store.ErrNotFound
	}
	s.addReading(r, s.now())
	return nil
}

// addReading stores r; the caller holds the write lock.
func (s *Store) addReading(r *store.Reading, now time.Time) {
	store.Stamp(&r.ID, &r.CreatedAt, nil, now)
	if r.Date.IsZero() {
		r.Date = r.CreatedAt
	}
	s.readings[r.ID] = *r
	s.track(r.ID)
}

func (s *Store) ListReadings(_ context.Context, equipmentID uuid.UUID, limit int) ([]store.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []store.Reading{}
	for _, r := range s.readings {
		if r.EquipmentID == equipmentID {
			out = append(out, r)
		}
	}
	newestFirst(s, out, func(r store.Reading) time.Time { return r.Date }, func(r store.Reading) uuid.UUID { return r.ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CreateAlert(_ context.Context, a *store.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.Status == store.AlertActive {
		for _, existing := range s.alerts {
			if existing.EquipmentID == a.EquipmentID && existing.Status == store.AlertActive {
				return store.ErrConflict
			}
		}
	}
	store.Stamp(&a.ID, &a.CreatedAt, &a.UpdatedAt, s.now())
	s.alerts[a.ID] = *a
	s.track(a.ID)
	return nil
}

func (s *Store) GetAlert(_ context.Context, id uuid.UUID) (store.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.alerts[id]
	if !ok {
		return store.Alert{}, store.ErrNotFound
	}
	return a, nil
}

func (s *Store) ListAlerts(_ context.Context, owner uuid.UUID, f store.AlertFilter) ([]store.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []store.Alert{}
	for _, a := range s.alerts {
		if a.OwnerID != owner {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.EquipmentID != uuid.Nil && a.EquipmentID != f.EquipmentID {
			continue
		}
		out = append(out, a)
	}
	newestFirst(s, out, func(a store.Alert) time.Time { return a.CreatedAt }, func(a store.Alert) uuid.UUID { return a.ID })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) UpdateAlert(_ context.Context, a *store.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alerts[a.ID]; !ok {
		return store.ErrNotFound
	}
	a.UpdatedAt = s.now()
	s.alerts[a.ID] = *a
	return nil
}

func (s *Store) CreateMaintenance(_ context.Context, m *store.Maintenance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	store.Stamp(&m.ID, &m.CreatedAt, &m.UpdatedAt, s.now())
	m.ComponentsReplaced = cloneStrings(m.ComponentsReplaced)
	s.maintenance[m.ID] = *m
	s.track(m.ID)
	return nil
}

func (s *Store) GetMaintenance(_ context.Context, id uuid.UUID) (store.Maintenance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.maintenance[id]
	if !ok {
		return store.Maintenance{}, store.ErrNotFound
	}
	m.ComponentsReplaced = cloneStrings(m.ComponentsReplaced)
	return m, nil
}

func (s *Store) ListMaintenance(_ context.Context, owner uuid.UUID, f store.MaintenanceFilter) ([]store.Maintenance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []store.Maintenance{}
	for _, m := range s.maintenance {
		if m.OwnerID != owner {
			continue
		}
		if f.EquipmentID != uuid.Nil && m.EquipmentID != f.EquipmentID {
			continue
		}
		if len(f.Statuses) > 0 && !hasStatus(f.Statuses, m.Status) {
			continue
		}
		if f.ScheduledBefore != nil && !m.ScheduledDate.Before(*f.ScheduledBefore) {
			continue
		}
		m.ComponentsReplaced = cloneStrings(m.ComponentsReplaced)
		out = append(out, m)
	}
	newestFirst(s, out, func(m store.Maintenance) time.Time { return m.CreatedAt }, func(m store.Maintenance) uuid.UUID { return m.ID })
	return out, nil
}

func hasStatus(statuses []store.MaintenanceStatus, st store.MaintenanceStatus) bool {
	for _, s := range statuses {
		if s == st {
			return true
		}
	}
	return false
}

func (s *Store) UpdateMaintenance(_ context.Context, m *store.Maintenance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.maintenance[m.ID]; !ok {
		return store.ErrNotFound
	}
	m.UpdatedAt = s.now()
	m.ComponentsReplaced = cloneStrings(m.ComponentsReplaced)
	s.maintenance[m.ID] = *m
	return nil
}

func (s *Store) CreateReport(_ context.Context, r *store.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	store.Stamp(&r.ID, &r.CreatedAt, &r.UpdatedAt, s.now())
	r.Content = cloneMap(r.Content)
	s.reports[r.ID] = *r
	s.track(r.ID)
	return nil
}

func (s *Store) GetReport(_ context.Context, id uuid.UUID) (store.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[id]
	if !ok {
		return store.Report{}, store.ErrNotFound
	}
	r.Content = cloneMap(r.Content)
	return r, nil
}

func (s *Store) ListReports(_ context.Context, owner uuid.UUID, f store.ReportFilter) ([]store.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []store.Report{}
	for _, r := range s.reports {
		if r.OwnerID != owner {
			continue
		}
		if f.Type != "" && r.Type != f.Type {
			continue
		}
		if f.EquipmentID != uuid.Nil && r.EquipmentID != f.EquipmentID {
			continue
		}
		r.Content = cloneMap(r.Content)
		out = append(out, r)
	}
	newestFirst(s, out, func(r store.Report) time.Time { return r.CreatedAt }, func(r store.Report) uuid.UUID { return r.ID })
	return out, nil
}

func (s *Store) UpdateReport(_ context.Context, r *store.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reports[r.ID]; !ok {
		return store.ErrNotFound
	}
	r.UpdatedAt = s.now()
	r.Content = cloneMap(r.Content)
	s.reports[r.ID] = *r
	return nil
}

func (s *Store) CreateUpload(_ context.Context, u *store.Upload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	store.Stamp(&u.ID, &u.CreatedAt, &u.UpdatedAt, s.now())
	s.uploads[u.ID] = *u
	s.track(u.ID)
	return nil
}

func (s *Store) GetUpload(_ context.Context, id uuid.UUID) (store.Upload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.uploads[id]
	if !ok {
		return store.Upload{}, store.ErrNotFound
	}
	return u, nil
}

func (s *Store) ListUploads(_ context.Context, owner uuid.UUID) ([]store.Upload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []store.Upload{}
	for _, u := range s.uploads {
		if u.OwnerID == owner {
			out = append(out, u)
		}
	}
	newestFirst(s, out, func(u store.Upload) time.Time { return u.CreatedAt }, func(u store.Upload) uuid.UUID { return u.ID })
	return out, nil
}

func (s *Store) UpdateUpload(_ context.Context, u *store.Upload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.uploads[u.ID]; !ok {
		return store.ErrNotFound
	}
	u.UpdatedAt = s.now()
	s.uploads[u.ID] = *u
	return nil
}

func (s *Store) RecordAudit(_ context.Context, a *store.Audit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = int64(len(s.audit) + 1)
	if a.At.IsZero() {
		a.At = s.now()
	}
	s.audit = append(s.audit, *a)
	return nil
}

// AuditLog returns a copy of the recorded audit entries, oldest first.
func (s *Store) AuditLog() []store.Audit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Audit, len(s.audit))
	copy(out, s.audit)
	return out
}
