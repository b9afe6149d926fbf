// Package maintenance plans, schedules and closes maintenance records.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"agroguard/pkg/risk"
	"agroguard/pkg/store"
)

const (
	autoScheduleLead    = 7 * 24 * time.Hour
	nextMaintenanceGap  = 90 * 24 * time.Hour
	autoResolutionNote  = "Resolvido automaticamente após manutenção concluída."
	autoDescriptionForm = "Manutenção preventiva automática para %s devido a risco elevado."
)

// Store is the slice of the repository the planner needs.
type Store interface {
	store.MaintenanceStore
	GetEquipment(ctx context.Context, id uuid.UUID) (store.Equipment, error)
	ListEquipment(ctx context.Context, owner uuid.UUID, f store.EquipmentFilter) ([]store.Equipment, error)
	ModifyEquipment(ctx context.Context, id uuid.UUID, fn func(e *store.Equipment) (*store.Reading, error)) (store.Equipment, store.Equipment, error)
}

// AlertResolver closes a machine's open alerts.
type AlertResolver interface {
	ResolveForEquipment(ctx context.Context, owner, equipmentID uuid.UUID, note string) (int, error)
}

// Planner owns the maintenance record lifecycle.
type Planner struct {
	store  Store
	alerts AlertResolver
	logger zerolog.Logger
	now    func() time.Time
}

func New(st Store, alerts AlertResolver, logger zerolog.Logger) (*Planner, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	if alerts == nil {
		return nil, errors.New("alert resolver is required")
	}
	return &Planner{store: st, alerts: alerts, logger: logger, now: func() time.Time { return time.Now().UTC() }}, nil
}

// SetClock replaces the time source.
func (p *Planner) SetClock(now func() time.Time) { p.now = now }

// NewRecord is the caller-supplied part of a maintenance record.
type NewRecord struct {
	EquipmentID   uuid.UUID
	Type          store.MaintenanceType
	Description   string
	ScheduledDate time.Time
	Technician    string
	Cost          float64
	Notes         string
}

// Create schedules a record for a machine owned by owner.
func (p *Planner) Create(ctx context.Context, owner uuid.UUID, in NewRecord) (store.Maintenance, error) {
	e, err := p.equipment(ctx, owner, in.EquipmentID)
	if err != nil {
		return store.Maintenance{}, err
	}
	m := store.Maintenance{
		OwnerID:            owner,
		EquipmentID:        e.ID,
		EquipmentName:      e.Name,
		Type:               in.Type,
		Status:             store.MaintenanceScheduled,
		Description:        in.Description,
		ScheduledDate:      in.ScheduledDate,
		Technician:         in.Technician,
		Cost:               in.Cost,
		Notes:              in.Notes,
		ComponentsReplaced: []string{},
	}
	if err := p.store.CreateMaintenance(ctx, &m); err != nil {
		return store.Maintenance{}, err
	}
	return m, nil
}

func (p *Planner) Get(ctx context.Context, owner, id uuid.UUID) (store.Maintenance, error) {
	m, err := p.store.GetMaintenance(ctx, id)
	return store.Authorize(m, err, owner)
}

func (p *Planner) List(ctx context.Context, owner uuid.UUID, f store.MaintenanceFilter) ([]store.Maintenance, error) {
	return p.store.ListMaintenance(ctx, owner, f)
}

func (p *Planner) equipment(ctx context.Context, owner, id uuid.UUID) (store.Equipment, error) {
	e, err := p.store.GetEquipment(ctx, id)
	return store.Authorize(e, err, owner)
}

// Start marks the work as begun and flags the machine as under maintenance.
func (p *Planner) Start(ctx context.Context, owner, id uuid.UUID) (store.Maintenance, error) {
	m, err := p.fire(ctx, owner, id, EventStart)
	if err != nil {
		return store.Maintenance{}, err
	}
	return m, p.modifyEquipment(ctx, m.EquipmentID, func(e *store.Equipment) error {
		e.Status = store.EquipmentMaintenance
		return nil
	})
}

// Cancel abandons an open record. A machine flagged by Start returns to active.
func (p *Planner) Cancel(ctx context.Context, owner, id uuid.UUID) (store.Maintenance, error) {
	m, err := p.fire(ctx, owner, id, EventCancel)
	if err != nil {
		return store.Maintenance{}, err
	}
	return m, p.modifyEquipment(ctx, m.EquipmentID, func(e *store.Equipment) error {
		if e.Status != store.EquipmentMaintenance {
			return store.ErrUnchanged
		}
		e.Status = store.EquipmentActive
		return nil
	})
}

func (p *Planner) modifyEquipment(ctx context.Context, id uuid.UUID, fn func(e *store.Equipment) error) error {
	_, _, err := p.store.ModifyEquipment(ctx, id, func(e *store.Equipment) (*store.Reading, error) {
		return nil, fn(e)
	})
	return err
}

// Completion carries the optional figures recorded when work finishes.
type Completion struct {
	Cost               *float64
	DowntimeHours      *float64
	ComponentsReplaced []string
	Notes              string
	Technician         string
}

// Complete closes a record. The machine goes back to active with its next
// maintenance 90 days out, and every open alert on it is resolved. The risk
// tier is left to the usage counters.
func (p *Planner) Complete(ctx context.Context, owner, id uuid.UUID, c Completion) (store.Maintenance, error) {
	m, err := p.Get(ctx, owner, id)
	if err != nil {
		return store.Maintenance{}, err
	}
	now := p.now()
	if c.Cost != nil {
		m.Cost = *c.Cost
	}
	if c.DowntimeHours != nil {
		m.DowntimeHours = *c.DowntimeHours
	}
	if c.ComponentsReplaced != nil {
		m.ComponentsReplaced = c.ComponentsReplaced
	}
	if c.Notes != "" {
		m.Notes = c.Notes
	}
	if c.Technician != "" {
		m.Technician = c.Technician
	}
	if _, err := machine.Fire(ctx, string(m.Status), EventComplete, &m, now); err != nil {
		return store.Maintenance{}, err
	}
	if err := p.store.UpdateMaintenance(ctx, &m); err != nil {
		return store.Maintenance{}, err
	}

	next := now.Add(nextMaintenanceGap)
	err = p.modifyEquipment(ctx, m.EquipmentID, func(e *store.Equipment) error {
		e.Status = store.EquipmentActive
		e.LastMaintenanceAt = &now
		e.NextMaintenanceAt = &next
		return nil
	})
	if err != nil {
		return m, fmt.Errorf("update equipment: %w", err)
	}

	n, err := p.alerts.ResolveForEquipment(ctx, owner, m.EquipmentID, autoResolutionNote)
	if err != nil {
		return m, fmt.Errorf("resolve alerts: %w", err)
	}
	p.logger.Info().
		Str("maintenance_id", m.ID.String()).
		Str("equipment_id", m.EquipmentID.String()).
		Int("alerts_resolved", n).
		Msg("maintenance completed")
	return m, nil
}

func (p *Planner) fire(ctx context.Context, owner, id uuid.UUID, event string) (store.Maintenance, error) {
	m, err := p.Get(ctx, owner, id)
	if err != nil {
		return store.Maintenance{}, err
	}
	if _, err := machine.Fire(ctx, string(m.Status), event, &m, p.now()); err != nil {
		return store.Maintenance{}, err
	}
	if err := p.store.UpdateMaintenance(ctx, &m); err != nil {
		return store.Maintenance{}, err
	}
	return m, nil
}

// AutoSchedule books preventive maintenance a week out unless the machine
// already has an open record. The bool reports whether one was created.
func (p *Planner) AutoSchedule(ctx context.Context, e store.Equipment) (store.Maintenance, bool, error) {
	open, err := p.store.ListMaintenance(ctx, e.OwnerID, store.MaintenanceFilter{
		EquipmentID: e.ID,
		Statuses:    []store.MaintenanceStatus{store.MaintenanceScheduled, store.MaintenanceInProgress},
	})
	if err != nil {
		return store.Maintenance{}, false, err
	}
	if len(open) > 0 {
		return store.Maintenance{}, false, nil
	}
	m := store.Maintenance{
		OwnerID:            e.OwnerID,
		EquipmentID:        e.ID,
		EquipmentName:      e.Name,
		Type:               store.MaintenancePreventive,
		Status:             store.MaintenanceScheduled,
		Description:        fmt.Sprintf(autoDescriptionForm, e.Name),
		ScheduledDate:      p.now().Add(autoScheduleLead),
		ComponentsReplaced: []string{},
	}
	if err := p.store.CreateMaintenance(ctx, &m); err != nil {
		return store.Maintenance{}, false, err
	}
	return m, true, nil
}

// ScheduleFor books maintenance for one machine, or for every high-risk
// machine of owner when equipmentID is nil.
func (p *Planner) ScheduleFor(ctx context.Context, owner, equipmentID uuid.UUID) ([]store.Maintenance, error) {
	var targets []store.Equipment
	if equipmentID != uuid.Nil {
		e, err := p.equipment(ctx, owner, equipmentID)
		if err != nil {
			return nil, err
		}
		targets = append(targets, e)
	} else {
		high, err := p.store.ListEquipment(ctx, owner, store.EquipmentFilter{Risk: risk.TierHigh})
		if err != nil {
			return nil, err
		}
		targets = high
	}

	created := []store.Maintenance{}
	for _, e := range targets {
		m, ok, err := p.AutoSchedule(ctx, e)
		if err != nil {
			return nil, err
		}
		if ok {
			created = append(created, m)
		}
	}
	return created, nil
}

// Upcoming returns scheduled records due between now and now+days, soonest
// first.
func (p *Planner) Upcoming(ctx context.Context, owner uuid.UUID, days int) ([]store.Maintenance, error) {
	if days <= 0 {
		days = 30
	}
	now := p.now()
	until := now.AddDate(0, 0, days)
	records, err := p.store.ListMaintenance(ctx, owner, store.MaintenanceFilter{
		Statuses:        []store.MaintenanceStatus{store.MaintenanceScheduled},
		ScheduledBefore: &until,
	})
	if err != nil {
		return nil, err
	}
	out := make([]store.Maintenance, 0, len(records))
	for _, m := range records {
		if !m.ScheduledDate.Before(now) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ScheduledDate.Before(out[j].ScheduledDate) })
	return out, nil
}

// Stats summarises an owner's maintenance records.
type Stats struct {
	Total         int            `json:"total"`
	ByStatus      map[string]int `json:"by_status"`
	ByType        map[string]int `json:"by_type"`
	Completed     int            `json:"completed"`
	Upcoming      int            `json:"upcoming"`
	TotalCost     float64        `json:"total_cost"`
	TotalDowntime float64        `json:"total_downtime_hours"`
}

func (p *Planner) Stats(ctx context.Context, owner uuid.UUID) (Stats, error) {
	records, err := p.store.ListMaintenance(ctx, owner, store.MaintenanceFilter{})
	if err != nil {
		return Stats{}, err
	}
	upcoming, err := p.Upcoming(ctx, owner, 30)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{ByStatus: map[string]int{}, ByType: map[string]int{}, Total: len(records), Upcoming: len(upcoming)}
	for _, m := range records {
		st.ByStatus[string(m.Status)]++
		st.ByType[string(m.Type)]++
		if m.Status == store.MaintenanceCompleted {
			st.Completed++
			st.TotalCost += m.Cost
			st.TotalDowntime += m.DowntimeHours
		}
	}
	return st, nil
}

// RecommendFor loads a machine and its history and returns Recommend's result.
func (p *Planner) RecommendFor(ctx context.Context, owner, equipmentID uuid.UUID) (Recommendation, error) {
	e, err := p.equipment(ctx, owner, equipmentID)
	if err != nil {
		return Recommendation{}, err
	}
	history, err := p.store.ListMaintenance(ctx, owner, store.MaintenanceFilter{
		EquipmentID: e.ID,
		Statuses:    []store.MaintenanceStatus{store.MaintenanceCompleted},
	})
	if err != nil {
		return Recommendation{}, err
	}
	return Recommend(e, history, p.now()), nil
}
