package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"agroguard/pkg/store"
	"agroguard/pkg/validate"
	"agroguard/services/maintenance"
)

var (
	maintenanceTypes = []string{
		string(store.MaintenancePreventive),
		string(store.MaintenanceCorrective),
		string(store.MaintenancePredictive),
	}
	maintenanceStatuses = []string{
		string(store.MaintenanceScheduled),
		string(store.MaintenanceInProgress),
		string(store.MaintenanceCompleted),
		string(store.MaintenanceCancelled),
	}
)

type maintenanceRequest struct {
	EquipmentID   string     `json:"equipment_id"`
	Type          string     `json:"maintenance_type"`
	Description   string     `json:"description"`
	ScheduledDate *time.Time `json:"scheduled_date"`
	Technician    string     `json:"technician"`
	Cost          *float64   `json:"cost"`
	Notes         string     `json:"notes"`
}

var maintenanceRules = validate.Table[maintenanceRequest]{
	{Name: "equipment_id", Get: func(r maintenanceRequest) any { return r.EquipmentID }, Rules: []validate.Rule{validate.Required(), uuidRule}},
	{Name: "maintenance_type", Get: func(r maintenanceRequest) any { return r.Type }, Rules: []validate.Rule{validate.Required(), validate.OneOf(maintenanceTypes...)}},
	{Name: "description", Get: func(r maintenanceRequest) any { return r.Description }, Rules: []validate.Rule{validate.Required(), validate.MaxLen(500)}},
	{Name: "scheduled_date", Get: func(r maintenanceRequest) any { return r.ScheduledDate }, Rules: []validate.Rule{validate.Required()}},
	{Name: "technician", Get: func(r maintenanceRequest) any { return r.Technician }, Rules: []validate.Rule{validate.MaxLen(120)}},
	{Name: "cost", Get: func(r maintenanceRequest) any { return r.Cost }, Rules: []validate.Rule{validate.Min(0)}},
	{Name: "notes", Get: func(r maintenanceRequest) any { return r.Notes }, Rules: []validate.Rule{validate.MaxLen(2000)}},
}

// uuidRule accepts blank values and well-formed ids.
func uuidRule(value any) string {
	s, ok := value.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return ""
	}
	if _, err := uuid.Parse(strings.TrimSpace(s)); err != nil {
		return "must be a valid id"
	}
	return ""
}

func (a *API) handleListMaintenance(w http.ResponseWriter, r *http.Request) {
	owner, err := a.owner(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	equipmentID, err := queryUUID(r, "equipment_id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	status, err := queryEnum(r, "status", maintenanceStatuses...)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	f := store.MaintenanceFilter{EquipmentID: equipmentID}
	if status != "" {
		f.Statuses = []store.MaintenanceStatus{store.MaintenanceStatus(status)}
	}
	list, err := a.deps.Maintenance.List(r.Context(), owner, f)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (a *API) handleCreateMaintenance(w http.ResponseWriter, r *http.Request) {
	owner, err := a.owner(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req maintenanceRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if err := maintenanceRules.Validate(req); err != nil {
		a.fail(w, r, err)
		return
	}

	in := maintenance.NewRecord{
		EquipmentID:   uuid.MustParse(strings.TrimSpace(req.EquipmentID)),
		Type:          store.MaintenanceType(req.Type),
		Description:   strings.TrimSpace(req.Description),
		ScheduledDate: req.ScheduledDate.UTC(),
		Technician:    strings.TrimSpace(req.Technician),
		Notes:         strings.TrimSpace(req.Notes),
	}
	if req.Cost != nil {
		in.Cost = *req.Cost
	}
	m, err := a.deps.Maintenance.Create(r.Context(), owner, in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, m)
}

func (a *API) handleUpcomingMaintenance(w http.ResponseWriter, r *http.Request) {
	owner, err := a.owner(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	days, err := queryInt(r, "days", 30)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	list, err := a.deps.Maintenance.Upcoming(r.Context(), owner, days)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (a *API) handleMaintenanceStats(w http.ResponseWriter, r *http.Request) {
	owner, err := a.owner(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	stats, err := a.deps.Maintenance.Stats(r.Context(), owner)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

type scheduleRequest struct {
	EquipmentID string `json:"equipment_id"`
}

var scheduleRules = validate.Table[scheduleRequest]{
	{Name: "equipment_id", Get: func(r scheduleRequest) any { return r.EquipmentID }, Rules: []validate.Rule{uuidRule}},
}

// handleScheduleMaintenance books preventive work for one machine, or for
// every high-risk machine when no equipment_id is given.
func (a *API) handleScheduleMaintenance(w http.ResponseWriter, r *http.Request) {
	owner, err := a.owner(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req scheduleRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if err := scheduleRules.Validate(req); err != nil {
		a.fail(w, r, err)
		return
	}
	equipmentID := uuid.Nil
	if raw := strings.TrimSpace(req.EquipmentID); raw != "" {
		equipmentID = uuid.MustParse(raw)
	}
	created, err := a.deps.Maintenance.ScheduleFor(r.Context(), owner, equipmentID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"created": len(created), "maintenance": created})
}

func (a *API) handleGetMaintenance(w http.ResponseWriter, r *http.Request) {
	owner, id, err := a.ownedPath(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	m, err := a.deps.Maintenance.Get(r.Context(), owner, id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

func (a *API) handleStartMaintenance(w http.ResponseWriter, r *http.Request) {
	owner, id, err := a.ownedPath(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	m, err := a.deps.Maintenance.Start(r.Context(), owner, id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

func (a *API) handleCancelMaintenance(w http.ResponseWriter, r *http.Request) {
	owner, id, err := a.ownedPath(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	m, err := a.deps.Maintenance.Cancel(r.Context(), owner, id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

type completionRequest struct {
	Cost               *float64 `json:"cost"`
	DowntimeHours      *float64 `json:"downtime_hours"`
	ComponentsReplaced []string `json:"components_replaced"`
	Notes              string   `json:"notes"`
	Technician         string   `json:"technician"`
}

var completionRules = validate.Table[completionRequest]{
	{Name: "cost", Get: func(r completionRequest) any { return r.Cost }, Rules: []validate.Rule{validate.Min(0)}},
	{Name: "downtime_hours", Get: func(r completionRequest) any { return r.DowntimeHours }, Rules: []validate.Rule{validate.Min(0)}},
	{Name: "components_replaced", Get: func(r completionRequest) any { return r.ComponentsReplaced }, Rules: []validate.Rule{validate.Each(validate.Required(), validate.MaxLen(80))}},
	{Name: "notes", Get: func(r completionRequest) any { return r.Notes }, Rules: []validate.Rule{validate.MaxLen(2000)}},
	{Name: "technician", Get: func(r completionRequest) any { return r.Technician }, Rules: []validate.Rule{validate.MaxLen(120)}},
}

func (a *API) handleCompleteMaintenance(w http.ResponseWriter, r *http.Request) {
	owner, id, err := a.ownedPath(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req completionRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if err := completionRules.Validate(req); err != nil {
		a.fail(w, r, err)
		return
	}
	m, err := a.deps.Maintenance.Complete(r.Context(), owner, id, maintenance.Completion{
		Cost:               req.Cost,
		DowntimeHours:      req.DowntimeHours,
		ComponentsReplaced: req.ComponentsReplaced,
		Notes:              strings.TrimSpace(req.Notes),
		Technician:         strings.TrimSpace(req.Technician),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}
