package api

import (
	"net/http"
	"strings"
	"time"

	"agroguard/pkg/risk"
	"agroguard/pkg/session"
	"agroguard/pkg/store"
	"agroguard/pkg/validate"
)

// equipmentRequest is the body of create and update. Absent fields are left
// untouched on update. Risk fields are derived and cannot be sent.
type equipmentRequest struct {
	Name               *string    `json:"name"`
	Manufacturer       *string    `json:"manufacturer"`
	Model              *string    `json:"model"`
	Type               *string    `json:"type"`
	Location           *string    `json:"location"`
	Responsible        *string    `json:"responsible"`
	InstalledAt        *time.Time `json:"installed_at"`
	HoursUsed          *float64   `json:"hours_used"`
	MTBF               *float64   `json:"mtbf"`
	CurrentTemperature *float64   `json:"current_temperature"`
	CurrentVibration   *float64   `json:"current_vibration"`
	CriticalComponents []string   `json:"critical_components"`
	LastFailureAt      *time.Time `json:"last_failure_at"`
	LastMaintenanceAt  *time.Time `json:"last_maintenance_at"`
	NextMaintenanceAt  *time.Time `json:"next_maintenance_at"`
	Status             *string    `json:"status"`
}

var equipmentStatuses = []string{
	string(store.EquipmentActive),
	string(store.EquipmentInactive),
	string(store.EquipmentMaintenance),
	string(store.EquipmentRetired),
}

var riskTiers = []string{string(risk.TierLow), string(risk.TierMedium), string(risk.TierHigh)}

func equipmentRules(now func() time.Time) validate.Table[equipmentRequest] {
	text := func(n int) []validate.Rule { return []validate.Rule{validate.MaxLen(n)} }
	return validate.Table[equipmentRequest]{
		{Name: "name", Get: func(r equipmentRequest) any { return r.Name }, Rules: []validate.Rule{validate.NotBlank(), validate.MaxLen(120)}},
		{Name: "manufacturer", Get: func(r equipmentRequest) any { return r.Manufacturer }, Rules: text(120)},
		{Name: "model", Get: func(r equipmentRequest) any { return r.Model }, Rules: text(120)},
		{Name: "type", Get: func(r equipmentRequest) any { return r.Type }, Rules: text(60)},
		{Name: "location", Get: func(r equipmentRequest) any { return r.Location }, Rules: text(200)},
		{Name: "responsible", Get: func(r equipmentRequest) any { return r.Responsible }, Rules: text(120)},
		{Name: "installed_at", Get: func(r equipmentRequest) any { return r.InstalledAt }, Rules: []validate.Rule{validate.NotAfter(now)}},
		{Name: "hours_used", Get: func(r equipmentRequest) any { return r.HoursUsed }, Rules: []validate.Rule{validate.Min(0)}},
		{Name: "mtbf", Get: func(r equipmentRequest) any { return r.MTBF }, Rules: []validate.Rule{validate.Positive()}},
		{Name: "critical_components", Get: func(r equipmentRequest) any { return r.CriticalComponents }, Rules: []validate.Rule{validate.Each(validate.Required(), validate.MaxLen(80))}},
		{Name: "last_failure_at", Get: func(r equipmentRequest) any { return r.LastFailureAt }, Rules: []validate.Rule{validate.NotAfter(now)}},
		{Name: "last_maintenance_at", Get: func(r equipmentRequest) any { return r.LastMaintenanceAt }, Rules: []validate.Rule{validate.NotAfter(now)}},
		{Name: "status", Get: func(r equipmentRequest) any { return r.Status }, Rules: []validate.Rule{validate.OneOf(equipmentStatuses...)}},
	}
}

// equipmentCreateRules adds the fields a new machine cannot do without.
var equipmentCreateRules = validate.Table[equipmentRequest]{
	{Name: "name", Get: func(r equipmentRequest) any { return r.Name }, Rules: []validate.Rule{validate.Required()}},
	{Name: "hours_used", Get: func(r equipmentRequest) any { return r.HoursUsed }, Rules: []validate.Rule{validate.Required()}},
	{Name: "mtbf", Get: func(r equipmentRequest) any { return r.MTBF }, Rules: []validate.Rule{validate.Required()}},
}

func (a *API) validateEquipment(req equipmentRequest, create bool) error {
	errs := validate.Errors{}
	tables := []validate.Table[equipmentRequest]{equipmentRules(a.now)}
	if create {
		tables = append(tables, equipmentCreateRules)
	}
	for _, t := range tables {
		if err := t.Validate(req); err != nil {
			for field, msgs := range err.(validate.Errors) {
				for _, m := range msgs {
					errs.Add(field, m)
				}
			}
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func trimmed(s *string) string { return strings.TrimSpace(*s) }

func (req equipmentRequest) apply(e *store.Equipment) {
	if req.Name != nil {
		e.Name = trimmed(req.Name)
	}
	if req.Manufacturer != nil {
		e.Manufacturer = trimmed(req.Manufacturer)
	}
	if req.Model != nil {
		e.Model = trimmed(req.Model)
	}
	if req.Type != nil {
		e.Type = trimmed(req.Type)
	}
	if req.Location != nil {
		e.Location = trimmed(req.Location)
	}
	if req.Responsible != nil {
		e.Responsible = trimmed(req.Responsible)
	}
	if req.InstalledAt != nil {
		e.InstalledAt = req.InstalledAt
	}
	if req.HoursUsed != nil {
		e.HoursUsed = *req.HoursUsed
	}
	if req.MTBF != nil {
		e.MTBF = *req.MTBF
	}
	if req.CurrentTemperature != nil {
		e.CurrentTemperature = req.CurrentTemperature
	}
	if req.CurrentVibration != nil {
		e.CurrentVibration = req.CurrentVibration
	}
	if req.CriticalComponents != nil {
		components := make([]string, 0, len(req.CriticalComponents))
		for _, c := range req.CriticalComponents {
			components = append(components, strings.TrimSpace(c))
		}
		e.CriticalComponents = components
	}
	if req.LastFailureAt != nil {
		e.LastFailureAt = req.LastFailureAt
	}
	if req.LastMaintenanceAt != nil {
		e.LastMaintenanceAt = req.LastMaintenanceAt
	}
	if req.NextMaintenanceAt != nil {
		e.NextMaintenanceAt = req.NextMaintenanceAt
	}
	if req.Status != nil {
		e.Status = store.EquipmentStatus(trimmed(req.Status))
	}
}

func actor(r *http.Request) string {
	s, err := session.From(r.Context())
	if err != nil {
		return "api"
	}
	return "user:" + s.UserID.String()
}

func (a *API) handleListEquipment(w http.ResponseWriter, r *http.Request) {
	owner, err := a.owner(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	tier, err := queryEnum(r, "risk", riskTiers...)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	status, err := queryEnum(r, "status", equipmentStatuses...)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	list, err := a.deps.Store.ListEquipment(r.Context(), owner, store.EquipmentFilter{
		Risk:   risk.Tier(tier),
		Status: store.EquipmentStatus(status),
		Search: strings.TrimSpace(r.URL.Query().Get("q")),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (a *API) handleCreateEquipment(w http.ResponseWriter, r *http.Request) {
	owner, err := a.owner(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req equipmentRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.validateEquipment(req, true); err != nil {
		a.fail(w, r, err)
		return
	}

	e := store.Equipment{OwnerID: owner, Status: store.EquipmentActive, CriticalComponents: []string{}}
	req.apply(&e)
	if _, err := e.Reclassify(); err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.deps.Store.CreateEquipment(r.Context(), &e); err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.deps.Recorder.Changed(r.Context(), actor(r), "equipment_created", nil, e); err != nil {
		a.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, e)
}

func (a *API) equipment(r *http.Request) (store.Equipment, error) {
	owner, err := a.owner(r)
	if err != nil {
		return store.Equipment{}, err
	}
	id, err := pathID(r)
	if err != nil {
		return store.Equipment{}, err
	}
	e, err := a.deps.Store.GetEquipment(r.Context(), id)
	return store.Authorize(e, err, owner)
}

func (a *API) handleGetEquipment(w http.ResponseWriter, r *http.Request) {
	e, err := a.equipment(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, e)
}

func (a *API) handleUpdateEquipment(w http.ResponseWriter, r *http.Request) {
	e, err := a.equipment(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req equipmentRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.validateEquipment(req, false); err != nil {
		a.fail(w, r, err)
		return
	}

	before, after, err := a.deps.Store.ModifyEquipment(r.Context(), e.ID, func(cur *store.Equipment) (*store.Reading, error) {
		if _, err := store.Authorize(*cur, nil, e.OwnerID); err != nil {
			return nil, err
		}
		if req.HoursUsed != nil && *req.HoursUsed < cur.HoursUsed {
			return nil, store.ErrNegativeHours
		}
		req.apply(cur)
		_, err := cur.Reclassify()
		return nil, err
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.deps.Recorder.Changed(r.Context(), actor(r), "equipment_updated", &before, after); err != nil {
		a.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, after)
}

func (a *API) handleEquipmentStats(w http.ResponseWriter, r *http.Request) {
	owner, err := a.owner(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	stats, err := a.deps.Store.EquipmentStats(r.Context(), owner)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (a *API) handleComponents(w http.ResponseWriter, r *http.Request) {
	e, err := a.equipment(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"equipment_id": e.ID,
		"placeholder":  true,
		"components":   risk.PlaceholderComponentHealth(e.CriticalComponents),
	})
}

type readingRequest struct {
	Date        *time.Time `json:"date"`
	HoursUsed   *float64   `json:"hours_used"`
	Temperature *float64   `json:"temperature"`
	Vibration   *float64   `json:"vibration"`
	Consumption *float64   `json:"consumption"`
	NoiseLevel  *float64   `json:"noise_level"`
	Cycles      *int       `json:"cycles"`
}

func readingRules(now func() time.Time) validate.Table[readingRequest] {
	return validate.Table[readingRequest]{
		{Name: "date", Get: func(r readingRequest) any { return r.Date }, Rules: []validate.Rule{validate.NotAfter(now)}},
		{Name: "hours_used", Get: func(r readingRequest) any { return r.HoursUsed }, Rules: []validate.Rule{validate.Required(), validate.Min(0)}},
		{Name: "consumption", Get: func(r readingRequest) any { return r.Consumption }, Rules: []validate.Rule{validate.Min(0)}},
		{Name: "noise_level", Get: func(r readingRequest) any { return r.NoiseLevel }, Rules: []validate.Rule{validate.Min(0)}},
		{Name: "cycles", Get: func(r readingRequest) any { return r.Cycles }, Rules: []validate.Rule{validate.Min(0)}},
	}
}

func (a *API) handleAddReading(w http.ResponseWriter, r *http.Request) {
	e, err := a.equipment(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req readingRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if err := readingRules(a.now).Validate(req); err != nil {
		a.fail(w, r, err)
		return
	}

	reading := store.Reading{
		EquipmentID: e.ID,
		HoursUsed:   *req.HoursUsed,
		Temperature: req.Temperature,
		Vibration:   req.Vibration,
		Consumption: req.Consumption,
		NoiseLevel:  req.NoiseLevel,
		Cycles:      req.Cycles,
		Source:      store.SourceManual,
	}
	if req.Date != nil {
		reading.Date = req.Date.UTC()
	}
	saved, updated, err := a.deps.Recorder.Append(r.Context(), e.OwnerID, reading, actor(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"reading": saved, "equipment": updated})
}

func (a *API) handleListReadings(w http.ResponseWriter, r *http.Request) {
	e, err := a.equipment(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", defaultReadings)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	readings, err := a.deps.Store.ListReadings(r.Context(), e.ID, limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, readings)
}

// handlePrediction combines the risk assessment with the suggested
// maintenance schedule.
func (a *API) handlePrediction(w http.ResponseWriter, r *http.Request) {
	e, err := a.equipment(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	assessment, err := risk.Classify(e.HoursUsed, e.MTBF)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	schedule, err := a.deps.Maintenance.RecommendFor(r.Context(), e.OwnerID, e.ID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"equipment_id":           e.ID,
		"assessment":             assessment,
		"risk_level":             assessment.Tier,
		"risk_score":             assessment.RiskScore(),
		"failure_forecast":       assessment.FailureForecast(),
		"failure_probability_5d": assessment.FailureProbability(),
		"components":             risk.PlaceholderComponentHealth(e.CriticalComponents),
		"schedule":               schedule,
	})
}
