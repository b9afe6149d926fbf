package api

import (
	"net/http"
	"strings"

	"agroguard/pkg/store"
	"agroguard/pkg/validate"
)

var alertStatuses = []string{
	string(store.AlertActive),
	string(store.AlertAcknowledged),
	string(store.AlertResolved),
}

func (a *API) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	owner, err := a.owner(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	status, err := queryEnum(r, "status", alertStatuses...)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	equipmentID, err := queryUUID(r, "equipment_id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	list, err := a.deps.Alerts.List(r.Context(), owner, store.AlertFilter{
		Status:      store.AlertStatus(status),
		EquipmentID: equipmentID,
		Limit:       limit,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

// handleRecentAlerts feeds the dashboard: newest alerts of any status.
func (a *API) handleRecentAlerts(w http.ResponseWriter, r *http.Request) {
	owner, err := a.owner(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", defaultRecent)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if limit == 0 {
		limit = defaultRecent
	}
	list, err := a.deps.Alerts.List(r.Context(), owner, store.AlertFilter{Limit: limit})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (a *API) handleGenerateAlerts(w http.ResponseWriter, r *http.Request) {
	owner, err := a.owner(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	created, err := a.deps.Alerts.GenerateForOwner(r.Context(), owner)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"created": len(created), "alerts": created})
}

func (a *API) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	owner, id, err := a.ownedPath(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	alert, err := a.deps.Alerts.Get(r.Context(), owner, id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, alert)
}

func (a *API) handleAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	owner, id, err := a.ownedPath(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	alert, err := a.deps.Alerts.Acknowledge(r.Context(), owner, id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, alert)
}

type resolveRequest struct {
	Note string `json:"note"`
}

var resolveRules = validate.Table[resolveRequest]{
	{Name: "note", Get: func(r resolveRequest) any { return r.Note }, Rules: []validate.Rule{validate.MaxLen(1000)}},
}

func (a *API) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	owner, id, err := a.ownedPath(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req resolveRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if err := resolveRules.Validate(req); err != nil {
		a.fail(w, r, err)
		return
	}
	alert, err := a.deps.Alerts.Resolve(r.Context(), owner, id, strings.TrimSpace(req.Note))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, alert)
}
