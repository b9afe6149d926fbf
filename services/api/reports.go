package api

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"agroguard/pkg/store"
	"agroguard/pkg/validate"
)

var reportTypes = []string{
	string(store.ReportHealth),
	string(store.ReportMaintenance),
	string(store.ReportPrediction),
	string(store.ReportSummary),
}

type reportRequest struct {
	EquipmentID string `json:"equipment_id"`
	Type        string `json:"report_type"`
	Title       string `json:"title"`
}

var reportRules = validate.Table[reportRequest]{
	{Name: "equipment_id", Get: func(r reportRequest) any { return r.EquipmentID }, Rules: []validate.Rule{validate.Required(), uuidRule}},
	{Name: "report_type", Get: func(r reportRequest) any { return r.Type }, Rules: []validate.Rule{validate.Required(), validate.OneOf(reportTypes...)}},
	{Name: "title", Get: func(r reportRequest) any { return r.Title }, Rules: []validate.Rule{validate.MaxLen(200)}},
}

func (a *API) handleListReports(w http.ResponseWriter, r *http.Request) {
	owner, err := a.owner(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	kind, err := queryEnum(r, "type", reportTypes...)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	equipmentID, err := queryUUID(r, "equipment_id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	list, err := a.deps.Reports.List(r.Context(), owner, store.ReportFilter{
		Type:        store.ReportType(kind),
		EquipmentID: equipmentID,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (a *API) handleCreateReport(w http.ResponseWriter, r *http.Request) {
	owner, err := a.owner(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req reportRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if err := reportRules.Validate(req); err != nil {
		a.fail(w, r, err)
		return
	}
	report, err := a.deps.Reports.Generate(r.Context(), owner,
		uuid.MustParse(strings.TrimSpace(req.EquipmentID)),
		store.ReportType(req.Type),
		strings.TrimSpace(req.Title))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, report)
}

// handleGetReport marks a freshly generated report as viewed.
func (a *API) handleGetReport(w http.ResponseWriter, r *http.Request) {
	owner, id, err := a.ownedPath(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	report, err := a.deps.Reports.Get(r.Context(), owner, id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (a *API) handleExportReport(w http.ResponseWriter, r *http.Request) {
	owner, id, err := a.ownedPath(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	text, report, err := a.deps.Reports.Export(r.Context(), owner, id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="report-`+report.ID.String()+`.txt"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(text))
}

func (a *API) handleDownloadReport(w http.ResponseWriter, r *http.Request) {
	owner, id, err := a.ownedPath(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	url, err := a.deps.Reports.DownloadURL(r.Context(), owner, id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"url":        url,
		"expires_in": int(a.deps.Reports.URLTTL().Seconds()),
	})
}

func (a *API) handleArchiveReport(w http.ResponseWriter, r *http.Request) {
	owner, id, err := a.ownedPath(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	report, err := a.deps.Reports.Archive(r.Context(), owner, id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}
