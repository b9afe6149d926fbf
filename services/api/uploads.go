package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"agroguard/pkg/bus"
	"agroguard/pkg/metrics"
	"agroguard/pkg/store"
	"agroguard/pkg/upload"
	"agroguard/pkg/validate"
)

var errObjectsUnavailable = errors.New("object storage is not configured")

// allEquipment targets every machine of the owner; rows then carry their own
// equipment_id.
const allEquipment = "all"

var dataTypes = []string{
	string(store.DataOperational),
	string(store.DataMaintenance),
	string(store.DataFailure),
}

type uploadRequest struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	EquipmentID string `json:"equipment_id"`
	DataType    string `json:"data_type"`
}

var uploadRules = validate.Table[uploadRequest]{
	{Name: "file_name", Get: func(r uploadRequest) any { return r.FileName }, Rules: []validate.Rule{validate.Required(), validate.MaxLen(255)}},
	{Name: "equipment_id", Get: func(r uploadRequest) any { return r.EquipmentID }, Rules: []validate.Rule{validate.Required(), equipmentTarget}},
	{Name: "data_type", Get: func(r uploadRequest) any { return r.DataType }, Rules: []validate.Rule{validate.Required(), validate.OneOf(dataTypes...)}},
}

func equipmentTarget(value any) string {
	if s, ok := value.(string); ok && strings.TrimSpace(s) == allEquipment {
		return ""
	}
	return uuidRule(value)
}

type uploadResponse struct {
	Upload    store.Upload `json:"upload"`
	UploadURL string       `json:"upload_url"`
	ExpiresIn int          `json:"expires_in"`
}

// handleCreateUpload records a pending upload and hands out a presigned PUT
// URL. The client sends the file straight to object storage and then calls
// complete.
func (a *API) handleCreateUpload(w http.ResponseWriter, r *http.Request) {
	owner, err := a.owner(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if a.deps.Objects == nil {
		a.fail(w, r, errObjectsUnavailable)
		return
	}
	var req uploadRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if err := uploadRules.Validate(req); err != nil {
		a.fail(w, r, err)
		return
	}
	format, err := upload.Check(req.FileName, req.ContentType, req.Size)
	if err != nil {
		metrics.Uploads.WithLabelValues("rejected").Inc()
		respondValidation(w, validate.Errors{"file": {err.Error()}})
		return
	}

	u := store.Upload{
		ID:          uuid.New(),
		OwnerID:     owner,
		DataType:    store.DataType(req.DataType),
		FileName:    strings.TrimSpace(req.FileName),
		ContentType: req.ContentType,
		Format:      string(format),
		Size:        req.Size,
		Status:      store.UploadPending,
	}
	if target := strings.TrimSpace(req.EquipmentID); target != allEquipment {
		id := uuid.MustParse(target)
		e, err := a.deps.Store.GetEquipment(r.Context(), id)
		if _, err := store.Authorize(e, err, owner); err != nil {
			a.fail(w, r, err)
			return
		}
		u.EquipmentID = &id
	}
	u.ObjectKey = fmt.Sprintf("uploads/%s/%s.%s", owner, u.ID, format)

	url, err := a.deps.Objects.PresignPut(r.Context(), a.config.UploadBucket, u.ObjectKey, u.Size, a.config.UploadURLTTL)
	if err != nil {
		a.fail(w, r, fmt.Errorf("presign upload: %w", err))
		return
	}
	if err := a.deps.Store.CreateUpload(r.Context(), &u); err != nil {
		a.fail(w, r, err)
		return
	}
	metrics.Uploads.WithLabelValues("accepted").Inc()
	a.deps.Logger.Info().
		Str("upload_id", u.ID.String()).
		Str("format", u.Format).
		Int64("size", u.Size).
		Msg("upload accepted")

	respondJSON(w, http.StatusCreated, uploadResponse{
		Upload:    u,
		UploadURL: url,
		ExpiresIn: int(a.config.UploadURLTTL.Seconds()),
	})
}

func (a *API) upload(r *http.Request) (store.Upload, error) {
	owner, id, err := a.ownedPath(r)
	if err != nil {
		return store.Upload{}, err
	}
	u, err := a.deps.Store.GetUpload(r.Context(), id)
	return store.Authorize(u, err, owner)
}

// handleCompleteUpload queues a pending upload for ingestion.
func (a *API) handleCompleteUpload(w http.ResponseWriter, r *http.Request) {
	u, err := a.upload(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if u.Status != store.UploadPending {
		a.fail(w, r, fmt.Errorf("%w: upload is no longer pending", store.ErrConflict))
		return
	}
	event := bus.UploadReceived{UploadID: u.ID, OwnerID: u.OwnerID, ObjectKey: u.ObjectKey, At: a.now()}
	if err := a.publish(r.Context(), bus.SubjectUploadReceived, event); err != nil {
		respondError(w, http.StatusServiceUnavailable, errors.New("ingestion queue unavailable"))
		return
	}
	respondJSON(w, http.StatusAccepted, u)
}

func (a *API) handleListUploads(w http.ResponseWriter, r *http.Request) {
	owner, err := a.owner(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	list, err := a.deps.Store.ListUploads(r.Context(), owner)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (a *API) handleGetUpload(w http.ResponseWriter, r *http.Request) {
	u, err := a.upload(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, u)
}
