package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"agroguard/pkg/lifecycle"
	"agroguard/pkg/risk"
	"agroguard/pkg/session"
	"agroguard/pkg/store"
	"agroguard/pkg/validate"
	"agroguard/services/reports"
)

var (
	errUnauthorized = errors.New("unauthorized")
	errBadRequest   = errors.New("bad request")
)

func decodeJSON(r *http.Request, dest any) error {
	if r.Body == nil {
		return errors.New("request body required")
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}

// decodeOptionalJSON is decodeJSON for endpoints whose body may be omitted.
func decodeOptionalJSON(r *http.Request, dest any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := decodeJSON(r, dest); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	respondJSON(w, status, map[string]any{"error": err.Error()})
}

func respondValidation(w http.ResponseWriter, errs validate.Errors) {
	respondJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"error":  "validation failed",
		"fields": errs,
	})
}

// fail maps service errors onto HTTP statuses. Unknown errors are logged and
// hidden from the client.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	var verrs validate.Errors
	var invalid *risk.InvalidParameterError
	switch {
	case errors.As(err, &verrs):
		respondValidation(w, verrs)
	case errors.As(err, &invalid):
		respondValidation(w, validate.Errors{fieldName(invalid.Field): {"must be a positive finite number"}})
	case errors.Is(err, store.ErrNegativeHours):
		respondValidation(w, validate.Errors{"hours_used": {"must not decrease"}})
	case errors.Is(err, reports.ErrUnknownType):
		respondValidation(w, validate.Errors{"report_type": {err.Error()}})
	case errors.Is(err, errBadRequest):
		respondError(w, http.StatusBadRequest, err)
	case errors.Is(err, errUnauthorized),
		errors.Is(err, session.ErrNoSession),
		errors.Is(err, session.ErrTokenInvalid),
		errors.Is(err, session.ErrTokenExpired):
		respondError(w, http.StatusUnauthorized, err)
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, err)
	case errors.Is(err, store.ErrForbidden):
		respondError(w, http.StatusForbidden, err)
	case errors.Is(err, store.ErrConflict), errors.Is(err, lifecycle.ErrInvalidTransition):
		respondError(w, http.StatusConflict, err)
	case errors.Is(err, reports.ErrExportUnavailable), errors.Is(err, errObjectsUnavailable):
		respondError(w, http.StatusServiceUnavailable, err)
	default:
		a.deps.Logger.Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
		respondError(w, http.StatusInternalServerError, errors.New("internal error"))
	}
}

func fieldName(f string) string {
	switch f {
	case "hoursUsed":
		return "hours_used"
	default:
		return f
	}
}

func (a *API) owner(r *http.Request) (uuid.UUID, error) {
	s, err := session.From(r.Context())
	if err != nil {
		return uuid.Nil, err
	}
	return s.Owner(), nil
}

func pathID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "id"))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid id %q", errBadRequest, raw)
	}
	return id, nil
}

// queryInt reads a non-negative integer parameter, falling back to def.
func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", errBadRequest, key)
	}
	return n, nil
}

// queryUUID reads an optional id parameter; absent yields uuid.Nil.
func queryUUID(r *http.Request, key string) (uuid.UUID, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s must be a valid id", errBadRequest, key)
	}
	return id, nil
}

// queryEnum reads an optional parameter restricted to allowed values.
func queryEnum(r *http.Request, key string, allowed ...string) (string, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return "", nil
	}
	for _, v := range allowed {
		if raw == v {
			return raw, nil
		}
	}
	return "", fmt.Errorf("%w: %s must be one of %s", errBadRequest, key, strings.Join(allowed, ", "))
}

func idString(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}

// ownedPath returns the caller and the {id} path parameter.
func (a *API) ownedPath(r *http.Request) (owner, id uuid.UUID, err error) {
	if owner, err = a.owner(r); err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	if id, err = pathID(r); err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return owner, id, nil
}
