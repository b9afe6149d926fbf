package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"agroguard/pkg/session"
	"agroguard/pkg/store"
	"agroguard/pkg/validate"
)

var (
	errInvalidCredentials = fmt.Errorf("%w: invalid email or password", errUnauthorized)
	errEmailTaken         = fmt.Errorf("%w: email already registered", store.ErrConflict)
)

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Company  string `json:"company"`
	Phone    string `json:"phone"`
}

var registerRules = validate.Table[registerRequest]{
	{Name: "email", Get: func(r registerRequest) any { return r.Email }, Rules: []validate.Rule{validate.Required(), validate.Email(), validate.MaxLen(254)}},
	{Name: "name", Get: func(r registerRequest) any { return r.Name }, Rules: []validate.Rule{validate.Required(), validate.MaxLen(120)}},
	{Name: "password", Get: func(r registerRequest) any { return r.Password }, Rules: []validate.Rule{validate.Required(), validate.MinLen(8), validate.MaxLen(72)}},
	{Name: "company", Get: func(r registerRequest) any { return r.Company }, Rules: []validate.Rule{validate.MaxLen(120)}},
	{Name: "phone", Get: func(r registerRequest) any { return r.Phone }, Rules: []validate.Rule{validate.MaxLen(30)}},
}

type profileRequest struct {
	Name               *string `json:"name"`
	Company            *string `json:"company"`
	Phone              *string `json:"phone"`
	EmailNotifications *bool   `json:"email_notifications"`
	SMSNotifications   *bool   `json:"sms_notifications"`
}

var profileRules = validate.Table[profileRequest]{
	{Name: "name", Get: func(r profileRequest) any { return r.Name }, Rules: []validate.Rule{validate.NotBlank(), validate.MaxLen(120)}},
	{Name: "company", Get: func(r profileRequest) any { return r.Company }, Rules: []validate.Rule{validate.MaxLen(120)}},
	{Name: "phone", Get: func(r profileRequest) any { return r.Phone }, Rules: []validate.Rule{validate.MaxLen(30)}},
}

type loginResponse struct {
	session.TokenPair
	User store.User `json:"user"`
}

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	req.Email = normalizeEmail(req.Email)
	if err := registerRules.Validate(req); err != nil {
		a.fail(w, r, err)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		a.fail(w, r, fmt.Errorf("hash password: %w", err))
		return
	}
	u := store.User{
		Email:              req.Email,
		Name:               strings.TrimSpace(req.Name),
		PasswordHash:       string(hash),
		Company:            strings.TrimSpace(req.Company),
		Phone:              strings.TrimSpace(req.Phone),
		EmailNotifications: true,
	}
	if err := a.deps.Store.CreateUser(r.Context(), &u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			err = errEmailTaken
		}
		a.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, u)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	u, err := a.deps.Store.UserByEmail(r.Context(), normalizeEmail(req.Email))
	if errors.Is(err, store.ErrNotFound) {
		a.fail(w, r, errInvalidCredentials)
		return
	}
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		a.fail(w, r, errInvalidCredentials)
		return
	}

	pair, err := session.NewPair(a.now(), a.config.AccessTokenTTL, a.config.RefreshTokenTTL)
	if err != nil {
		a.fail(w, r, fmt.Errorf("mint tokens: %w", err))
		return
	}
	s := store.Session{
		UserID:           u.ID,
		AccessHash:       session.Hash(pair.AccessToken),
		RefreshHash:      session.Hash(pair.RefreshToken),
		AccessExpiresAt:  pair.ExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}
	if err := a.deps.Store.CreateSession(r.Context(), &s); err != nil {
		a.fail(w, r, err)
		return
	}
	a.deps.Logger.Info().Str("user_id", u.ID.String()).Str("session_id", s.ID.String()).Msg("session started")
	respondJSON(w, http.StatusOK, loginResponse{TokenPair: pair, User: u})
}

// handleRefresh rotates both tokens of a live session.
func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		a.fail(w, r, session.ErrTokenInvalid)
		return
	}

	s, err := a.deps.Store.SessionByRefreshHash(r.Context(), session.Hash(req.RefreshToken))
	if errors.Is(err, store.ErrNotFound) {
		a.fail(w, r, session.ErrTokenInvalid)
		return
	}
	if err != nil {
		a.fail(w, r, err)
		return
	}
	now := a.now()
	if s.RevokedAt != nil {
		a.fail(w, r, session.ErrTokenInvalid)
		return
	}
	if !now.Before(s.RefreshExpiresAt) {
		a.fail(w, r, session.ErrTokenExpired)
		return
	}

	pair, err := session.NewPair(now, a.config.AccessTokenTTL, a.config.RefreshTokenTTL)
	if err != nil {
		a.fail(w, r, fmt.Errorf("mint tokens: %w", err))
		return
	}
	s.AccessHash = session.Hash(pair.AccessToken)
	s.RefreshHash = session.Hash(pair.RefreshToken)
	s.AccessExpiresAt = pair.ExpiresAt
	s.RefreshExpiresAt = pair.RefreshExpiresAt
	if err := a.deps.Store.UpdateSession(r.Context(), &s); err != nil {
		a.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, pair)
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// authenticate resolves the bearer token to a session and places it in the
// request context. Handlers read the owner only from there.
func (a *API) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			respondError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}
		stored, err := a.deps.Store.SessionByAccessHash(r.Context(), session.Hash(token))
		if errors.Is(err, store.ErrNotFound) {
			a.fail(w, r, session.ErrTokenInvalid)
			return
		}
		if err != nil {
			a.fail(w, r, err)
			return
		}
		if stored.RevokedAt != nil {
			a.fail(w, r, session.ErrTokenInvalid)
			return
		}
		if !a.now().Before(stored.AccessExpiresAt) {
			a.fail(w, r, session.ErrTokenExpired)
			return
		}
		u, err := a.deps.Store.UserByID(r.Context(), stored.UserID)
		if errors.Is(err, store.ErrNotFound) {
			a.fail(w, r, session.ErrTokenInvalid)
			return
		}
		if err != nil {
			a.fail(w, r, err)
			return
		}

		ctx := session.With(r.Context(), session.Session{
			ID:        stored.ID,
			UserID:    u.ID,
			Email:     u.Email,
			Name:      u.Name,
			ExpiresAt: stored.AccessExpiresAt,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// handleLogout revokes the session behind the presented access token.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, _ := bearerToken(r)
	s, err := a.deps.Store.SessionByAccessHash(r.Context(), session.Hash(token))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	now := a.now()
	s.RevokedAt = &now
	if err := a.deps.Store.UpdateSession(r.Context(), &s); err != nil {
		a.fail(w, r, err)
		return
	}
	a.deps.Logger.Info().Str("user_id", s.UserID.String()).Str("session_id", s.ID.String()).Msg("session revoked")
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	owner, err := a.owner(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	u, err := a.deps.Store.UserByID(r.Context(), owner)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, u)
}

func (a *API) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	owner, err := a.owner(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req profileRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if err := profileRules.Validate(req); err != nil {
		a.fail(w, r, err)
		return
	}

	u, err := a.deps.Store.UserByID(r.Context(), owner)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if req.Name != nil {
		u.Name = strings.TrimSpace(*req.Name)
	}
	if req.Company != nil {
		u.Company = strings.TrimSpace(*req.Company)
	}
	if req.Phone != nil {
		u.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.EmailNotifications != nil {
		u.EmailNotifications = *req.EmailNotifications
	}
	if req.SMSNotifications != nil {
		u.SMSNotifications = *req.SMSNotifications
	}
	if err := a.deps.Store.UpdateUser(r.Context(), &u); err != nil {
		a.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, u)
}
