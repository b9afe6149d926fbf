// Package api serves the agroguard REST API.
package api

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"agroguard/pkg/bus"
	"agroguard/pkg/s3"
	"agroguard/pkg/store"
	"agroguard/services/alerting"
	"agroguard/services/ingest"
	"agroguard/services/maintenance"
	"agroguard/services/reports"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 14 * 24 * time.Hour
	presignURLExpiry  = 15 * time.Minute
	defaultRateLimit  = 100
	defaultReadings   = 100
	defaultRecent     = 5
)

// Deps are the collaborators behind the handlers. Objects may be nil, in which
// case uploads and report downloads answer 503.
type Deps struct {
	Store       store.Store
	Alerts      *alerting.Service
	Maintenance *maintenance.Planner
	Reports     *reports.Service
	Recorder    *ingest.Recorder
	Objects     s3.ObjectStore
	Bus         bus.Publisher
	Logger      zerolog.Logger
}

// Config controls runtime behaviour for the API handlers.
type Config struct {
	ServiceName        string
	AllowedOrigins     []string
	RateLimitPerMinute int
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	UploadURLTTL       time.Duration
	UploadBucket       string
}

// API wires dependencies and configuration for HTTP handlers.
type API struct {
	deps   Deps
	config Config
	now    func() time.Time
}

// New validates deps and applies defaults to cfg.
func New(deps Deps, cfg Config) (*API, error) {
	if deps.Store == nil {
		return nil, errors.New("store is required")
	}
	if deps.Alerts == nil {
		return nil, errors.New("alerting service is required")
	}
	if deps.Maintenance == nil {
		return nil, errors.New("maintenance planner is required")
	}
	if deps.Reports == nil {
		return nil, errors.New("reports service is required")
	}
	if deps.Recorder == nil {
		return nil, errors.New("recorder is required")
	}
	if deps.Bus == nil {
		deps.Bus = bus.Discard{}
	}

	if cfg.ServiceName == "" {
		cfg.ServiceName = "agroguard-api"
	}
	if cfg.RateLimitPerMinute <= 0 {
		cfg.RateLimitPerMinute = defaultRateLimit
	}
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = defaultAccessTTL
	}
	if cfg.RefreshTokenTTL <= 0 {
		cfg.RefreshTokenTTL = defaultRefreshTTL
	}
	if cfg.UploadURLTTL <= 0 {
		cfg.UploadURLTTL = presignURLExpiry
	}
	if deps.Objects != nil && cfg.UploadBucket == "" {
		return nil, errors.New("upload bucket is required")
	}

	return &API{deps: deps, config: cfg, now: func() time.Time { return time.Now().UTC() }}, nil
}

// SetClock replaces the time source used for token expiry.
func (a *API) SetClock(now func() time.Time) { a.now = now }
