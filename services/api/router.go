package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"agroguard/pkg/telemetry"
)

// Routes constructs the chi router containing all API endpoints.
func (a *API) Routes() (http.Handler, error) {
	if a == nil {
		return nil, errors.New("nil api")
	}

	allowed := a.config.AllowedOrigins
	if len(allowed) == 0 {
		allowed = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(telemetry.Middleware(a.config.ServiceName, a.deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowed,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           int((10 * time.Minute).Seconds()),
	}))
	r.Use(httprate.LimitByIP(a.config.RateLimitPerMinute, time.Minute))

	r.Get("/healthz", a.handleHealth)
	r.Get("/health", a.handleHealth)
	r.Get("/readyz", a.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/register", a.handleRegister)
		r.Post("/auth/login", a.handleLogin)
		r.Post("/auth/refresh", a.handleRefresh)

		r.Group(func(r chi.Router) {
			r.Use(a.authenticate)

			r.Post("/auth/logout", a.handleLogout)
			r.Get("/auth/me", a.handleMe)
			r.Put("/auth/me", a.handleUpdateMe)

			r.Route("/equipment", func(r chi.Router) {
				r.Get("/", a.handleListEquipment)
				r.Post("/", a.handleCreateEquipment)
				r.Get("/stats", a.handleEquipmentStats)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", a.handleGetEquipment)
					r.Put("/", a.handleUpdateEquipment)
					r.Get("/components", a.handleComponents)
					r.Get("/operational-data", a.handleListReadings)
					r.Post("/operational-data", a.handleAddReading)
					r.Get("/prediction", a.handlePrediction)
				})
			})

			r.Route("/alerts", func(r chi.Router) {
				r.Get("/", a.handleListAlerts)
				r.Get("/recent", a.handleRecentAlerts)
				r.Post("/generate", a.handleGenerateAlerts)
				r.Get("/{id}", a.handleGetAlert)
				r.Post("/{id}/acknowledge", a.handleAcknowledgeAlert)
				r.Post("/{id}/resolve", a.handleResolveAlert)
			})

			r.Route("/maintenance", func(r chi.Router) {
				r.Get("/", a.handleListMaintenance)
				r.Post("/", a.handleCreateMaintenance)
				r.Get("/upcoming", a.handleUpcomingMaintenance)
				r.Get("/stats", a.handleMaintenanceStats)
				r.Post("/schedule", a.handleScheduleMaintenance)
				r.Get("/{id}", a.handleGetMaintenance)
				r.Post("/{id}/start", a.handleStartMaintenance)
				r.Post("/{id}/complete", a.handleCompleteMaintenance)
				r.Post("/{id}/cancel", a.handleCancelMaintenance)
			})

			r.Route("/reports", func(r chi.Router) {
				r.Get("/", a.handleListReports)
				r.Post("/", a.handleCreateReport)
				r.Get("/{id}", a.handleGetReport)
				r.Get("/{id}/export", a.handleExportReport)
				r.Get("/{id}/download", a.handleDownloadReport)
				r.Post("/{id}/archive", a.handleArchiveReport)
			})

			r.Route("/uploads", func(r chi.Router) {
				r.Get("/", a.handleListUploads)
				r.Post("/", a.handleCreateUpload)
				r.Get("/{id}", a.handleGetUpload)
				r.Post("/{id}/complete", a.handleCompleteUpload)
			})
		})
	})

	return r, nil
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (a *API) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.deps.Store.Ping(ctx); err != nil {
		a.deps.Logger.Warn().Err(err).Msg("readiness check failed")
		respondError(w, http.StatusServiceUnavailable, errors.New("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
