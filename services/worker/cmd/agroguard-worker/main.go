package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"agroguard/pkg/bus"
	"agroguard/pkg/config"
	"agroguard/pkg/db"
	"agroguard/pkg/render"
	"agroguard/pkg/s3"
	"agroguard/pkg/store/gormstore"
	"agroguard/pkg/telemetry"
	"agroguard/services/alerting"
	"agroguard/services/ingest"
	"agroguard/services/maintenance"
)

const serviceName = "agroguard-worker"

func main() {
	_ = godotenv.Load()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

// component is a background consumer started once and closed on shutdown.
type component interface {
	Start(ctx context.Context) error
	io.Closer
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := telemetry.NewLogger(serviceName, cfg.LogLevel, cfg.LogFormat, os.Stdout)

	if cfg.DemoMode {
		return errors.New("the worker needs PostgreSQL and NATS; DEMO_MODE is only supported by the API")
	}
	if cfg.NATSURL == "" {
		return errors.New("NATS_URL is required")
	}
	if !cfg.S3.Enabled() {
		return errors.New("S3_ENDPOINT is required")
	}

	shutdownTelemetry, err := telemetry.Init(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("telemetry shutdown")
		}
	}()

	pool, err := db.Open(ctx, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer pool.Close()
	orm, err := db.OpenORM(ctx, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("open orm: %w", err)
	}
	defer func() { _ = db.CloseORM(orm) }()
	st, err := gormstore.New(orm, pool)
	if err != nil {
		return err
	}

	b, err := bus.New(cfg.NATSURL)
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	defer b.Close()

	objects, err := s3.New(ctx, cfg.S3)
	if err != nil {
		return fmt.Errorf("init s3 client: %w", err)
	}

	components, err := buildComponents(cfg, st, b, objects, logger)
	if err != nil {
		return err
	}

	// Subscriptions live as long as the context they start with, and the
	// errgroup context ends when Wait returns.
	var g errgroup.Group
	for _, c := range components {
		g.Go(func() error { return c.Start(ctx) })
	}
	if err := g.Wait(); err != nil {
		closeAll(components, logger)
		return fmt.Errorf("start consumers: %w", err)
	}
	logger.Info().Int("consumers", len(components)).Msg("worker started")

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           opsMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server shutdown")
		}
	}()

	logger.Info().Str("addr", server.Addr).Msg("serving metrics")
	err = server.ListenAndServe()
	closeAll(components, logger)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func buildComponents(cfg config.Config, st *gormstore.Store, b *bus.Bus, objects s3.ObjectStore, logger zerolog.Logger) ([]component, error) {
	engine, err := render.New()
	if err != nil {
		return nil, fmt.Errorf("init templates: %w", err)
	}
	notifier, err := alerting.NewLogNotifier(logger, engine)
	if err != nil {
		return nil, err
	}
	alerts, err := alerting.New(st, b, notifier, logger)
	if err != nil {
		return nil, err
	}
	planner, err := maintenance.New(st, alerts, logger)
	if err != nil {
		return nil, err
	}
	recorder, err := ingest.NewRecorder(st, b, logger)
	if err != nil {
		return nil, err
	}

	watcher, err := alerting.NewWatcher(alerts, planner, b, logger.With().Str("component", "alerting").Logger())
	if err != nil {
		return nil, err
	}
	uploads, err := ingest.NewIngestor(st, objects, cfg.S3.Bucket, recorder, b, logger.With().Str("component", "ingest").Logger())
	if err != nil {
		return nil, err
	}
	components := []component{watcher, uploads}

	if cfg.MQTT.Broker != "" {
		listener, err := ingest.NewTelemetry(cfg.MQTT, st, recorder, logger.With().Str("component", "mqtt").Logger())
		if err != nil {
			return nil, err
		}
		components = append(components, listener)
	} else {
		logger.Info().Msg("MQTT_BROKER not set; telemetry listener disabled")
	}
	return components, nil
}

func closeAll(components []component, logger zerolog.Logger) {
	for _, c := range components {
		if err := c.Close(); err != nil {
			logger.Warn().Err(err).Msg("close consumer")
		}
	}
}

func opsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}
