package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"agroguard/pkg/bus"
	"agroguard/pkg/config"
	"agroguard/pkg/db"
	"agroguard/pkg/render"
	"agroguard/pkg/s3"
	"agroguard/pkg/store"
	"agroguard/pkg/store/fixtures"
	"agroguard/pkg/store/gormstore"
	"agroguard/pkg/store/memstore"
	"agroguard/pkg/telemetry"
	"agroguard/services/alerting"
	"agroguard/services/api"
	"agroguard/services/ingest"
	"agroguard/services/maintenance"
	"agroguard/services/reports"
)

const serviceName = "agroguard-api"

func main() {
	_ = godotenv.Load()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := telemetry.NewLogger(serviceName, cfg.LogLevel, cfg.LogFormat, os.Stdout)

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

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var pub bus.Publisher = bus.Discard{}
	if cfg.NATSURL != "" {
		b, err := bus.New(cfg.NATSURL)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer b.Close()
		pub = b
	} else {
		logger.Warn().Msg("NATS_URL not set; events are discarded and uploads cannot be ingested")
	}

	var objects s3.ObjectStore
	switch {
	case cfg.S3.Enabled():
		client, err := s3.New(ctx, cfg.S3)
		if err != nil {
			return fmt.Errorf("init s3 client: %w", err)
		}
		objects = client
	case cfg.DemoMode:
		objects = s3.NewMemory()
	default:
		logger.Warn().Msg("S3_ENDPOINT not set; uploads and report downloads are disabled")
	}

	engine, err := render.New()
	if err != nil {
		return fmt.Errorf("init templates: %w", err)
	}
	notifier, err := alerting.NewLogNotifier(logger, engine)
	if err != nil {
		return err
	}
	alerts, err := alerting.New(st, pub, notifier, logger)
	if err != nil {
		return err
	}
	planner, err := maintenance.New(st, alerts, logger)
	if err != nil {
		return err
	}
	reportOpts := reports.Options{URLTTL: cfg.UploadURLTTL}
	if objects != nil {
		reportOpts.Objects = objects
		reportOpts.Bucket = cfg.S3.Bucket
	}
	rep, err := reports.New(st, engine, reportOpts)
	if err != nil {
		return err
	}
	recorder, err := ingest.NewRecorder(st, pub, logger)
	if err != nil {
		return err
	}

	apiCfg := api.Config{
		ServiceName:        serviceName,
		AllowedOrigins:     cfg.AllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		AccessTokenTTL:     cfg.AccessTokenTTL,
		RefreshTokenTTL:    cfg.RefreshTokenTTL,
		UploadURLTTL:       cfg.UploadURLTTL,
	}
	if objects != nil {
		apiCfg.UploadBucket = cfg.S3.Bucket
	}
	a, err := api.New(api.Deps{
		Store:       st,
		Alerts:      alerts,
		Maintenance: planner,
		Reports:     rep,
		Recorder:    recorder,
		Objects:     objects,
		Bus:         pub,
		Logger:      logger,
	}, apiCfg)
	if err != nil {
		return fmt.Errorf("init api: %w", err)
	}
	handler, err := a.Routes()
	if err != nil {
		return fmt.Errorf("build routes: %w", err)
	}

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
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

	logger.Info().Str("addr", server.Addr).Bool("demo", cfg.DemoMode).Msg("listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// openStore returns the seeded in-memory store in demo mode and PostgreSQL
// otherwise.
func openStore(ctx context.Context, cfg config.Config, logger zerolog.Logger) (store.Store, func(), error) {
	if cfg.DemoMode {
		st := memstore.New()
		user, err := fixtures.Demo{}.Seed(ctx, st)
		if err != nil {
			return nil, nil, fmt.Errorf("seed demo data: %w", err)
		}
		logger.Info().Str("email", user.Email).Msg("demo mode: in-memory store seeded")
		return st, func() {}, nil
	}

	pool, err := db.Open(ctx, cfg.DBDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate database: %w", err)
	}
	orm, err := db.OpenORM(ctx, cfg.DBDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("open orm: %w", err)
	}
	st, err := gormstore.New(orm, pool)
	if err != nil {
		_ = db.CloseORM(orm)
		pool.Close()
		return nil, nil, err
	}
	return st, func() {
		if err := db.CloseORM(orm); err != nil {
			logger.Warn().Err(err).Msg("close orm")
		}
		pool.Close()
	}, nil
}
