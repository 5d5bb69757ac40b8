// Package main is the entry point for the apiforge-apps service.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/apiforge-io/apiforge-apps/api"
	"github.com/apiforge-io/apiforge-apps/internal/audit"
	"github.com/apiforge-io/apiforge-apps/internal/catalog"
	"github.com/apiforge-io/apiforge-apps/internal/config"
	"github.com/apiforge-io/apiforge-apps/internal/dbutil"
	"github.com/apiforge-io/apiforge-apps/internal/engine"
	"github.com/apiforge-io/apiforge-apps/internal/events"
	"github.com/apiforge-io/apiforge-apps/internal/gateway"
	"github.com/apiforge-io/apiforge-apps/internal/lifecycle"
	"github.com/apiforge-io/apiforge-apps/internal/notify"
	"github.com/apiforge-io/apiforge-apps/internal/otel"
	"github.com/apiforge-io/apiforge-apps/internal/server"
	"github.com/apiforge-io/apiforge-apps/internal/store"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.DevMode {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Str("service", "apps").Str("version", version).Logger()
	}

	logger := log.With().Str("component", "main").Logger()
	logger.Info().Str("version", version).Str("commit", commit).Str("build_date", buildDate).Msg("starting apiforge-apps")
	if cfg.DevMode {
		logger.Warn().Msg("DEV MODE ENABLED - authentication is bypassed; do not use in production")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownOTel, err := otel.Init(ctx, otel.Config{
		ServiceName:    "apiforge-apps",
		ServiceVersion: version,
		MetricsEnabled: cfg.MetricsEnabled,
		TracesEnabled:  cfg.TracesEnabled,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize OpenTelemetry")
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if shutdownErr := shutdownOTel(shutdownCtx); shutdownErr != nil {
			logger.Error().Err(shutdownErr).Msg("failed to shut down OpenTelemetry")
		}
	}()

	db, err := dbutil.Connect(ctx, dbutil.PoolConfig{DSN: cfg.DBDSN})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	logger.Info().Msg("connected to PostgreSQL")

	if _, schemaErr := db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS apps"); schemaErr != nil {
		logger.Fatal().Err(schemaErr).Msg("failed to ensure apps schema exists")
	}

	result, err := dbutil.RunMigrations(db, "migrations/postgres")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to run database migrations")
	}
	logger.Info().Uint("version", result.Version).Bool("dirty", result.Dirty).Msg("database migration complete")

	st := store.NewPostgresStore(db)

	var cat catalog.Catalog
	if cfg.CatalogBaseURL == "" {
		if !cfg.DevMode {
			logger.Warn().Msg("no catalog URL configured; using in-process catalog")
		}
		cat = catalog.NewMemory()
	} else {
		cat, err = catalog.NewHTTPCatalog(catalog.HTTPConfig{
			BaseURL: cfg.CatalogBaseURL,
			Token:   cfg.CatalogToken,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to build catalog client")
		}
	}

	var gw gateway.Client
	if cfg.GatewayBaseURL == "" {
		if !cfg.DevMode {
			logger.Warn().Msg("no gateway URL configured; using in-process gateway")
		}
		gw = gateway.NewMemory()
	} else {
		gw, err = gateway.NewHTTPGateway(gateway.HTTPConfig{
			BaseURL:          cfg.GatewayBaseURL,
			Token:            cfg.GatewayToken,
			RetryAttempts:    cfg.RetryAttempts,
			RetryBackoffBase: cfg.RetryBackoffBase,
			RetryBackoffMax:  cfg.RetryBackoffMax,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to build gateway client")
		}
	}

	auditLogger := audit.NewLogger(log.Logger)

	var notifier notify.Notifier
	if cfg.SMTPHost != "" {
		notifier = notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			From:     cfg.SMTPFrom,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
		}, log.Logger)
	} else {
		notifier = notify.NewLogMailer(log.Logger)
	}

	fixer := engine.New(cat, gw, engine.Config{
		Environments: cfg.Environments,
		Concurrency:  cfg.FixConcurrency,
		Auditor:      auditLogger,
		Logger:       log.Logger,
	})

	manager := lifecycle.NewManager(lifecycle.Config{
		Store:        st,
		Gateway:      gw,
		Fixer:        fixer,
		Notifier:     notifier,
		Audit:        auditLogger,
		Environments: cfg.Environments,
		FixDeadline:  cfg.FixDeadline,
		Logger:       log.Logger,
	})

	if cfg.NATSURL != "" {
		nc, natsErr := nats.Connect(cfg.NATSURL, nats.Name("apiforge-apps"))
		if natsErr != nil {
			logger.Fatal().Err(natsErr).Msg("failed to connect to NATS")
		}
		defer nc.Drain()

		relay := events.NewRelay(st, nc, events.RelayConfig{
			Interval: cfg.EventsRelayInterval,
			Logger:   log.Logger,
		})
		go relay.Run(ctx)
		logger.Info().Str("nats_url", cfg.NATSURL).Msg("events relay started")
	} else {
		logger.Warn().Msg("no NATS URL configured; lifecycle events stay in the outbox")
	}

	srv := server.New(manager, st, cfg, version, commit, buildDate, server.WithOpenAPISpec(api.OpenAPISpec))

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("HTTP server listening")
		if serveErr := httpServer.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
			errCh <- serveErr
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case serveErr := <-errCh:
		logger.Error().Err(serveErr).Msg("HTTP server error")
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Error().Err(shutdownErr).Msg("HTTP server shutdown error")
	}
	logger.Info().Msg("server stopped gracefully")
}
