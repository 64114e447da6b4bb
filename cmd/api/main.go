// Package main provides the entrypoint for the VentiGlobe API server.
package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ventiglobe/ventiglobe/internal/api"
	"github.com/ventiglobe/ventiglobe/internal/api/middleware"
	"github.com/ventiglobe/ventiglobe/internal/app"
	"github.com/ventiglobe/ventiglobe/internal/config"
	"github.com/ventiglobe/ventiglobe/internal/logging"
	"github.com/ventiglobe/ventiglobe/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const (
	serviceName    = "ventiglobe-api"
	retrainTimeout = 30 * time.Minute
)

func main() {
	bootLog := bootLogger(os.Stderr)

	cfg, err := config.Load(".env")
	if err != nil {
		bootLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log, logCloser, err := logging.New(logging.Config{
		Service:    serviceName,
		Version:    Version,
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		bootLog.Fatal().Err(err).Msg("failed to initialize logging")
	}
	defer logCloser.Close() //nolint:errcheck // flushed on exit

	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.App.Env).
		Msg("starting VentiGlobe API")

	ctx := context.Background()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.App.Env,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.Telemetry.Enabled {
		log.Info().
			Str("otlp_endpoint", cfg.Telemetry.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	httpMetrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize application")
	}
	defer a.Close()

	if cfg.Auth.SigningKey == "" {
		log.Warn().Msg("JWT_SIGNING_KEY not set, admin endpoints will reject every request")
	}

	// The first collection takes minutes; serve health and readiness meanwhile.
	bootstrapCtx, cancelBootstrap := context.WithCancel(ctx)
	defer cancelBootstrap()
	go func() {
		bootstrap(bootstrapCtx, a, cfg.Model.BootstrapOnStart, log)
		// The worker retrains into the same MODEL_DIR.
		a.Pipeline.Watch(bootstrapCtx, cfg.Model.ReloadInterval)
	}()

	router := api.NewRouter(api.RouterConfig{
		Version:        Version,
		BuildTime:      BuildTime,
		Logger:         log,
		ServiceName:    serviceName,
		Metrics:        httpMetrics,
		Prometheus:     a.Metrics.Handler(),
		RequireTLS:     cfg.App.RequireTLS && !cfg.IsDevelopment(),
		Weather:        a.Weather,
		Predictor:      a.Predictor,
		Trainer:        a.Trainer,
		Retrainer:      a.Pipeline,
		Tokens:         a.Tokens,
		Upstreams:      a.Upstreams,
		RetrainTimeout: retrainTimeout,
	})

	server := &http.Server{
		Addr:        ":" + cfg.App.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// Retrain responds only when training is done.
		WriteTimeout: retrainTimeout + time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	cancelBootstrap()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return
	}

	log.Info().Msg("server stopped")
}

// bootstrap loads the persisted model, or builds one when enabled and
// nothing exists yet.
func bootstrap(ctx context.Context, a *app.App, enabled bool, log zerolog.Logger) {
	if !enabled {
		if err := a.Trainer.Init(ctx); err != nil {
			log.Error().Err(err).Msg("failed to read model state")
		}
		if err := a.Predictor.Reload(ctx); err != nil {
			log.Warn().Err(err).Msg("no model loaded, predictions unavailable until retrain")
		}
		return
	}

	started := time.Now()
	if err := a.Pipeline.Bootstrap(ctx); err != nil {
		log.Error().Err(err).Msg("bootstrap failed, predictions unavailable until retrain")
		return
	}
	log.Info().Dur("duration", time.Since(started)).Msg("bootstrap complete")
}

// bootLogger reports failures that happen before logging is configured.
func bootLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Str("service", serviceName).Logger()
}
