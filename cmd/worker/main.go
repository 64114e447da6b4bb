// Package main provides the entrypoint for the VentiGlobe worker, which runs
// scheduled retraining and jobs received over Pub/Sub.
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

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/ventiglobe/ventiglobe/internal/api/response"
	"github.com/ventiglobe/ventiglobe/internal/app"
	"github.com/ventiglobe/ventiglobe/internal/config"
	"github.com/ventiglobe/ventiglobe/internal/logging"
	"github.com/ventiglobe/ventiglobe/internal/telemetry"
	"github.com/ventiglobe/ventiglobe/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "ventiglobe-worker"

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

	log.Info().Str("build_time", BuildTime).Msg("starting VentiGlobe worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize application")
	}
	defer a.Close()

	if err := a.Trainer.Init(ctx); err != nil {
		log.Error().Err(err).Msg("failed to read model state")
	}

	runner := worker.NewRunner(worker.RunnerConfig{
		Config:   worker.DefaultConfig(),
		Pipeline: a.Pipeline,
		Prober:   a.Weather,
		Logger:   log.With().Str("component", "worker").Logger(),
	})

	scheduler, err := worker.NewScheduler(worker.SchedulerConfig{
		Spec:   cfg.Worker.RetrainSchedule,
		Job:    worker.Job{Type: worker.JobRetrain},
		Runner: runner,
		Logger: log.With().Str("component", "scheduler").Logger(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("invalid RETRAIN_SCHEDULE")
	}
	if scheduler != nil {
		scheduler.Start()
	} else {
		log.Info().Msg("scheduled retraining disabled")
	}

	var handler *worker.PubSubHandler
	if cfg.Worker.PubSubProjectID != "" {
		handler, err = worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:              cfg.Worker.PubSubProjectID,
			SubscriptionName:       cfg.Worker.PubSubSubscription,
			Dispatcher:             worker.NewDispatcher(runner, log),
			Logger:                 log.With().Str("component", "pubsub").Logger(),
			MaxOutstandingMessages: cfg.Worker.PubSubMaxMessages,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub handler")
		}
		go func() {
			if err := handler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("pubsub handler stopped")
			}
		}()
	} else {
		log.Info().Msg("PUBSUB_PROJECT_ID not set, pubsub jobs disabled")
	}

	// Cloud Run needs a listening port; it doubles as a health and metrics
	// endpoint.
	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      healthRouter(a, runner),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down worker")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if scheduler != nil {
		if err := scheduler.Stop(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("scheduled job still running at shutdown")
		}
	}
	if handler != nil {
		if err := handler.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close pubsub client")
		}
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}

// bootLogger reports failures that happen before logging is configured.
func bootLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Str("service", serviceName).Logger()
}

// healthRouter serves runner state and Prometheus metrics.
func healthRouter(a *app.App, runner *worker.Runner) http.Handler {
	mux := chi.NewRouter()
	mux.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		m := runner.Metrics()
		response.JSON(w, r, http.StatusOK, map[string]any{
			"status":      "healthy",
			"version":     Version,
			"model":       a.Trainer.State(),
			"runs":        m.Runs,
			"failures":    m.Failures,
			"skipped":     m.Skipped,
			"last_run_at": m.LastRunAt,
			"last_error":  m.LastError,
			"upstreams":   a.Upstreams.Overall(),
		})
	})
	mux.Handle("/metrics", a.Metrics.Handler())
	return mux
}
