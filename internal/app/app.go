// Package app assembles the VentiGlobe components from configuration. The
// API server, the worker and the CLI share this wiring.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/ventiglobe/ventiglobe/internal/auth"
	"github.com/ventiglobe/ventiglobe/internal/collector"
	"github.com/ventiglobe/ventiglobe/internal/config"
	"github.com/ventiglobe/ventiglobe/internal/database"
	"github.com/ventiglobe/ventiglobe/internal/dataset"
	"github.com/ventiglobe/ventiglobe/internal/metrics"
	"github.com/ventiglobe/ventiglobe/internal/model"
	"github.com/ventiglobe/ventiglobe/internal/pipeline"
	"github.com/ventiglobe/ventiglobe/internal/predict"
	"github.com/ventiglobe/ventiglobe/internal/provider/resilience"
	"github.com/ventiglobe/ventiglobe/internal/weather"
	"github.com/ventiglobe/ventiglobe/internal/weather/openmeteo"
)

// App holds the wired components.
type App struct {
	Config    *config.Config
	Logger    zerolog.Logger
	Metrics   *metrics.Collector
	Upstreams *resilience.Registry
	Weather   *weather.Service
	Datasets  dataset.Store
	Collector *collector.Collector
	Models    *model.FileStore
	Trainer   *model.Trainer
	Predictor *predict.Predictor
	Pipeline  *pipeline.Pipeline
	Tokens    *auth.JWTService

	pool *pgxpool.Pool
}

// New wires every component. A Postgres pool is opened only for the
// postgres dataset backend; Close releases it.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{
		Config:    cfg,
		Logger:    logger,
		Metrics:   metrics.New(),
		Upstreams: resilience.NewRegistry(),
	}

	a.Weather = weather.NewService(weather.ServiceConfig{
		Provider: openmeteo.NewClient(openmeteo.ClientConfig{
			GeocodingURL: cfg.OpenMeteo.GeocodingURL,
			ForecastURL:  cfg.OpenMeteo.ForecastURL,
			ArchiveURL:   cfg.OpenMeteo.ArchiveURL,
			Geocoding:    a.upstream("geocoding", cfg.OpenMeteo.GeocodingTimeout),
			Forecast:     a.upstream("forecast", cfg.OpenMeteo.Timeout),
			Archive:      a.upstream("archive", cfg.OpenMeteo.Timeout),
			Logger:       logger.With().Str("component", "openmeteo").Logger(),
		}),
		Logger: logger.With().Str("component", "weather").Logger(),
	})

	datasets, err := a.datasetStore(ctx)
	if err != nil {
		return nil, err
	}
	a.Datasets = datasets

	a.Collector = collector.New(collector.Config{
		Source:      a.Weather,
		Store:       a.Datasets,
		Logger:      logger.With().Str("component", "collector").Logger(),
		Metrics:     a.Metrics,
		Delay:       cfg.Collect.Delay,
		Concurrency: cfg.Collect.Concurrency,
		RateLimit:   cfg.Collect.RateLimit,
		Cities:      cfg.Collect.Cities,
	})

	a.Models = model.NewFileStore(model.FileStoreConfig{
		Dir:          cfg.Model.Dir,
		KeepVersions: cfg.Model.KeepVersions,
		Logger:       logger.With().Str("component", "models").Logger(),
	})

	forest := model.DefaultForestConfig()
	forest.NTrees = cfg.Model.Trees
	forest.MaxDepth = cfg.Model.MaxDepth
	forest.Seed = cfg.Model.Seed

	a.Trainer = model.NewTrainer(model.TrainerConfig{
		Store:   a.Models,
		Logger:  logger.With().Str("component", "trainer").Logger(),
		Metrics: a.Metrics,
		Forest:  forest,
	})

	a.Predictor = predict.New(predict.Config{
		Store:   a.Models,
		Logger:  logger.With().Str("component", "predictor").Logger(),
		Metrics: a.Metrics,
	})

	a.Pipeline = pipeline.New(pipeline.Config{
		Collector:     a.Collector,
		Datasets:      a.Datasets,
		Trainer:       a.Trainer,
		Predictor:     a.Predictor,
		Logger:        logger.With().Str("component", "pipeline").Logger(),
		Cities:        cfg.Collect.Cities,
		LookbackYears: cfg.Collect.LookbackYears,
		UpdateYears:   cfg.Collect.UpdateYears,
	})

	a.Tokens = auth.NewJWTService(auth.JWTConfig{
		SigningKey: cfg.Auth.SigningKey,
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
	})

	return a, nil
}

// upstream builds a resilient client reporting to the registry and metrics.
func (a *App) upstream(name string, timeout time.Duration) *resilience.Client {
	cc := resilience.DefaultClientConfig(name)
	if timeout > 0 {
		cc.Timeout = timeout
	}
	cc.MaxRetries = uint64(a.Config.OpenMeteo.MaxRetries) //nolint:gosec // validated non-negative
	cc.UserAgent = a.Config.OpenMeteo.UserAgent
	cc.Registry = a.Upstreams
	cc.Observer = a.Metrics.ObserveUpstream
	return resilience.NewClient(cc)
}

func (a *App) datasetStore(ctx context.Context) (dataset.Store, error) {
	if a.Config.Dataset.Backend != config.DatasetPostgres {
		return dataset.NewCSVStore(a.Config.Dataset.Path), nil
	}

	pool, err := database.Connect(ctx, a.Config.Database)
	if err != nil {
		return nil, fmt.Errorf("connect dataset database: %w", err)
	}
	store := dataset.NewPostgresStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure dataset schema: %w", err)
	}

	a.pool = pool
	a.Logger.Info().
		Str("host", a.Config.Database.Host).
		Int("port", a.Config.Database.Port).
		Str("database", a.Config.Database.Database).
		Msg("database connected")
	return store, nil
}

// Close releases the database pool, if any.
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}
