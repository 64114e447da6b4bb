// Package config loads process configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/ventiglobe/ventiglobe/internal/database"
)

// Dataset backends.
const (
	DatasetCSV      = "csv"
	DatasetPostgres = "postgres"
)

// App holds process-level settings.
type App struct {
	Env  string `envconfig:"APP_ENV" default:"development"`
	Port string `envconfig:"APP_PORT" default:"8080"`

	// RequireTLS rejects plain HTTP requests outside development.
	RequireTLS bool `envconfig:"REQUIRE_TLS" default:"false"`
}

// Log controls the logger.
type Log struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"json"`

	// File enables rotated file output in addition to stdout.
	File       string `envconfig:"LOG_FILE"`
	MaxSizeMB  int    `envconfig:"LOG_MAX_SIZE_MB" default:"10"`
	MaxBackups int    `envconfig:"LOG_MAX_BACKUPS" default:"5"`
	MaxAgeDays int    `envconfig:"LOG_MAX_AGE_DAYS" default:"30"`
}

// Telemetry controls OpenTelemetry export.
type Telemetry struct {
	Enabled      bool    `envconfig:"OTEL_ENABLED" default:"false"`
	OTLPEndpoint string  `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT" default:"localhost:4317"`
	Insecure     bool    `envconfig:"OTEL_EXPORTER_OTLP_INSECURE" default:"true"`
	SampleRatio  float64 `envconfig:"OTEL_TRACES_SAMPLE_RATIO" default:"1"`
}

// OpenMeteo configures the upstream provider.
type OpenMeteo struct {
	GeocodingURL     string        `envconfig:"OPENMETEO_GEOCODING_URL" default:"https://geocoding-api.open-meteo.com/v1/search"`
	ForecastURL      string        `envconfig:"OPENMETEO_FORECAST_URL" default:"https://api.open-meteo.com/v1/forecast"`
	ArchiveURL       string        `envconfig:"OPENMETEO_ARCHIVE_URL" default:"https://archive-api.open-meteo.com/v1/archive"`
	Timeout          time.Duration `envconfig:"OPENMETEO_TIMEOUT" default:"30s"`
	GeocodingTimeout time.Duration `envconfig:"OPENMETEO_GEOCODING_TIMEOUT" default:"10s"`
	MaxRetries       int           `envconfig:"OPENMETEO_MAX_RETRIES" default:"0"`
	UserAgent        string        `envconfig:"OPENMETEO_USER_AGENT" default:"ventiglobe/1.0"`
}

// Dataset selects where the historical dataset lives.
type Dataset struct {
	Backend string `envconfig:"DATASET_BACKEND" default:"csv"`
	Path    string `envconfig:"DATASET_PATH" default:"data/historical_weather.csv"`
}

// Collect configures historical collection.
type Collect struct {
	Cities        []string      `envconfig:"COLLECT_CITIES" default:"Warsaw,Krakow,Gdansk,Wroclaw"`
	LookbackYears int           `envconfig:"COLLECT_YEARS" default:"10"`
	UpdateYears   int           `envconfig:"UPDATE_YEARS" default:"1"`
	Delay         time.Duration `envconfig:"COLLECT_DELAY" default:"2s"`
	Concurrency   int           `envconfig:"COLLECT_CONCURRENCY" default:"1"`
	RateLimit     float64       `envconfig:"COLLECT_RATE_LIMIT" default:"0"`
}

// Model configures training and artifact storage.
type Model struct {
	Dir          string `envconfig:"MODEL_DIR" default:"models"`
	KeepVersions int    `envconfig:"MODEL_KEEP_VERSIONS" default:"3"`
	Trees        int    `envconfig:"FOREST_TREES" default:"100"`
	MaxDepth     int    `envconfig:"FOREST_MAX_DEPTH" default:"10"`
	Seed         uint64 `envconfig:"FOREST_SEED" default:"42"`

	// BootstrapOnStart collects and trains at startup when nothing exists.
	BootstrapOnStart bool `envconfig:"BOOTSTRAP_ON_START" default:"true"`

	// ReloadInterval is how often the API checks MODEL_DIR for a model
	// trained by the worker or the CLI. Zero disables the check.
	ReloadInterval time.Duration `envconfig:"MODEL_RELOAD_INTERVAL" default:"1m"`
}

// Auth configures operator tokens.
type Auth struct {
	SigningKey string `envconfig:"JWT_SIGNING_KEY"`
	Issuer     string `envconfig:"JWT_ISSUER" default:"ventiglobe"`
	Audience   string `envconfig:"JWT_AUDIENCE" default:"ventiglobe-admin"`
}

// Worker configures background jobs.
type Worker struct {
	// RetrainSchedule is a cron expression; empty disables scheduled retraining.
	RetrainSchedule string `envconfig:"RETRAIN_SCHEDULE" default:"0 3 * * 0"`

	PubSubProjectID    string `envconfig:"PUBSUB_PROJECT_ID"`
	PubSubSubscription string `envconfig:"PUBSUB_SUBSCRIPTION" default:"ventiglobe-jobs"`
	PubSubMaxMessages  int    `envconfig:"PUBSUB_MAX_MESSAGES" default:"1"`
}

// Config is the full process configuration.
type Config struct {
	App       App
	Log       Log
	Telemetry Telemetry
	OpenMeteo OpenMeteo
	Dataset   Dataset
	Collect   Collect
	Model     Model
	Auth      Auth
	Worker    Worker
	Database  database.Config
}

// Load reads the given .env files (missing files are ignored; the first
// value set wins) and then the environment.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot.
func (c *Config) Validate() error {
	var errs []error

	switch c.Dataset.Backend {
	case DatasetCSV, DatasetPostgres:
	default:
		errs = append(errs, fmt.Errorf("DATASET_BACKEND must be %q or %q, got %q", DatasetCSV, DatasetPostgres, c.Dataset.Backend))
	}
	if c.Collect.LookbackYears < 1 {
		errs = append(errs, errors.New("COLLECT_YEARS must be at least 1"))
	}
	if c.Collect.UpdateYears < 1 {
		errs = append(errs, errors.New("UPDATE_YEARS must be at least 1"))
	}
	if c.Model.ReloadInterval < 0 {
		errs = append(errs, errors.New("MODEL_RELOAD_INTERVAL must not be negative"))
	}
	if c.Collect.Delay < 0 {
		errs = append(errs, errors.New("COLLECT_DELAY must not be negative"))
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		errs = append(errs, errors.New("OTEL_TRACES_SAMPLE_RATIO must be between 0 and 1"))
	}
	if c.OpenMeteo.MaxRetries < 0 {
		errs = append(errs, errors.New("OPENMETEO_MAX_RETRIES must not be negative"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// IsDevelopment reports whether the process runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}
