package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ventiglobe/ventiglobe/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, config.DatasetCSV, cfg.Dataset.Backend)
	assert.Equal(t, "data/historical_weather.csv", cfg.Dataset.Path)
	assert.Equal(t, []string{"Warsaw", "Krakow", "Gdansk", "Wroclaw"}, cfg.Collect.Cities)
	assert.Equal(t, 2*time.Second, cfg.Collect.Delay)
	assert.Equal(t, 10, cfg.Collect.LookbackYears)
	assert.Equal(t, 100, cfg.Model.Trees)
	assert.Equal(t, uint64(42), cfg.Model.Seed)
	assert.Equal(t, time.Minute, cfg.Model.ReloadInterval)
	assert.Equal(t, 30*time.Second, cfg.OpenMeteo.Timeout)
	assert.Equal(t, 10*time.Second, cfg.OpenMeteo.GeocodingTimeout)
	assert.Equal(t, 0, cfg.OpenMeteo.MaxRetries)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("COLLECT_CITIES", "Berlin,Prague")
	t.Setenv("COLLECT_DELAY", "500ms")
	t.Setenv("DATASET_BACKEND", "postgres")
	t.Setenv("DB_NAME", "weather")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"Berlin", "Prague"}, cfg.Collect.Cities)
	assert.Equal(t, 500*time.Millisecond, cfg.Collect.Delay)
	assert.Equal(t, config.DatasetPostgres, cfg.Dataset.Backend)
	assert.Equal(t, "weather", cfg.Database.Database)
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("MODEL_DIR=/var/lib/ventiglobe/models\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("MODEL_DIR") })

	cfg, err := config.Load(path, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/ventiglobe/models", cfg.Model.Dir)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown backend", "DATASET_BACKEND", "sqlite"},
		{"zero years", "COLLECT_YEARS", "0"},
		{"negative retries", "OPENMETEO_MAX_RETRIES", "-1"},
		{"bad log format", "LOG_FORMAT", "xml"},
		{"unparseable duration", "COLLECT_DELAY", "soon"},
		{"negative reload interval", "MODEL_RELOAD_INTERVAL", "-1m"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := config.Load()
			assert.Error(t, err)
		})
	}
}
