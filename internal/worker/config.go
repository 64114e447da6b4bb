// Package worker runs VentiGlobe's background jobs: scheduled retraining and
// jobs triggered through Pub/Sub.
package worker

import (
	"time"
)

// JobType names a background job.
type JobType string

// Job types accepted by the worker.
const (
	// JobRetrain collects fresh history, trains and swaps the model.
	JobRetrain JobType = "retrain"

	// JobCollect replaces the dataset without training.
	JobCollect JobType = "collect"

	// JobUpdate re-collects the stored cities over the update window.
	JobUpdate JobType = "update"

	// JobTrain trains on the stored dataset.
	JobTrain JobType = "train"

	// JobHealthCheck geocodes a probe city to verify upstream connectivity.
	JobHealthCheck JobType = "health_check"
)

// Job is one unit of background work. Cities and Years override the
// pipeline defaults for retrain and collect.
type Job struct {
	Type   JobType  `json:"job_type"`
	Cities []string `json:"cities,omitempty"`
	Years  int      `json:"years,omitempty"`
}

// Config holds configuration for the job runner.
type Config struct {
	// Timeout bounds a collect, retrain or train job.
	// Default: 2 hours
	Timeout time.Duration

	// HealthCheckTimeout bounds a health check.
	// Default: 10 seconds
	HealthCheckTimeout time.Duration

	// ProbeCity is geocoded by health checks.
	// Default: "Warsaw"
	ProbeCity string
}

// DefaultConfig returns the default job runner configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:            2 * time.Hour,
		HealthCheckTimeout: 10 * time.Second,
		ProbeCity:          "Warsaw",
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.HealthCheckTimeout <= 0 {
		c.HealthCheckTimeout = d.HealthCheckTimeout
	}
	if c.ProbeCity == "" {
		c.ProbeCity = d.ProbeCity
	}
	return c
}
