package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ventiglobe/ventiglobe/internal/collector"
	"github.com/ventiglobe/ventiglobe/internal/pipeline"
	"github.com/ventiglobe/ventiglobe/internal/weather"
)

// ErrUnknownJob is returned for job types the worker does not handle.
var ErrUnknownJob = errors.New("unknown job type")

// Pipeline is the work the jobs delegate to. *pipeline.Pipeline implements it.
type Pipeline interface {
	Retrain(ctx context.Context, cities []string, years int) (*pipeline.Outcome, error)
	Collect(ctx context.Context, cities []string, years int) (*collector.Result, error)
	Update(ctx context.Context) (*collector.Result, error)
	TrainFromStore(ctx context.Context) (*pipeline.Outcome, error)
}

// Prober resolves a city name. *weather.Service implements it.
type Prober interface {
	Resolve(ctx context.Context, name string) (weather.Coordinates, error)
}

// JobResult describes one finished job.
type JobResult struct {
	Type      JobType
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	// Records is the number of collected records, when the job collected.
	Records int

	// Version is the trained model version, when the job trained.
	Version string
}

// JobMetrics tracks job statistics.
type JobMetrics struct {
	Runs      int64
	Failures  int64
	Skipped   int64
	LastRunAt time.Time
	LastError string

	// ByType counts completed runs per job type.
	ByType map[JobType]int64
}

// RunnerConfig holds configuration for creating a Runner.
type RunnerConfig struct {
	Config   Config
	Pipeline Pipeline
	Prober   Prober
	Logger   zerolog.Logger
}

// Runner executes jobs against the pipeline.
type Runner struct {
	config   Config
	pipeline Pipeline
	prober   Prober
	logger   zerolog.Logger

	mu      sync.RWMutex
	metrics JobMetrics
}

// NewRunner creates a new job runner.
func NewRunner(cfg RunnerConfig) *Runner {
	return &Runner{
		config:   cfg.Config.withDefaults(),
		pipeline: cfg.Pipeline,
		prober:   cfg.Prober,
		logger:   cfg.Logger,
		metrics:  JobMetrics{ByType: make(map[JobType]int64)},
	}
}

// Run executes job. A job that finds another collection or training run
// active returns pipeline's ErrTrainingInProgress and counts as skipped.
func (r *Runner) Run(ctx context.Context, job Job) (*JobResult, error) {
	result := &JobResult{Type: job.Type, StartTime: time.Now()}
	logger := r.logger.With().Str("job_type", string(job.Type)).Logger()
	logger.Info().Strs("cities", job.Cities).Int("years", job.Years).Msg("starting job")

	timeout := r.config.Timeout
	if job.Type == JobHealthCheck {
		timeout = r.config.HealthCheckTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := r.dispatch(ctx, job, result)

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	r.record(job.Type, result.EndTime, err)

	if err != nil {
		logger.Error().Err(err).Dur("duration", result.Duration).Msg("job failed")
		return result, err
	}

	logger.Info().
		Dur("duration", result.Duration).
		Int("records", result.Records).
		Str("version", result.Version).
		Msg("job completed")
	return result, nil
}

func (r *Runner) dispatch(ctx context.Context, job Job, result *JobResult) error {
	switch job.Type {
	case JobRetrain:
		out, err := r.pipeline.Retrain(ctx, job.Cities, job.Years)
		if err != nil {
			return err
		}
		applyOutcome(result, out)
	case JobCollect:
		res, err := r.pipeline.Collect(ctx, job.Cities, job.Years)
		if err != nil {
			return err
		}
		result.Records = res.Records
	case JobUpdate:
		res, err := r.pipeline.Update(ctx)
		if err != nil {
			return err
		}
		result.Records = res.Records
	case JobTrain:
		out, err := r.pipeline.TrainFromStore(ctx)
		if err != nil {
			return err
		}
		applyOutcome(result, out)
	case JobHealthCheck:
		return r.healthCheck(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJob, job.Type)
	}
	return nil
}

func applyOutcome(result *JobResult, out *pipeline.Outcome) {
	if out == nil {
		return
	}
	if out.Collection != nil {
		result.Records = out.Collection.Records
	}
	if out.Artifact != nil {
		result.Version = out.Artifact.Version
	}
}

func (r *Runner) healthCheck(ctx context.Context) error {
	if r.prober == nil {
		return nil
	}
	coords, err := r.prober.Resolve(ctx, r.config.ProbeCity)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	r.logger.Debug().
		Str("city", coords.Name).
		Float64("lat", coords.Latitude).
		Float64("lon", coords.Longitude).
		Msg("health check passed")
	return nil
}

func (r *Runner) record(t JobType, at time.Time, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.metrics.Runs++
	r.metrics.LastRunAt = at
	switch {
	case err == nil:
		r.metrics.ByType[t]++
		r.metrics.LastError = ""
	case isBusy(err):
		r.metrics.Skipped++
	default:
		r.metrics.Failures++
		r.metrics.LastError = err.Error()
	}
}

// Metrics returns a copy of the current metrics.
func (r *Runner) Metrics() JobMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m := r.metrics
	m.ByType = make(map[JobType]int64, len(r.metrics.ByType))
	for k, v := range r.metrics.ByType {
		m.ByType[k] = v
	}
	return m
}
