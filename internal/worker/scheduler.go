package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/ventiglobe/ventiglobe/internal/model"
)

// SchedulerConfig holds configuration for the scheduler.
type SchedulerConfig struct {
	// Spec is a standard five-field cron expression, e.g. "0 3 * * 0" for
	// Sundays at 03:00. Empty disables scheduling.
	Spec string

	// Job is run on every tick. Default: Job{Type: JobRetrain}
	Job Job

	Runner *Runner
	Logger zerolog.Logger
}

// Scheduler runs a job on a cron schedule. A tick that fires while the
// previous run is still going is skipped.
type Scheduler struct {
	cron   *cron.Cron
	spec   string
	logger zerolog.Logger
}

// NewScheduler validates the spec and registers the job. It returns a nil
// scheduler when Spec is empty.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Spec == "" {
		return nil, nil
	}
	if cfg.Job.Type == "" {
		cfg.Job.Type = JobRetrain
	}

	logger := cronLogger{cfg.Logger}
	c := cron.New(cron.WithChain(
		cron.Recover(logger),
		cron.SkipIfStillRunning(logger),
	), cron.WithLogger(logger))

	job := cfg.Job
	runner := cfg.Runner
	if _, err := c.AddFunc(cfg.Spec, func() {
		// Errors are logged by the runner.
		_, _ = runner.Run(context.Background(), job)
	}); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", cfg.Spec, err)
	}

	return &Scheduler{cron: c, spec: cfg.Spec, logger: cfg.Logger}, nil
}

// Start starts the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	entries := s.cron.Entries()
	event := s.logger.Info().Str("schedule", s.spec)
	if len(entries) > 0 {
		event = event.Time("next_run", entries[0].Next)
	}
	event.Msg("scheduler started")
}

// Stop stops scheduling and waits for a running job until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}

func isBusy(err error) bool {
	return errors.Is(err, model.ErrTrainingInProgress)
}
