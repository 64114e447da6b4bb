// Package pipeline ties collection, training and prediction reloads
// together for the API, the worker and the CLI.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ventiglobe/ventiglobe/internal/collector"
	"github.com/ventiglobe/ventiglobe/internal/dataset"
	"github.com/ventiglobe/ventiglobe/internal/model"
	"github.com/ventiglobe/ventiglobe/internal/predict"
)

// Config holds configuration for the pipeline.
type Config struct {
	Collector *collector.Collector
	Datasets  dataset.Store
	Trainer   *model.Trainer
	Predictor *predict.Predictor
	Logger    zerolog.Logger

	// Cities collected by Retrain and Bootstrap. Empty means the collector's
	// configured cities.
	Cities []string

	// LookbackYears for Retrain and Bootstrap. Default: 10
	LookbackYears int

	// UpdateYears for Update. Default: 1
	UpdateYears int
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		LookbackYears: 10,
		UpdateYears:   1,
	}
}

// Pipeline runs collect/train/reload sequences. Only one sequence runs at a
// time; a second caller gets model.ErrTrainingInProgress.
type Pipeline struct {
	collector *collector.Collector
	datasets  dataset.Store
	trainer   *model.Trainer
	predictor *predict.Predictor
	logger    zerolog.Logger
	cities    []string
	years     int
	update    int

	running sync.Mutex
}

// New creates a pipeline.
func New(cfg Config) *Pipeline {
	d := DefaultConfig()
	if cfg.LookbackYears < 1 {
		cfg.LookbackYears = d.LookbackYears
	}
	if cfg.UpdateYears < 1 {
		cfg.UpdateYears = d.UpdateYears
	}
	return &Pipeline{
		collector: cfg.Collector,
		datasets:  cfg.Datasets,
		trainer:   cfg.Trainer,
		predictor: cfg.Predictor,
		logger:    cfg.Logger,
		cities:    cfg.Cities,
		years:     cfg.LookbackYears,
		update:    cfg.UpdateYears,
	}
}

// Outcome is the result of a pipeline run.
type Outcome struct {
	Collection *collector.Result
	Artifact   *model.Artifact
	Duration   time.Duration
}

// Retrain collects fresh history, trains on it and reloads the predictor.
// cities and years fall back to the configured values when empty or zero.
func (p *Pipeline) Retrain(ctx context.Context, cities []string, years int) (*Outcome, error) {
	if !p.running.TryLock() {
		return nil, model.ErrTrainingInProgress
	}
	defer p.running.Unlock()

	return p.collectAndTrain(ctx, cities, years)
}

// Collect only refreshes the dataset.
func (p *Pipeline) Collect(ctx context.Context, cities []string, years int) (*collector.Result, error) {
	if !p.running.TryLock() {
		return nil, model.ErrTrainingInProgress
	}
	defer p.running.Unlock()

	if len(cities) == 0 {
		cities = p.cities
	}
	if years < 1 {
		years = p.years
	}
	return p.collector.Collect(ctx, cities, years)
}

// Update re-collects the cities of the stored dataset over the update
// window.
func (p *Pipeline) Update(ctx context.Context) (*collector.Result, error) {
	if !p.running.TryLock() {
		return nil, model.ErrTrainingInProgress
	}
	defer p.running.Unlock()

	return p.collector.Update(ctx, p.update)
}

// TrainFromStore trains on the persisted dataset without collecting.
func (p *Pipeline) TrainFromStore(ctx context.Context) (*Outcome, error) {
	if !p.running.TryLock() {
		return nil, model.ErrTrainingInProgress
	}
	defer p.running.Unlock()

	started := time.Now()
	art, err := p.train(ctx)
	if err != nil {
		return nil, err
	}
	return &Outcome{Artifact: art, Duration: time.Since(started)}, nil
}

// Bootstrap prepares a fresh deployment: with no dataset it collects and
// trains, with a dataset but no model it trains, otherwise it only loads
// the current model into the predictor.
func (p *Pipeline) Bootstrap(ctx context.Context) error {
	p.running.Lock()
	defer p.running.Unlock()

	if err := p.trainer.Init(ctx); err != nil {
		return err
	}

	exists, err := p.datasets.Exists(ctx)
	if err != nil {
		return fmt.Errorf("checking dataset: %w", err)
	}
	if !exists {
		p.logger.Info().Msg("no dataset found, collecting and training")
		_, err := p.collectAndTrain(ctx, nil, 0)
		return err
	}

	err = p.predictor.Reload(ctx)
	if errors.Is(err, model.ErrModelNotTrained) {
		p.logger.Info().Msg("dataset found but no model, training")
		_, err = p.train(ctx)
		return err
	}
	return err
}

// Sync picks up an artifact another process persisted to the shared model
// store. It reports whether the predictor switched versions. Sync is a no-op
// while this pipeline is collecting or training.
func (p *Pipeline) Sync(ctx context.Context) (bool, error) {
	if !p.running.TryLock() {
		return false, nil
	}
	defer p.running.Unlock()

	if err := p.trainer.Init(ctx); err != nil {
		return false, err
	}
	stored := p.trainer.State().Version
	if stored == "" {
		return false, nil
	}

	served := ""
	if cur := p.predictor.Current(); cur != nil {
		served = cur.Version
	}
	if served == stored {
		return false, nil
	}

	if err := p.predictor.Reload(ctx); err != nil {
		return false, fmt.Errorf("reload model %s: %w", stored, err)
	}
	p.logger.Info().
		Str("previous", served).
		Str("version", stored).
		Msg("loaded model persisted by another process")
	return true, nil
}

// Watch calls Sync every interval until ctx is done.
func (p *Pipeline) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.Sync(ctx); err != nil && !errors.Is(err, context.Canceled) {
				p.logger.Warn().Err(err).Msg("model sync failed")
			}
		}
	}
}

func (p *Pipeline) collectAndTrain(ctx context.Context, cities []string, years int) (*Outcome, error) {
	started := time.Now()

	if len(cities) == 0 {
		cities = p.cities
	}
	if years < 1 {
		years = p.years
	}

	result, err := p.collector.Collect(ctx, cities, years)
	if err != nil {
		return nil, fmt.Errorf("collect: %w", err)
	}

	art, err := p.train(ctx)
	if err != nil {
		return nil, err
	}

	out := &Outcome{Collection: result, Artifact: art, Duration: time.Since(started)}
	p.logger.Info().
		Str("version", art.Version).
		Int("records", result.Records).
		Dur("duration", out.Duration).
		Msg("retrain complete")
	return out, nil
}

func (p *Pipeline) train(ctx context.Context) (*model.Artifact, error) {
	ds, err := p.datasets.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}

	art, err := p.trainer.Train(ctx, ds.Records)
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}

	p.predictor.Use(art)
	return art, nil
}
