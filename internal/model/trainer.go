package model

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ventiglobe/ventiglobe/internal/features"
	"github.com/ventiglobe/ventiglobe/internal/metrics"
	"github.com/ventiglobe/ventiglobe/internal/telemetry"
	"github.com/ventiglobe/ventiglobe/internal/weather"
)

// Phase is the trainer lifecycle state.
type Phase string

const (
	PhaseUntrained Phase = "untrained"
	PhaseTraining  Phase = "training"
	PhaseTrained   Phase = "trained"
)

// State is a snapshot of the trainer.
type State struct {
	Phase   Phase  `json:"phase"`
	Version string `json:"version,omitempty"`
}

// TrainerConfig holds configuration for the trainer.
type TrainerConfig struct {
	Store  Store
	Logger zerolog.Logger

	// Metrics is optional.
	Metrics *metrics.Collector

	// Forest is used for both targets. Default: DefaultForestConfig()
	Forest ForestConfig

	// Prepare controls feature preparation. Default: features.DefaultOptions()
	Prepare *features.Options

	Clock func() time.Time
}

// Trainer runs the training pipeline and saves the resulting artifact.
// At most one training run is active at a time.
type Trainer struct {
	store   Store
	logger  zerolog.Logger
	metrics *metrics.Collector
	forest  ForestConfig
	prepare features.Options
	now     func() time.Time

	run sync.Mutex

	mu      sync.RWMutex
	phase   Phase
	version string
}

// NewTrainer creates a trainer.
func NewTrainer(cfg TrainerConfig) *Trainer {
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}
	if cfg.Forest == (ForestConfig{}) {
		cfg.Forest = DefaultForestConfig()
	}
	opts := features.DefaultOptions()
	if cfg.Prepare != nil {
		opts = *cfg.Prepare
	}
	opts.Logger = cfg.Logger
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &Trainer{
		store:   cfg.Store,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		forest:  cfg.Forest,
		prepare: opts,
		now:     cfg.Clock,
		phase:   PhaseUntrained,
	}
}

// Init picks up an artifact persisted by an earlier process.
func (t *Trainer) Init(ctx context.Context) error {
	meta, err := t.store.Current(ctx)
	if errors.Is(err, ErrModelNotTrained) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read current model: %w", err)
	}

	t.mu.Lock()
	if t.phase != PhaseTraining {
		t.phase = PhaseTrained
	}
	t.version = meta.Version
	t.mu.Unlock()
	return nil
}

// State reports whether a model exists and whether training is running.
func (t *Trainer) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return State{Phase: t.phase, Version: t.version}
}

// Train waits for any running training and then trains on records.
func (t *Trainer) Train(ctx context.Context, records []weather.DailyRecord) (*Artifact, error) {
	t.run.Lock()
	defer t.run.Unlock()
	return t.train(ctx, records)
}

// TryTrain trains on records unless a run is already active, in which case
// it returns ErrTrainingInProgress immediately.
func (t *Trainer) TryTrain(ctx context.Context, records []weather.DailyRecord) (*Artifact, error) {
	if !t.run.TryLock() {
		return nil, ErrTrainingInProgress
	}
	defer t.run.Unlock()
	return t.train(ctx, records)
}

func (t *Trainer) train(ctx context.Context, records []weather.DailyRecord) (art *Artifact, err error) {
	ctx, span := telemetry.Tracer("ventiglobe/model").Start(ctx, "model.Train")
	defer span.End()

	started := t.now()
	prev := t.setPhase(PhaseTraining)
	examples := 0

	defer func() {
		if err != nil {
			t.setPhase(prev)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			t.metrics.TrainingFinished(t.now().Sub(started), examples, nil, err)
			t.logger.Error().Err(err).Msg("training failed")
			return
		}
		t.mu.Lock()
		t.phase = PhaseTrained
		t.version = art.Version
		t.mu.Unlock()
		t.metrics.TrainingFinished(t.now().Sub(started), examples, art.Metrics.AsMap(), nil)
	}()

	prepared, err := features.Prepare(records, t.prepare)
	if err != nil {
		return nil, err
	}
	examples = prepared.Stats.Examples
	span.SetAttributes(
		attribute.Int("examples", examples),
		attribute.Int("train", prepared.Train.Len()),
		attribute.Int("test", prepared.Test.Len()),
	)

	maxModel, err := FitForest(ctx, t.forest, prepared.Train.X, prepared.Train.YMax)
	if err != nil {
		return nil, fmt.Errorf("train max temperature model: %w", err)
	}
	minModel, err := FitForest(ctx, t.forest, prepared.Train.X, prepared.Train.YMin)
	if err != nil {
		return nil, fmt.Errorf("train min temperature model: %w", err)
	}

	predMax, err := maxModel.PredictAll(prepared.Test.X)
	if err != nil {
		return nil, fmt.Errorf("evaluate max temperature model: %w", err)
	}
	predMin, err := minModel.PredictAll(prepared.Test.X)
	if err != nil {
		return nil, fmt.Errorf("evaluate min temperature model: %w", err)
	}

	trainedAt := t.now().UTC()
	art = &Artifact{
		Version:   NewVersion(trainedAt),
		TrainedAt: trainedAt,
		MaxModel:  maxModel,
		MinModel:  minModel,
		Scaler:    prepared.Scaler,
		Metrics: Metrics{
			MaxTemp: Evaluate(prepared.Test.YMax, predMax),
			MinTemp: Evaluate(prepared.Test.YMin, predMin),
		},
		FeatureNames: append([]string(nil), features.FeatureNames...),
		Samples:      Samples{Train: prepared.Train.Len(), Test: prepared.Test.Len()},
	}

	if err := t.store.Save(ctx, art); err != nil {
		return nil, fmt.Errorf("save model: %w", err)
	}

	span.SetAttributes(attribute.String("version", art.Version))
	t.logger.Info().
		Str("version", art.Version).
		Int("train", art.Samples.Train).
		Int("test", art.Samples.Test).
		Float64("max_rmse", art.Metrics.MaxTemp.RMSE).
		Float64("max_r2", art.Metrics.MaxTemp.R2).
		Float64("min_rmse", art.Metrics.MinTemp.RMSE).
		Float64("min_r2", art.Metrics.MinTemp.R2).
		Dur("duration", t.now().Sub(started)).
		Msg("model trained")

	return art, nil
}

func (t *Trainer) setPhase(p Phase) Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev := t.phase
	t.phase = p
	return prev
}
