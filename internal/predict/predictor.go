// Package predict serves next-day temperature predictions from the current
// model artifact.
package predict

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ventiglobe/ventiglobe/internal/features"
	"github.com/ventiglobe/ventiglobe/internal/metrics"
	"github.com/ventiglobe/ventiglobe/internal/model"
	"github.com/ventiglobe/ventiglobe/internal/telemetry"
	"github.com/ventiglobe/ventiglobe/internal/weather"
)

// MaxRangeDays bounds PredictRange.
const MaxRangeDays = 14

// Location is the place a prediction is made for.
type Location struct {
	Name      string
	Latitude  float64
	Longitude float64
}

// Conditions are the current-day values fed to the model.
type Conditions struct {
	MaxTemperature float64 `json:"max_temperature"`
	MinTemperature float64 `json:"min_temperature"`
	MaxWindspeed   float64 `json:"max_windspeed"`
	Humidity       float64 `json:"humidity"`
	Pressure       float64 `json:"pressure"`
}

// PlaceholderConditions are used when the caller supplies none. They are a
// fixed approximation, not an observation.
var PlaceholderConditions = Conditions{
	MaxTemperature: 20.0,
	MinTemperature: 15.0,
	MaxWindspeed:   15.0,
	Humidity:       65.0,
	Pressure:       1013.0,
}

// Prediction is the model output for one location and date.
type Prediction struct {
	City                    string    `json:"city"`
	Date                    time.Time `json:"-"`
	PredictedMaxTemperature float64   `json:"predicted_max_temperature"`
	PredictedMinTemperature float64   `json:"predicted_min_temperature"`
	ModelVersion            string    `json:"model_version"`
	UsedPlaceholders        bool      `json:"used_placeholders"`
}

// Config holds configuration for the predictor.
type Config struct {
	Store  model.Store
	Logger zerolog.Logger

	// Metrics is optional.
	Metrics *metrics.Collector
}

// Predictor reads the current artifact through an atomic pointer. Reload
// swaps in a new artifact; in-flight predictions keep the one they loaded.
type Predictor struct {
	store   model.Store
	logger  zerolog.Logger
	metrics *metrics.Collector
	current atomic.Pointer[model.Artifact]
}

// New creates a predictor. Call Reload to pick up a persisted artifact.
func New(cfg Config) *Predictor {
	return &Predictor{
		store:   cfg.Store,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
}

// Reload loads the store's current artifact. When none exists the predictor
// keeps serving whatever it had and ErrModelNotTrained is returned.
func (p *Predictor) Reload(ctx context.Context) error {
	a, err := p.store.Load(ctx)
	if err != nil {
		return err
	}
	p.Use(a)
	return nil
}

// Use installs a as the current artifact.
func (p *Predictor) Use(a *model.Artifact) {
	old := p.current.Swap(a)
	if old == nil || old.Version != a.Version {
		p.logger.Info().Str("version", a.Version).Msg("model loaded")
	}
}

// Current returns the artifact predictions are served from, or nil.
func (p *Predictor) Current() *model.Artifact {
	return p.current.Load()
}

// Ready reports whether a model is loaded.
func (p *Predictor) Ready() bool {
	return p.current.Load() != nil
}

// Predict returns the predicted maximum and minimum temperature for date at
// loc. Calendar features come from date; cond supplies the weather inputs,
// or PlaceholderConditions when nil.
func (p *Predictor) Predict(ctx context.Context, loc Location, date time.Time, cond *Conditions) (Prediction, error) {
	_, span := telemetry.Tracer("ventiglobe/predict").Start(ctx, "predict.Predict")
	defer span.End()

	a := p.current.Load()
	if a == nil {
		return Prediction{}, model.ErrModelNotTrained
	}
	if err := validate(loc); err != nil {
		return Prediction{}, err
	}

	pred, err := predict(a, loc, weather.CalendarDate(date), cond)
	if err != nil {
		return Prediction{}, err
	}

	span.SetAttributes(
		attribute.String("city", loc.Name),
		attribute.String("model_version", a.Version),
		attribute.Bool("placeholders", pred.UsedPlaceholders),
	)
	p.metrics.PredictionServed(pred.UsedPlaceholders)
	return pred, nil
}

// PredictRange predicts days consecutive dates starting at start, all from
// the same artifact and conditions.
func (p *Predictor) PredictRange(ctx context.Context, loc Location, start time.Time, days int, cond *Conditions) ([]Prediction, error) {
	_, span := telemetry.Tracer("ventiglobe/predict").Start(ctx, "predict.PredictRange")
	defer span.End()

	if days < 1 || days > MaxRangeDays {
		return nil, &weather.Error{Kind: weather.KindInvalidInput, Err: fmt.Errorf("days must be between 1 and %d", MaxRangeDays)}
	}
	a := p.current.Load()
	if a == nil {
		return nil, model.ErrModelNotTrained
	}
	if err := validate(loc); err != nil {
		return nil, err
	}

	start = weather.CalendarDate(start)
	out := make([]Prediction, 0, days)
	for i := 0; i < days; i++ {
		pred, err := predict(a, loc, start.AddDate(0, 0, i), cond)
		if err != nil {
			return nil, err
		}
		p.metrics.PredictionServed(pred.UsedPlaceholders)
		out = append(out, pred)
	}
	span.SetAttributes(attribute.Int("days", days), attribute.String("model_version", a.Version))
	return out, nil
}

func predict(a *model.Artifact, loc Location, date time.Time, cond *Conditions) (Prediction, error) {
	placeholders := cond == nil
	c := PlaceholderConditions
	if cond != nil {
		c = *cond
	}

	row := features.Inputs{
		Latitude:       loc.Latitude,
		Longitude:      loc.Longitude,
		Date:           date,
		MaxTemperature: c.MaxTemperature,
		MinTemperature: c.MinTemperature,
		MaxWindspeed:   c.MaxWindspeed,
		Humidity:       c.Humidity,
		Pressure:       c.Pressure,
	}.Vector()

	scaled, err := a.Scaler.TransformRow(row)
	if err != nil {
		return Prediction{}, fmt.Errorf("scale features: %w", err)
	}
	maxT, err := a.MaxModel.Predict(scaled)
	if err != nil {
		return Prediction{}, fmt.Errorf("predict max temperature: %w", err)
	}
	minT, err := a.MinModel.Predict(scaled)
	if err != nil {
		return Prediction{}, fmt.Errorf("predict min temperature: %w", err)
	}

	return Prediction{
		City:                    loc.Name,
		Date:                    date,
		PredictedMaxTemperature: round2(maxT),
		PredictedMinTemperature: round2(minT),
		ModelVersion:            a.Version,
		UsedPlaceholders:        placeholders,
	}, nil
}

func validate(loc Location) error {
	if loc.Latitude < -90 || loc.Latitude > 90 || loc.Longitude < -180 || loc.Longitude > 180 {
		return &weather.Error{Kind: weather.KindInvalidInput, Err: errors.New("coordinates out of range")}
	}
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
