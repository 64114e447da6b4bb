package handler_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ventiglobe/ventiglobe/internal/model"
	"github.com/ventiglobe/ventiglobe/internal/pipeline"
	"github.com/ventiglobe/ventiglobe/internal/predict"
	"github.com/ventiglobe/ventiglobe/internal/weather"
)

var paris = weather.Coordinates{Latitude: 48.85341, Longitude: 2.3488, Name: "Paris", Country: "France"}

func notFound(name string) error {
	return &weather.Error{Kind: weather.KindNotFound, Cause: weather.CauseAbsent, Err: errors.New("no match for " + name)}
}

type fakeWeather struct {
	mu        sync.Mutex
	resolveFn func(name string) (weather.Coordinates, error)
	record    weather.DailyRecord
	records   []weather.DailyRecord
	fetchErr  error
	oneDates  []time.Time
	ranges    [][2]time.Time
}

func newFakeWeather() *fakeWeather {
	return &fakeWeather{
		resolveFn: func(name string) (weather.Coordinates, error) {
			if name == "Paris" {
				return paris, nil
			}
			return weather.Coordinates{}, notFound(name)
		},
	}
}

func (f *fakeWeather) Resolve(_ context.Context, name string) (weather.Coordinates, error) {
	return f.resolveFn(name)
}

func (f *fakeWeather) FetchOne(_ context.Context, c weather.Coordinates, date time.Time) (weather.DailyRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.oneDates = append(f.oneDates, date)
	if f.fetchErr != nil {
		return weather.DailyRecord{}, f.fetchErr
	}
	rec := f.record
	rec.Date = date
	rec.City, rec.Country, rec.Latitude, rec.Longitude = c.Name, c.Country, c.Latitude, c.Longitude
	return rec, nil
}

func (f *fakeWeather) FetchRange(_ context.Context, _ weather.Coordinates, start, end time.Time) ([]weather.DailyRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ranges = append(f.ranges, [2]time.Time{start, end})
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.records, nil
}

type predictCall struct {
	loc  predict.Location
	date time.Time
	days int
	cond *predict.Conditions
}

type fakePredictor struct {
	mu       sync.Mutex
	err      error
	ready    bool
	artifact *model.Artifact
	calls    []predictCall
}

func (f *fakePredictor) Predict(_ context.Context, loc predict.Location, date time.Time, cond *predict.Conditions) (predict.Prediction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, predictCall{loc: loc, date: date, cond: cond})
	if f.err != nil {
		return predict.Prediction{}, f.err
	}
	return prediction(loc, date, cond), nil
}

func (f *fakePredictor) PredictRange(_ context.Context, loc predict.Location, start time.Time, days int, cond *predict.Conditions) ([]predict.Prediction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, predictCall{loc: loc, date: start, days: days, cond: cond})
	if f.err != nil {
		return nil, f.err
	}
	out := make([]predict.Prediction, days)
	for i := range out {
		out[i] = prediction(loc, start.AddDate(0, 0, i), cond)
	}
	return out, nil
}

func (f *fakePredictor) Ready() bool { return f.ready }

func (f *fakePredictor) Current() *model.Artifact { return f.artifact }

func prediction(loc predict.Location, date time.Time, cond *predict.Conditions) predict.Prediction {
	return predict.Prediction{
		City:                    loc.Name,
		Date:                    date,
		PredictedMaxTemperature: 21.37,
		PredictedMinTemperature: 12.05,
		ModelVersion:            "v1",
		UsedPlaceholders:        cond == nil,
	}
}

type fakeTrainer struct {
	state model.State
}

func (f fakeTrainer) State() model.State { return f.state }

type fakeRetrainer struct {
	mu      sync.Mutex
	outcome *pipeline.Outcome
	err     error
	cities  []string
	years   int
	ctxErr  error
}

func (f *fakeRetrainer) Retrain(ctx context.Context, cities []string, years int) (*pipeline.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cities, f.years, f.ctxErr = cities, years, ctx.Err()
	if f.err != nil {
		return nil, f.err
	}
	return f.outcome, nil
}
