// Package collector builds the historical training dataset by resolving a
// list of cities and fetching their archive range one after another.
package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/ventiglobe/ventiglobe/internal/dataset"
	"github.com/ventiglobe/ventiglobe/internal/metrics"
	"github.com/ventiglobe/ventiglobe/internal/telemetry"
	"github.com/ventiglobe/ventiglobe/internal/weather"
)

// ErrNoDataCollected is returned when no city produced any record. The store
// is left untouched in that case.
var ErrNoDataCollected = errors.New("no data collected")

// DefaultCities are collected when no city list is given and no dataset
// exists yet.
var DefaultCities = []string{"Warsaw", "Krakow", "Gdansk", "Wroclaw"}

// Source resolves cities and fetches archive ranges. *weather.Service
// implements it.
type Source interface {
	Resolve(ctx context.Context, name string) (weather.Coordinates, error)
	FetchRange(ctx context.Context, coords weather.Coordinates, start, end time.Time) ([]weather.DailyRecord, error)
}

// Config holds configuration for the collector.
type Config struct {
	Source Source
	Store  dataset.Store
	Logger zerolog.Logger

	// Metrics is optional.
	Metrics *metrics.Collector

	// Delay is the pause after every city except the last in sequential mode.
	// Default: 2 seconds
	Delay time.Duration

	// Concurrency > 1 enables the worker pool. Default: 1 (sequential).
	Concurrency int

	// RateLimit is the shared city rate in the worker pool, per second.
	// Default: 1 / Delay
	RateLimit float64

	// Cities are used by Update when no dataset exists yet.
	// Default: DefaultCities
	Cities []string

	// Clock overrides time.Now for the range end.
	Clock func() time.Time
}

// DefaultConfig returns the default collector configuration.
func DefaultConfig() Config {
	return Config{
		Delay:       2 * time.Second,
		Concurrency: 1,
		Cities:      DefaultCities,
	}
}

// Collector fetches historical data for a set of cities and replaces the
// persisted dataset with the result.
type Collector struct {
	source      Source
	store       dataset.Store
	logger      zerolog.Logger
	metrics     *metrics.Collector
	delay       time.Duration
	concurrency int
	rateLimit   float64
	cities      []string
	clock       func() time.Time
}

// New creates a collector.
func New(cfg Config) *Collector {
	if cfg.Delay < 0 {
		cfg.Delay = 0
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if len(cfg.Cities) == 0 {
		cfg.Cities = DefaultCities
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.RateLimit <= 0 && cfg.Delay > 0 {
		cfg.RateLimit = 1 / cfg.Delay.Seconds()
	}

	return &Collector{
		source:      cfg.Source,
		store:       cfg.Store,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		delay:       cfg.Delay,
		concurrency: cfg.Concurrency,
		rateLimit:   cfg.RateLimit,
		cities:      cfg.Cities,
		clock:       cfg.Clock,
	}
}

// CityResult is the outcome for one city.
type CityResult struct {
	City    string
	Records int

	// Error is set when the city was skipped.
	Error string
}

// Result summarizes a collection run.
type Result struct {
	Start     time.Time
	End       time.Time
	Cities    []CityResult
	Records   int
	StartedAt time.Time
	Duration  time.Duration
}

// Skipped returns the cities that produced no records.
func (r *Result) Skipped() []CityResult {
	var out []CityResult
	for _, c := range r.Cities {
		if c.Error != "" {
			out = append(out, c)
		}
	}
	return out
}

// Collect fetches [now - years*365 days, now] for every city in order and
// replaces the stored dataset. Cities that fail to resolve or fetch are
// skipped and logged. If nothing was collected it returns
// ErrNoDataCollected and the store is not written.
func (c *Collector) Collect(ctx context.Context, cities []string, years int) (*Result, error) {
	if years < 1 {
		return nil, fmt.Errorf("lookback must be at least one year, got %d", years)
	}
	if len(cities) == 0 {
		cities = c.cities
	}

	ctx, span := telemetry.Tracer("ventiglobe/collector").Start(ctx, "collector.Collect")
	defer span.End()
	span.SetAttributes(attribute.Int("cities", len(cities)), attribute.Int("years", years))

	now := c.clock()
	end := weather.CalendarDate(now)
	start := weather.CalendarDate(now.Add(-time.Duration(years) * 365 * 24 * time.Hour))

	result := &Result{
		Start:     start,
		End:       end,
		StartedAt: now,
	}

	c.logger.Info().
		Strs("cities", cities).
		Str("start", weather.FormatDate(start)).
		Str("end", weather.FormatDate(end)).
		Int("concurrency", c.concurrency).
		Msg("starting historical collection")

	var (
		batches [][]weather.DailyRecord
		err     error
	)
	if c.concurrency > 1 {
		batches, result.Cities, err = c.collectPool(ctx, cities, start, end)
	} else {
		batches, result.Cities, err = c.collectSequential(ctx, cities, start, end)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var records []weather.DailyRecord
	for _, b := range batches {
		records = append(records, b...)
	}
	result.Records = len(records)
	result.Duration = time.Since(result.StartedAt)
	c.metrics.CollectionFinished(result.Duration)

	if len(records) == 0 {
		c.logger.Error().Int("cities", len(cities)).Msg("no data collected, dataset left untouched")
		span.SetStatus(codes.Error, ErrNoDataCollected.Error())
		return result, ErrNoDataCollected
	}

	if err := c.store.Replace(ctx, dataset.New(records)); err != nil {
		span.RecordError(err)
		return result, fmt.Errorf("saving dataset: %w", err)
	}

	c.logger.Info().
		Int("records", result.Records).
		Int("skipped", len(result.Skipped())).
		Dur("duration", result.Duration).
		Msg("historical collection complete")

	return result, nil
}

// Update re-collects the cities already present in the stored dataset (or
// the configured cities when none exists) and replaces it.
func (c *Collector) Update(ctx context.Context, years int) (*Result, error) {
	cities := c.cities

	ds, err := c.store.Load(ctx)
	switch {
	case err == nil && len(ds.Cities()) > 0:
		cities = ds.Cities()
	case err != nil && !errors.Is(err, dataset.ErrNotFound):
		return nil, fmt.Errorf("loading dataset: %w", err)
	default:
		c.logger.Info().Strs("cities", cities).Msg("no existing dataset, using configured cities")
	}

	return c.Collect(ctx, cities, years)
}

func (c *Collector) collectSequential(ctx context.Context, cities []string, start, end time.Time) ([][]weather.DailyRecord, []CityResult, error) {
	batches := make([][]weather.DailyRecord, len(cities))
	results := make([]CityResult, len(cities))

	for i, city := range cities {
		batches[i], results[i] = c.collectCity(ctx, city, start, end)

		if i < len(cities)-1 && c.delay > 0 {
			if err := sleep(ctx, c.delay); err != nil {
				return nil, nil, err
			}
		}
	}
	return batches, results, ctx.Err()
}

type job struct {
	index int
	city  string
}

func (c *Collector) collectPool(ctx context.Context, cities []string, start, end time.Time) ([][]weather.DailyRecord, []CityResult, error) {
	batches := make([][]weather.DailyRecord, len(cities))
	results := make([]CityResult, len(cities))

	limit := rate.Inf
	if c.rateLimit > 0 {
		limit = rate.Limit(c.rateLimit)
	}
	limiter := rate.NewLimiter(limit, 1)

	jobs := make(chan job, len(cities))
	for i, city := range cities {
		jobs <- job{index: i, city: city}
	}
	close(jobs)

	var wg sync.WaitGroup
	for w := 0; w < c.concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				if err := limiter.Wait(ctx); err != nil {
					results[j.index] = CityResult{City: j.city, Error: err.Error()}
					continue
				}
				batches[j.index], results[j.index] = c.collectCity(ctx, j.city, start, end)
			}
		}()
	}
	wg.Wait()

	return batches, results, ctx.Err()
}

func (c *Collector) collectCity(ctx context.Context, city string, start, end time.Time) ([]weather.DailyRecord, CityResult) {
	res := CityResult{City: city}
	log := c.logger.With().Str("city", city).Logger()

	coords, err := c.source.Resolve(ctx, city)
	if err != nil {
		log.Warn().Err(err).Str("cause", string(weather.CauseOf(err))).Msg("could not resolve city, skipping")
		c.metrics.CitySkipped("geocoding")
		res.Error = err.Error()
		return nil, res
	}

	records, err := c.source.FetchRange(ctx, coords, start, end)
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch historical data, skipping")
		c.metrics.CitySkipped("fetch")
		res.Error = err.Error()
		return nil, res
	}

	for i := range records {
		// The requested name is kept so that Update can re-collect it.
		records[i].City = city
		records[i].Country = coords.Country
		records[i].Latitude = coords.Latitude
		records[i].Longitude = coords.Longitude
	}

	if len(records) == 0 {
		log.Warn().Msg("no records returned")
		c.metrics.CitySkipped("empty")
		res.Error = "no records returned"
		return nil, res
	}

	res.Records = len(records)
	c.metrics.CityCollected(city, len(records))
	log.Info().Int("records", len(records)).Msg("collected city")
	return records, res
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
