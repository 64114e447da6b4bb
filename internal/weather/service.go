package weather

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DailySeries is a field-oriented daily response: one date axis and one
// parallel array per requested field. A nil slice means the provider did not
// return the field at all; a nil element means the value was null.
type DailySeries struct {
	Latitude  float64
	Longitude float64
	Timezone  string

	Time                     []string
	MaxTemperature           []*float64
	MinTemperature           []*float64
	PrecipitationProbability []*float64
	MaxWindspeed             []*float64
	Humidity                 []*float64
	Pressure                 []*float64
}

// Provider defines the interface for the upstream weather/geocoding provider.
type Provider interface {
	// SearchLocation returns geocoding matches for a name, best match first.
	SearchLocation(ctx context.Context, name string) ([]Coordinates, error)

	// GetArchive fetches completed daily observations for [start, end].
	GetArchive(ctx context.Context, lat, lon float64, start, end time.Time) (*DailySeries, error)

	// GetForecast fetches daily forecast values starting today.
	GetForecast(ctx context.Context, lat, lon float64) (*DailySeries, error)

	// Name returns the provider name for logging.
	Name() string
}

// Clock returns the current time. The calendar date of the returned value,
// in its own location, is "today" for backend routing.
type Clock func() time.Time

// ServiceConfig holds configuration for the weather service.
type ServiceConfig struct {
	// Provider is the upstream provider.
	Provider Provider

	// Logger for service operations.
	Logger zerolog.Logger

	// Clock overrides time.Now for routing decisions.
	Clock Clock
}

// Service resolves locations and fetches normalized daily records.
// Nothing is cached: every call goes to the provider.
type Service struct {
	provider Provider
	logger   zerolog.Logger
	clock    Clock
}

// NewService creates a new weather service.
func NewService(cfg ServiceConfig) *Service {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Service{
		provider: cfg.Provider,
		logger:   cfg.Logger,
		clock:    clock,
	}
}

// Resolve resolves a city name to coordinates. The provider's first match is
// authoritative. Both an empty result and a failed call yield ErrNotFound;
// the error's Cause tells them apart.
func (s *Service) Resolve(ctx context.Context, name string) (Coordinates, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Coordinates{}, invalidInput(errors.New("city name is required"))
	}

	s.logger.Debug().Str("city", name).Msg("resolving coordinates")

	matches, err := s.provider.SearchLocation(ctx, name)
	if err != nil {
		s.logger.Error().Err(err).Str("city", name).Msg("geocoding request failed")
		return Coordinates{}, notFound(CauseUpstream, fmt.Errorf("geocoding %q: %w", name, err))
	}
	if len(matches) == 0 {
		s.logger.Warn().Str("city", name).Msg("no geocoding match")
		return Coordinates{}, notFound(CauseAbsent, fmt.Errorf("no match for %q", name))
	}

	return matches[0], nil
}

// UsesArchive reports whether a single-date lookup for date goes to the
// archive backend: only dates strictly before today do.
func (s *Service) UsesArchive(date time.Time) bool {
	today := CalendarDate(s.clock())
	return CalendarDate(date).Before(today)
}

// FetchOne returns the record for one calendar date. Past dates are served
// by the archive, today and later by the forecast. Either a complete record
// is returned or ErrUnavailable; partial records are never emitted.
func (s *Service) FetchOne(ctx context.Context, coords Coordinates, date time.Time) (DailyRecord, error) {
	if err := validateCoordinates(coords.Latitude, coords.Longitude); err != nil {
		return DailyRecord{}, err
	}

	var (
		series  *DailySeries
		err     error
		backend = "forecast"
	)
	if s.UsesArchive(date) {
		backend = "archive"
		series, err = s.provider.GetArchive(ctx, coords.Latitude, coords.Longitude, date, date)
	} else {
		series, err = s.provider.GetForecast(ctx, coords.Latitude, coords.Longitude)
	}

	s.logger.Debug().
		Str("backend", backend).
		Str("date", FormatDate(date)).
		Float64("lat", coords.Latitude).
		Float64("lon", coords.Longitude).
		Msg("fetched daily series")

	if err != nil {
		s.logger.Error().Err(err).Str("backend", backend).Msg("failed to fetch weather")
		return DailyRecord{}, &Error{Kind: KindUpstream, Cause: CauseUpstream, Err: err}
	}

	idx := series.indexOf(FormatDate(date))
	if idx < 0 {
		return DailyRecord{}, unavailable(CauseAbsent, fmt.Errorf("date %s not in %s response", FormatDate(date), backend))
	}

	rec, complete := series.record(idx)
	if !complete {
		return DailyRecord{}, unavailable(CauseAbsent, fmt.Errorf("mandatory field missing for %s", FormatDate(date)))
	}

	tag(&rec, coords)
	return rec, nil
}

// FetchRange returns every date the archive reports for [start, end].
// The archive is used even when the range reaches into the future; days the
// backend omits are not filled in. Records whose mandatory values are null
// are returned with Valid() == false.
func (s *Service) FetchRange(ctx context.Context, coords Coordinates, start, end time.Time) ([]DailyRecord, error) {
	if err := validateCoordinates(coords.Latitude, coords.Longitude); err != nil {
		return nil, err
	}
	if CalendarDate(end).Before(CalendarDate(start)) {
		return nil, invalidInput(fmt.Errorf("end date %s before start date %s", FormatDate(end), FormatDate(start)))
	}

	series, err := s.provider.GetArchive(ctx, coords.Latitude, coords.Longitude, start, end)
	if err != nil {
		s.logger.Error().Err(err).
			Str("start", FormatDate(start)).
			Str("end", FormatDate(end)).
			Msg("failed to fetch historical weather")
		return nil, &Error{Kind: KindUpstream, Cause: CauseUpstream, Err: err}
	}

	records := make([]DailyRecord, 0, len(series.Time))
	for i := range series.Time {
		rec, complete := series.record(i)
		if rec.Date.IsZero() {
			continue
		}
		if !complete {
			rec.MarkIncomplete()
		}
		tag(&rec, coords)
		records = append(records, rec)
	}

	s.logger.Debug().
		Int("records", len(records)).
		Str("start", FormatDate(start)).
		Str("end", FormatDate(end)).
		Msg("fetched historical weather")

	return records, nil
}

// Name returns the underlying provider name.
func (s *Service) Name() string {
	return s.provider.Name()
}

func (d *DailySeries) indexOf(date string) int {
	for i, t := range d.Time {
		if t == date {
			return i
		}
	}
	return -1
}

// record assembles the record at idx and reports whether every mandatory
// value was present.
func (d *DailySeries) record(idx int) (DailyRecord, bool) {
	date, err := time.Parse(DateLayout, d.Time[idx])
	if err != nil {
		return DailyRecord{}, false
	}

	rec := DailyRecord{
		Date:                     date,
		PrecipitationProbability: at(d.PrecipitationProbability, idx),
		Humidity:                 at(d.Humidity, idx),
		Pressure:                 at(d.Pressure, idx),
	}

	complete := true
	if v := at(d.MaxTemperature, idx); v != nil {
		rec.MaxTemperature = *v
	} else {
		complete = false
	}
	if v := at(d.MinTemperature, idx); v != nil {
		rec.MinTemperature = *v
	} else {
		complete = false
	}
	if v := at(d.MaxWindspeed, idx); v != nil {
		rec.MaxWindspeed = *v
	} else {
		complete = false
	}

	return rec, complete
}

func at(values []*float64, idx int) *float64 {
	if idx >= len(values) || values[idx] == nil {
		return nil
	}
	v := *values[idx]
	return &v
}

func tag(rec *DailyRecord, coords Coordinates) {
	rec.City = coords.Name
	rec.Country = coords.Country
	rec.Latitude = coords.Latitude
	rec.Longitude = coords.Longitude
}

// validateCoordinates checks if coordinates are valid.
func validateCoordinates(lat, lon float64) error {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return invalidInput(fmt.Errorf("coordinates out of range: %.4f,%.4f", lat, lon))
	}
	return nil
}
