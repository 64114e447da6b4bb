// Package openmeteo implements weather.Provider against the public Open-Meteo
// geocoding, forecast and historical archive APIs. No API key is required.
package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ventiglobe/ventiglobe/internal/provider/resilience"
	"github.com/ventiglobe/ventiglobe/internal/weather"
)

const (
	// ProviderName identifies this weather provider.
	ProviderName = "open-meteo"

	DefaultGeocodingURL = "https://geocoding-api.open-meteo.com/v1/search"
	DefaultForecastURL  = "https://api.open-meteo.com/v1/forecast"
	DefaultArchiveURL   = "https://archive-api.open-meteo.com/v1/archive"
)

// dailyFields are requested from both the forecast and the archive backend.
var dailyFields = []string{
	"temperature_2m_max",
	"temperature_2m_min",
	"precipitation_probability_max",
	"windspeed_10m_max",
	"relative_humidity_2m_mean",
	"pressure_msl_mean",
}

// ClientConfig holds configuration for the Open-Meteo client.
type ClientConfig struct {
	GeocodingURL string
	ForecastURL  string
	ArchiveURL   string

	// ForecastDays sets forecast_days on forecast requests. Zero leaves the
	// provider's default horizon.
	ForecastDays int

	// Geocoding, Forecast and Archive are the HTTP clients per endpoint.
	// If nil, resilient clients with defaults are created (10s timeout for
	// geocoding, 30s for weather data, no retries).
	Geocoding *resilience.Client
	Forecast  *resilience.Client
	Archive   *resilience.Client

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is an Open-Meteo API client.
type Client struct {
	geocodingURL string
	forecastURL  string
	archiveURL   string
	forecastDays int

	geocoding *resilience.Client
	forecast  *resilience.Client
	archive   *resilience.Client

	logger zerolog.Logger
}

// NewClient creates a new Open-Meteo client.
func NewClient(cfg ClientConfig) *Client {
	c := &Client{
		geocodingURL: orDefault(cfg.GeocodingURL, DefaultGeocodingURL),
		forecastURL:  orDefault(cfg.ForecastURL, DefaultForecastURL),
		archiveURL:   orDefault(cfg.ArchiveURL, DefaultArchiveURL),
		forecastDays: cfg.ForecastDays,
		geocoding:    cfg.Geocoding,
		forecast:     cfg.Forecast,
		archive:      cfg.Archive,
		logger:       cfg.Logger,
	}

	if c.geocoding == nil {
		gc := resilience.DefaultClientConfig("geocoding")
		gc.Timeout = 10 * time.Second
		c.geocoding = resilience.NewClient(gc)
	}
	if c.forecast == nil {
		c.forecast = resilience.NewClient(resilience.DefaultClientConfig("forecast"))
	}
	if c.archive == nil {
		c.archive = resilience.NewClient(resilience.DefaultClientConfig("archive"))
	}

	return c
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// SearchLocation looks up a place name and returns at most one match.
func (c *Client) SearchLocation(ctx context.Context, name string) ([]weather.Coordinates, error) {
	q := url.Values{}
	q.Set("name", name)
	q.Set("count", "1")
	q.Set("language", "en")
	q.Set("format", "json")

	var resp geocodingResponse
	if err := c.get(ctx, c.geocoding, c.geocodingURL, q, &resp); err != nil {
		return nil, err
	}

	matches := make([]weather.Coordinates, 0, len(resp.Results))
	for _, r := range resp.Results {
		matches = append(matches, weather.Coordinates{
			Latitude:  r.Latitude,
			Longitude: r.Longitude,
			Name:      r.Name,
			Country:   r.Country,
		})
	}

	c.logger.Debug().Str("query", name).Int("matches", len(matches)).Msg("geocoding search")
	return matches, nil
}

// GetArchive fetches observed daily values for [start, end].
func (c *Client) GetArchive(ctx context.Context, lat, lon float64, start, end time.Time) (*weather.DailySeries, error) {
	q := dailyQuery(lat, lon)
	q.Set("start_date", weather.FormatDate(start))
	q.Set("end_date", weather.FormatDate(end))

	var resp dailyResponse
	if err := c.get(ctx, c.archive, c.archiveURL, q, &resp); err != nil {
		return nil, err
	}
	return resp.toSeries(), nil
}

// GetForecast fetches daily forecast values starting today at the location.
func (c *Client) GetForecast(ctx context.Context, lat, lon float64) (*weather.DailySeries, error) {
	q := dailyQuery(lat, lon)
	if c.forecastDays > 0 {
		q.Set("forecast_days", strconv.Itoa(c.forecastDays))
	}

	var resp dailyResponse
	if err := c.get(ctx, c.forecast, c.forecastURL, q, &resp); err != nil {
		return nil, err
	}
	return resp.toSeries(), nil
}

func (c *Client) get(ctx context.Context, hc *resilience.Client, base string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+q.Encode(), http.NoBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// statusError includes Open-Meteo's "reason" when the body carries one.
func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var apiErr struct {
		Reason string `json:"reason"`
	}
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Reason != "" {
		return fmt.Errorf("unexpected status code: %d: %s", resp.StatusCode, apiErr.Reason)
	}
	return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
}

func dailyQuery(lat, lon float64) url.Values {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("daily", strings.Join(dailyFields, ","))
	q.Set("timezone", "auto")
	return q
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Open-Meteo API response structures.

type geocodingResponse struct {
	Results []struct {
		Name      string  `json:"name"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Country   string  `json:"country"`
	} `json:"results"`
}

type dailyResponse struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  string  `json:"timezone"`
	Daily     struct {
		Time                        []string   `json:"time"`
		Temperature2mMax            []*float64 `json:"temperature_2m_max"`
		Temperature2mMin            []*float64 `json:"temperature_2m_min"`
		PrecipitationProbabilityMax []*float64 `json:"precipitation_probability_max"`
		Windspeed10mMax             []*float64 `json:"windspeed_10m_max"`
		RelativeHumidity2mMean      []*float64 `json:"relative_humidity_2m_mean"`
		PressureMslMean             []*float64 `json:"pressure_msl_mean"`
	} `json:"daily"`
}

func (r *dailyResponse) toSeries() *weather.DailySeries {
	return &weather.DailySeries{
		Latitude:                 r.Latitude,
		Longitude:                r.Longitude,
		Timezone:                 r.Timezone,
		Time:                     r.Daily.Time,
		MaxTemperature:           r.Daily.Temperature2mMax,
		MinTemperature:           r.Daily.Temperature2mMin,
		PrecipitationProbability: r.Daily.PrecipitationProbabilityMax,
		MaxWindspeed:             r.Daily.Windspeed10mMax,
		Humidity:                 r.Daily.RelativeHumidity2mMean,
		Pressure:                 r.Daily.PressureMslMean,
	}
}
