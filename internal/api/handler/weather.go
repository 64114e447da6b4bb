package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/ventiglobe/ventiglobe/internal/api/models"
	"github.com/ventiglobe/ventiglobe/internal/api/response"
	"github.com/ventiglobe/ventiglobe/internal/weather"
)

// MaxHistoricalDays bounds a single historical lookup.
const MaxHistoricalDays = 366 * 5

// WeatherService resolves cities and fetches daily weather.
// *weather.Service implements it.
type WeatherService interface {
	Resolve(ctx context.Context, name string) (weather.Coordinates, error)
	FetchOne(ctx context.Context, coords weather.Coordinates, date time.Time) (weather.DailyRecord, error)
	FetchRange(ctx context.Context, coords weather.Coordinates, start, end time.Time) ([]weather.DailyRecord, error)
}

// WeatherHandler handles forecast and historical lookups.
type WeatherHandler struct {
	weather WeatherService
	logger  zerolog.Logger
}

// NewWeatherHandler creates a new WeatherHandler.
func NewWeatherHandler(svc WeatherService, logger zerolog.Logger) *WeatherHandler {
	return &WeatherHandler{weather: svc, logger: logger}
}

// Forecast handles GET /v1/forecast/{city}?date=YYYY-MM-DD. Past dates come
// from the archive, today and later from the forecast.
func (h *WeatherHandler) Forecast(w http.ResponseWriter, r *http.Request) {
	city, ok := cityParam(w, r)
	if !ok {
		return
	}
	date, ok := requiredDate(w, r, "date")
	if !ok {
		return
	}

	coords, err := h.weather.Resolve(r.Context(), city)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	rec, err := h.weather.FetchOne(r.Context(), coords, date)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	response.JSON(w, r, http.StatusOK, models.ForecastResponse{
		City:    coords.Name,
		Country: coords.Country,
		Weather: toWeatherRecord(rec),
	})
}

// Historical handles GET /v1/historical/{city}?start_date=&end_date=. Every
// day the archive returns is included; missing days are not filled in.
func (h *WeatherHandler) Historical(w http.ResponseWriter, r *http.Request) {
	city, ok := cityParam(w, r)
	if !ok {
		return
	}
	start, ok := requiredDate(w, r, "start_date")
	if !ok {
		return
	}
	end, ok := requiredDate(w, r, "end_date")
	if !ok {
		return
	}
	if end.Before(start) {
		response.BadRequest(w, r, "end_date must not be before start_date", []models.FieldError{
			{Field: "end_date", Message: "must be on or after start_date", Code: models.CodeOutOfRange},
		})
		return
	}
	if end.Sub(start) > MaxHistoricalDays*24*time.Hour {
		response.BadRequest(w, r, "date range too long", []models.FieldError{
			{Field: "end_date", Message: "range must not exceed five years", Code: models.CodeOutOfRange},
		})
		return
	}

	coords, err := h.weather.Resolve(r.Context(), city)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	records, err := h.weather.FetchRange(r.Context(), coords, start, end)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if len(records) == 0 {
		response.NotFound(w, r, "historical weather data not available for this period")
		return
	}

	out := make([]models.WeatherRecord, len(records))
	for i, rec := range records {
		out[i] = toWeatherRecord(rec)
	}
	w.Header().Set("Cache-Control", "public, max-age=3600")
	response.JSON(w, r, http.StatusOK, out)
}

func toWeatherRecord(rec weather.DailyRecord) models.WeatherRecord {
	return models.WeatherRecord{
		Date:                     weather.FormatDate(rec.Date),
		MaxTemperature:           rec.MaxTemperature,
		MinTemperature:           rec.MinTemperature,
		PrecipitationProbability: rec.PrecipitationProbability,
		MaxWindspeed:             rec.MaxWindspeed,
		Humidity:                 rec.Humidity,
		Pressure:                 rec.Pressure,
		City:                     rec.City,
		Country:                  rec.Country,
		Latitude:                 rec.Latitude,
		Longitude:                rec.Longitude,
		Incomplete:               !rec.Valid(),
	}
}

func cityParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	city := strings.TrimSpace(chi.URLParam(r, "city"))
	if city == "" || len(city) > 100 {
		response.BadRequest(w, r, "invalid city", []models.FieldError{
			{Field: "city", Message: "must be 1 to 100 characters", Code: models.CodeInvalid},
		})
		return "", false
	}
	return city, true
}

func requiredDate(w http.ResponseWriter, r *http.Request, param string) (time.Time, bool) {
	raw := r.URL.Query().Get(param)
	if raw == "" {
		response.BadRequest(w, r, param+" is required", []models.FieldError{
			{Field: param, Message: "required, format YYYY-MM-DD", Code: models.CodeRequired},
		})
		return time.Time{}, false
	}
	return parseDate(w, r, param, raw)
}

// optionalDate returns fallback when the parameter is absent.
func optionalDate(w http.ResponseWriter, r *http.Request, param string, fallback time.Time) (time.Time, bool) {
	raw := r.URL.Query().Get(param)
	if raw == "" {
		return weather.CalendarDate(fallback), true
	}
	return parseDate(w, r, param, raw)
}

func parseDate(w http.ResponseWriter, r *http.Request, param, raw string) (time.Time, bool) {
	date, err := weather.ParseDate(raw)
	if err != nil {
		response.BadRequest(w, r, "invalid date format, use YYYY-MM-DD", []models.FieldError{
			{Field: param, Message: "format YYYY-MM-DD", Code: models.CodeInvalid},
		})
		return time.Time{}, false
	}
	return date, true
}
