package handler

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/ventiglobe/ventiglobe/internal/api/models"
	"github.com/ventiglobe/ventiglobe/internal/api/response"
	"github.com/ventiglobe/ventiglobe/internal/predict"
	"github.com/ventiglobe/ventiglobe/internal/weather"
)

// DefaultRangeDays is the length of a week prediction.
const DefaultRangeDays = 7

// Resolver resolves a city name to coordinates.
type Resolver interface {
	Resolve(ctx context.Context, name string) (weather.Coordinates, error)
}

// Predictor serves model predictions. *predict.Predictor implements it.
type Predictor interface {
	Predict(ctx context.Context, loc predict.Location, date time.Time, cond *predict.Conditions) (predict.Prediction, error)
	PredictRange(ctx context.Context, loc predict.Location, start time.Time, days int, cond *predict.Conditions) ([]predict.Prediction, error)
}

// conditionParams are the optional current-condition query parameters.
// Either all or none must be given.
var conditionParams = []string{"max_temperature", "min_temperature", "max_windspeed", "humidity", "pressure"}

// PredictHandler handles temperature predictions.
type PredictHandler struct {
	resolver  Resolver
	predictor Predictor
	logger    zerolog.Logger
	now       func() time.Time
}

// NewPredictHandler creates a new PredictHandler. A nil clock uses time.Now.
func NewPredictHandler(resolver Resolver, predictor Predictor, logger zerolog.Logger, clock func() time.Time) *PredictHandler {
	if clock == nil {
		clock = time.Now
	}
	return &PredictHandler{resolver: resolver, predictor: predictor, logger: logger, now: clock}
}

// Predict handles GET /v1/predict/{city}?date=YYYY-MM-DD. date defaults to
// today. Without condition parameters fixed placeholder values are used and
// the response says so.
func (h *PredictHandler) Predict(w http.ResponseWriter, r *http.Request) {
	city, ok := cityParam(w, r)
	if !ok {
		return
	}
	date, ok := optionalDate(w, r, "date", h.now())
	if !ok {
		return
	}
	cond, ok := conditions(w, r)
	if !ok {
		return
	}

	loc, err := h.locate(r.Context(), city)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	p, err := h.predictor.Predict(r.Context(), loc, date, cond)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	response.JSON(w, r, http.StatusOK, toPredictionResponse(p))
}

// PredictWeek handles GET /v1/predict/{city}/week?start=&days=. start
// defaults to today and days to 7.
func (h *PredictHandler) PredictWeek(w http.ResponseWriter, r *http.Request) {
	city, ok := cityParam(w, r)
	if !ok {
		return
	}
	start, ok := optionalDate(w, r, "start", h.now())
	if !ok {
		return
	}
	days := DefaultRangeDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > predict.MaxRangeDays {
			response.BadRequest(w, r, "invalid days", []models.FieldError{
				{Field: "days", Message: "must be between 1 and " + strconv.Itoa(predict.MaxRangeDays), Code: models.CodeOutOfRange},
			})
			return
		}
		days = n
	}
	cond, ok := conditions(w, r)
	if !ok {
		return
	}

	loc, err := h.locate(r.Context(), city)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	preds, err := h.predictor.PredictRange(r.Context(), loc, start, days, cond)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	out := models.PredictionRangeResponse{City: loc.Name, Predictions: make([]models.PredictionResponse, len(preds))}
	for i, p := range preds {
		out.Predictions[i] = toPredictionResponse(p)
	}
	response.JSON(w, r, http.StatusOK, out)
}

func (h *PredictHandler) locate(ctx context.Context, city string) (predict.Location, error) {
	coords, err := h.resolver.Resolve(ctx, city)
	if err != nil {
		return predict.Location{}, err
	}
	name := coords.Name
	if name == "" {
		name = city
	}
	return predict.Location{Name: name, Latitude: coords.Latitude, Longitude: coords.Longitude}, nil
}

// conditions parses the optional condition parameters. It returns nil when
// none are present.
func conditions(w http.ResponseWriter, r *http.Request) (*predict.Conditions, bool) {
	q := r.URL.Query()
	values := make([]float64, len(conditionParams))
	var present int
	var errs []models.FieldError
	for i, name := range conditionParams {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		present++
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			errs = append(errs, models.FieldError{Field: name, Message: "must be a number", Code: models.CodeInvalid})
			continue
		}
		values[i] = v
	}
	if present == 0 {
		return nil, true
	}
	if present < len(conditionParams) {
		for _, name := range conditionParams {
			if q.Get(name) == "" {
				errs = append(errs, models.FieldError{Field: name, Message: "required when any condition is given", Code: models.CodeIncomplete})
			}
		}
	}
	if len(errs) > 0 {
		response.BadRequest(w, r, "current conditions must be given in full or not at all", errs)
		return nil, false
	}
	return &predict.Conditions{
		MaxTemperature: values[0],
		MinTemperature: values[1],
		MaxWindspeed:   values[2],
		Humidity:       values[3],
		Pressure:       values[4],
	}, true
}

func toPredictionResponse(p predict.Prediction) models.PredictionResponse {
	return models.PredictionResponse{
		City:                    p.City,
		Date:                    weather.FormatDate(p.Date),
		PredictedMaxTemperature: p.PredictedMaxTemperature,
		PredictedMinTemperature: p.PredictedMinTemperature,
		ModelVersion:            p.ModelVersion,
		UsedPlaceholders:        p.UsedPlaceholders,
	}
}
