package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/ventiglobe/ventiglobe/internal/api/middleware"
	"github.com/ventiglobe/ventiglobe/internal/api/response"
	"github.com/ventiglobe/ventiglobe/internal/collector"
	"github.com/ventiglobe/ventiglobe/internal/features"
	"github.com/ventiglobe/ventiglobe/internal/model"
	"github.com/ventiglobe/ventiglobe/internal/weather"
)

// writeError maps domain errors to problem responses. Unknown errors are
// logged and reported as 500 without their message.
func writeError(w http.ResponseWriter, r *http.Request, log zerolog.Logger, err error) {
	switch {
	case errors.Is(err, weather.ErrInvalidInput):
		response.BadRequest(w, r, err.Error(), nil)
	case errors.Is(err, weather.ErrNotFound):
		response.NotFound(w, r, err.Error())
	case errors.Is(err, weather.ErrUnavailable):
		response.NotFound(w, r, "weather data not available for this date")
	case errors.Is(err, weather.ErrUpstream):
		log.Warn().Err(err).Str("request_id", middleware.GetRequestID(r.Context())).Msg("upstream weather request failed")
		response.BadGateway(w, r, "weather provider request failed")
	case errors.Is(err, model.ErrModelNotTrained):
		response.ModelNotTrained(w, r)
	case errors.Is(err, model.ErrTrainingInProgress):
		response.Conflict(w, r, "a collection or training run is already in progress")
	case errors.Is(err, collector.ErrNoDataCollected):
		response.BadGateway(w, r, "no weather data could be collected for any city")
	case errors.Is(err, features.ErrInsufficientData):
		response.Unprocessable(w, r, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		response.ServiceUnavailable(w, r, "request timed out")
	default:
		log.Error().Err(err).Str("request_id", middleware.GetRequestID(r.Context())).Msg("request failed")
		response.InternalError(w, r, "an unexpected error occurred")
	}
}
