package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ventiglobe/ventiglobe/internal/api/middleware"
	"github.com/ventiglobe/ventiglobe/internal/api/models"
	"github.com/ventiglobe/ventiglobe/internal/api/response"
	"github.com/ventiglobe/ventiglobe/internal/model"
	"github.com/ventiglobe/ventiglobe/internal/pipeline"
)

// Retrain request bounds.
const (
	MaxRetrainCities = 50
	MaxRetrainYears  = 30
)

// Retrainer runs a collect-and-train cycle. *pipeline.Pipeline implements it.
type Retrainer interface {
	Retrain(ctx context.Context, cities []string, years int) (*pipeline.Outcome, error)
}

// ServedModel returns the artifact predictions currently use.
// *predict.Predictor implements it.
type ServedModel interface {
	Current() *model.Artifact
}

// AdminConfig holds the dependencies of AdminHandler.
type AdminConfig struct {
	Retrainer Retrainer
	Trainer   StateReporter
	Served    ServedModel
	Logger    zerolog.Logger

	// Timeout bounds a retrain. Default: 30m
	Timeout time.Duration
}

// AdminHandler handles operator endpoints.
type AdminHandler struct {
	retrainer Retrainer
	trainer   StateReporter
	served    ServedModel
	logger    zerolog.Logger
	timeout   time.Duration
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(cfg AdminConfig) *AdminHandler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Minute
	}
	return &AdminHandler{
		retrainer: cfg.Retrainer,
		trainer:   cfg.Trainer,
		served:    cfg.Served,
		logger:    cfg.Logger,
		timeout:   cfg.Timeout,
	}
}

// Retrain handles POST /v1/admin/retrain. It re-collects history, trains and
// swaps the served model before responding. A concurrent run yields 409.
func (h *AdminHandler) Retrain(w http.ResponseWriter, r *http.Request) {
	var req models.RetrainRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if errs := validateRetrain(&req); len(errs) > 0 {
		response.BadRequest(w, r, "invalid retrain request", errs)
		return
	}

	// A client that disconnects should not abort a half-finished collection.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.timeout)
	defer cancel()

	h.logger.Info().
		Str("operator", middleware.GetOperator(r.Context())).
		Strs("cities", req.Cities).
		Int("years", req.Years).
		Msg("retrain requested")

	out, err := h.retrainer.Retrain(ctx, req.Cities, req.Years)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	resp := models.RetrainResponse{
		Status:   "success",
		Message:  "model retrained successfully",
		Duration: out.Duration.Round(time.Millisecond).String(),
	}
	if out.Artifact != nil {
		resp.Version = out.Artifact.Version
		resp.Metrics = out.Artifact.Metrics.AsMap()
	}
	if out.Collection != nil {
		resp.Records = out.Collection.Records
		for _, c := range out.Collection.Skipped() {
			resp.Skipped = append(resp.Skipped, c.City)
		}
	}
	response.JSON(w, r, http.StatusOK, resp)
}

// Model handles GET /v1/admin/model.
func (h *AdminHandler) Model(w http.ResponseWriter, r *http.Request) {
	state := h.trainer.State()
	status := models.ModelStatus{
		Phase:   string(state.Phase),
		Version: state.Version,
	}
	if a := h.served.Current(); a != nil {
		trainedAt := a.TrainedAt
		status.Version = a.Version
		status.TrainedAt = &trainedAt
		status.Metrics = a.Metrics.AsMap()
		status.FeatureNames = a.FeatureNames
		status.TrainSamples = a.Samples.Train
		status.TestSamples = a.Samples.Test
	}
	response.JSON(w, r, http.StatusOK, status)
}

func validateRetrain(req *models.RetrainRequest) []models.FieldError {
	var errs []models.FieldError
	if len(req.Cities) > MaxRetrainCities {
		errs = append(errs, models.FieldError{Field: "cities", Message: "too many cities", Code: models.CodeOutOfRange})
	}
	cities := req.Cities[:0]
	for _, c := range req.Cities {
		if c = strings.TrimSpace(c); c != "" {
			cities = append(cities, c)
		}
	}
	req.Cities = cities
	if req.Years < 0 || req.Years > MaxRetrainYears {
		errs = append(errs, models.FieldError{Field: "years", Message: "must be between 1 and 30", Code: models.CodeOutOfRange})
	}
	return errs
}
