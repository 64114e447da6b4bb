// Package handler provides HTTP handlers for the VentiGlobe API.
package handler

import (
	"net/http"
	"time"

	"github.com/ventiglobe/ventiglobe/internal/api/models"
	"github.com/ventiglobe/ventiglobe/internal/api/response"
	"github.com/ventiglobe/ventiglobe/internal/model"
	"github.com/ventiglobe/ventiglobe/internal/provider/resilience"
)

// ReadyChecker reports whether predictions can be served.
// *predict.Predictor implements it.
type ReadyChecker interface {
	Ready() bool
}

// StateReporter reports the trainer state. *model.Trainer implements it.
type StateReporter interface {
	State() model.State
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	ready     ReadyChecker
	trainer   StateReporter
	upstreams *resilience.Registry
}

// NewOpsHandler creates a new OpsHandler. ready, trainer and upstreams may
// be nil.
func NewOpsHandler(version, buildTime string, ready ReadyChecker, trainer StateReporter, upstreams *resilience.Registry) *OpsHandler {
	return &OpsHandler{
		version:   version,
		buildTime: buildTime,
		ready:     ready,
		trainer:   trainer,
		upstreams: upstreams,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status:  models.HealthStatusOK,
		Time:    time.Now().UTC(),
		Version: h.version,
		Details: map[string]any{
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready. The service is ready once a
// model is loaded; weather lookups work before that but predictions do not.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   time.Now().UTC(),
	}
	if h.ready != nil && !h.ready.Ready() {
		health.Status = models.HealthStatusFail
		health.Details = map[string]any{"model": "not loaded"}
		response.JSON(w, r, http.StatusServiceUnavailable, health)
		return
	}
	response.JSON(w, r, http.StatusOK, health)
}

// SystemStatus handles GET /v1/ops/status - model and upstream status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       time.Now().UTC(),
		Subsystems: []models.SubsystemStatus{},
		Providers:  []models.ProviderStatus{},
	}

	if h.trainer != nil {
		state := h.trainer.State()
		sub := models.SubsystemStatus{Name: "model", Status: models.HealthStatusOK}
		detail := string(state.Phase)
		if state.Version != "" {
			detail += " " + state.Version
		}
		sub.Detail = &detail
		if state.Phase == model.PhaseUntrained {
			sub.Status = models.HealthStatusDegraded
		}
		status.Subsystems = append(status.Subsystems, sub)
	}

	if h.upstreams != nil {
		for _, u := range h.upstreams.Snapshot() {
			p := models.ProviderStatus{
				Provider:            u.Name,
				Status:              healthStatus(u.Status()),
				CircuitState:        u.CircuitState.String(),
				ConsecutiveFailures: int(u.Counts.ConsecutiveFailures),
				LastSuccessAt:       u.LastSuccessAt,
				LastFailureAt:       u.LastFailureAt,
			}
			if u.LastError != "" {
				msg := u.LastError
				p.Message = &msg
			}
			status.Providers = append(status.Providers, p)
		}
	}

	for _, s := range status.Subsystems {
		status.Status = worse(status.Status, s.Status)
	}
	for _, p := range status.Providers {
		status.Status = worse(status.Status, p.Status)
	}
	response.JSON(w, r, http.StatusOK, status)
}

func healthStatus(s resilience.Status) models.HealthStatus {
	switch s {
	case resilience.StatusHealthy:
		return models.HealthStatusOK
	case resilience.StatusDegraded:
		return models.HealthStatusDegraded
	default:
		return models.HealthStatusFail
	}
}

func worse(a, b models.HealthStatus) models.HealthStatus {
	rank := map[models.HealthStatus]int{
		models.HealthStatusOK:       0,
		models.HealthStatusDegraded: 1,
		models.HealthStatusFail:     2,
	}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
