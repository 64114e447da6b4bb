// Package api provides the HTTP API for VentiGlobe.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/ventiglobe/ventiglobe/internal/api/handler"
	"github.com/ventiglobe/ventiglobe/internal/api/middleware"
	"github.com/ventiglobe/ventiglobe/internal/api/response"
	"github.com/ventiglobe/ventiglobe/internal/auth"
	"github.com/ventiglobe/ventiglobe/internal/provider/resilience"
)

// Predictor is what the API needs from the prediction service.
// *predict.Predictor implements it.
type Predictor interface {
	handler.Predictor
	handler.ReadyChecker
	handler.ServedModel
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string

	// Metrics records OpenTelemetry HTTP metrics when set.
	Metrics *middleware.Metrics

	// Prometheus serves GET /metrics when set.
	Prometheus http.Handler

	// RequireTLS rejects requests forwarded over plain HTTP.
	RequireTLS bool

	Weather   handler.WeatherService
	Predictor Predictor
	Trainer   handler.StateReporter
	Retrainer handler.Retrainer

	// Tokens validates operator tokens. Nil rejects every admin request.
	Tokens middleware.TokenValidator

	// Upstreams feeds /v1/ops/status.
	Upstreams *resilience.Registry

	// RetrainTimeout bounds POST /v1/admin/retrain. Default: 30m
	RetrainTimeout time.Duration

	// Clock sets "today" for requests without a date. Default: time.Now
	Clock func() time.Time
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "ventiglobe-api"
	}
	tokens := cfg.Tokens
	if tokens == nil {
		tokens = auth.NewJWTService(auth.JWTConfig{})
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))         // Structured logging
	r.Use(middleware.Recovery(cfg.Logger))       // Panic recovery
	r.Use(chimiddleware.RealIP)                  // Real IP extraction
	r.Use(middleware.SecurityHeaders)            // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS)) // TLS enforcement behind the load balancer

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, r, "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.MethodNotAllowed(w, r)
	})

	if cfg.Prometheus != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Prometheus)
	}

	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.Predictor, cfg.Trainer, cfg.Upstreams)
	weatherHandler := handler.NewWeatherHandler(cfg.Weather, cfg.Logger)
	predictHandler := handler.NewPredictHandler(cfg.Weather, cfg.Predictor, cfg.Logger, cfg.Clock)
	adminHandler := handler.NewAdminHandler(handler.AdminConfig{
		Retrainer: cfg.Retrainer,
		Trainer:   cfg.Trainer,
		Served:    cfg.Predictor,
		Logger:    cfg.Logger,
		Timeout:   cfg.RetrainTimeout,
	})

	// Every forecast, historical and prediction request geocodes upstream.
	upstreamRateLimit := middleware.RateLimitByIP(middleware.UpstreamRateLimit)

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)

		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		r.Group(func(r chi.Router) {
			r.Use(upstreamRateLimit)
			r.Get("/forecast/{city}", weatherHandler.Forecast)
			r.Get("/historical/{city}", weatherHandler.Historical)
			r.Get("/predict/{city}", predictHandler.Predict)
			r.Get("/predict/{city}/week", predictHandler.PredictWeek)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.Operator(tokens))
			r.Get("/model", adminHandler.Model)
			r.With(
				middleware.RequireJSON,
				middleware.RateLimitByOperator(middleware.AdminRateLimit),
			).Post("/retrain", adminHandler.Retrain)
		})
	})

	return r
}
