package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ventiglobe/ventiglobe/internal/api"
	"github.com/ventiglobe/ventiglobe/internal/api/models"
	"github.com/ventiglobe/ventiglobe/internal/auth"
	"github.com/ventiglobe/ventiglobe/internal/model"
	"github.com/ventiglobe/ventiglobe/internal/pipeline"
	"github.com/ventiglobe/ventiglobe/internal/predict"
	"github.com/ventiglobe/ventiglobe/internal/weather"
)

const testSigningKey = "test-secret-key-for-testing-only"

type stubWeather struct{}

func (stubWeather) Resolve(_ context.Context, name string) (weather.Coordinates, error) {
	if name != "Warsaw" {
		return weather.Coordinates{}, &weather.Error{Kind: weather.KindNotFound, Cause: weather.CauseAbsent, Err: errors.New("no match")}
	}
	return weather.Coordinates{Latitude: 52.22977, Longitude: 21.01178, Name: "Warsaw", Country: "Poland"}, nil
}

func (stubWeather) FetchOne(_ context.Context, c weather.Coordinates, date time.Time) (weather.DailyRecord, error) {
	return weather.DailyRecord{Date: date, MaxTemperature: 22, MinTemperature: 11, MaxWindspeed: 9, City: c.Name, Latitude: c.Latitude, Longitude: c.Longitude}, nil
}

func (stubWeather) FetchRange(_ context.Context, c weather.Coordinates, start, _ time.Time) ([]weather.DailyRecord, error) {
	return []weather.DailyRecord{{Date: start, MaxTemperature: 3, MinTemperature: -2, MaxWindspeed: 14, City: c.Name}}, nil
}

type stubPredictor struct {
	artifact *model.Artifact
}

func (p *stubPredictor) Predict(_ context.Context, loc predict.Location, date time.Time, cond *predict.Conditions) (predict.Prediction, error) {
	if p.artifact == nil {
		return predict.Prediction{}, model.ErrModelNotTrained
	}
	return predict.Prediction{City: loc.Name, Date: date, PredictedMaxTemperature: 19.5, PredictedMinTemperature: 9.25, ModelVersion: p.artifact.Version, UsedPlaceholders: cond == nil}, nil
}

func (p *stubPredictor) PredictRange(ctx context.Context, loc predict.Location, start time.Time, days int, cond *predict.Conditions) ([]predict.Prediction, error) {
	out := make([]predict.Prediction, 0, days)
	for i := 0; i < days; i++ {
		pr, err := p.Predict(ctx, loc, start.AddDate(0, 0, i), cond)
		if err != nil {
			return nil, err
		}
		out = append(out, pr)
	}
	return out, nil
}

func (p *stubPredictor) Ready() bool { return p.artifact != nil }

func (p *stubPredictor) Current() *model.Artifact { return p.artifact }

type stubTrainer struct{}

func (stubTrainer) State() model.State { return model.State{Phase: model.PhaseTrained, Version: "v-test"} }

type stubRetrainer struct {
	calls int
}

func (r *stubRetrainer) Retrain(_ context.Context, _ []string, _ int) (*pipeline.Outcome, error) {
	r.calls++
	return &pipeline.Outcome{Artifact: &model.Artifact{Version: "v-new"}}, nil
}

func testJWTService() *auth.JWTService {
	return auth.NewJWTService(auth.JWTConfig{SigningKey: testSigningKey})
}

func operatorToken(t *testing.T, role string) string {
	t.Helper()
	token, _, err := testJWTService().GenerateToken("ops@ventiglobe", role, time.Hour)
	require.NoError(t, err)
	return token
}

type routerFixture struct {
	handler   http.Handler
	predictor *stubPredictor
	retrainer *stubRetrainer
}

func newTestRouter(trained bool) routerFixture {
	pred := &stubPredictor{}
	if trained {
		pred.artifact = &model.Artifact{Version: "v-test"}
	}
	retrainer := &stubRetrainer{}
	h := api.NewRouter(api.RouterConfig{
		Version:    "test",
		BuildTime:  "2024-01-01T00:00:00Z",
		Logger:     zerolog.New(io.Discard),
		Prometheus: promhttp.Handler(),
		Weather:    stubWeather{},
		Predictor:  pred,
		Trainer:    stubTrainer{},
		Retrainer:  retrainer,
		Tokens:     testJWTService(),
		Clock:      func() time.Time { return time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC) },
	})
	return routerFixture{handler: h, predictor: pred, retrainer: retrainer}
}

func do(h http.Handler, method, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, http.NoBody)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRouter_PublicEndpoints(t *testing.T) {
	f := newTestRouter(true)

	tests := []struct {
		name   string
		target string
		status int
	}{
		{"health", "/v1/ops/health", http.StatusOK},
		{"ready", "/v1/ops/ready", http.StatusOK},
		{"status", "/v1/ops/status", http.StatusOK},
		{"forecast", "/v1/forecast/Warsaw?date=2024-03-01", http.StatusOK},
		{"historical", "/v1/historical/Warsaw?start_date=2024-01-01&end_date=2024-01-31", http.StatusOK},
		{"predict", "/v1/predict/Warsaw", http.StatusOK},
		{"predict week", "/v1/predict/Warsaw/week", http.StatusOK},
		{"unknown city", "/v1/predict/Atlantis", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(f.handler, http.MethodGet, tt.target, "")
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
			assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		})
	}
}

func TestRouter_PredictResponse(t *testing.T) {
	f := newTestRouter(true)

	w := do(f.handler, http.MethodGet, "/v1/predict/Warsaw?date=2024-03-11", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{
		"city": "Warsaw",
		"date": "2024-03-11",
		"predicted_max_temperature": 19.5,
		"predicted_min_temperature": 9.25,
		"model_version": "v-test",
		"used_placeholders": true
	}`, w.Body.String())
}

func TestRouter_UntrainedService(t *testing.T) {
	f := newTestRouter(false)

	w := do(f.handler, http.MethodGet, "/v1/predict/Warsaw", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = do(f.handler, http.MethodGet, "/v1/ops/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	// Weather lookups do not need a model.
	w = do(f.handler, http.MethodGet, "/v1/forecast/Warsaw?date=2024-03-01", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_AdminRequiresOperator(t *testing.T) {
	f := newTestRouter(true)

	w := do(f.handler, http.MethodPost, "/v1/admin/retrain", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(f.handler, http.MethodPost, "/v1/admin/retrain", operatorToken(t, "viewer"))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(f.handler, http.MethodGet, "/v1/admin/model", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	assert.Zero(t, f.retrainer.calls)
}

func TestRouter_Retrain(t *testing.T) {
	f := newTestRouter(true)

	w := do(f.handler, http.MethodPost, "/v1/admin/retrain", operatorToken(t, auth.RoleOperator))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp models.RetrainResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "v-new", resp.Version)
	assert.Equal(t, 1, f.retrainer.calls)
}

func TestRouter_AdminModel(t *testing.T) {
	f := newTestRouter(true)

	w := do(f.handler, http.MethodGet, "/v1/admin/model", operatorToken(t, auth.RoleOperator))

	require.Equal(t, http.StatusOK, w.Code)
	var status models.ModelStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	assert.Equal(t, "trained", status.Phase)
	assert.Equal(t, "v-test", status.Version)
}

func TestRouter_NotFoundAndMethodNotAllowed(t *testing.T) {
	f := newTestRouter(true)

	w := do(f.handler, http.MethodGet, "/v1/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))

	w = do(f.handler, http.MethodDelete, "/v1/ops/health", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestRouter_PrometheusMetrics(t *testing.T) {
	f := newTestRouter(true)

	w := do(f.handler, http.MethodGet, "/metrics", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/plain"))
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestRouter_NoTokenServiceRejectsAdmin(t *testing.T) {
	h := api.NewRouter(api.RouterConfig{
		Logger:    zerolog.Nop(),
		Weather:   stubWeather{},
		Predictor: &stubPredictor{},
		Trainer:   stubTrainer{},
		Retrainer: &stubRetrainer{},
	})

	w := do(h, http.MethodGet, "/v1/admin/model", operatorToken(t, auth.RoleOperator))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
