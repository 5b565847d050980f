package http

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epitrack/epitrack/internal/config"
	"github.com/epitrack/epitrack/internal/domain"
	httpContracts "github.com/epitrack/epitrack/internal/http"
	"github.com/epitrack/epitrack/internal/interfaces/http/handlers"
	"github.com/epitrack/epitrack/internal/models"
	"github.com/epitrack/epitrack/internal/predict"
	"github.com/epitrack/epitrack/internal/store"
)

const identityArtifact = `{
  "kind": "xgboost",
  "metrics": {"rmse": 80, "mae": 60, "r2": 0.9, "training_time": 10},
  "ensemble": {"base_score": 0, "learning_rate": 1, "trees": [{"feature": 0, "threshold": -1, "left": {"leaf": 0}, "right": {"leaf": 100}}]}
}`

const degenerateArtifact = `{
  "kind": "xgboost",
  "metrics": {"rmse": 80, "mae": 60, "r2": 0.9, "training_time": 10},
  "ensemble": {"base_score": 0.5, "learning_rate": 1, "trees": [{"leaf": 0}]}
}`

const enhancedArtifact = `{
  "kind": "enhanced",
  "metrics": {"rmse": 90, "mae": 70, "r2": 0.95, "training_time": 120},
  "recurrent": {"window": 1, "weights": [1], "bias": 0}
}`

func historyCSV() string {
	var b strings.Builder
	b.WriteString("country,date,new_cases,total_cases,new_deaths,total_deaths\n")
	start := domain.NewDate(time.Now().UTC()).AddDays(-60)
	var total int64 = 10000
	var deaths int64 = 200
	for i := 0; i < 60; i++ {
		total += 100
		deaths += 2
		day := start.AddDays(i).String()
		b.WriteString("France," + day + ",100," + itoa(total) + ",2," + itoa(deaths) + "\n")
		b.WriteString("Germany," + day + ",80," + itoa(total) + ",1," + itoa(deaths) + "\n")
	}
	return b.String()
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}

type testEnv struct {
	server  *Server
	metrics *httpContracts.Metrics
}

func newTestEnv(t *testing.T, csv string, artifacts map[string]map[string]string) *testEnv {
	t.Helper()
	dir := t.TempDir()

	historyPath := filepath.Join(dir, "history.csv")
	if csv != "" {
		require.NoError(t, os.WriteFile(historyPath, []byte(csv), 0o644))
	}

	modelsDir := filepath.Join(dir, "models")
	for country, files := range artifacts {
		require.NoError(t, os.MkdirAll(filepath.Join(modelsDir, country), 0o755))
		for name, content := range files {
			require.NoError(t, os.WriteFile(filepath.Join(modelsDir, country, name), []byte(content), 0o644))
		}
	}

	registry, err := models.NewBuilder(modelsDir).Build()
	require.NoError(t, err)

	metrics := httpContracts.NewMetrics()
	h := handlers.NewHandlers(
		store.NewFileStore(historyPath),
		registry,
		predict.NewEngine(registry),
		domain.DefaultQualityPolicy(),
		metrics,
	)
	h.SetRandSource(func() *rand.Rand { return rand.New(rand.NewSource(7)) })

	cfg := config.ServerConfig{
		Host:           "127.0.0.1",
		Port:           0,
		ReadTimeout:    time.Second,
		WriteTimeout:   5 * time.Second,
		IdleTimeout:    5 * time.Second,
		RequestTimeout: 5 * time.Second,
	}
	server, err := NewServer(cfg, h, metrics)
	require.NoError(t, err)

	return &testEnv{server: server, metrics: metrics}
}

func (e *testEnv) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) post(t *testing.T, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func fullEnv(t *testing.T) *testEnv {
	return newTestEnv(t, historyCSV(), map[string]map[string]string{
		"France": {
			"xgboost.json":  identityArtifact,
			"enhanced.json": enhancedArtifact,
		},
	})
}

func TestCountriesEndpoint(t *testing.T) {
	env := fullEnv(t)

	rec := env.get(t, "/api/countries")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp httpContracts.CountriesResponse
	decode(t, rec, &resp)
	assert.Equal(t, []string{"France", "Germany"}, resp.AllCountries)
	assert.Equal(t, []string{"France"}, resp.CountriesWithModels)
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, 1, resp.CountWithModels)
}

func TestHistoricalEndpoint_RealData(t *testing.T) {
	env := fullEnv(t)

	rec := env.get(t, "/api/historical/France")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp httpContracts.HistoricalResponse
	decode(t, rec, &resp)
	assert.Equal(t, "France", resp.Country)
	assert.False(t, resp.IsSimulated)
	assert.Equal(t, 60, resp.Count)
	require.NotNil(t, resp.DateRange)
	assert.Equal(t, resp.Data[0].Date.String(), resp.DateRange.From)
}

func TestHistoricalEndpoint_UnknownCountryIs404(t *testing.T) {
	env := fullEnv(t)

	rec := env.get(t, "/api/historical/Wakanda")
	require.Equal(t, http.StatusNotFound, rec.Code)

	var resp httpContracts.ErrorResponse
	decode(t, rec, &resp)
	assert.Equal(t, "country_not_found", resp.Code)
	assert.NotEmpty(t, resp.RequestID)
}

func TestHistoricalEndpoint_MissingFileServesSynthetic(t *testing.T) {
	env := newTestEnv(t, "", nil)

	rec := env.get(t, "/api/historical/France")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp httpContracts.HistoricalResponse
	decode(t, rec, &resp)
	assert.True(t, resp.IsSimulated)
	assert.Equal(t, 180, resp.Count, "unbounded synthetic requests generate the default window")

	for i := 1; i < len(resp.Data); i++ {
		assert.GreaterOrEqual(t, resp.Data[i].TotalCases, resp.Data[i-1].TotalCases)
	}
}

func TestHistoricalEndpoint_BoundedSyntheticWindow(t *testing.T) {
	env := newTestEnv(t, "", nil)

	to := domain.NewDate(time.Now().UTC()).AddDays(-1)
	from := to.AddDays(-29)

	rec := env.get(t, "/api/historical/France?start_date="+from.String()+"&end_date="+to.String())
	require.Equal(t, http.StatusOK, rec.Code)

	var resp httpContracts.HistoricalResponse
	decode(t, rec, &resp)
	assert.True(t, resp.IsSimulated)
	assert.Equal(t, 30, resp.Count)
}

func TestHistoricalEndpoint_PastRangeSyntheticAnchoring(t *testing.T) {
	env := newTestEnv(t, "", nil)

	rec := env.get(t, "/api/historical/France?start_date=2021-01-01&end_date=2021-01-31")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp httpContracts.HistoricalResponse
	decode(t, rec, &resp)
	assert.True(t, resp.IsSimulated)
	require.Equal(t, 31, resp.Count)

	// The generated series covers the requested dates, not a window ending
	// yesterday.
	assert.Equal(t, "2021-01-01", resp.Data[0].Date.String())
	assert.Equal(t, "2021-01-31", resp.Data[len(resp.Data)-1].Date.String())
}

func TestHistoricalEndpoint_InvalidDatesAre400(t *testing.T) {
	env := fullEnv(t)

	rec := env.get(t, "/api/historical/France?start_date=garbage")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.get(t, "/api/historical/France?start_date=2021-02-01&end_date=2021-01-01")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPredictEndpoint_ModelOutput(t *testing.T) {
	env := fullEnv(t)

	rec := env.get(t, "/api/predict/France?days=7")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp httpContracts.PredictResponse
	decode(t, rec, &resp)
	assert.False(t, resp.IsSimulated)
	assert.Equal(t, "xgboost", resp.ModelUsed)
	require.NotNil(t, resp.Metrics)
	assert.Equal(t, 80.0, resp.Metrics.RMSE)
	require.Len(t, resp.Predictions, 7)

	// The identity tree holds the series at 100/day.
	for _, p := range resp.Predictions {
		assert.InDelta(t, 100.0, p.PredictedCases, 1e-9)
		assert.Equal(t, domain.TrendStable, p.TrendDirection)
	}
}

func TestPredictEndpoint_DefaultsAndClamping(t *testing.T) {
	env := fullEnv(t)

	var resp httpContracts.PredictResponse
	decode(t, env.get(t, "/api/predict/France"), &resp)
	assert.Len(t, resp.Predictions, 14, "default horizon")

	decode(t, env.get(t, "/api/predict/France?days=500"), &resp)
	assert.Len(t, resp.Predictions, 30, "standard horizon clamps at 30")
}

func TestPredictEndpoint_InvalidParams(t *testing.T) {
	env := fullEnv(t)

	assert.Equal(t, http.StatusBadRequest, env.get(t, "/api/predict/France?days=soon").Code)
	assert.Equal(t, http.StatusBadRequest, env.get(t, "/api/predict/France?model_type=prophet").Code)
}

func TestPredictEndpoint_UnknownCountryServesSynthetic(t *testing.T) {
	env := fullEnv(t)

	rec := env.get(t, "/api/predict/Wakanda?days=7")
	require.Equal(t, http.StatusOK, rec.Code, "prediction never 404s; it degrades")

	var resp httpContracts.PredictResponse
	decode(t, rec, &resp)
	assert.True(t, resp.IsSimulated)
	assert.Equal(t, "synthetic", resp.ModelUsed)
	assert.Nil(t, resp.Metrics)
	require.Len(t, resp.Predictions, 7)
	for _, p := range resp.Predictions {
		assert.GreaterOrEqual(t, p.PredictedCases, 0.0)
		assert.NotEmpty(t, p.TrendDirection)
	}
}

func TestPredictEndpoint_DegenerateModelServesSynthetic(t *testing.T) {
	env := newTestEnv(t, historyCSV(), map[string]map[string]string{
		"France": {"xgboost.json": degenerateArtifact},
	})

	rec := env.get(t, "/api/predict/France?days=7")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp httpContracts.PredictResponse
	decode(t, rec, &resp)
	assert.True(t, resp.IsSimulated, "sub-floor model output triggers substitution")
	assert.Equal(t, "synthetic", resp.ModelUsed)
}

func TestPredictEndpoint_FallbackReportsActualModel(t *testing.T) {
	env := newTestEnv(t, historyCSV(), map[string]map[string]string{
		"France": {"gradient_boosting.json": strings.Replace(identityArtifact, "xgboost", "gradient_boosting", 1)},
	})

	rec := env.get(t, "/api/predict/France?days=7&model_type=xgboost")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp httpContracts.PredictResponse
	decode(t, rec, &resp)
	assert.False(t, resp.IsSimulated)
	assert.Equal(t, "gradient_boosting", resp.ModelUsed)
}

func TestPredictEnhancedEndpoint(t *testing.T) {
	env := fullEnv(t)

	rec := env.get(t, "/api/predict/enhanced/France?days=10")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp httpContracts.PredictResponse
	decode(t, rec, &resp)
	assert.False(t, resp.IsSimulated)
	assert.Equal(t, "enhanced", resp.ModelUsed)
	require.Len(t, resp.Predictions, 10)
	for _, p := range resp.Predictions {
		assert.NotNil(t, p.RawPrediction, "enhanced responses expose the raw model output")
	}
}

func TestPredictEnhancedEndpoint_EnhancedIsNotACountry(t *testing.T) {
	env := fullEnv(t)

	var resp httpContracts.PredictResponse
	decode(t, env.get(t, "/api/predict/enhanced/France"), &resp)
	assert.Equal(t, "France", resp.Country)
	assert.Len(t, resp.Predictions, 30, "enhanced default horizon")
}

func TestCompareEndpoint(t *testing.T) {
	env := fullEnv(t)

	rec := env.post(t, "/api/compare", `{"countries": ["France", "Germany", "Wakanda"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp httpContracts.CompareResponse
	decode(t, rec, &resp)
	require.Len(t, resp.Comparison, 3)
	assert.Equal(t, "total_cases", resp.Metric, "metric defaults to total_cases")
	assert.Equal(t, []string{"France", "Germany", "Wakanda"}, resp.Countries)

	byCountry := map[string]httpContracts.CompareEntry{}
	for _, entry := range resp.Comparison {
		byCountry[entry.Country] = entry
	}

	assert.False(t, byCountry["France"].IsSimulated)
	assert.False(t, byCountry["Germany"].IsSimulated)
	assert.True(t, byCountry["Wakanda"].IsSimulated, "substitution is per-country")

	// France's cumulative totals run 10100..16000 in steps of 100.
	france := byCountry["France"]
	assert.Equal(t, "total_cases", france.Metric)
	assert.Equal(t, 60, france.Count)
	assert.InDelta(t, 10100.0, france.Statistics.Min, 1e-9)
	assert.InDelta(t, 16000.0, france.Statistics.Max, 1e-9)
	assert.InDelta(t, 13050.0, france.Statistics.Mean, 1e-9)
	assert.InDelta(t, 783000.0, france.Statistics.Total, 1e-9)
	assert.InDelta(t, 10100.0, france.Data[0].Value, 1e-9)
}

func TestCompareEndpoint_MetricSelection(t *testing.T) {
	env := fullEnv(t)

	rec := env.post(t, "/api/compare", `{"countries": ["France"], "metric": "new_cases"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp httpContracts.CompareResponse
	decode(t, rec, &resp)
	assert.Equal(t, "new_cases", resp.Metric)
	require.Len(t, resp.Comparison, 1)

	// France reports a flat 100 new cases per day.
	stats := resp.Comparison[0].Statistics
	assert.InDelta(t, 100.0, stats.Min, 1e-9)
	assert.InDelta(t, 100.0, stats.Max, 1e-9)
	assert.InDelta(t, 100.0, stats.Mean, 1e-9)
	assert.InDelta(t, 6000.0, stats.Total, 1e-9)
}

func TestCompareEndpoint_EchoesDateRange(t *testing.T) {
	env := fullEnv(t)

	rec := env.post(t, "/api/compare", `{"countries": ["Wakanda"], "start_date": "2021-01-01", "end_date": "2021-01-31"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp httpContracts.CompareResponse
	decode(t, rec, &resp)
	assert.Equal(t, "2021-01-01", resp.DateRange.Start)
	assert.Equal(t, "2021-01-31", resp.DateRange.End)

	// The substituted series sits inside the requested range, not today's.
	entry := resp.Comparison[0]
	require.True(t, entry.IsSimulated)
	require.Equal(t, 31, entry.Count)
	assert.Equal(t, "2021-01-01", entry.Data[0].Date.String())
	assert.Equal(t, "2021-01-31", entry.Data[len(entry.Data)-1].Date.String())
}

func TestCompareEndpoint_Validation(t *testing.T) {
	env := fullEnv(t)

	assert.Equal(t, http.StatusBadRequest, env.post(t, "/api/compare", `{"countries": []}`).Code)
	assert.Equal(t, http.StatusBadRequest, env.post(t, "/api/compare", `not json`).Code)
	assert.Equal(t, http.StatusBadRequest, env.post(t, "/api/compare", `{"countries": ["France"], "start_date": "bad"}`).Code)

	many := `{"countries": ["a","b","c","d","e","f","g","h","i","j","k"]}`
	assert.Equal(t, http.StatusBadRequest, env.post(t, "/api/compare", many).Code)

	rec := env.post(t, "/api/compare", `{"countries": ["France"], "metric": "vibes"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var errResp httpContracts.ErrorResponse
	decode(t, rec, &errResp)
	assert.Equal(t, "invalid_metric", errResp.Code)
}

func TestModelsEndpoint(t *testing.T) {
	env := fullEnv(t)

	rec := env.get(t, "/api/models/France")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp httpContracts.ModelsResponse
	decode(t, rec, &resp)
	assert.Equal(t, "France", resp.Country)
	require.Len(t, resp.Models, 2)
	assert.Equal(t, "xgboost", resp.BestModels.ByRMSE)
	assert.Equal(t, "enhanced", resp.BestModels.ByR2)
}

func TestModelsEndpoint_NoModelsIs404(t *testing.T) {
	env := fullEnv(t)

	rec := env.get(t, "/api/models/Germany")
	require.Equal(t, http.StatusNotFound, rec.Code)

	var resp httpContracts.ErrorResponse
	decode(t, rec, &resp)
	assert.Equal(t, "models_not_found", resp.Code)
}

func TestHealthEndpoint(t *testing.T) {
	env := fullEnv(t)

	rec := env.get(t, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp httpContracts.HealthResponse
	decode(t, rec, &resp)
	assert.Equal(t, "healthy", resp.Status)
	assert.True(t, resp.DataAvailable)
	assert.Equal(t, 1, resp.ModelCountries)
}

func TestHealthEndpoint_HealthyWithoutData(t *testing.T) {
	env := newTestEnv(t, "", nil)

	rec := env.get(t, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp httpContracts.HealthResponse
	decode(t, rec, &resp)
	assert.Equal(t, "healthy", resp.Status)
	assert.False(t, resp.DataAvailable)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, "", nil)

	// Trigger a synthetic substitution first so its counter exists.
	env.get(t, "/api/historical/France")

	rec := env.get(t, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "epitrack_requests_total")
	assert.Contains(t, body, `epitrack_synthetic_substitutions_total{surface="historical"} 1`)
}

func TestRequestIDHeader(t *testing.T) {
	env := fullEnv(t)

	rec := env.get(t, "/health")
	assert.Len(t, rec.Header().Get("X-Request-ID"), 8)
}

func TestUnknownEndpointIs404(t *testing.T) {
	env := fullEnv(t)

	rec := env.get(t, "/api/nothing")
	require.Equal(t, http.StatusNotFound, rec.Code)

	var resp httpContracts.ErrorResponse
	decode(t, rec, &resp)
	assert.Equal(t, "endpoint_not_found", resp.Code)
}

func TestCORSPreflights(t *testing.T) {
	env := fullEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/countries", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}
