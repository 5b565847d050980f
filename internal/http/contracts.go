// Package http defines the wire contracts and Prometheus metrics shared by
// the server and its handlers.
package http

import (
	"time"

	"github.com/epitrack/epitrack/internal/domain"
)

// CountriesResponse lists every country with historical data alongside the
// subset that also has trained models.
type CountriesResponse struct {
	AllCountries        []string `json:"all_countries"`
	CountriesWithModels []string `json:"countries_with_models"`
	Count               int      `json:"count"`
	CountWithModels     int      `json:"count_with_models"`
}

// DateRange is the inclusive bounds of a served series.
type DateRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// HistoricalResponse carries one country's observed series. IsSimulated is
// true when no usable real data existed and the series was generated.
type HistoricalResponse struct {
	Country     string                   `json:"country"`
	Data        []domain.TimeSeriesPoint `json:"data"`
	Count       int                      `json:"count"`
	DateRange   *DateRange               `json:"date_range,omitempty"`
	IsSimulated bool                     `json:"is_simulated"`
}

// PredictResponse carries a forecast. ModelUsed names the model that
// actually produced the output, which may differ from the requested kind
// after fallback; "synthetic" when generation substituted for inference.
type PredictResponse struct {
	Country     string                   `json:"country"`
	Predictions []domain.PredictionPoint `json:"predictions"`
	ModelUsed   string                   `json:"model_used"`
	Metrics     *domain.ModelMetrics     `json:"metrics,omitempty"`
	IsSimulated bool                     `json:"is_simulated"`
}

// CompareRequest asks for side-by-side statistics over one observed
// metric. Dates are optional inclusive YYYY-MM-DD bounds; an empty metric
// means total_cases.
type CompareRequest struct {
	Countries []string `json:"countries"`
	Metric    string   `json:"metric,omitempty"`
	StartDate string   `json:"start_date,omitempty"`
	EndDate   string   `json:"end_date,omitempty"`
}

// MetricPoint is one day of the compared metric.
type MetricPoint struct {
	Date  domain.Date `json:"date"`
	Value float64     `json:"value"`
}

// SeriesStatistics summarizes the compared metric over the window.
type SeriesStatistics struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
	Total float64 `json:"total"`
}

// CompareEntry is one country's slice of a comparison. Substitution is
// per-country: one entry may be simulated while its neighbours are real.
type CompareEntry struct {
	Country     string           `json:"country"`
	Data        []MetricPoint    `json:"data"`
	Count       int              `json:"count"`
	Metric      string           `json:"metric"`
	Statistics  SeriesStatistics `json:"statistics"`
	IsSimulated bool             `json:"is_simulated"`
}

// CompareDateRange echoes the requested bounds; empty when unbounded.
type CompareDateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// CompareResponse is the full comparison result.
type CompareResponse struct {
	Comparison []CompareEntry   `json:"comparison"`
	Metric     string           `json:"metric"`
	Countries  []string         `json:"countries"`
	DateRange  CompareDateRange `json:"date_range"`
}

// ModelInfo is one trained model's name and training scores.
type ModelInfo struct {
	ModelName string              `json:"model_name"`
	Metrics   domain.ModelMetrics `json:"metrics"`
}

// BestModels names the strongest model per training metric.
type BestModels struct {
	ByRMSE string `json:"by_rmse"`
	ByMAE  string `json:"by_mae"`
	ByR2   string `json:"by_r2"`
}

// ModelsResponse lists a country's trained models and the best of each.
type ModelsResponse struct {
	Country    string      `json:"country"`
	Models     []ModelInfo `json:"models"`
	BestModels BestModels  `json:"best_models"`
}

// HealthResponse reports service liveness and what the instance can serve.
type HealthResponse struct {
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
	DataAvailable  bool      `json:"data_available"`
	ModelCountries int       `json:"model_countries"`
}

// ErrorResponse is the standard error envelope for every non-2xx response.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Code      string    `json:"code"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}
