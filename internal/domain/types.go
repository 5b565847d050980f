// Package domain holds the value types and shared policy for the forecast
// serving pipeline: time-series points, prediction points, model kinds, the
// data-quality gate and the synthetic generators. Both the HTTP surface and
// the dashboard client consume this package so the two sides cannot drift.
package domain

import "fmt"

// ModelKind identifies the family of a trained predictor.
type ModelKind string

const (
	KindLinearRegression ModelKind = "linear_regression"
	KindRidgeRegression  ModelKind = "ridge_regression"
	KindLassoRegression  ModelKind = "lasso_regression"
	KindRandomForest     ModelKind = "random_forest"
	KindGradientBoosting ModelKind = "gradient_boosting"
	KindXGBoost          ModelKind = "xgboost"
	KindLSTM             ModelKind = "lstm"
	KindEnhanced         ModelKind = "enhanced"
)

// ModelKinds lists every valid kind in a stable order.
var ModelKinds = []ModelKind{
	KindLinearRegression,
	KindRidgeRegression,
	KindLassoRegression,
	KindRandomForest,
	KindGradientBoosting,
	KindXGBoost,
	KindLSTM,
	KindEnhanced,
}

// ParseModelKind validates a free-form model type string.
func ParseModelKind(s string) (ModelKind, error) {
	kind := ModelKind(s)
	for _, k := range ModelKinds {
		if kind == k {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown model type %q", s)
}

// Valid reports whether k is one of the enumerated kinds.
func (k ModelKind) Valid() bool {
	_, err := ParseModelKind(string(k))
	return err == nil
}

// SeriesMetric names one of the four observed series a comparison can
// rank countries by.
type SeriesMetric string

const (
	MetricTotalCases  SeriesMetric = "total_cases"
	MetricTotalDeaths SeriesMetric = "total_deaths"
	MetricNewCases    SeriesMetric = "new_cases"
	MetricNewDeaths   SeriesMetric = "new_deaths"
)

// SeriesMetrics lists every valid metric in a stable order.
var SeriesMetrics = []SeriesMetric{
	MetricTotalCases,
	MetricTotalDeaths,
	MetricNewCases,
	MetricNewDeaths,
}

// DefaultSeriesMetric is what comparisons use when the request does not
// name a metric.
const DefaultSeriesMetric = MetricTotalCases

// ParseSeriesMetric validates a free-form metric string.
func ParseSeriesMetric(s string) (SeriesMetric, error) {
	metric := SeriesMetric(s)
	for _, m := range SeriesMetrics {
		if metric == m {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown metric %q", s)
}

// Value extracts the metric's series value from one observed day.
func (m SeriesMetric) Value(p TimeSeriesPoint) float64 {
	switch m {
	case MetricTotalDeaths:
		return float64(p.TotalDeaths)
	case MetricNewCases:
		return float64(p.NewCases)
	case MetricNewDeaths:
		return float64(p.NewDeaths)
	default:
		return float64(p.TotalCases)
	}
}

// TimeSeriesPoint is one observed day for a country. For real data
// new_cases[t] == total_cases[t] - total_cases[t-1]; synthetic data builds
// both sides independently but keeps them consistent by construction.
type TimeSeriesPoint struct {
	Date        Date  `json:"date"`
	NewCases    int64 `json:"new_cases"`
	TotalCases  int64 `json:"total_cases"`
	NewDeaths   int64 `json:"new_deaths"`
	TotalDeaths int64 `json:"total_deaths"`
}

// PredictionPoint is one forecast day.
type PredictionPoint struct {
	Date            Date           `json:"date"`
	PredictedCases  float64        `json:"predicted_cases"`
	RawPrediction   *float64       `json:"raw_prediction,omitempty"`
	TrendPercentage float64        `json:"trend_percentage"`
	TrendDirection  TrendDirection `json:"trend_direction"`
}

// TrendDirection is the three-way drift classification shown on the
// dashboard. The French labels are part of the wire contract.
type TrendDirection string

const (
	TrendUp     TrendDirection = "Hausse"
	TrendDown   TrendDirection = "Baisse"
	TrendStable TrendDirection = "Stable"
)

// ClassifyTrend computes the percentage drift of predicted relative to the
// last real observation and classifies it: Hausse above +1%, Baisse below
// -1%, Stable in between. The partition is exhaustive by construction.
func ClassifyTrend(predicted, baseline float64) (float64, TrendDirection) {
	var pct float64
	if baseline > 0 {
		pct = (predicted - baseline) / baseline * 100
	}
	switch {
	case pct > 1:
		return pct, TrendUp
	case pct < -1:
		return pct, TrendDown
	default:
		return pct, TrendStable
	}
}

// ModelMetrics are the static training-time scores attached to an artifact.
// They are recorded once at training and never recomputed while serving.
type ModelMetrics struct {
	RMSE         float64 `json:"rmse"`
	MAE          float64 `json:"mae"`
	R2           float64 `json:"r2"`
	TrainingTime float64 `json:"training_time"`
}
