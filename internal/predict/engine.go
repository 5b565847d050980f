// Package predict turns trained artifacts into multi-day forecasts. The
// engine walks forward one day at a time, feeding each raw prediction back
// into the lag features for the next day.
package predict

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/epitrack/epitrack/internal/domain"
	"github.com/epitrack/epitrack/internal/models"
)

// Horizon bounds. The enhanced path tolerates long horizons because its
// smoothing damps the feedback loop; the standard families diverge past a
// month of autoregression.
const (
	MaxHorizon         = 30
	MaxHorizonEnhanced = 365
)

// Smoothing factor for the enhanced path's exponential moving average.
const enhancedAlpha = 0.3

// Forecast is the engine's output: the resolved model (which may differ
// from the requested kind after fallback), its training metrics and one
// prediction per day.
type Forecast struct {
	Points  []domain.PredictionPoint
	Kind    domain.ModelKind
	Metrics domain.ModelMetrics
}

// Engine evaluates registry artifacts over historical series.
type Engine struct {
	registry *models.Registry
}

// NewEngine creates an engine over the given registry.
func NewEngine(registry *models.Registry) *Engine {
	return &Engine{registry: registry}
}

// ClampHorizon bounds a requested horizon to what the engine will walk.
func ClampHorizon(horizon int, kind domain.ModelKind) int {
	max := MaxHorizon
	if kind == domain.KindEnhanced {
		max = MaxHorizonEnhanced
	}
	if horizon < 1 {
		return 1
	}
	if horizon > max {
		return max
	}
	return horizon
}

// Predict forecasts the next horizon days for a country from its history.
// The returned error is either models.ErrModelNotFound (no artifact after
// the fallback chain) or a wrapped inference failure; in both cases the
// caller decides whether to substitute synthetic output.
func (e *Engine) Predict(ctx context.Context, country string, history []domain.TimeSeriesPoint, horizon int, kind domain.ModelKind) (*Forecast, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("%w: no history for %s", models.ErrInference, country)
	}

	handle, err := e.registry.Get(country, kind)
	if err != nil {
		return nil, err
	}
	if handle.Kind != kind {
		log.Debug().
			Str("country", country).
			Str("requested", string(kind)).
			Str("resolved", string(handle.Kind)).
			Msg("model fallback")
	}

	horizon = ClampHorizon(horizon, kind)

	// The walk operates on raw daily values; feeding smoothed output back
	// in would compound the damping.
	recent := make([]float64, len(history))
	for i, p := range history {
		recent[i] = float64(p.NewCases)
	}

	last := history[len(history)-1]
	baseline := float64(last.NewCases)
	smooth := kind == domain.KindEnhanced
	ema := baseline

	points := make([]domain.PredictionPoint, 0, horizon)
	for day := 1; day <= horizon; day++ {
		raw, err := handle.Infer(buildFeatures(recent))
		if err != nil {
			return nil, fmt.Errorf("inference failed for %s/%s on day %d: %w", country, handle.Kind, day, err)
		}
		if raw < 0 || math.IsNaN(raw) || math.IsInf(raw, 0) {
			raw = 0
		}
		recent = append(recent, raw)

		served := raw
		point := domain.PredictionPoint{Date: last.Date.AddDays(day)}
		if smooth {
			ema = enhancedAlpha*raw + (1-enhancedAlpha)*ema
			served = ema
			rawCopy := raw
			point.RawPrediction = &rawCopy
		}

		point.PredictedCases = served
		point.TrendPercentage, point.TrendDirection = domain.ClassifyTrend(served, baseline)
		points = append(points, point)
	}

	return &Forecast{Points: points, Kind: handle.Kind, Metrics: handle.Metrics}, nil
}

// buildFeatures assembles the fixed-size vector every artifact sees: seven
// daily lags newest first, the mean over those lags and the day-over-day
// growth rate. Short series zero-pad the missing lags.
func buildFeatures(recent []float64) []float64 {
	features := make([]float64, models.FeatureSize)

	n := len(recent)
	var sum float64
	count := 0
	for i := 0; i < 7; i++ {
		if idx := n - 1 - i; idx >= 0 {
			features[i] = recent[idx]
			sum += recent[idx]
			count++
		}
	}
	if count > 0 {
		features[7] = sum / float64(count)
	}
	if n >= 2 && recent[n-2] > 0 {
		features[8] = (recent[n-1] - recent[n-2]) / recent[n-2]
	}
	return features
}
