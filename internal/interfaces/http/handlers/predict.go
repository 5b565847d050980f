package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/epitrack/epitrack/internal/domain"
	httpContracts "github.com/epitrack/epitrack/internal/http"
	"github.com/epitrack/epitrack/internal/predict"
)

const (
	defaultHorizon         = 14
	defaultHorizonEnhanced = 30
)

// Predict serves a forecast for a country. Query parameters: days (default
// 14) and model_type (default xgboost). Missing data or models never fail
// the request; the response degrades to synthetic output instead.
func (h *Handlers) Predict(w http.ResponseWriter, r *http.Request) {
	kindParam := r.URL.Query().Get("model_type")
	kind := domain.KindXGBoost
	if kindParam != "" {
		parsed, err := domain.ParseModelKind(kindParam)
		if err != nil {
			h.writeError(w, r, http.StatusBadRequest, "invalid_model_type",
				"Unknown model_type "+strconv.Quote(kindParam))
			return
		}
		kind = parsed
	}

	h.predict(w, r, kind, defaultHorizon)
}

// PredictEnhanced serves the smoothed deep-learning forecast with a longer
// default and maximum horizon.
func (h *Handlers) PredictEnhanced(w http.ResponseWriter, r *http.Request) {
	h.predict(w, r, domain.KindEnhanced, defaultHorizonEnhanced)
}

func (h *Handlers) predict(w http.ResponseWriter, r *http.Request, kind domain.ModelKind, defaultDays int) {
	country := domain.CanonicalCountry(mux.Vars(r)["country"])

	days := defaultDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, r, http.StatusBadRequest, "invalid_days",
				"days must be an integer")
			return
		}
		days = parsed
	}
	days = predict.ClampHorizon(days, kind)

	series, err := h.store.History(r.Context(), country, nil, nil)
	haveHistory := err == nil && h.policy.AcceptHistory(series.Points, 1)

	if haveHistory {
		forecast, err := h.engine.Predict(r.Context(), country, series.Points, days, kind)
		if err == nil && h.policy.AcceptForecast(forecast.Points, days) {
			h.writeJSON(w, http.StatusOK, httpContracts.PredictResponse{
				Country:     country,
				Predictions: forecast.Points,
				ModelUsed:   string(forecast.Kind),
				Metrics:     &forecast.Metrics,
				IsSimulated: false,
			})
			return
		}
	}

	// No usable history, no model, or degenerate model output: generate a
	// forecast anchored on the last known (or generated) day.
	h.metrics.RecordSynthetic("predict")
	rng := h.newRand()

	var last domain.TimeSeriesPoint
	if haveHistory {
		last = series.Points[len(series.Points)-1]
	} else {
		history := domain.GenerateHistory(rng, country, h.policy.HistoryWindow(1), domain.Yesterday())
		last = history[len(history)-1]
	}

	h.writeJSON(w, http.StatusOK, httpContracts.PredictResponse{
		Country:     country,
		Predictions: domain.GenerateForecast(rng, last, days, kind),
		ModelUsed:   "synthetic",
		IsSimulated: true,
	})
}
