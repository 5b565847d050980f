package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/epitrack/epitrack/internal/domain"
	httpContracts "github.com/epitrack/epitrack/internal/http"
	"github.com/epitrack/epitrack/internal/store"
)

const maxCompareCountries = 10

// Compare serves side-by-side statistics over one observed metric for
// several countries. Substitution is per-country: a country with no usable
// data gets a generated series while the others stay real.
func (h *Handlers) Compare(w http.ResponseWriter, r *http.Request) {
	var req httpContracts.CompareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid_request",
			"Request body must be valid JSON")
		return
	}
	if len(req.Countries) == 0 {
		h.writeError(w, r, http.StatusBadRequest, "no_countries",
			"At least one country is required")
		return
	}
	if len(req.Countries) > maxCompareCountries {
		h.writeError(w, r, http.StatusBadRequest, "too_many_countries",
			"At most 10 countries can be compared")
		return
	}

	metric := domain.DefaultSeriesMetric
	if req.Metric != "" {
		parsed, err := domain.ParseSeriesMetric(req.Metric)
		if err != nil {
			h.writeError(w, r, http.StatusBadRequest, "invalid_metric",
				"metric must be one of total_cases, total_deaths, new_cases, new_deaths")
			return
		}
		metric = parsed
	}

	var from, to *domain.Date
	if req.StartDate != "" {
		d, err := domain.ParseDate(req.StartDate)
		if err != nil {
			h.writeError(w, r, http.StatusBadRequest, "invalid_start_date",
				"start_date must be YYYY-MM-DD")
			return
		}
		from = &d
	}
	if req.EndDate != "" {
		d, err := domain.ParseDate(req.EndDate)
		if err != nil {
			h.writeError(w, r, http.StatusBadRequest, "invalid_end_date",
				"end_date must be YYYY-MM-DD")
			return
		}
		to = &d
	}

	want := 1
	if from != nil && to != nil {
		if to.Time.Before(from.Time) {
			h.writeError(w, r, http.StatusBadRequest, "invalid_date_range",
				"end_date must not be before start_date")
			return
		}
		want = from.DaysUntil(*to) + 1
	}

	end := domain.Yesterday()
	if to != nil {
		end = *to
	}

	comparison := make([]httpContracts.CompareEntry, 0, len(req.Countries))
	countries := make([]string, 0, len(req.Countries))
	for _, raw := range req.Countries {
		country := domain.CanonicalCountry(raw)
		countries = append(countries, country)

		series, err := h.store.History(r.Context(), country, from, to)
		if err == nil && h.policy.AcceptHistory(series.Points, want) {
			comparison = append(comparison, compareEntry(country, series.Points, metric, false))
			continue
		}
		if err != nil && !errors.Is(err, store.ErrNoData) && !errors.Is(err, store.ErrCountryNotFound) {
			h.writeError(w, r, http.StatusInternalServerError, "data_unavailable",
				"Failed to load historical data")
			return
		}

		h.metrics.RecordSynthetic("compare")
		points := domain.GenerateHistory(h.newRand(), country, h.policy.HistoryWindow(want), end)
		comparison = append(comparison, compareEntry(country, points, metric, true))
	}

	h.writeJSON(w, http.StatusOK, httpContracts.CompareResponse{
		Comparison: comparison,
		Metric:     string(metric),
		Countries:  countries,
		DateRange: httpContracts.CompareDateRange{
			Start: req.StartDate,
			End:   req.EndDate,
		},
	})
}

func compareEntry(country string, points []domain.TimeSeriesPoint, metric domain.SeriesMetric, simulated bool) httpContracts.CompareEntry {
	data, stats := metricSeries(points, metric)
	return httpContracts.CompareEntry{
		Country:     country,
		Data:        data,
		Count:       len(data),
		Metric:      string(metric),
		Statistics:  stats,
		IsSimulated: simulated,
	}
}

// metricSeries projects a series onto the compared metric and summarizes it.
func metricSeries(points []domain.TimeSeriesPoint, metric domain.SeriesMetric) ([]httpContracts.MetricPoint, httpContracts.SeriesStatistics) {
	if len(points) == 0 {
		return nil, httpContracts.SeriesStatistics{}
	}

	data := make([]httpContracts.MetricPoint, len(points))
	stats := httpContracts.SeriesStatistics{
		Min: metric.Value(points[0]),
		Max: metric.Value(points[0]),
	}
	for i, p := range points {
		v := metric.Value(p)
		data[i] = httpContracts.MetricPoint{Date: p.Date, Value: v}
		if v < stats.Min {
			stats.Min = v
		}
		if v > stats.Max {
			stats.Max = v
		}
		stats.Total += v
	}
	stats.Mean = stats.Total / float64(len(points))
	return data, stats
}
