package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/epitrack/epitrack/internal/domain"
	httpContracts "github.com/epitrack/epitrack/internal/http"
	"github.com/epitrack/epitrack/internal/store"
)

// Historical serves one country's observed series, optionally bounded by
// start_date and end_date query parameters. When the data file is missing
// or the stored series fails the quality gate, a generated series is
// substituted and flagged; only a loaded file without the country is a 404.
func (h *Handlers) Historical(w http.ResponseWriter, r *http.Request) {
	country := domain.CanonicalCountry(mux.Vars(r)["country"])

	from, to, ok := h.parseDateRange(w, r)
	if !ok {
		return
	}

	// want is the requested window in days; 1 means unbounded.
	want := 1
	if from != nil && to != nil {
		if to.Time.Before(from.Time) {
			h.writeError(w, r, http.StatusBadRequest, "invalid_date_range",
				"end_date must not be before start_date")
			return
		}
		want = from.DaysUntil(*to) + 1
	}

	series, err := h.store.History(r.Context(), country, from, to)
	switch {
	case err == nil && h.policy.AcceptHistory(series.Points, want):
		h.writeJSON(w, http.StatusOK, historicalResponse(country, series.Points, false))
		return
	case errors.Is(err, store.ErrCountryNotFound):
		h.writeError(w, r, http.StatusNotFound, "country_not_found",
			"No historical data for "+country)
		return
	case err != nil && !errors.Is(err, store.ErrNoData):
		h.writeError(w, r, http.StatusInternalServerError, "data_unavailable",
			"Failed to load historical data")
		return
	}

	// No file, or the stored series failed the quality gate. Anchor the
	// generated series on the requested end date so bounded requests get
	// data inside the range they asked for.
	end := domain.Yesterday()
	if to != nil {
		end = *to
	}
	h.metrics.RecordSynthetic("historical")
	points := domain.GenerateHistory(h.newRand(), country, h.policy.HistoryWindow(want), end)
	h.writeJSON(w, http.StatusOK, historicalResponse(country, points, true))
}

func historicalResponse(country string, points []domain.TimeSeriesPoint, simulated bool) httpContracts.HistoricalResponse {
	resp := httpContracts.HistoricalResponse{
		Country:     country,
		Data:        points,
		Count:       len(points),
		IsSimulated: simulated,
	}
	if len(points) > 0 {
		resp.DateRange = &httpContracts.DateRange{
			From: points[0].Date.String(),
			To:   points[len(points)-1].Date.String(),
		}
	}
	return resp
}

// parseDateRange reads optional start_date/end_date query parameters,
// writing a 400 itself when either is malformed.
func (h *Handlers) parseDateRange(w http.ResponseWriter, r *http.Request) (from, to *domain.Date, ok bool) {
	query := r.URL.Query()

	if raw := query.Get("start_date"); raw != "" {
		d, err := domain.ParseDate(raw)
		if err != nil {
			h.writeError(w, r, http.StatusBadRequest, "invalid_start_date",
				"start_date must be YYYY-MM-DD")
			return nil, nil, false
		}
		from = &d
	}
	if raw := query.Get("end_date"); raw != "" {
		d, err := domain.ParseDate(raw)
		if err != nil {
			h.writeError(w, r, http.StatusBadRequest, "invalid_end_date",
				"end_date must be YYYY-MM-DD")
			return nil, nil, false
		}
		to = &d
	}
	return from, to, true
}
