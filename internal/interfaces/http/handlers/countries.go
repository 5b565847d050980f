package handlers

import (
	"errors"
	"net/http"

	httpContracts "github.com/epitrack/epitrack/internal/http"
	"github.com/epitrack/epitrack/internal/store"
)

// Countries lists every country present in the historical data alongside
// the subset that has trained models. A missing data file is served as an
// empty list, not an error: the modeled countries remain useful.
func (h *Handlers) Countries(w http.ResponseWriter, r *http.Request) {
	all, err := h.store.Countries(r.Context())
	if err != nil {
		if !errors.Is(err, store.ErrNoData) {
			h.writeError(w, r, http.StatusInternalServerError, "data_unavailable",
				"Failed to load historical data")
			return
		}
		all = []string{}
	}

	withModels := h.registry.Countries()

	h.writeJSON(w, http.StatusOK, httpContracts.CountriesResponse{
		AllCountries:        all,
		CountriesWithModels: withModels,
		Count:               len(all),
		CountWithModels:     len(withModels),
	})
}
