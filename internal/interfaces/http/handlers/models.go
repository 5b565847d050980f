package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/epitrack/epitrack/internal/domain"
	httpContracts "github.com/epitrack/epitrack/internal/http"
)

// Models lists a country's trained models with their training scores and
// the best model per metric. Unlike the prediction surfaces this endpoint
// reports reality: no models means 404, never a synthetic listing.
func (h *Handlers) Models(w http.ResponseWriter, r *http.Request) {
	country := domain.CanonicalCountry(mux.Vars(r)["country"])

	handles := h.registry.Handles(country)
	if len(handles) == 0 {
		h.writeError(w, r, http.StatusNotFound, "models_not_found",
			"No trained models for "+country)
		return
	}

	infos := make([]httpContracts.ModelInfo, 0, len(handles))
	for _, handle := range handles {
		infos = append(infos, httpContracts.ModelInfo{
			ModelName: string(handle.Kind),
			Metrics:   handle.Metrics,
		})
	}

	byRMSE, byMAE, byR2 := h.registry.Best(country)
	h.writeJSON(w, http.StatusOK, httpContracts.ModelsResponse{
		Country: country,
		Models:  infos,
		BestModels: httpContracts.BestModels{
			ByRMSE: string(byRMSE),
			ByMAE:  string(byMAE),
			ByR2:   string(byR2),
		},
	})
}
