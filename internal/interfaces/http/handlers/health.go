package handlers

import (
	"net/http"
	"time"

	httpContracts "github.com/epitrack/epitrack/internal/http"
)

// Health reports liveness plus what this instance can serve. The service is
// healthy even with no data and no models; the fallback pipeline still
// produces responses.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	countries, err := h.store.Countries(r.Context())
	dataAvailable := err == nil && len(countries) > 0

	h.writeJSON(w, http.StatusOK, httpContracts.HealthResponse{
		Status:         "healthy",
		Timestamp:      time.Now().UTC(),
		DataAvailable:  dataAvailable,
		ModelCountries: len(h.registry.Countries()),
	})
}
