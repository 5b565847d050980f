// Package handlers implements the prediction API endpoints. Every surface
// follows the same degradation rule: real data, then model inference, then
// synthetic generation, and a response is always produced with is_simulated
// marking anything generated.
package handlers

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"time"

	"github.com/epitrack/epitrack/internal/domain"
	httpContracts "github.com/epitrack/epitrack/internal/http"
	"github.com/epitrack/epitrack/internal/models"
	"github.com/epitrack/epitrack/internal/predict"
	"github.com/epitrack/epitrack/internal/store"
)

// Handlers manages all HTTP endpoint handlers.
type Handlers struct {
	store    store.HistoryStore
	registry *models.Registry
	engine   *predict.Engine
	policy   domain.QualityPolicy
	metrics  *httpContracts.Metrics

	// newRand is swapped for a fixed seed in tests.
	newRand func() *rand.Rand
}

// NewHandlers wires the handler set to its dependencies.
func NewHandlers(s store.HistoryStore, registry *models.Registry, engine *predict.Engine, policy domain.QualityPolicy, metrics *httpContracts.Metrics) *Handlers {
	return &Handlers{
		store:    s,
		registry: registry,
		engine:   engine,
		policy:   policy,
		metrics:  metrics,
		newRand:  domain.NewRand,
	}
}

// SetRandSource overrides the generator seed source (tests only).
func (h *Handlers) SetRandSource(newRand func() *rand.Rand) {
	h.newRand = newRand
}

// writeJSON writes a JSON response with proper error handling.
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, `{"error":"json_encoding_failed"}`, http.StatusInternalServerError)
	}
}

// writeError writes the standardized error envelope.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	requestID, _ := r.Context().Value("request_id").(string)
	if requestID == "" {
		requestID = "unknown"
	}

	h.writeJSON(w, status, httpContracts.ErrorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		Code:      code,
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
	})
}

// NotFound handles 404 responses for unrouted paths.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	h.writeError(w, r, http.StatusNotFound, "endpoint_not_found",
		"The requested endpoint does not exist")
}
