// Package handlers provides HTTP handlers for discrete allocation.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"portfolio-optimizer/internal/modules/allocation"
)

// Handler handles allocation HTTP requests.
type Handler struct {
	allocator *allocation.Allocator
	log       zerolog.Logger
}

// NewHandler creates a new allocation handler.
func NewHandler(allocator *allocation.Allocator, log zerolog.Logger) *Handler {
	return &Handler{
		allocator: allocator,
		log:       log.With().Str("handler", "allocation").Logger(),
	}
}

// RegisterRoutes registers all allocation routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/allocation", func(r chi.Router) {
		r.Post("/discrete", h.HandleDiscreteAllocation)
	})
}

type discreteRequest struct {
	Weights map[string]float64 `json:"weights"`
	Prices  map[string]float64 `json:"prices"`
	Budget  float64            `json:"budget"`
}

// HandleDiscreteAllocation handles POST /api/allocation/discrete.
func (h *Handler) HandleDiscreteAllocation(w http.ResponseWriter, r *http.Request) {
	var req discreteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Weights) == 0 {
		http.Error(w, "weights are required", http.StatusBadRequest)
		return
	}

	plan, err := h.allocator.Allocate(req.Weights, req.Prices, req.Budget)
	if err != nil {
		h.log.Warn().Err(err).Msg("Discrete allocation failed")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"plan": plan,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
	h.writeJSON(w, http.StatusOK, response)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}
