// Package handlers provides HTTP handlers for optimization operations.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"portfolio-optimizer/internal/modules/optimization"
)

// Handler handles optimization HTTP requests.
type Handler struct {
	service *optimization.Service
	log     zerolog.Logger
}

// NewHandler creates a new optimization handler.
func NewHandler(service *optimization.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "optimization").Logger(),
	}
}

// HandleGetStatus handles GET /api/optimizer - returns the last frontier run.
func (h *Handler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	result, ok := h.service.LastResult()
	response := map[string]interface{}{
		"data": map[string]interface{}{
			"has_result": ok,
			"result":     result,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
	h.writeJSON(w, http.StatusOK, response)
}

// HandleBuildFrontier handles POST /api/optimizer/frontier.
func (h *Handler) HandleBuildFrontier(w http.ResponseWriter, r *http.Request) {
	var req optimization.FrontierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.service.BuildFrontier(req)
	if err != nil {
		h.writeDomainError(w, err, "Failed to build frontier")
		return
	}

	h.writeResult(w, result)
}

// HandleResample handles POST /api/optimizer/resample.
func (h *Handler) HandleResample(w http.ResponseWriter, r *http.Request) {
	var req optimization.ResampleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.service.Resample(req)
	if err != nil {
		h.writeDomainError(w, err, "Failed to run resampled frontier")
		return
	}

	h.writeResult(w, result)
}

// HandleOptimize handles POST /api/optimizer/optimize.
func (h *Handler) HandleOptimize(w http.ResponseWriter, r *http.Request) {
	var req optimization.OptimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	portfolio, err := h.service.Optimize(req)
	if err != nil {
		h.writeDomainError(w, err, "Failed to optimize portfolio")
		return
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"portfolio": portfolio,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
	h.writeJSON(w, http.StatusOK, response)
}

// HandleCompare handles POST /api/optimizer/compare.
func (h *Handler) HandleCompare(w http.ResponseWriter, r *http.Request) {
	var req optimization.OptimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	portfolios, err := h.service.CompareStrategies(req.Tickers, req.Period, req.LookbackDays)
	if err != nil {
		h.writeDomainError(w, err, "Failed to compare strategies")
		return
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"strategies": portfolios,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
	h.writeJSON(w, http.StatusOK, response)
}

func (h *Handler) writeResult(w http.ResponseWriter, result *optimization.Result) {
	response := map[string]interface{}{
		"data": map[string]interface{}{
			"result": result,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
	h.writeJSON(w, http.StatusOK, response)
}

// writeDomainError maps the optimization error taxonomy onto HTTP statuses:
// bad universes are client errors, everything else is a 500.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error, msg string) {
	var insufficient *optimization.InsufficientDataError
	var mismatch *optimization.DimensionMismatchError
	var infeasible *optimization.InfeasibleTargetError

	switch {
	case errors.As(err, &insufficient):
		h.log.Warn().Err(err).Msg(msg)
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.As(err, &mismatch):
		h.log.Warn().Err(err).Msg(msg)
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &infeasible):
		h.log.Warn().Err(err).Msg(msg)
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		h.log.Error().Err(err).Msg(msg)
		http.Error(w, msg, http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}
