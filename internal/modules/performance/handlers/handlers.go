// Package handlers provides HTTP handlers for portfolio performance
// evaluation.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"portfolio-optimizer/internal/modules/optimization"
	"portfolio-optimizer/internal/modules/performance"
)

// Handler handles performance HTTP requests.
type Handler struct {
	evaluator *performance.Evaluator
	service   *optimization.Service
	log       zerolog.Logger
}

// NewHandler creates a new performance handler.
func NewHandler(evaluator *performance.Evaluator, service *optimization.Service, log zerolog.Logger) *Handler {
	return &Handler{
		evaluator: evaluator,
		service:   service,
		log:       log.With().Str("handler", "performance").Logger(),
	}
}

// RegisterRoutes registers all performance routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/performance", func(r chi.Router) {
		r.Post("/evaluate", h.HandleEvaluate)
	})
}

type evaluateRequest struct {
	Tickers      []string            `json:"tickers"`
	Weights      map[string]float64  `json:"weights"`
	Period       optimization.Period `json:"period"`
	LookbackDays int                 `json:"lookback_days"`
}

// HandleEvaluate handles POST /api/performance/evaluate. It reports both the
// model-implied metrics and the realized metrics the weight vector would have
// produced over the historical window.
func (h *Handler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Tickers) == 0 || len(req.Weights) == 0 {
		http.Error(w, "tickers and weights are required", http.StatusBadRequest)
		return
	}

	period := req.Period
	if period == "" {
		period = optimization.PeriodDaily
	}

	rs, expectedReturns, cov, err := h.service.Statistics(req.Tickers, period, req.LookbackDays)
	if err != nil {
		h.writeDomainError(w, err, "Failed to compute statistics")
		return
	}

	weights := make([]float64, len(rs.Tickers))
	mu := make([]float64, len(rs.Tickers))
	for i, ticker := range rs.Tickers {
		weights[i] = req.Weights[ticker]
		mu[i] = expectedReturns[ticker]
	}

	exAnte, err := h.evaluator.Evaluate(weights, mu, cov)
	if err != nil {
		h.writeDomainError(w, err, "Failed to evaluate portfolio")
		return
	}

	realized := h.evaluator.EvaluateHistorical(
		performance.PortfolioReturns(rs, weights),
		period.PeriodsPerYear(),
	)

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"expected":   exAnte,
			"historical": realized,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
	h.writeJSON(w, http.StatusOK, response)
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error, msg string) {
	var insufficient *optimization.InsufficientDataError
	var mismatch *optimization.DimensionMismatchError

	switch {
	case errors.As(err, &insufficient):
		h.log.Warn().Err(err).Msg(msg)
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.As(err, &mismatch):
		h.log.Warn().Err(err).Msg(msg)
		http.Error(w, err.Error(), http.StatusBadRequest)
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
