// Package handlers provides HTTP handlers for price history operations.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"portfolio-optimizer/internal/modules/history"
)

// Handler handles price history HTTP requests.
type Handler struct {
	historyDB *history.HistoryDB
	log       zerolog.Logger
}

// NewHandler creates a new history handler.
func NewHandler(historyDB *history.HistoryDB, log zerolog.Logger) *Handler {
	return &Handler{
		historyDB: historyDB,
		log:       log.With().Str("handler", "history").Logger(),
	}
}

// RegisterRoutes registers all history routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/history", func(r chi.Router) {
		r.Get("/prices/{ticker}", func(w http.ResponseWriter, r *http.Request) {
			h.HandleGetDailyPrices(w, r, chi.URLParam(r, "ticker"))
		})
		r.Post("/prices/{ticker}", func(w http.ResponseWriter, r *http.Request) {
			h.HandleSavePrices(w, r, chi.URLParam(r, "ticker"))
		})
	})
}

// HandleGetDailyPrices handles GET /api/history/prices/{ticker}.
func (h *Handler) HandleGetDailyPrices(w http.ResponseWriter, r *http.Request, ticker string) {
	limit := 100
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}

	prices, err := h.historyDB.GetDailyPrices(ticker, limit)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to get daily prices")
		http.Error(w, "Failed to get daily prices", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"ticker": ticker,
			"prices": prices,
			"count":  len(prices),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
	h.writeJSON(w, http.StatusOK, response)
}

// HandleSavePrices handles POST /api/history/prices/{ticker}. The body is a
// JSON array of daily closes; existing dates are upserted.
func (h *Handler) HandleSavePrices(w http.ResponseWriter, r *http.Request, ticker string) {
	var prices []history.DailyPrice
	if err := json.NewDecoder(r.Body).Decode(&prices); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(prices) == 0 {
		http.Error(w, "No prices provided", http.StatusBadRequest)
		return
	}

	if err := h.historyDB.SavePrices(ticker, prices); err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to save prices")
		http.Error(w, "Failed to save prices", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"ticker": ticker,
			"saved":  len(prices),
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
