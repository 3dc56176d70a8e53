package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-optimizer/internal/modules/history"
	"portfolio-optimizer/internal/modules/optimization"
)

type fakePriceLoader struct {
	table history.TimeSeriesData
}

func (f *fakePriceLoader) LoadTable(tickers []string, lookbackDays int) (history.TimeSeriesData, error) {
	return f.table, nil
}

func testTable(numDays int) history.TimeSeriesData {
	dates := make([]string, numDays)
	aaa := make([]float64, numDays)
	bbb := make([]float64, numDays)
	pa, pb := 100.0, 100.0
	for i := 0; i < numDays; i++ {
		dates[i] = fmt.Sprintf("2024-03-%02d", i+1)
		wave := math.Sin(float64(i))
		pa *= 1 + 0.0010 + 0.004*wave
		pb *= 1 + 0.0004 + 0.002*wave
		aaa[i] = pa
		bbb[i] = pb
	}
	return history.TimeSeriesData{
		Dates: dates,
		Data:  map[string][]float64{"AAA": aaa, "BBB": bbb},
	}
}

func newTestRouter(table history.TimeSeriesData) http.Handler {
	service := optimization.NewService(&fakePriceLoader{table: table}, zerolog.Nop())
	handler := NewHandler(service, zerolog.Nop())

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		handler.RegisterRoutes(r)
	})
	return r
}

func TestHandleGetStatus_NoResultYet(t *testing.T) {
	router := newTestRouter(testTable(25))

	req := httptest.NewRequest(http.MethodGet, "/api/optimizer", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			HasResult bool `json:"has_result"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Data.HasResult)
}

func TestHandleBuildFrontier(t *testing.T) {
	router := newTestRouter(testTable(25))

	payload, _ := json.Marshal(map[string]interface{}{
		"tickers":    []string{"AAA", "BBB"},
		"period":     "daily",
		"num_points": 5,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/optimizer/frontier", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			Result optimization.Result `json:"result"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Data.Result.Points, 5)
	assert.Equal(t, "mean_variance", body.Data.Result.Algorithm)

	// The run is now visible through the status endpoint.
	req = httptest.NewRequest(http.MethodGet, "/api/optimizer", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), body.Data.Result.RunID)
}

func TestHandleBuildFrontier_InvalidBody(t *testing.T) {
	router := newTestRouter(testTable(25))

	req := httptest.NewRequest(http.MethodPost, "/api/optimizer/frontier", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleBuildFrontier_InsufficientData(t *testing.T) {
	router := newTestRouter(testTable(1))

	payload, _ := json.Marshal(map[string]interface{}{
		"tickers":    []string{"AAA", "BBB"},
		"num_points": 5,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/optimizer/frontier", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "insufficient data")
}

func TestHandleOptimize(t *testing.T) {
	router := newTestRouter(testTable(25))

	payload, _ := json.Marshal(map[string]interface{}{
		"tickers":  []string{"AAA", "BBB"},
		"strategy": "min_volatility",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/optimizer/optimize", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			Portfolio optimization.Portfolio `json:"portfolio"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "min_volatility", body.Data.Portfolio.Strategy)

	sum := 0.0
	for _, w := range body.Data.Portfolio.Weights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-3)
}

func TestHandleResample(t *testing.T) {
	router := newTestRouter(testTable(25))

	// 25 daily observations only span one year bucket, so yearly returns
	// are insufficient and the request must fail cleanly.
	payload, _ := json.Marshal(map[string]interface{}{
		"tickers": []string{"AAA", "BBB"},
		"options": map[string]interface{}{
			"ShrinkageIntensity": 0.5,
			"NumSimulations":     4,
			"NumPoints":          3,
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/optimizer/resample", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
