package performance

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-optimizer/internal/modules/optimization"
)

func newTestEvaluator() *Evaluator {
	return NewEvaluator(0.02, zerolog.Nop())
}

func TestEvaluate(t *testing.T) {
	e := newTestEvaluator()

	weights := []float64{0.5, 0.5}
	mu := []float64{0.12, 0.08}
	cov := [][]float64{
		{0.04, 0.01},
		{0.01, 0.03},
	}

	m, err := e.Evaluate(weights, mu, cov)
	require.NoError(t, err)

	assert.InDelta(t, 0.10, m.ExpectedReturn, 1e-12)
	assert.InDelta(t, math.Sqrt(0.0225), m.Volatility, 1e-12)
	assert.InDelta(t, (0.10-0.02)/math.Sqrt(0.0225), m.SharpeRatio, 1e-12)
}

func TestEvaluate_ZeroVolatilityZeroSharpe(t *testing.T) {
	e := newTestEvaluator()

	m, err := e.Evaluate([]float64{1.0}, []float64{0.05}, [][]float64{{0}})
	require.NoError(t, err)

	assert.Equal(t, 0.0, m.Volatility)
	assert.Equal(t, 0.0, m.SharpeRatio, "zero volatility must not divide")
}

func TestEvaluate_DimensionMismatch(t *testing.T) {
	e := newTestEvaluator()

	_, err := e.Evaluate([]float64{0.5, 0.5}, []float64{0.1}, [][]float64{{0.04}})
	require.Error(t, err)

	var mismatch *optimization.DimensionMismatchError
	assert.ErrorAs(t, err, &mismatch)
}

func TestEvaluateHistorical_CompoundedGrowth(t *testing.T) {
	e := newTestEvaluator()

	returns := []float64{0.01, -0.02, 0.03}
	m := e.EvaluateHistorical(returns, 252)

	// 1.01 * 0.98 * 1.03 = 1.019494
	assert.InDelta(t, 1.019494-1, m.TotalReturn, 1e-9)
	assert.Equal(t, 3, m.Observations)
	assert.LessOrEqual(t, m.MaxDrawdown, 0.0)
	// The -2% period is the only decline from a peak.
	assert.InDelta(t, -0.02, m.MaxDrawdown, 1e-9)
}

func TestEvaluateHistorical_AnnualizedReturn(t *testing.T) {
	e := newTestEvaluator()

	// Twelve monthly returns of 1% compound to (1.01)^12 over exactly one
	// year, so the annualized return equals the total return.
	returns := make([]float64, 12)
	for i := range returns {
		returns[i] = 0.01
	}
	m := e.EvaluateHistorical(returns, 12)

	total := math.Pow(1.01, 12) - 1
	assert.InDelta(t, total, m.TotalReturn, 1e-9)
	assert.InDelta(t, total, m.AnnualizedReturn, 1e-9)
	assert.InDelta(t, 0.0, m.Volatility, 1e-12, "constant returns have zero volatility")
	assert.Equal(t, 0.0, m.SharpeRatio)
}

func TestEvaluateHistorical_Empty(t *testing.T) {
	e := newTestEvaluator()

	m := e.EvaluateHistorical(nil, 252)
	assert.Equal(t, HistoricalMetrics{}, m)
}

func TestPortfolioReturns(t *testing.T) {
	rs := optimization.ReturnSeries{
		Tickers: []string{"AAA", "BBB"},
		Periods: []string{"p1", "p2"},
		Data: map[string][]float64{
			"AAA": {0.10, -0.05},
			"BBB": {0.02, 0.04},
		},
	}

	returns := PortfolioReturns(rs, []float64{0.5, 0.5})
	require.Len(t, returns, 2)
	assert.InDelta(t, 0.06, returns[0], 1e-12)
	assert.InDelta(t, -0.005, returns[1], 1e-12)
}
