package optimization

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFrontierInputs() (map[string]float64, [][]float64, []string) {
	expectedReturns := map[string]float64{
		"AAA": 0.12,
		"BBB": 0.08,
		"CCC": 0.10,
	}
	cov := [][]float64{
		{0.04, 0.01, 0.005},
		{0.01, 0.03, 0.008},
		{0.005, 0.008, 0.025},
	}
	tickers := []string{"AAA", "BBB", "CCC"}
	return expectedReturns, cov, tickers
}

func TestBuildFrontier_GridSpansExpectedReturns(t *testing.T) {
	expectedReturns, cov, tickers := testFrontierInputs()

	builder := NewFrontierBuilder(NewSolver(testLogger()), testLogger())
	result, err := builder.BuildFrontier(expectedReturns, cov, tickers, 10)

	require.NoError(t, err)
	require.Len(t, result.Points, 10)
	assert.Equal(t, "mean_variance", result.Algorithm)
	assert.NotEmpty(t, result.RunID)

	// Endpoints are min(mu) and max(mu); targets ascend.
	assert.InDelta(t, 0.08, result.Points[0].TargetReturn, 1e-12)
	assert.InDelta(t, 0.12, result.Points[9].TargetReturn, 1e-12)
	for i := 1; i < len(result.Points); i++ {
		assert.Greater(t, result.Points[i].TargetReturn, result.Points[i-1].TargetReturn)
	}
}

func TestBuildFrontier_NoDegradedPointsOnFeasibleGrid(t *testing.T) {
	expectedReturns, cov, tickers := testFrontierInputs()

	builder := NewFrontierBuilder(NewSolver(testLogger()), testLogger())
	result, err := builder.BuildFrontier(expectedReturns, cov, tickers, 15)

	require.NoError(t, err)
	assert.Equal(t, 0, result.NumDegraded)
	for _, point := range result.Points {
		assert.False(t, point.Degraded)
		assert.InDelta(t, point.TargetReturn, pointReturn(point, expectedReturns, tickers), 1e-4)
	}
}

func pointReturn(p FrontierPoint, expectedReturns map[string]float64, tickers []string) float64 {
	ret := 0.0
	for i, ticker := range tickers {
		ret += p.Weights[i] * expectedReturns[ticker]
	}
	return ret
}

func TestBuildFrontier_VolatilityDipsThenRises(t *testing.T) {
	// Standard frontier shape: volatility is not monotonic across the whole
	// grid, but the highest-target point is at least as volatile as the
	// minimum observed.
	expectedReturns, cov, tickers := testFrontierInputs()

	builder := NewFrontierBuilder(NewSolver(testLogger()), testLogger())
	result, err := builder.BuildFrontier(expectedReturns, cov, tickers, 10)
	require.NoError(t, err)

	minVol := result.Points[0].Volatility
	for _, p := range result.Points {
		if p.Volatility < minVol {
			minVol = p.Volatility
		}
	}
	last := result.Points[len(result.Points)-1]
	assert.GreaterOrEqual(t, last.Volatility, minVol)
	for _, p := range result.Points {
		assert.Greater(t, p.Volatility, 0.0)
	}
}

func TestBuildFrontier_Deterministic(t *testing.T) {
	expectedReturns, cov, tickers := testFrontierInputs()

	builder := NewFrontierBuilder(NewSolver(testLogger()), testLogger())
	first, err := builder.BuildFrontier(expectedReturns, cov, tickers, 8)
	require.NoError(t, err)
	second, err := builder.BuildFrontier(expectedReturns, cov, tickers, 8)
	require.NoError(t, err)

	require.Len(t, second.Points, len(first.Points))
	for i := range first.Points {
		assert.Equal(t, first.Points[i].TargetReturn, second.Points[i].TargetReturn)
		for j := range first.Points[i].Weights {
			assert.InDelta(t, first.Points[i].Weights[j], second.Points[i].Weights[j], 1e-12)
		}
	}
}

func TestBuildFrontierOnGrid_DegradesInfeasibleTargets(t *testing.T) {
	_, cov, tickers := testFrontierInputs()
	mu := []float64{0.12, 0.08, 0.10}

	// 0.30 lies outside [0.08, 0.12] and must come back as a flagged
	// equal-weight point, not vanish.
	targets := []float64{0.10, 0.30}

	builder := NewFrontierBuilder(NewSolver(testLogger()), testLogger())
	result, err := builder.BuildFrontierOnGrid(mu, targets, cov, tickers, "mean_variance")
	require.NoError(t, err)
	require.Len(t, result.Points, 2)

	assert.False(t, result.Points[0].Degraded)

	degraded := result.Points[1]
	assert.True(t, degraded.Degraded)
	assert.NotEmpty(t, degraded.DegradedReason)
	assert.Equal(t, 1, result.NumDegraded)
	for _, w := range degraded.Weights {
		assert.InDelta(t, 1.0/3.0, w, 1e-12)
	}
	assert.InDelta(t, PortfolioVolatility(degraded.Weights, cov), degraded.Volatility, 1e-12)
}

func TestBuildFrontier_DimensionMismatch(t *testing.T) {
	expectedReturns, cov, _ := testFrontierInputs()

	builder := NewFrontierBuilder(NewSolver(testLogger()), testLogger())

	// Ticker with no expected return.
	_, err := builder.BuildFrontier(expectedReturns, cov, []string{"AAA", "BBB", "ZZZ"}, 5)
	require.Error(t, err)
	var mismatch *DimensionMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Contains(t, mismatch.Missing, "ZZZ")

	// Covariance too small.
	_, err = builder.BuildFrontier(expectedReturns, cov[:2], []string{"AAA", "BBB", "CCC"}, 5)
	require.Error(t, err)
	require.ErrorAs(t, err, &mismatch)
}

func TestTargetGrid(t *testing.T) {
	targets, err := targetGrid(0.08, 0.12, 5)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.08, 0.09, 0.1, 0.11, 0.12}, targets, 1e-12)

	targets, err = targetGrid(0.08, 0.12, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.08}, targets)

	_, err = targetGrid(0.08, 0.12, 0)
	require.Error(t, err)
}

func TestResult_WeightsByTicker(t *testing.T) {
	result := &Result{
		Tickers: []string{"AAA", "BBB"},
		Points: []FrontierPoint{
			{Weights: []float64{0.99995, 5e-5}},
		},
	}

	weights := result.WeightsByTicker(0)
	assert.Equal(t, 0.99995, weights["AAA"])
	assert.Equal(t, 0.0, weights["BBB"], "tiny weights are cleaned to zero")
}
