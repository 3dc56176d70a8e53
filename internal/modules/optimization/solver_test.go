package optimization

import (
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestSolver_TwoAssetClosedForm(t *testing.T) {
	// Two uncorrelated assets with equal variance: the minimum-variance
	// portfolio at the midpoint target is the 50/50 split.
	mu := []float64{0.12, 0.08}
	cov := [][]float64{
		{0.04, 0.0},
		{0.0, 0.04},
	}

	solver := NewSolver(testLogger())
	weights, err := solver.MinimizeVariance(mu, 0.10, symFromSlice(cov))

	require.NoError(t, err)
	require.Len(t, weights, 2)
	assert.InDelta(t, 0.5, weights[0], 1e-3)
	assert.InDelta(t, 0.5, weights[1], 1e-3)
}

func TestSolver_TwoAssetMidpointTarget(t *testing.T) {
	// With two assets the equality constraints alone pin the weights:
	// 0.10w0 + 0.20w1 = 0.15 and w0 + w1 = 1 force the 50/50 split
	// regardless of the covariance structure.
	mu := []float64{0.10, 0.20}
	cov := [][]float64{
		{0.04, 0.01},
		{0.01, 0.09},
	}

	solver := NewSolver(testLogger())
	weights, err := solver.MinimizeVariance(mu, 0.15, symFromSlice(cov))

	require.NoError(t, err)
	assert.InDelta(t, 0.5, weights[0], 1e-3)
	assert.InDelta(t, 0.5, weights[1], 1e-3)
}

func TestSolver_ConstraintsSatisfiedExactly(t *testing.T) {
	mu := []float64{0.12, 0.08, 0.10}
	cov := [][]float64{
		{0.04, 0.01, 0.005},
		{0.01, 0.03, 0.008},
		{0.005, 0.008, 0.025},
	}

	solver := NewSolver(testLogger())
	targets := []float64{0.085, 0.10, 0.115}
	for _, target := range targets {
		weights, err := solver.MinimizeVariance(mu, target, symFromSlice(cov))
		require.NoError(t, err)

		sum := 0.0
		for _, w := range weights {
			sum += w
			assert.GreaterOrEqual(t, w, 0.0, "weights should be non-negative")
			assert.LessOrEqual(t, w, 1.0, "weights should be <= 1")
		}
		assert.InDelta(t, 1.0, sum, WeightSumTolerance, "weights should sum to 1")
		assert.InDelta(t, target, PortfolioReturn(weights, mu), 1e-4, "achieved return should match target")
	}
}

func TestSolver_TargetOutsideRange(t *testing.T) {
	mu := []float64{0.12, 0.08}
	cov := [][]float64{
		{0.04, 0.01},
		{0.01, 0.03},
	}

	solver := NewSolver(testLogger())

	tests := []struct {
		name   string
		target float64
	}{
		{"above max", 0.20},
		{"below min", 0.02},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := solver.MinimizeVariance(mu, tt.target, symFromSlice(cov))
			require.Error(t, err)

			var infeasible *InfeasibleTargetError
			require.True(t, errors.As(err, &infeasible))
			assert.Equal(t, ReasonTargetOutsideRange, infeasible.Reason)
			assert.Equal(t, tt.target, infeasible.Target)
		})
	}
}

func TestSolver_EndpointTargets(t *testing.T) {
	// Targets at the extremes of mu are feasible: the solution concentrates
	// in the extreme asset.
	mu := []float64{0.12, 0.08}
	cov := [][]float64{
		{0.04, 0.01},
		{0.01, 0.03},
	}

	solver := NewSolver(testLogger())

	weights, err := solver.MinimizeVariance(mu, 0.12, symFromSlice(cov))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, weights[0], 1e-3)

	weights, err = solver.MinimizeVariance(mu, 0.08, symFromSlice(cov))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, weights[1], 1e-3)
}

func TestSolver_EqualExpectedReturns(t *testing.T) {
	// All assets share one expected return: any target equal to it is
	// feasible and the constraint projection degenerates to the sum
	// constraint only.
	mu := []float64{0.10, 0.10, 0.10}
	cov := [][]float64{
		{0.04, 0.0, 0.0},
		{0.0, 0.02, 0.0},
		{0.0, 0.0, 0.08},
	}

	solver := NewSolver(testLogger())
	weights, err := solver.MinimizeVariance(mu, 0.10, symFromSlice(cov))
	require.NoError(t, err)

	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, WeightSumTolerance)

	// Lowest-variance asset should carry the most weight.
	assert.Greater(t, weights[1], weights[0])
	assert.Greater(t, weights[0], weights[2])
}

func TestCleanWeights(t *testing.T) {
	weights := []float64{0.5, 1e-5, 0.49999, -1e-6}
	cleaned := CleanWeights(weights)

	assert.Equal(t, 0.5, cleaned[0])
	assert.Equal(t, 0.0, cleaned[1])
	assert.Equal(t, 0.49999, cleaned[2])
	assert.Equal(t, 0.0, cleaned[3])

	// Original is untouched.
	assert.Equal(t, 1e-5, weights[1])
}

func TestPortfolioVolatility(t *testing.T) {
	cov := [][]float64{
		{0.04, 0.01},
		{0.01, 0.03},
	}
	weights := []float64{0.5, 0.5}

	// w'Σw = 0.25*0.04 + 2*0.25*0.01 + 0.25*0.03 = 0.0225
	assert.InDelta(t, math.Sqrt(0.0225), PortfolioVolatility(weights, cov), 1e-12)
}

func TestSolve_MinVolatility(t *testing.T) {
	mu := []float64{0.12, 0.08}
	cov := [][]float64{
		{0.09, 0.0},
		{0.0, 0.01},
	}

	solver := NewSolver(testLogger())
	weights, err := solver.Solve(MinVolatility(), mu, symFromSlice(cov))
	require.NoError(t, err)

	sum := weights[0] + weights[1]
	assert.InDelta(t, 1.0, sum, WeightSumTolerance)
	// Closed form for two uncorrelated assets: w0 = σ1²/(σ0²+σ1²) = 0.1.
	assert.InDelta(t, 0.1, weights[0], 1e-2)
}

func TestSolve_MaxSharpe(t *testing.T) {
	mu := []float64{0.12, 0.08}
	cov := [][]float64{
		{0.04, 0.01},
		{0.01, 0.03},
	}

	solver := NewSolver(testLogger())
	weights, err := solver.Solve(MaxSharpe(DefaultRiskFreeRate), mu, symFromSlice(cov))
	require.NoError(t, err)

	sum := weights[0] + weights[1]
	assert.InDelta(t, 1.0, sum, WeightSumTolerance)
	for _, w := range weights {
		assert.GreaterOrEqual(t, w, 0.0)
		assert.LessOrEqual(t, w, 1.0)
	}

	// The max-Sharpe portfolio should not be dominated: its Sharpe ratio is
	// at least that of either single asset.
	sharpe := (PortfolioReturn(weights, mu) - DefaultRiskFreeRate) / PortfolioVolatility(weights, cov)
	sharpeA := (0.12 - DefaultRiskFreeRate) / math.Sqrt(0.04)
	sharpeB := (0.08 - DefaultRiskFreeRate) / math.Sqrt(0.03)
	assert.GreaterOrEqual(t, sharpe+1e-6, math.Max(sharpeA, sharpeB))
}

func TestSolve_TargetVolatilityInfeasible(t *testing.T) {
	// No long-only portfolio of these assets reaches 50% volatility.
	mu := []float64{0.12, 0.08}
	cov := [][]float64{
		{0.04, 0.01},
		{0.01, 0.03},
	}

	solver := NewSolver(testLogger())
	_, err := solver.Solve(TargetVolatility(0.50), mu, symFromSlice(cov))
	require.Error(t, err)

	var infeasible *InfeasibleTargetError
	require.True(t, errors.As(err, &infeasible))
	assert.Equal(t, ReasonTargetOutsideRange, infeasible.Reason)
}

func TestSolve_TargetVolatilityFeasible(t *testing.T) {
	mu := []float64{0.12, 0.08}
	cov := [][]float64{
		{0.04, 0.01},
		{0.01, 0.03},
	}

	solver := NewSolver(testLogger())
	weights, err := solver.Solve(TargetVolatility(0.18), mu, symFromSlice(cov))
	require.NoError(t, err)

	assert.InDelta(t, 0.18, PortfolioVolatility(weights, cov), 1e-2)
	assert.InDelta(t, 1.0, weights[0]+weights[1], WeightSumTolerance)
}
