package optimization

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// FrontierBuilder sweeps a range of target returns through the quadratic
// solver to construct the efficient frontier. Deterministic: identical inputs
// produce identical points.
type FrontierBuilder struct {
	solver *Solver
	log    zerolog.Logger
}

// NewFrontierBuilder creates a new frontier builder.
func NewFrontierBuilder(solver *Solver, log zerolog.Logger) *FrontierBuilder {
	return &FrontierBuilder{
		solver: solver,
		log:    log.With().Str("component", "frontier").Logger(),
	}
}

// BuildFrontier constructs an efficient frontier with numPoints target
// returns evenly spaced over [min(mu), max(mu)], endpoints included. The
// result always carries exactly numPoints entries: per-point infeasibility is
// recorded as a flagged equal-weight fallback, never dropped silently.
func (fb *FrontierBuilder) BuildFrontier(
	expectedReturns map[string]float64,
	cov [][]float64,
	tickers []string,
	numPoints int,
) (*Result, error) {
	if err := validateDimensions(expectedReturns, cov, tickers); err != nil {
		return nil, err
	}

	mu := make([]float64, len(tickers))
	for i, ticker := range tickers {
		mu[i] = expectedReturns[ticker]
	}

	targets, err := targetGrid(floats.Min(mu), floats.Max(mu), numPoints)
	if err != nil {
		return nil, err
	}

	return fb.BuildFrontierOnGrid(mu, targets, cov, tickers, "mean_variance")
}

// BuildFrontierOnGrid runs the solver once per target on a fixed grid. The
// resampling engine uses this directly so the grid stays anchored to the
// shrunk mean rather than each sampled vector.
func (fb *FrontierBuilder) BuildFrontierOnGrid(
	mu []float64,
	targets []float64,
	cov [][]float64,
	tickers []string,
	algorithm string,
) (*Result, error) {
	n := len(tickers)
	if len(mu) != n {
		return nil, &DimensionMismatchError{Rows: len(mu), Tickers: n}
	}

	sigma := symFromSlice(cov)
	result := &Result{
		RunID:      uuid.New().String(),
		Algorithm:  algorithm,
		Tickers:    tickers,
		Points:     make([]FrontierPoint, 0, len(targets)),
		Covariance: cov,
		CreatedAt:  time.Now().UTC(),
	}

	for _, target := range targets {
		point := fb.solvePoint(mu, target, sigma, cov, n)
		if point.Degraded {
			result.NumDegraded++
		}
		result.Points = append(result.Points, point)
	}

	if result.NumDegraded > 0 {
		fb.log.Warn().
			Int("degraded_points", result.NumDegraded).
			Int("total_points", len(targets)).
			Str("run_id", result.RunID).
			Msg("Frontier contains degraded points (equal-weight fallback)")
	}

	return result, nil
}

// solvePoint solves a single frontier point, degrading to the equal-weight
// portfolio on infeasibility.
func (fb *FrontierBuilder) solvePoint(mu []float64, target float64, sigma *mat.SymDense, cov [][]float64, n int) FrontierPoint {
	weights, err := fb.solver.MinimizeVariance(mu, target, sigma)
	if err != nil {
		var infeasible *InfeasibleTargetError
		if !errors.As(err, &infeasible) {
			// Only infeasibility is recoverable; anything else should have
			// been caught by validation upstream.
			fb.log.Error().Err(err).Float64("target", target).Msg("Unexpected solver error")
		}
		equal := make([]float64, n)
		for i := range equal {
			equal[i] = 1.0 / float64(n)
		}
		fb.log.Warn().
			Err(err).
			Float64("target", target).
			Msg("Solver failed for target, recording equal-weight fallback")
		return FrontierPoint{
			TargetReturn:   target,
			Weights:        equal,
			Volatility:     PortfolioVolatility(equal, cov),
			Degraded:       true,
			DegradedReason: err.Error(),
		}
	}

	return FrontierPoint{
		TargetReturn: target,
		Weights:      weights,
		Volatility:   PortfolioVolatility(weights, cov),
	}
}

// targetGrid returns numPoints evenly spaced targets over [lo, hi], both
// endpoints included when numPoints >= 2.
func targetGrid(lo, hi float64, numPoints int) ([]float64, error) {
	if numPoints < 1 {
		return nil, fmt.Errorf("numPoints must be >= 1, got %d", numPoints)
	}
	if numPoints == 1 {
		return []float64{lo}, nil
	}
	targets := make([]float64, numPoints)
	floats.Span(targets, lo, hi)
	return targets, nil
}
