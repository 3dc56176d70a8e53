package optimization

import (
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// feasibilityTolerance is the slack allowed when checking whether a target
// return lies inside [min(mu), max(mu)].
const feasibilityTolerance = 1e-9

// Solver finds the minimum-variance portfolio for a target return.
//
// Mathematical formulation:
//   - minimize w'Σw
//   - subject to Σw = 1 (fully invested)
//   - w'μ = target (meets the target exactly)
//   - 0 ≤ w_i ≤ 1 (long-only, no leverage)
//
// The equality and bound constraints are enforced with quadratic penalties on
// a smooth objective minimized by BFGS (Nelder-Mead retry on failure), seeded
// from the equal-weight vector. The solution is then polished onto the exact
// constraint set by alternating projections.
type Solver struct {
	penaltyWeight float64
	log           zerolog.Logger
}

// NewSolver creates a new quadratic solver.
func NewSolver(log zerolog.Logger) *Solver {
	return &Solver{
		penaltyWeight: 1000.0,
		log:           log.With().Str("component", "solver").Logger(),
	}
}

// MinimizeVariance solves for the weight vector minimizing portfolio variance
// at the given target return. mu and the covariance matrix share one ticker
// ordering. Returns InfeasibleTargetError when the target is outside
// [min(mu), max(mu)] or the optimizer fails to converge.
func (s *Solver) MinimizeVariance(mu []float64, target float64, sigma *mat.SymDense) ([]float64, error) {
	n := len(mu)
	minMu := floats.Min(mu)
	maxMu := floats.Max(mu)

	if target < minMu-feasibilityTolerance || target > maxMu+feasibilityTolerance {
		return nil, &InfeasibleTargetError{
			Target: target,
			Min:    minMu,
			Max:    maxMu,
			Reason: ReasonTargetOutsideRange,
		}
	}

	p := s.penaltyWeight
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			var variance float64
			for i := 0; i < n; i++ {
				for j := 0; j < n; j++ {
					variance += x[i] * x[j] * sigma.At(i, j)
				}
			}

			sum := 0.0
			ret := 0.0
			for i := 0; i < n; i++ {
				sum += x[i]
				ret += mu[i] * x[i]
			}

			obj := variance
			obj += p * (sum - 1.0) * (sum - 1.0)
			obj += p * (ret - target) * (ret - target)
			obj += boundPenalty(x, p)
			return obj
		},
		Grad: func(grad, x []float64) {
			sum := 0.0
			ret := 0.0
			for i := 0; i < n; i++ {
				sum += x[i]
				ret += mu[i] * x[i]
			}

			for i := 0; i < n; i++ {
				grad[i] = 0
				for j := 0; j < n; j++ {
					grad[i] += 2 * sigma.At(i, j) * x[j]
				}
				grad[i] += 2 * p * (sum - 1.0)
				grad[i] += 2 * p * (ret - target) * mu[i]
				grad[i] += boundPenaltyGrad(x[i], p)
			}
		},
	}

	x, err := s.runMinimize(problem, n, target, minMu, maxMu)
	if err != nil {
		return nil, err
	}

	return polishWeights(x, mu, target), nil
}

// runMinimize runs BFGS seeded from equal weights, retrying with Nelder-Mead
// when BFGS fails. Non-convergence maps to InfeasibleTargetError with a
// diagnostic sub-reason so callers can distinguish it in logs.
func (s *Solver) runMinimize(problem optimize.Problem, n int, target, minMu, maxMu float64) ([]float64, error) {
	initial := make([]float64, n)
	for i := range initial {
		initial[i] = 1.0 / float64(n)
	}

	result, err := optimize.Minimize(problem, initial, &optimize.Settings{}, &optimize.BFGS{})
	if err == nil && converged(result.Status) {
		return result.X, nil
	}

	detail := "bfgs failed"
	if err != nil {
		detail = err.Error()
	} else {
		detail = result.Status.String()
	}
	s.log.Debug().
		Str("bfgs_status", detail).
		Float64("target", target).
		Msg("BFGS did not converge, retrying with Nelder-Mead")

	result, err = optimize.Minimize(problem, initial, &optimize.Settings{}, &optimize.NelderMead{})
	if err != nil {
		return nil, &InfeasibleTargetError{
			Target: target, Min: minMu, Max: maxMu,
			Reason: ReasonNoConvergence,
			Detail: err.Error(),
		}
	}
	if !converged(result.Status) {
		return nil, &InfeasibleTargetError{
			Target: target, Min: minMu, Max: maxMu,
			Reason: ReasonNoConvergence,
			Detail: "status=" + result.Status.String(),
		}
	}

	return result.X, nil
}

func converged(status optimize.Status) bool {
	switch status {
	case optimize.Success, optimize.GradientThreshold, optimize.FunctionConvergence:
		return true
	default:
		return false
	}
}

// boundPenalty adds a smooth quadratic penalty for weights outside [0, 1].
func boundPenalty(x []float64, p float64) float64 {
	var penalty float64
	for _, xi := range x {
		if xi < 0 {
			penalty += p * xi * xi
		} else if xi > 1 {
			penalty += p * (xi - 1) * (xi - 1)
		}
	}
	return penalty
}

func boundPenaltyGrad(xi, p float64) float64 {
	if xi < 0 {
		return 2 * p * xi
	}
	if xi > 1 {
		return 2 * p * (xi - 1)
	}
	return 0
}

// polishWeights moves a near-feasible solution onto the exact constraint set
// by alternating projections between the affine set {Σw=1, w'μ=target} and
// the box [0,1]^n. Both sets are convex and their intersection is nonempty
// for any target inside [min(mu), max(mu)].
func polishWeights(x, mu []float64, target float64) []float64 {
	n := len(x)
	w := make([]float64, n)
	copy(w, x)

	sumMu := 0.0
	sumMuSq := 0.0
	for _, m := range mu {
		sumMu += m
		sumMuSq += m * m
	}
	det := float64(n)*sumMuSq - sumMu*sumMu

	for iter := 0; iter < 200; iter++ {
		if det > 1e-14 {
			// Exact projection onto both equality constraints.
			r1 := -1.0
			r2 := -target
			for i := 0; i < n; i++ {
				r1 += w[i]
				r2 += mu[i] * w[i]
			}
			alpha := (sumMuSq*r1 - sumMu*r2) / det
			beta := (float64(n)*r2 - sumMu*r1) / det
			for i := 0; i < n; i++ {
				w[i] -= alpha + beta*mu[i]
			}
		} else {
			// Degenerate case (all expected returns equal): the two
			// constraints coincide, project onto Σw=1 only.
			sum := 0.0
			for i := 0; i < n; i++ {
				sum += w[i]
			}
			shift := (sum - 1.0) / float64(n)
			for i := 0; i < n; i++ {
				w[i] -= shift
			}
		}

		clamped := false
		for i := 0; i < n; i++ {
			if w[i] < 0 {
				w[i] = 0
				clamped = true
			} else if w[i] > 1 {
				w[i] = 1
				clamped = true
			}
		}
		if !clamped {
			break
		}
	}

	return w
}

// CleanWeights zeroes weights below WeightZeroThreshold for reporting. The
// raw solved vector used for variance calculation must not be altered, so
// this always returns a copy.
func CleanWeights(weights []float64) []float64 {
	cleaned := make([]float64, len(weights))
	for i, w := range weights {
		if math.Abs(w) >= WeightZeroThreshold {
			cleaned[i] = w
		}
	}
	return cleaned
}

// PortfolioVolatility computes sqrt(w'Σw).
func PortfolioVolatility(weights []float64, cov [][]float64) float64 {
	var variance float64
	for i := range weights {
		for j := range weights {
			variance += weights[i] * weights[j] * cov[i][j]
		}
	}
	return math.Sqrt(math.Max(variance, 0))
}

// PortfolioReturn computes w'μ.
func PortfolioReturn(weights, mu []float64) float64 {
	var ret float64
	for i := range weights {
		ret += weights[i] * mu[i]
	}
	return ret
}

// symFromSlice converts a [][]float64 covariance matrix into a gonum
// symmetric matrix.
func symFromSlice(cov [][]float64) *mat.SymDense {
	n := len(cov)
	sigma := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sigma.SetSym(i, j, cov[i][j])
		}
	}
	return sigma
}
