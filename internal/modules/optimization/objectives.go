package optimization

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// ObjectiveKind selects the optimization strategy.
type ObjectiveKind string

const (
	ObjectiveMaxSharpe        ObjectiveKind = "max_sharpe"
	ObjectiveMinVolatility    ObjectiveKind = "min_volatility"
	ObjectiveTargetReturn     ObjectiveKind = "target_return"
	ObjectiveTargetVolatility ObjectiveKind = "target_volatility"
)

// Objective is a tagged strategy variant. All variants translate to penalty
// terms passed into the one shared solver routine; the solver itself is never
// duplicated per strategy.
type Objective struct {
	Kind             ObjectiveKind
	TargetReturn     float64
	TargetVolatility float64
	RiskFreeRate     float64
}

// MaxSharpe maximizes (w'μ - riskFree) / sqrt(w'Σw).
func MaxSharpe(riskFree float64) Objective {
	return Objective{Kind: ObjectiveMaxSharpe, RiskFreeRate: riskFree}
}

// MinVolatility minimizes w'Σw.
func MinVolatility() Objective {
	return Objective{Kind: ObjectiveMinVolatility}
}

// TargetReturn minimizes variance subject to w'μ = target.
func TargetReturn(target float64) Objective {
	return Objective{Kind: ObjectiveTargetReturn, TargetReturn: target}
}

// TargetVolatility maximizes return subject to sqrt(w'Σw) = target.
func TargetVolatility(target float64) Objective {
	return Objective{Kind: ObjectiveTargetVolatility, TargetVolatility: target}
}

// RiskLevelTargets maps qualitative risk levels to annual volatility targets.
var RiskLevelTargets = map[string]float64{
	"conservative": 0.10,
	"moderate":     0.15,
	"aggressive":   0.25,
}

// Solve dispatches an objective to the shared solver routine. Long-only and
// fully-invested constraints apply to every strategy.
func (s *Solver) Solve(obj Objective, mu []float64, sigma *mat.SymDense) ([]float64, error) {
	switch obj.Kind {
	case ObjectiveTargetReturn:
		return s.MinimizeVariance(mu, obj.TargetReturn, sigma)
	case ObjectiveMinVolatility:
		return s.minimizeVolatility(mu, sigma)
	case ObjectiveMaxSharpe:
		return s.maximizeSharpe(mu, sigma, obj.RiskFreeRate)
	case ObjectiveTargetVolatility:
		return s.maximizeReturnAtVolatility(mu, sigma, obj.TargetVolatility)
	default:
		return nil, fmt.Errorf("unknown objective kind: %s", obj.Kind)
	}
}

// minimizeVolatility minimizes w'Σw subject to Σw = 1, 0 ≤ w ≤ 1.
func (s *Solver) minimizeVolatility(mu []float64, sigma *mat.SymDense) ([]float64, error) {
	n := len(mu)
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
			for i := 0; i < n; i++ {
				sum += x[i]
			}
			return variance + p*(sum-1.0)*(sum-1.0) + boundPenalty(x, p)
		},
		Grad: func(grad, x []float64) {
			sum := 0.0
			for i := 0; i < n; i++ {
				sum += x[i]
			}
			for i := 0; i < n; i++ {
				grad[i] = 0
				for j := 0; j < n; j++ {
					grad[i] += 2 * sigma.At(i, j) * x[j]
				}
				grad[i] += 2 * p * (sum - 1.0)
				grad[i] += boundPenaltyGrad(x[i], p)
			}
		},
	}

	x, err := s.runMinimize(problem, n, 0, 0, 0)
	if err != nil {
		return nil, err
	}
	return polishSum(x), nil
}

// maximizeSharpe maximizes (w'μ - riskFree) / sqrt(w'Σw).
func (s *Solver) maximizeSharpe(mu []float64, sigma *mat.SymDense, riskFree float64) ([]float64, error) {
	n := len(mu)
	p := s.penaltyWeight

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			var ret, variance float64
			for i := 0; i < n; i++ {
				ret += mu[i] * x[i]
				for j := 0; j < n; j++ {
					variance += x[i] * x[j] * sigma.At(i, j)
				}
			}
			stdDev := math.Sqrt(math.Max(variance, 1e-10))

			sum := 0.0
			for i := 0; i < n; i++ {
				sum += x[i]
			}

			obj := -(ret - riskFree) / stdDev
			obj += p * (sum - 1.0) * (sum - 1.0)
			obj += boundPenalty(x, p)
			return obj
		},
		Grad: func(grad, x []float64) {
			var ret, variance float64
			for i := 0; i < n; i++ {
				ret += mu[i] * x[i]
				for j := 0; j < n; j++ {
					variance += x[i] * x[j] * sigma.At(i, j)
				}
			}
			stdDev := math.Sqrt(math.Max(variance, 1e-10))

			sum := 0.0
			for i := 0; i < n; i++ {
				sum += x[i]
			}

			excess := ret - riskFree
			for i := 0; i < n; i++ {
				var dVariance float64
				for j := 0; j < n; j++ {
					dVariance += 2 * sigma.At(i, j) * x[j]
				}
				grad[i] = -mu[i]/stdDev + excess*dVariance/(2*stdDev*stdDev*stdDev)
				grad[i] += 2 * p * (sum - 1.0)
				grad[i] += boundPenaltyGrad(x[i], p)
			}
		},
	}

	x, err := s.runMinimize(problem, n, 0, 0, 0)
	if err != nil {
		return nil, err
	}
	return polishSum(x), nil
}

// maximizeReturnAtVolatility maximizes w'μ subject to sqrt(w'Σw) = target.
// An unreachable volatility target surfaces as InfeasibleTargetError so
// callers can apply their documented fallback.
func (s *Solver) maximizeReturnAtVolatility(mu []float64, sigma *mat.SymDense, targetVol float64) ([]float64, error) {
	if targetVol <= 0 {
		return nil, fmt.Errorf("target volatility must be positive, got %v", targetVol)
	}

	n := len(mu)
	p := s.penaltyWeight
	targetVar := targetVol * targetVol

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			var ret, variance float64
			for i := 0; i < n; i++ {
				ret += mu[i] * x[i]
				for j := 0; j < n; j++ {
					variance += x[i] * x[j] * sigma.At(i, j)
				}
			}
			sum := 0.0
			for i := 0; i < n; i++ {
				sum += x[i]
			}

			obj := -ret
			obj += p * (sum - 1.0) * (sum - 1.0)
			obj += p * (variance - targetVar) * (variance - targetVar)
			obj += boundPenalty(x, p)
			return obj
		},
		Grad: func(grad, x []float64) {
			var variance float64
			for i := 0; i < n; i++ {
				for j := 0; j < n; j++ {
					variance += x[i] * x[j] * sigma.At(i, j)
				}
			}
			sum := 0.0
			for i := 0; i < n; i++ {
				sum += x[i]
			}

			for i := 0; i < n; i++ {
				var dVariance float64
				for j := 0; j < n; j++ {
					dVariance += 2 * sigma.At(i, j) * x[j]
				}
				grad[i] = -mu[i]
				grad[i] += 2 * p * (variance - targetVar) * dVariance
				grad[i] += 2 * p * (sum - 1.0)
				grad[i] += boundPenaltyGrad(x[i], p)
			}
		},
	}

	x, err := s.runMinimize(problem, n, targetVol, 0, 0)
	if err != nil {
		return nil, err
	}
	weights := polishSum(x)

	// The volatility equality cannot always be met under long-only
	// constraints; report it as infeasible rather than returning a
	// portfolio at a different risk level.
	achieved := math.Sqrt(quadForm(weights, sigma))
	if math.Abs(achieved-targetVol) > math.Max(1e-3, 0.05*targetVol) {
		return nil, &InfeasibleTargetError{
			Target: targetVol,
			Reason: ReasonTargetOutsideRange,
			Detail: fmt.Sprintf("achievable volatility %.4f", achieved),
		}
	}

	return weights, nil
}

func quadForm(w []float64, sigma *mat.SymDense) float64 {
	var v float64
	for i := range w {
		for j := range w {
			v += w[i] * w[j] * sigma.At(i, j)
		}
	}
	return math.Max(v, 0)
}

// polishSum projects a near-feasible solution onto {Σw=1} ∩ [0,1]^n by
// alternating projections.
func polishSum(x []float64) []float64 {
	n := len(x)
	w := make([]float64, n)
	copy(w, x)

	for iter := 0; iter < 200; iter++ {
		sum := 0.0
		for i := 0; i < n; i++ {
			sum += w[i]
		}
		shift := (sum - 1.0) / float64(n)
		for i := 0; i < n; i++ {
			w[i] -= shift
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
