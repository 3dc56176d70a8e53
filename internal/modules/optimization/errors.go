package optimization

import (
	"fmt"
	"strings"
)

// InsufficientDataError reports that an asset has too few aligned observations
// to estimate returns. It aborts the whole optimization request.
type InsufficientDataError struct {
	Ticker       string
	Observations int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s: %d observations (need at least 2)", e.Ticker, e.Observations)
}

// InfeasibleReason distinguishes a target outside the achievable range from
// numerical non-convergence. Both are recoverable at the frontier level.
type InfeasibleReason string

const (
	ReasonTargetOutsideRange InfeasibleReason = "target_outside_range"
	ReasonNoConvergence      InfeasibleReason = "no_convergence"
)

// InfeasibleTargetError reports that the solver could not meet a target
// return (or volatility). Callers catch this and either skip the frontier
// point or substitute a documented fallback.
type InfeasibleTargetError struct {
	Target float64
	Min    float64
	Max    float64
	Reason InfeasibleReason
	Detail string
}

func (e *InfeasibleTargetError) Error() string {
	switch e.Reason {
	case ReasonTargetOutsideRange:
		if e.Min == 0 && e.Max == 0 && e.Detail != "" {
			return fmt.Sprintf("infeasible target %.6f: %s", e.Target, e.Detail)
		}
		return fmt.Sprintf("infeasible target %.6f: outside achievable range [%.6f, %.6f]", e.Target, e.Min, e.Max)
	default:
		return fmt.Sprintf("infeasible target %.6f: solver did not converge (%s)", e.Target, e.Detail)
	}
}

// DimensionMismatchError reports that the expected-returns key set disagrees
// with the covariance matrix labels. This is fatal and never recovered.
type DimensionMismatchError struct {
	Missing []string // tickers with no expected return
	Rows    int      // covariance rows
	Tickers int      // tickers requested
}

func (e *DimensionMismatchError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("dimension mismatch: missing expected returns for [%s]", strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("dimension mismatch: covariance matrix is %dx%d but %d tickers requested", e.Rows, e.Rows, e.Tickers)
}
