package optimization

import (
	"time"
)

// Default tunables. All of them can be overridden through configuration.
const (
	DefaultRiskFreeRate       = 0.02 // annual risk-free rate for Sharpe ratios
	DefaultTradingDaysPerYear = 252.0
	DefaultMonthsPerYear      = 12.0
	DefaultShrinkageDivisor   = 2.2  // conservative shrinkage target = mean / 2.2
	WeightZeroThreshold       = 1e-4 // weights below this are reported as zero
	WeightSumTolerance        = 1e-6 // acceptable deviation of sum(weights) from 1
)

// Period is the sampling interval of a return series.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodMonthly Period = "monthly"
	PeriodYearly  Period = "yearly"
)

// PeriodsPerYear returns the annualization factor for the period.
func (p Period) PeriodsPerYear() float64 {
	switch p {
	case PeriodMonthly:
		return DefaultMonthsPerYear
	case PeriodYearly:
		return 1.0
	default:
		return DefaultTradingDaysPerYear
	}
}

// ReturnSeries holds periodic percentage returns per ticker. It always has one
// fewer observation than the price series it was derived from and is
// regenerated, never mutated, when the period changes.
type ReturnSeries struct {
	Tickers []string             `json:"tickers"`
	Periods []string             `json:"periods"` // period-end labels, ascending
	Data    map[string][]float64 `json:"data"`
}

// Observations returns the number of return observations per ticker.
func (rs ReturnSeries) Observations() int {
	return len(rs.Periods)
}

// FrontierPoint is one entry on the efficient frontier. Degraded entries are
// equal-weight fallbacks recorded when the solver reported an infeasible
// target; they are never silently dropped.
type FrontierPoint struct {
	TargetReturn   float64   `json:"target_return"`
	Weights        []float64 `json:"weights"` // ticker order, raw solver output
	Volatility     float64   `json:"volatility"`
	Degraded       bool      `json:"degraded"`
	DegradedReason string    `json:"degraded_reason,omitempty"`
}

// Result is a materialized efficient frontier: one point per requested target
// return, the ticker ordering, and the covariance matrix used. Created once
// per run and immutable afterwards.
type Result struct {
	RunID       string          `json:"run_id"`
	Algorithm   string          `json:"algorithm"`
	Tickers     []string        `json:"tickers"`
	Points      []FrontierPoint `json:"points"`
	Covariance  [][]float64     `json:"covariance"`
	NumDegraded int             `json:"num_degraded"`
	CreatedAt   time.Time       `json:"created_at"`
}

// WeightsByTicker returns the weight map for frontier point i, with weights
// below WeightZeroThreshold cleaned to zero for reporting.
func (r *Result) WeightsByTicker(i int) map[string]float64 {
	weights := make(map[string]float64, len(r.Tickers))
	cleaned := CleanWeights(r.Points[i].Weights)
	for j, ticker := range r.Tickers {
		weights[ticker] = cleaned[j]
	}
	return weights
}

// validateDimensions checks that every ticker has an expected return and the
// covariance matrix is square with matching size.
func validateDimensions(expectedReturns map[string]float64, cov [][]float64, tickers []string) error {
	var missing []string
	for _, ticker := range tickers {
		if _, ok := expectedReturns[ticker]; !ok {
			missing = append(missing, ticker)
		}
	}
	if len(missing) > 0 {
		return &DimensionMismatchError{Missing: missing}
	}
	if len(cov) != len(tickers) {
		return &DimensionMismatchError{Rows: len(cov), Tickers: len(tickers)}
	}
	for i := range cov {
		if len(cov[i]) != len(tickers) {
			return &DimensionMismatchError{Rows: len(cov[i]), Tickers: len(tickers)}
		}
	}
	return nil
}
