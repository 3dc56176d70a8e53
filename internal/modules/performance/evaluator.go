// Package performance evaluates portfolios: ex-ante metrics from model
// statistics and ex-post metrics from realized return histories.
package performance

import (
	"math"

	"github.com/rs/zerolog"

	"portfolio-optimizer/internal/modules/optimization"
)

// Metrics holds the ex-ante evaluation of a weight vector against model
// statistics.
type Metrics struct {
	ExpectedReturn float64 `json:"expected_return"`
	Volatility     float64 `json:"volatility"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
}

// HistoricalMetrics holds the ex-post evaluation of a realized portfolio
// return series.
type HistoricalMetrics struct {
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	Volatility       float64 `json:"volatility"` // annualized
	SharpeRatio      float64 `json:"sharpe_ratio"`
	MaxDrawdown      float64 `json:"max_drawdown"` // <= 0
	Observations     int     `json:"observations"`
}

// Evaluator computes portfolio metrics.
type Evaluator struct {
	riskFreeRate float64
	log          zerolog.Logger
}

// NewEvaluator creates an evaluator with the given annual risk-free rate.
func NewEvaluator(riskFreeRate float64, log zerolog.Logger) *Evaluator {
	return &Evaluator{
		riskFreeRate: riskFreeRate,
		log:          log.With().Str("component", "performance").Logger(),
	}
}

// Evaluate computes expected return, volatility and Sharpe ratio for a weight
// vector against an expected-returns vector and covariance matrix. Zero
// volatility yields a zero Sharpe ratio rather than a division error.
func (e *Evaluator) Evaluate(weights, mu []float64, cov [][]float64) (Metrics, error) {
	if len(weights) != len(mu) || len(cov) != len(weights) {
		return Metrics{}, &optimization.DimensionMismatchError{Rows: len(cov), Tickers: len(weights)}
	}

	m := Metrics{
		ExpectedReturn: optimization.PortfolioReturn(weights, mu),
		Volatility:     optimization.PortfolioVolatility(weights, cov),
	}
	if m.Volatility > 0 {
		m.SharpeRatio = (m.ExpectedReturn - e.riskFreeRate) / m.Volatility
	}
	return m, nil
}

// PortfolioReturns collapses a per-ticker return series into the weighted
// portfolio return per period. Weights follow the series' ticker order.
func PortfolioReturns(rs optimization.ReturnSeries, weights []float64) []float64 {
	n := rs.Observations()
	returns := make([]float64, n)
	for t := 0; t < n; t++ {
		for i, ticker := range rs.Tickers {
			returns[t] += weights[i] * rs.Data[ticker][t]
		}
	}
	return returns
}

// EvaluateHistorical computes realized metrics from a portfolio return series
// sampled at periodsPerYear observations per year. Cumulative growth uses the
// compounding product of (1 + r); max drawdown is the largest peak-to-trough
// decline of that growth curve and is reported as a non-positive number.
func (e *Evaluator) EvaluateHistorical(returns []float64, periodsPerYear float64) HistoricalMetrics {
	n := len(returns)
	if n == 0 {
		return HistoricalMetrics{}
	}

	growth := 1.0
	peak := 1.0
	maxDrawdown := 0.0
	mean := 0.0
	for _, r := range returns {
		growth *= 1 + r
		if growth > peak {
			peak = growth
		}
		if dd := growth/peak - 1; dd < maxDrawdown {
			maxDrawdown = dd
		}
		mean += r
	}
	mean /= float64(n)

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	if n > 1 {
		variance /= float64(n - 1)
	}
	volatility := math.Sqrt(variance) * math.Sqrt(periodsPerYear)

	years := float64(n) / periodsPerYear
	annualized := 0.0
	if years > 0 && growth > 0 {
		annualized = math.Pow(growth, 1/years) - 1
	}

	metrics := HistoricalMetrics{
		TotalReturn:      growth - 1,
		AnnualizedReturn: annualized,
		Volatility:       volatility,
		MaxDrawdown:      maxDrawdown,
		Observations:     n,
	}
	if volatility > 0 {
		metrics.SharpeRatio = (annualized - e.riskFreeRate) / volatility
	}
	return metrics
}
