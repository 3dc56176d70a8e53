package optimization

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"portfolio-optimizer/internal/modules/calculations"
	"portfolio-optimizer/internal/modules/history"
)

// PriceLoader provides aligned price tables for a set of tickers.
// Implemented by history.HistoryDB.
type PriceLoader interface {
	LoadTable(tickers []string, lookbackDays int) (history.TimeSeriesData, error)
}

// Service orchestrates the optimization pipeline: load prices, derive return
// statistics, run the requested algorithm. It caches derived statistics and
// remembers the most recent frontier for cheap re-reads.
type Service struct {
	prices          PriceLoader
	solver          *Solver
	builder         *FrontierBuilder
	resampler       *ResamplingEngine
	cache           *calculations.Cache // optional
	riskFreeRate    float64
	lookbackDays    int
	resampleSims    int
	resampleWorkers int
	log             zerolog.Logger

	mu         sync.RWMutex
	lastResult *Result
}

// NewService creates a new optimization service.
func NewService(prices PriceLoader, log zerolog.Logger) *Service {
	solver := NewSolver(log)
	builder := NewFrontierBuilder(solver, log)
	return &Service{
		prices:       prices,
		solver:       solver,
		builder:      builder,
		resampler:    NewResamplingEngine(builder, log),
		riskFreeRate: DefaultRiskFreeRate,
		lookbackDays: defaultLookbackDays,
		resampleSims: defaultResampleSimulations,
		log:          log.With().Str("component", "optimization_service").Logger(),
	}
}

// SetCache enables statistics caching. Without it every request recomputes
// expected returns and covariance from price history.
func (s *Service) SetCache(cache *calculations.Cache) {
	s.cache = cache
}

// SetRiskFreeRate overrides the annual risk-free rate used for Sharpe ratios.
func (s *Service) SetRiskFreeRate(rate float64) {
	s.riskFreeRate = rate
}

// SetDefaultLookback overrides the price-history window used when a request
// leaves lookback_days unset.
func (s *Service) SetDefaultLookback(days int) {
	if days > 0 {
		s.lookbackDays = days
	}
}

// SetResampleDefaults overrides the simulation count and worker-pool size used
// when a resample request leaves them unset. workers <= 0 keeps GOMAXPROCS.
func (s *Service) SetResampleDefaults(simulations, workers int) {
	if simulations > 0 {
		s.resampleSims = simulations
	}
	s.resampleWorkers = workers
}

// FrontierRequest asks for a classic mean-variance efficient frontier.
type FrontierRequest struct {
	Tickers      []string `json:"tickers"`
	Period       Period   `json:"period"`
	LookbackDays int      `json:"lookback_days"`
	NumPoints    int      `json:"num_points"`
}

// ResampleRequest asks for a Monte Carlo resampled frontier. Resampling
// always runs on yearly returns, matching the estimation-uncertainty model.
type ResampleRequest struct {
	Tickers      []string        `json:"tickers"`
	LookbackDays int             `json:"lookback_days"`
	Options      ResampleOptions `json:"options"`
}

// OptimizeRequest asks for a single portfolio under a named strategy.
type OptimizeRequest struct {
	Tickers      []string `json:"tickers"`
	Period       Period   `json:"period"`
	LookbackDays int      `json:"lookback_days"`
	Strategy     string   `json:"strategy"` // max_sharpe | min_volatility | target_return | risk level name
	TargetReturn float64  `json:"target_return,omitempty"`
	RiskLevel    string   `json:"risk_level,omitempty"` // conservative | moderate | aggressive
}

// Portfolio is a single optimized allocation with its evaluation.
type Portfolio struct {
	Strategy       string             `json:"strategy"`
	Weights        map[string]float64 `json:"weights"`
	ExpectedReturn float64            `json:"expected_return"`
	Volatility     float64            `json:"volatility"`
	SharpeRatio    float64            `json:"sharpe_ratio"`
	Fallback       bool               `json:"fallback"`
	FallbackReason string             `json:"fallback_reason,omitempty"`
}

// cachedStatistics is the msgpack shape stored in the calculations cache.
type cachedStatistics struct {
	ExpectedReturns map[string]float64 `msgpack:"expected_returns"`
	Covariance      [][]float64        `msgpack:"covariance"`
}

const (
	defaultLookbackDays        = 5 * 365
	defaultResampleSimulations = 100
	defaultFrontierPoints      = 20
)

func (s *Service) normalizeLookback(days int) int {
	if days <= 0 {
		return s.lookbackDays
	}
	return days
}

// Returns loads prices and computes the periodic return series for a universe.
func (s *Service) Returns(tickers []string, period Period, lookbackDays int) (ReturnSeries, error) {
	if len(tickers) == 0 {
		return ReturnSeries{}, fmt.Errorf("no tickers provided")
	}
	prices, err := s.prices.LoadTable(tickers, s.normalizeLookback(lookbackDays))
	if err != nil {
		return ReturnSeries{}, fmt.Errorf("failed to load price table: %w", err)
	}
	return ComputeReturns(prices, period)
}

// Statistics computes the annualized expected-returns vector and covariance
// matrix for a universe, consulting the cache first. The return series is
// always computed fresh since downstream algorithms need the raw
// observations, not just the moments.
func (s *Service) Statistics(tickers []string, period Period, lookbackDays int) (ReturnSeries, map[string]float64, [][]float64, error) {
	rs, err := s.Returns(tickers, period, lookbackDays)
	if err != nil {
		return ReturnSeries{}, nil, nil, err
	}

	cacheKey := fmt.Sprintf("%s:%s:%d", calculations.HashTickers(rs.Tickers), period, s.normalizeLookback(lookbackDays))
	if s.cache != nil {
		var cached cachedStatistics
		if s.cache.Get("statistics", cacheKey, &cached) {
			s.log.Debug().Str("key", cacheKey[:16]).Msg("Using cached statistics")
			return rs, cached.ExpectedReturns, cached.Covariance, nil
		}
	}

	expectedReturns, cov, err := ComputeStatistics(rs, period.PeriodsPerYear())
	if err != nil {
		return ReturnSeries{}, nil, nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set("statistics", cacheKey, cachedStatistics{
			ExpectedReturns: expectedReturns,
			Covariance:      cov,
		}, calculations.DefaultTTL); err != nil {
			s.log.Warn().Err(err).Msg("Failed to cache statistics")
		}
	}

	return rs, expectedReturns, cov, nil
}

// BuildFrontier runs the classic mean-variance frontier for a request.
func (s *Service) BuildFrontier(req FrontierRequest) (*Result, error) {
	period := req.Period
	if period == "" {
		period = PeriodDaily
	}
	numPoints := req.NumPoints
	if numPoints <= 0 {
		numPoints = defaultFrontierPoints
	}

	rs, expectedReturns, cov, err := s.Statistics(req.Tickers, period, req.LookbackDays)
	if err != nil {
		return nil, err
	}

	result, err := s.builder.BuildFrontier(expectedReturns, cov, rs.Tickers, numPoints)
	if err != nil {
		return nil, err
	}

	s.storeResult(result)
	return result, nil
}

// Resample runs the Monte Carlo resampled frontier. Yearly returns feed both
// the sample mean and the per-year estimation uncertainty.
func (s *Service) Resample(req ResampleRequest) (*Result, error) {
	yearly, _, cov, err := s.Statistics(req.Tickers, PeriodYearly, req.LookbackDays)
	if err != nil {
		return nil, err
	}

	opts := s.resampleOptions(req.Options)

	result, err := s.resampler.ResampleFrontier(yearly, cov, opts)
	if err != nil {
		return nil, err
	}

	s.storeResult(result)
	return result, nil
}

// resampleOptions fills unset request options with the service defaults.
func (s *Service) resampleOptions(opts ResampleOptions) ResampleOptions {
	if opts.NumSimulations <= 0 {
		opts.NumSimulations = s.resampleSims
	}
	if opts.NumPoints <= 0 {
		opts.NumPoints = defaultFrontierPoints
	}
	if opts.Workers <= 0 {
		opts.Workers = s.resampleWorkers
	}
	return opts
}

// Optimize produces a single portfolio for a named strategy. Risk-level
// strategies (conservative/moderate/aggressive) target a preset volatility;
// when that target is unreachable the service falls back to max-Sharpe and
// reports the substitution instead of hiding it.
func (s *Service) Optimize(req OptimizeRequest) (*Portfolio, error) {
	period := req.Period
	if period == "" {
		period = PeriodDaily
	}

	rs, expectedReturns, cov, err := s.Statistics(req.Tickers, period, req.LookbackDays)
	if err != nil {
		return nil, err
	}

	obj, strategy, err := s.resolveObjective(req)
	if err != nil {
		return nil, err
	}

	mu := make([]float64, len(rs.Tickers))
	for i, ticker := range rs.Tickers {
		mu[i] = expectedReturns[ticker]
	}
	sigma := symFromSlice(cov)

	weights, err := s.solver.Solve(obj, mu, sigma)
	portfolio := &Portfolio{Strategy: strategy}
	if err != nil {
		var infeasible *InfeasibleTargetError
		if !errors.As(err, &infeasible) {
			return nil, err
		}
		// Unreachable targets degrade to max-Sharpe, visibly.
		s.log.Warn().
			Err(err).
			Str("strategy", strategy).
			Msg("Strategy target infeasible, falling back to max-Sharpe")
		weights, err = s.solver.Solve(MaxSharpe(s.riskFreeRate), mu, sigma)
		if err != nil {
			return nil, fmt.Errorf("max-Sharpe fallback failed: %w", err)
		}
		portfolio.Fallback = true
		portfolio.FallbackReason = infeasible.Error()
	}

	portfolio.ExpectedReturn = PortfolioReturn(weights, mu)
	portfolio.Volatility = PortfolioVolatility(weights, cov)
	if portfolio.Volatility > 0 {
		portfolio.SharpeRatio = (portfolio.ExpectedReturn - s.riskFreeRate) / portfolio.Volatility
	}

	cleaned := CleanWeights(weights)
	portfolio.Weights = make(map[string]float64, len(rs.Tickers))
	for i, ticker := range rs.Tickers {
		portfolio.Weights[ticker] = cleaned[i]
	}

	return portfolio, nil
}

func (s *Service) resolveObjective(req OptimizeRequest) (Objective, string, error) {
	if req.RiskLevel != "" {
		target, ok := RiskLevelTargets[req.RiskLevel]
		if !ok {
			return Objective{}, "", fmt.Errorf("unknown risk level: %s", req.RiskLevel)
		}
		return TargetVolatility(target), req.RiskLevel, nil
	}

	switch ObjectiveKind(req.Strategy) {
	case ObjectiveMaxSharpe, "":
		return MaxSharpe(s.riskFreeRate), string(ObjectiveMaxSharpe), nil
	case ObjectiveMinVolatility:
		return MinVolatility(), string(ObjectiveMinVolatility), nil
	case ObjectiveTargetReturn:
		return TargetReturn(req.TargetReturn), string(ObjectiveTargetReturn), nil
	default:
		if target, ok := RiskLevelTargets[req.Strategy]; ok {
			return TargetVolatility(target), req.Strategy, nil
		}
		return Objective{}, "", fmt.Errorf("unknown strategy: %s", req.Strategy)
	}
}

// CompareStrategies optimizes the same universe under every named strategy
// concurrently and returns the portfolios keyed by strategy name. A failing
// strategy is logged and left out of the map rather than aborting the whole
// comparison; an error is returned only when every strategy fails.
func (s *Service) CompareStrategies(tickers []string, period Period, lookbackDays int) (map[string]*Portfolio, error) {
	strategies := []string{
		string(ObjectiveMaxSharpe),
		string(ObjectiveMinVolatility),
		"conservative",
		"moderate",
		"aggressive",
	}

	results := make([]*Portfolio, len(strategies))
	failures := make([]error, len(strategies))
	var g errgroup.Group
	for i, strategy := range strategies {
		i, strategy := i, strategy
		g.Go(func() error {
			p, err := s.Optimize(OptimizeRequest{
				Tickers:      tickers,
				Period:       period,
				LookbackDays: lookbackDays,
				Strategy:     strategy,
			})
			if err != nil {
				failures[i] = fmt.Errorf("strategy %s: %w", strategy, err)
				return nil
			}
			results[i] = p
			return nil
		})
	}
	_ = g.Wait()

	byStrategy := make(map[string]*Portfolio, len(strategies))
	for i, strategy := range strategies {
		if results[i] == nil {
			s.log.Warn().Err(failures[i]).Str("strategy", strategy).Msg("Strategy failed, skipping in comparison")
			continue
		}
		byStrategy[strategy] = results[i]
	}
	if len(byStrategy) == 0 {
		return nil, fmt.Errorf("all strategies failed: %w", failures[0])
	}
	return byStrategy, nil
}

// LastResult returns the most recently computed frontier, if any.
func (s *Service) LastResult() (*Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastResult, s.lastResult != nil
}

func (s *Service) storeResult(result *Result) {
	s.mu.Lock()
	s.lastResult = result
	s.mu.Unlock()
}
