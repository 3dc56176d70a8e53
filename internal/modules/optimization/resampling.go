package optimization

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distmv"
)

// ResampleOptions configures a resampled-frontier run.
type ResampleOptions struct {
	// ShrinkageIntensity in [0,1] blends the sample mean toward the
	// conservative target mean/2.2. 0 keeps the raw sample mean, 1 uses the
	// target only.
	ShrinkageIntensity float64
	NumSimulations     int
	NumPoints          int
	// Workers bounds the solver pool. <= 0 uses GOMAXPROCS.
	Workers int
	// Seed makes the run reproducible. The same seed always produces the
	// same sample sequence regardless of worker scheduling.
	Seed uint64
}

// ResamplingEngine implements the resampled efficient frontier (Michaud):
// expected returns are repeatedly drawn from their estimation-uncertainty
// distribution, a frontier is solved per draw on a fixed target grid, and
// weights are averaged across draws.
type ResamplingEngine struct {
	builder          *FrontierBuilder
	shrinkageDivisor float64
	log              zerolog.Logger
}

// NewResamplingEngine creates a new resampling engine.
func NewResamplingEngine(builder *FrontierBuilder, log zerolog.Logger) *ResamplingEngine {
	return &ResamplingEngine{
		builder:          builder,
		shrinkageDivisor: DefaultShrinkageDivisor,
		log:              log.With().Str("component", "resampling").Logger(),
	}
}

// ShrinkMean blends the sample mean toward the conservative target
// sample/divisor: intensity*(m/divisor) + (1-intensity)*m.
func ShrinkMean(sampleMean []float64, intensity, divisor float64) []float64 {
	shrunk := make([]float64, len(sampleMean))
	for i, m := range sampleMean {
		shrunk[i] = intensity*(m/divisor) + (1-intensity)*m
	}
	return shrunk
}

// EstimationUncertainty is the sampling uncertainty of the mean estimate:
// the covariance matrix divided by the number of observation periods.
func EstimationUncertainty(cov [][]float64, numPeriods int) *mat.SymDense {
	n := len(cov)
	unc := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			unc.SetSym(i, j, cov[i][j]/float64(numPeriods))
		}
	}
	return unc
}

// ResampleFrontier runs the Monte Carlo resampling optimization over yearly
// returns. The target grid is derived once from the shrunk mean and held
// fixed across simulations; per-simulation solves run on a worker pool with
// each simulation writing to its own slot, so the reduction needs no locking.
func (re *ResamplingEngine) ResampleFrontier(
	yearly ReturnSeries,
	cov [][]float64,
	opts ResampleOptions,
) (*Result, error) {
	tickers := yearly.Tickers
	if opts.ShrinkageIntensity < 0 || opts.ShrinkageIntensity > 1 {
		return nil, fmt.Errorf("shrinkage intensity must be in [0,1], got %v", opts.ShrinkageIntensity)
	}
	if opts.NumSimulations < 1 {
		return nil, fmt.Errorf("numSimulations must be >= 1, got %d", opts.NumSimulations)
	}
	numPeriods := yearly.Observations()
	if numPeriods < 2 {
		ticker := ""
		if len(tickers) > 0 {
			ticker = tickers[0]
		}
		return nil, &InsufficientDataError{Ticker: ticker, Observations: numPeriods}
	}
	if len(cov) != len(tickers) {
		return nil, &DimensionMismatchError{Rows: len(cov), Tickers: len(tickers)}
	}

	sampleMean := make([]float64, len(tickers))
	for i, ticker := range tickers {
		sampleMean[i] = stat.Mean(yearly.Data[ticker], nil)
	}
	shrunk := ShrinkMean(sampleMean, opts.ShrinkageIntensity, re.shrinkageDivisor)

	targets, err := targetGrid(floats.Min(shrunk), floats.Max(shrunk), opts.NumPoints)
	if err != nil {
		return nil, err
	}

	samples, err := re.drawSamples(shrunk, cov, numPeriods, opts.NumSimulations, opts.Seed)
	if err != nil {
		return nil, err
	}

	re.log.Info().
		Int("num_simulations", opts.NumSimulations).
		Int("num_points", opts.NumPoints).
		Float64("shrinkage_intensity", opts.ShrinkageIntensity).
		Uint64("seed", opts.Seed).
		Msg("Running resampled frontier")

	// Per-simulation solves are independent; each writes to a disjoint slot.
	slots := make([]*Result, opts.NumSimulations)
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > opts.NumSimulations {
		workers = opts.NumSimulations
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				// BuildFrontierOnGrid degrades infeasible points internally,
				// so the only possible error is a dimension mismatch, which
				// was validated above.
				sim, err := re.builder.BuildFrontierOnGrid(samples[idx], targets, cov, tickers, "resampled_simulation")
				if err != nil {
					re.log.Error().Err(err).Int("simulation", idx).Msg("Simulation failed")
					continue
				}
				slots[idx] = sim
			}
		}()
	}
	for i := 0; i < opts.NumSimulations; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return re.reduce(slots, targets, cov, tickers, opts)
}

// drawSamples draws all expected-return vectors up front from a single
// seeded source, keeping output independent of worker scheduling.
func (re *ResamplingEngine) drawSamples(
	shrunk []float64,
	cov [][]float64,
	numPeriods, numSimulations int,
	seed uint64,
) ([][]float64, error) {
	uncertainty := EstimationUncertainty(cov, numPeriods)
	src := rand.NewSource(seed)

	dist, ok := distmv.NewNormal(shrunk, uncertainty, src)
	if !ok {
		// The uncertainty matrix can be semi-definite with short histories;
		// nudge the diagonal to restore a usable Cholesky factor.
		n := len(shrunk)
		jittered := mat.NewSymDense(n, nil)
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				v := uncertainty.At(i, j)
				if i == j {
					v += 1e-10
				}
				jittered.SetSym(i, j, v)
			}
		}
		dist, ok = distmv.NewNormal(shrunk, jittered, src)
		if !ok {
			return nil, fmt.Errorf("estimation uncertainty matrix is not positive definite")
		}
	}

	samples := make([][]float64, numSimulations)
	for i := range samples {
		samples[i] = dist.Rand(nil)
	}
	return samples, nil
}

// reduce averages simulation weight matrices elementwise per frontier point
// and recomputes volatility from the averaged weights.
func (re *ResamplingEngine) reduce(
	slots []*Result,
	targets []float64,
	cov [][]float64,
	tickers []string,
	opts ResampleOptions,
) (*Result, error) {
	n := len(tickers)
	completed := 0
	for _, sim := range slots {
		if sim != nil {
			completed++
		}
	}
	if completed == 0 {
		return nil, fmt.Errorf("all %d simulations failed", len(slots))
	}

	result := &Result{
		RunID:      uuid.New().String(),
		Algorithm:  "monte_carlo_resampling",
		Tickers:    tickers,
		Points:     make([]FrontierPoint, 0, len(targets)),
		Covariance: cov,
		CreatedAt:  time.Now().UTC(),
	}

	for k, target := range targets {
		avg := make([]float64, n)
		degraded := 0
		for _, sim := range slots {
			if sim == nil {
				continue
			}
			point := sim.Points[k]
			for i := 0; i < n; i++ {
				avg[i] += point.Weights[i]
			}
			if point.Degraded {
				degraded++
			}
		}
		for i := 0; i < n; i++ {
			avg[i] /= float64(completed)
		}

		point := FrontierPoint{
			TargetReturn: target,
			Weights:      avg,
			Volatility:   PortfolioVolatility(avg, cov),
		}
		if degraded > 0 {
			point.Degraded = true
			point.DegradedReason = fmt.Sprintf("%d/%d simulations fell back to equal weights", degraded, completed)
			result.NumDegraded++
		}
		result.Points = append(result.Points, point)
	}

	re.log.Info().
		Int("simulations_completed", completed).
		Int("degraded_points", result.NumDegraded).
		Str("run_id", result.RunID).
		Msg("Resampled frontier complete")

	return result, nil
}
