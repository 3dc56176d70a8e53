package scheduler

import (
	"github.com/rs/zerolog"

	"portfolio-optimizer/internal/modules/calculations"
	"portfolio-optimizer/internal/modules/optimization"
)

// RefreshStatisticsJob prunes expired cache entries and re-warms the
// statistics cache for the most recently optimized universe. Runs nightly so
// the first morning request doesn't pay for a full recomputation.
type RefreshStatisticsJob struct {
	service *optimization.Service
	cache   *calculations.Cache
	log     zerolog.Logger
}

// NewRefreshStatisticsJob creates the nightly statistics refresh job.
func NewRefreshStatisticsJob(service *optimization.Service, cache *calculations.Cache, log zerolog.Logger) *RefreshStatisticsJob {
	return &RefreshStatisticsJob{
		service: service,
		cache:   cache,
		log:     log.With().Str("job", "refresh_statistics").Logger(),
	}
}

// Name implements Job.
func (j *RefreshStatisticsJob) Name() string {
	return "refresh_statistics"
}

// Run implements Job.
func (j *RefreshStatisticsJob) Run() error {
	pruned, err := j.cache.PruneExpired()
	if err != nil {
		return err
	}
	if pruned > 0 {
		j.log.Info().Int64("pruned", pruned).Msg("Pruned expired cache entries")
	}

	result, ok := j.service.LastResult()
	if !ok {
		j.log.Debug().Msg("No previous optimization run, nothing to re-warm")
		return nil
	}

	// Drop stale statistics for the universe and recompute so the cache is
	// warm with fresh history.
	if err := j.cache.DeleteByPrefix("statistics"); err != nil {
		return err
	}
	if _, _, _, err := j.service.Statistics(result.Tickers, optimization.PeriodDaily, 0); err != nil {
		return err
	}
	if _, _, _, err := j.service.Statistics(result.Tickers, optimization.PeriodYearly, 0); err != nil {
		return err
	}

	j.log.Info().
		Int("tickers", len(result.Tickers)).
		Msg("Statistics cache re-warmed")
	return nil
}
