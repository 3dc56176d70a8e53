// Package allocation converts continuous optimizer weights into whole-share
// orders for a given budget.
package allocation

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"
)

// Allocation is the discrete result for one ticker.
type Allocation struct {
	Ticker       string  `json:"ticker"`
	Shares       int     `json:"shares"`
	Value        float64 `json:"value"`
	TargetWeight float64 `json:"target_weight"`
	ActualWeight float64 `json:"actual_weight"`
}

// Plan is a full discrete allocation: per-ticker orders plus the cash that
// could not be deployed in whole shares.
type Plan struct {
	Allocations []Allocation `json:"allocations"`
	TotalValue  float64      `json:"total_value"`
	Leftover    float64      `json:"leftover"`
}

// Allocator converts weight vectors into share counts.
type Allocator struct {
	log zerolog.Logger
}

// NewAllocator creates a new discrete allocator.
func NewAllocator(log zerolog.Logger) *Allocator {
	return &Allocator{log: log.With().Str("component", "allocation").Logger()}
}

// Allocate produces whole-share orders approximating the target weights for
// the given budget. It first buys the floor of each ideal share count, then
// spends remaining cash greedily on the ticker with the largest weight
// deficit that is still affordable. Tickers with zero weight or without a
// positive price are skipped.
func (a *Allocator) Allocate(weights map[string]float64, prices map[string]float64, budget float64) (*Plan, error) {
	if budget <= 0 {
		return nil, fmt.Errorf("budget must be positive, got %v", budget)
	}

	tickers := make([]string, 0, len(weights))
	for ticker, w := range weights {
		if w <= 0 {
			continue
		}
		price, ok := prices[ticker]
		if !ok || price <= 0 {
			return nil, fmt.Errorf("no positive price for %s", ticker)
		}
		tickers = append(tickers, ticker)
	}
	// Deterministic iteration so equal deficits break ties the same way
	// every run.
	sort.Strings(tickers)

	shares := make(map[string]int, len(tickers))
	spent := 0.0
	for _, ticker := range tickers {
		ideal := weights[ticker] * budget / prices[ticker]
		n := int(math.Floor(ideal))
		shares[ticker] = n
		spent += float64(n) * prices[ticker]
	}

	// Spend the remainder on the most underweighted affordable ticker.
	for {
		best := ""
		bestDeficit := 0.0
		remaining := budget - spent
		for _, ticker := range tickers {
			if prices[ticker] > remaining {
				continue
			}
			actual := float64(shares[ticker]) * prices[ticker] / budget
			deficit := weights[ticker] - actual
			if deficit > bestDeficit {
				bestDeficit = deficit
				best = ticker
			}
		}
		if best == "" {
			break
		}
		shares[best]++
		spent += prices[best]
	}

	plan := &Plan{
		Allocations: make([]Allocation, 0, len(tickers)),
		TotalValue:  spent,
		Leftover:    budget - spent,
	}
	for _, ticker := range tickers {
		value := float64(shares[ticker]) * prices[ticker]
		plan.Allocations = append(plan.Allocations, Allocation{
			Ticker:       ticker,
			Shares:       shares[ticker],
			Value:        value,
			TargetWeight: weights[ticker],
			ActualWeight: value / budget,
		})
	}

	a.log.Debug().
		Float64("budget", budget).
		Float64("leftover", plan.Leftover).
		Int("tickers", len(tickers)).
		Msg("Discrete allocation complete")

	return plan, nil
}
