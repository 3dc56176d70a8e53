package optimization

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"portfolio-optimizer/internal/modules/history"
)

// ComputeReturns converts an aligned price table into a periodic return
// series. Coarser periods (monthly/yearly) are resampled to the last
// observation of each calendar bucket before taking the percentage change;
// the leading undefined observation is dropped. Pure function of its inputs.
func ComputeReturns(prices history.TimeSeriesData, period Period) (ReturnSeries, error) {
	tickers := prices.Tickers()
	sort.Strings(tickers)

	dates, table := resample(prices, tickers, period)

	for _, ticker := range tickers {
		valid := 0
		for _, p := range table[ticker] {
			if !math.IsNaN(p) && p > 0 {
				valid++
			}
		}
		if valid < 2 {
			return ReturnSeries{}, &InsufficientDataError{Ticker: ticker, Observations: valid}
		}
	}

	n := len(dates)
	rs := ReturnSeries{
		Tickers: tickers,
		Periods: dates[1:],
		Data:    make(map[string][]float64, len(tickers)),
	}
	for _, ticker := range tickers {
		series := table[ticker]
		rets := make([]float64, n-1)
		for i := 1; i < n; i++ {
			if series[i-1] > 0 && !math.IsNaN(series[i]) && !math.IsNaN(series[i-1]) {
				rets[i-1] = (series[i] - series[i-1]) / series[i-1]
			}
		}
		rs.Data[ticker] = rets
	}

	return rs, nil
}

// resample reduces a daily price table to period-end observations. Daily data
// passes through unchanged. The table is assumed forward-filled, so the last
// observation of each calendar bucket is the period-end value.
func resample(prices history.TimeSeriesData, tickers []string, period Period) ([]string, map[string][]float64) {
	if period == PeriodDaily {
		return prices.Dates, prices.Data
	}

	keyLen := 7 // YYYY-MM
	if period == PeriodYearly {
		keyLen = 4 // YYYY
	}

	// Index of the last date within each calendar bucket, in date order.
	var lastIdx []int
	for i, date := range prices.Dates {
		key := bucketKey(date, keyLen)
		if len(lastIdx) > 0 && bucketKey(prices.Dates[lastIdx[len(lastIdx)-1]], keyLen) == key {
			lastIdx[len(lastIdx)-1] = i
		} else {
			lastIdx = append(lastIdx, i)
		}
	}

	dates := make([]string, len(lastIdx))
	for i, idx := range lastIdx {
		dates[i] = prices.Dates[idx]
	}

	table := make(map[string][]float64, len(tickers))
	for _, ticker := range tickers {
		series := make([]float64, len(lastIdx))
		for i, idx := range lastIdx {
			series[i] = prices.Data[ticker][idx]
		}
		table[ticker] = series
	}

	return dates, table
}

func bucketKey(date string, keyLen int) string {
	if len(date) < keyLen {
		return date
	}
	return date[:keyLen]
}

// ComputeStatistics derives the annualized expected-returns vector and sample
// covariance matrix from a return series. Both are scaled by the same
// periods-per-year factor so they stay consistent. Pure function.
func ComputeStatistics(rs ReturnSeries, periodsPerYear float64) (map[string]float64, [][]float64, error) {
	if rs.Observations() < 2 {
		ticker := ""
		if len(rs.Tickers) > 0 {
			ticker = rs.Tickers[0]
		}
		return nil, nil, &InsufficientDataError{Ticker: ticker, Observations: rs.Observations()}
	}

	expectedReturns := make(map[string]float64, len(rs.Tickers))
	for _, ticker := range rs.Tickers {
		expectedReturns[ticker] = stat.Mean(rs.Data[ticker], nil) * periodsPerYear
	}

	n := len(rs.Tickers)
	cov := make([][]float64, n)
	for i := range cov {
		cov[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			// Sample covariance (N-1 denominator), annualized.
			c := stat.Covariance(rs.Data[rs.Tickers[i]], rs.Data[rs.Tickers[j]], nil) * periodsPerYear
			cov[i][j] = c
			cov[j][i] = c
		}
	}

	return expectedReturns, cov, nil
}
