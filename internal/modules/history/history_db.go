// Package history provides access to historical price data. Prices are
// materialized here before they enter the optimization core; the core never
// reaches out to a market-data provider itself.
package history

import (
	"database/sql"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// HistoryDB provides access to historical price data.
type HistoryDB struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewHistoryDB creates a new history database accessor.
func NewHistoryDB(db *sql.DB, log zerolog.Logger) *HistoryDB {
	return &HistoryDB{
		db:  db,
		log: log.With().Str("component", "history_db").Logger(),
	}
}

// InitSchema creates the daily_prices table if it does not exist.
func (h *HistoryDB) InitSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS daily_prices (
			ticker TEXT NOT NULL,
			date   TEXT NOT NULL,
			close  REAL NOT NULL,
			PRIMARY KEY (ticker, date)
		);
		CREATE INDEX IF NOT EXISTS idx_daily_prices_date ON daily_prices(date);
	`
	if _, err := h.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create daily_prices schema: %w", err)
	}
	return nil
}

// SavePrices upserts daily prices for a ticker.
func (h *HistoryDB) SavePrices(ticker string, prices []DailyPrice) error {
	tx, err := h.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO daily_prices (ticker, date, close)
		VALUES (?, ?, ?)
		ON CONFLICT(ticker, date) DO UPDATE SET close = excluded.close
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, p := range prices {
		if _, err := stmt.Exec(ticker, p.Date, p.Close); err != nil {
			return fmt.Errorf("failed to upsert price %s/%s: %w", ticker, p.Date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit prices: %w", err)
	}

	h.log.Debug().
		Str("ticker", ticker).
		Int("num_prices", len(prices)).
		Msg("Saved daily prices")

	return nil
}

// GetDailyPrices fetches daily prices for a ticker, oldest first.
// limit <= 0 means no limit.
func (h *HistoryDB) GetDailyPrices(ticker string, limit int) ([]DailyPrice, error) {
	query := `SELECT date, close FROM daily_prices WHERE ticker = ? ORDER BY date ASC`
	args := []interface{}{ticker}
	if limit > 0 {
		query = `
			SELECT date, close FROM (
				SELECT date, close FROM daily_prices
				WHERE ticker = ? ORDER BY date DESC LIMIT ?
			) ORDER BY date ASC
		`
		args = append(args, limit)
	}

	rows, err := h.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily prices: %w", err)
	}
	defer rows.Close()

	var prices []DailyPrice
	for rows.Next() {
		var p DailyPrice
		if err := rows.Scan(&p.Date, &p.Close); err != nil {
			return nil, fmt.Errorf("failed to scan daily price: %w", err)
		}
		prices = append(prices, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily prices: %w", err)
	}

	return prices, nil
}

// LoadTable builds an aligned price table for the given tickers over the
// lookback window. Missing observations are forward-filled then back-filled so
// every column is gap-free before return calculation.
func (h *HistoryDB) LoadTable(tickers []string, lookbackDays int) (TimeSeriesData, error) {
	if len(tickers) == 0 {
		return TimeSeriesData{}, fmt.Errorf("no tickers provided")
	}

	startTime := time.Now().AddDate(0, 0, -lookbackDays)
	startDate := startTime.UTC().Format("2006-01-02")

	pricesByTicker := make(map[string]map[string]float64)
	dateSet := make(map[string]bool)

	for _, ticker := range tickers {
		dailyPrices, err := h.GetDailyPrices(ticker, 0)
		if err != nil {
			return TimeSeriesData{}, fmt.Errorf("failed to load prices for %s: %w", ticker, err)
		}

		pricesByTicker[ticker] = make(map[string]float64)
		for _, p := range dailyPrices {
			if lookbackDays <= 0 || p.Date >= startDate {
				pricesByTicker[ticker][p.Date] = p.Close
				dateSet[p.Date] = true
			}
		}
	}

	dates := make([]string, 0, len(dateSet))
	for date := range dateSet {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	data := make(map[string][]float64)
	for _, ticker := range tickers {
		prices := make([]float64, len(dates))
		for i, date := range dates {
			if price, ok := pricesByTicker[ticker][date]; ok {
				prices[i] = price
			} else {
				prices[i] = math.NaN()
			}
		}
		data[ticker] = prices
	}

	table := HandleMissingData(TimeSeriesData{Dates: dates, Data: data}, h.log)

	h.log.Debug().
		Int("num_dates", len(dates)).
		Int("num_tickers", len(tickers)).
		Msg("Built aligned price table")

	return table, nil
}

// HandleMissingData fills NaN observations using forward-fill, then back-fill
// for any leading gaps. Columns with no valid observations at all are left as
// NaN and rejected downstream.
func HandleMissingData(data TimeSeriesData, log zerolog.Logger) TimeSeriesData {
	filled := TimeSeriesData{
		Dates: data.Dates,
		Data:  make(map[string][]float64, len(data.Data)),
	}

	missingCount := 0
	filledCount := 0

	for ticker, prices := range data.Data {
		out := make([]float64, len(prices))
		copy(out, prices)

		var lastValid float64
		hasLastValid := false
		for i := 0; i < len(out); i++ {
			if math.IsNaN(out[i]) {
				missingCount++
				if hasLastValid {
					out[i] = lastValid
					filledCount++
				}
			} else {
				lastValid = out[i]
				hasLastValid = true
			}
		}

		var nextValid float64
		hasNextValid := false
		for i := len(out) - 1; i >= 0; i-- {
			if math.IsNaN(out[i]) {
				if hasNextValid {
					out[i] = nextValid
					filledCount++
				}
			} else {
				nextValid = out[i]
				hasNextValid = true
			}
		}

		filled.Data[ticker] = out
	}

	if missingCount > 0 {
		log.Warn().
			Int("missing_data_points", missingCount).
			Int("filled_data_points", filledCount).
			Int("still_missing", missingCount-filledCount).
			Msg("Filled missing price data")
	}

	return filled
}
