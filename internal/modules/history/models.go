package history

// DailyPrice represents a single closing-price observation for one ticker.
type DailyPrice struct {
	Date  string  `json:"date"` // YYYY-MM-DD
	Close float64 `json:"close"`
}

// TimeSeriesData is an aligned price table: one row per date, one column per
// ticker. Dates are sorted ascending. Missing observations are NaN until
// filled by HandleMissingData.
type TimeSeriesData struct {
	Dates []string             `json:"dates"`
	Data  map[string][]float64 `json:"data"`
}

// Tickers returns the set of tickers present in the table.
func (t TimeSeriesData) Tickers() []string {
	tickers := make([]string, 0, len(t.Data))
	for ticker := range t.Data {
		tickers = append(tickers, ticker)
	}
	return tickers
}
