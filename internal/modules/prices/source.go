// Package prices loads already-resolved daily closing prices from CSV files
// or a SQLite store and exposes them through a common Source interface. Price
// acquisition itself (market data feeds) stays outside the engine.
package prices

// Source supplies historical daily closes and the trading calendar derived
// from them. Dates are YYYY-MM-DD strings throughout.
type Source interface {
	// ClosePrice returns the close for a ticker on an exact date. A missing
	// quote is an error.
	ClosePrice(ticker, date string) (float64, error)

	// ClosesBefore returns up to n closes for a ticker ending strictly
	// before asOf, ascending by date. Strictness keeps decisions made on
	// asOf free of look-ahead.
	ClosesBefore(ticker, asOf string, n int) ([]float64, error)

	// PricesOn returns the closes available on a date for the given
	// tickers. Unquoted tickers are simply absent from the map.
	PricesOn(date string, tickers []string) (map[string]float64, error)

	// TradingDates lists the dates with any quote in [start, end],
	// ascending. Empty strings mean unbounded.
	TradingDates(start, end string) ([]string, error)
}
