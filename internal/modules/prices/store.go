package prices

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
	"github.com/rs/zerolog"
)

// Store serves closes from a SQLite price history database and doubles as
// the loader that imports CSV data into it.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewStore opens (and if needed initializes) the price database at path.
func NewStore(path string, log zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open price database %s: %w", path, err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS daily_closes (
			ticker TEXT NOT NULL,
			date   TEXT NOT NULL,
			close  REAL NOT NULL,
			PRIMARY KEY (ticker, date)
		);
		CREATE INDEX IF NOT EXISTS idx_daily_closes_date ON daily_closes(date);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize price schema: %w", err)
	}

	return &Store{
		db:  db,
		log: log.With().Str("component", "price_store").Logger(),
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertClose inserts or replaces one close.
func (s *Store) UpsertClose(ticker, date string, close float64) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO daily_closes (ticker, date, close) VALUES (?, ?, ?)`,
		ticker, date, close,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert close %s %s: %w", ticker, date, err)
	}
	return nil
}

// ImportSource copies every close from another source into the store inside
// a single transaction.
func (s *Store) ImportSource(src Source, tickers []string) error {
	dates, err := src.TradingDates("", "")
	if err != nil {
		return fmt.Errorf("failed to list trading dates: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin import transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO daily_closes (ticker, date, close) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare import statement: %w", err)
	}
	defer stmt.Close()

	rows := 0
	for _, d := range dates {
		quotes, err := src.PricesOn(d, tickers)
		if err != nil {
			return fmt.Errorf("failed to read prices for %s: %w", d, err)
		}
		for t, px := range quotes {
			if _, err := stmt.Exec(t, d, px); err != nil {
				return fmt.Errorf("failed to import close %s %s: %w", t, d, err)
			}
			rows++
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit import: %w", err)
	}
	s.log.Info().Int("rows", rows).Int("dates", len(dates)).Msg("Imported price history")
	return nil
}

func (s *Store) ClosePrice(ticker, date string) (float64, error) {
	var close float64
	err := s.db.QueryRow(
		`SELECT close FROM daily_closes WHERE ticker = ? AND date = ?`,
		ticker, date,
	).Scan(&close)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("no close for %s on %s", ticker, date)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query close: %w", err)
	}
	return close, nil
}

func (s *Store) ClosesBefore(ticker, asOf string, n int) ([]float64, error) {
	rows, err := s.db.Query(
		`SELECT close FROM daily_closes
		 WHERE ticker = ? AND date < ?
		 ORDER BY date DESC LIMIT ?`,
		ticker, asOf, n,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query closes: %w", err)
	}
	defer rows.Close()

	var desc []float64
	for rows.Next() {
		var c float64
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("failed to scan close: %w", err)
		}
		desc = append(desc, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate closes: %w", err)
	}
	if len(desc) == 0 {
		return nil, fmt.Errorf("no closes for %s before %s", ticker, asOf)
	}

	// Query is newest-first for the LIMIT; callers want ascending.
	out := make([]float64, len(desc))
	for i, c := range desc {
		out[len(desc)-1-i] = c
	}
	return out, nil
}

func (s *Store) PricesOn(date string, tickers []string) (map[string]float64, error) {
	out := make(map[string]float64, len(tickers))
	for _, t := range tickers {
		var close float64
		err := s.db.QueryRow(
			`SELECT close FROM daily_closes WHERE ticker = ? AND date = ?`,
			t, date,
		).Scan(&close)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to query close for %s: %w", t, err)
		}
		out[t] = close
	}
	return out, nil
}

func (s *Store) TradingDates(start, end string) ([]string, error) {
	query := `SELECT DISTINCT date FROM daily_closes`
	var args []any
	switch {
	case start != "" && end != "":
		query += ` WHERE date >= ? AND date <= ?`
		args = append(args, start, end)
	case start != "":
		query += ` WHERE date >= ?`
		args = append(args, start)
	case end != "":
		query += ` WHERE date <= ?`
		args = append(args, end)
	}
	query += ` ORDER BY date ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trading dates: %w", err)
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan date: %w", err)
		}
		dates = append(dates, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate dates: %w", err)
	}
	return dates, nil
}
