// Package results persists backtest runs: run metadata, the daily equity
// series, and executed trades.
package results

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/foliotrade/folio/internal/database"
	"github.com/foliotrade/folio/internal/domain"
)

// Run is one persisted backtest run.
type Run struct {
	ID          string  `json:"id"`
	Start       string  `json:"start"`
	End         string  `json:"end"`
	CadenceDays int     `json:"cadence_days"`
	InitialCash float64 `json:"initial_cash"`
	FinalEquity float64 `json:"final_equity"`
	CreatedAt   string  `json:"created_at"`
}

// Repository stores runs in the results database.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates the repository and ensures its schema exists.
func NewRepository(db *database.DB, log zerolog.Logger) (*Repository, error) {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			id           TEXT PRIMARY KEY,
			start_date   TEXT NOT NULL,
			end_date     TEXT NOT NULL,
			cadence_days INTEGER NOT NULL,
			initial_cash REAL NOT NULL,
			final_equity REAL NOT NULL,
			created_at   TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS equity_points (
			run_id       TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			date         TEXT NOT NULL,
			total_equity REAL NOT NULL,
			daily_return REAL NOT NULL,
			PRIMARY KEY (run_id, date)
		);
		CREATE TABLE IF NOT EXISTS trades (
			run_id       TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			date         TEXT NOT NULL,
			ticker       TEXT NOT NULL,
			delta_shares INTEGER NOT NULL,
			target_qty   INTEGER NOT NULL,
			current_qty  INTEGER NOT NULL,
			price        REAL NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_trades_run_date ON trades(run_id, date);
	`
	if _, err := db.Conn().Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize results schema: %w", err)
	}
	return &Repository{
		db:  db,
		log: log.With().Str("component", "results").Logger(),
	}, nil
}

// TradeRecord pairs a trade with its simulation date for persistence.
type TradeRecord struct {
	Date  string
	Trade domain.Trade
}

// SaveRun persists a completed run with its equity series and trades in one
// transaction, returning the generated run ID.
func (r *Repository) SaveRun(run Run, equity []domain.EquityPoint, trades []TradeRecord) (string, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt == "" {
		run.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO runs (id, start_date, end_date, cadence_days, initial_cash, final_equity, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Start, run.End, run.CadenceDays, run.InitialCash, run.FinalEquity, run.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	eqStmt, err := tx.Prepare(
		`INSERT INTO equity_points (run_id, date, total_equity, daily_return) VALUES (?, ?, ?, ?)`,
	)
	if err != nil {
		return "", fmt.Errorf("failed to prepare equity insert: %w", err)
	}
	defer eqStmt.Close()
	for _, pt := range equity {
		if _, err := eqStmt.Exec(run.ID, pt.Date, pt.TotalEquity, pt.DailyReturn); err != nil {
			return "", fmt.Errorf("failed to insert equity point %s: %w", pt.Date, err)
		}
	}

	trStmt, err := tx.Prepare(
		`INSERT INTO trades (run_id, date, ticker, delta_shares, target_qty, current_qty, price)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return "", fmt.Errorf("failed to prepare trade insert: %w", err)
	}
	defer trStmt.Close()
	for _, rec := range trades {
		_, err := trStmt.Exec(run.ID, rec.Date, rec.Trade.Ticker,
			rec.Trade.DeltaShare, rec.Trade.TargetQty, rec.Trade.CurrentQty, rec.Trade.Price)
		if err != nil {
			return "", fmt.Errorf("failed to insert trade %s %s: %w", rec.Date, rec.Trade.Ticker, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}

	r.log.Info().
		Str("run_id", run.ID).
		Int("equity_points", len(equity)).
		Int("trades", len(trades)).
		Msg("Backtest run saved")
	return run.ID, nil
}

// ListRuns returns runs newest first.
func (r *Repository) ListRuns() ([]Run, error) {
	rows, err := r.db.Conn().Query(
		`SELECT id, start_date, end_date, cadence_days, initial_cash, final_equity, created_at
		 FROM runs ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.Start, &run.End, &run.CadenceDays,
			&run.InitialCash, &run.FinalEquity, &run.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun fetches one run by ID.
func (r *Repository) GetRun(id string) (*Run, error) {
	var run Run
	err := r.db.Conn().QueryRow(
		`SELECT id, start_date, end_date, cadence_days, initial_cash, final_equity, created_at
		 FROM runs WHERE id = ?`, id,
	).Scan(&run.ID, &run.Start, &run.End, &run.CadenceDays,
		&run.InitialCash, &run.FinalEquity, &run.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	return &run, nil
}

// EquitySeries returns a run's equity points in date order.
func (r *Repository) EquitySeries(runID string) ([]domain.EquityPoint, error) {
	rows, err := r.db.Conn().Query(
		`SELECT date, total_equity, daily_return FROM equity_points
		 WHERE run_id = ? ORDER BY date ASC`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query equity series: %w", err)
	}
	defer rows.Close()

	var points []domain.EquityPoint
	for rows.Next() {
		var pt domain.EquityPoint
		if err := rows.Scan(&pt.Date, &pt.TotalEquity, &pt.DailyReturn); err != nil {
			return nil, fmt.Errorf("failed to scan equity point: %w", err)
		}
		points = append(points, pt)
	}
	return points, rows.Err()
}

// Trades returns a run's trades in date order.
func (r *Repository) Trades(runID string) ([]TradeRecord, error) {
	rows, err := r.db.Conn().Query(
		`SELECT date, ticker, delta_shares, target_qty, current_qty, price
		 FROM trades WHERE run_id = ? ORDER BY date ASC, ticker ASC`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var records []TradeRecord
	for rows.Next() {
		var rec TradeRecord
		if err := rows.Scan(&rec.Date, &rec.Trade.Ticker, &rec.Trade.DeltaShare,
			&rec.Trade.TargetQty, &rec.Trade.CurrentQty, &rec.Trade.Price); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
