// Package snapshots persists enriched per-day portfolio snapshots to a
// per-run output directory: one dated subdirectory per trading day, holding
// the snapshot JSON and the day's resizing report when one was produced.
package snapshots

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/foliotrade/folio/internal/modules/ledger"
)

// Enriched is the daily snapshot written for consumers: the raw ledger state
// plus derived valuation fields and, when available, the day's risk metrics.
// NaN metric values are omitted rather than serialized.
type Enriched struct {
	Portfolio map[string]*ledger.Position `json:"portfolio"`
	Liquid    float64                     `json:"liquid"`

	NetLiquidation float64 `json:"net_liquidation"`
	PortfolioValue float64 `json:"portfolio_value"`
	Cash           float64 `json:"cash"`
	BuyingPower    float64 `json:"buying_power"`

	DailyReturn      *float64 `json:"daily_return,omitempty"`
	CumulativeReturn *float64 `json:"cumulative_return,omitempty"`
	Drawdown         *float64 `json:"drawdown,omitempty"`
	RollingSharpe    *float64 `json:"rolling_sharpe,omitempty"`
	RollingSortino   *float64 `json:"rolling_sortino,omitempty"`
	RollingCalmar    *float64 `json:"rolling_calmar,omitempty"`
}

// Metrics carries the optional per-day metric fields for an enriched
// snapshot. NaN values are dropped on serialization.
type Metrics struct {
	DailyReturn      float64
	CumulativeReturn float64
	Drawdown         float64
	RollingSharpe    float64
	RollingSortino   float64
	RollingCalmar    float64
}

// Writer lays out one run's snapshot files under a base directory.
type Writer struct {
	baseDir string
	log     zerolog.Logger
}

func NewWriter(baseDir string, log zerolog.Logger) *Writer {
	return &Writer{
		baseDir: baseDir,
		log:     log.With().Str("component", "snapshots").Logger(),
	}
}

// DayDir returns (and creates) the output directory for a date.
func (w *Writer) DayDir(date string) (string, error) {
	dir := filepath.Join(w.baseDir, date)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create day directory %s: %w", dir, err)
	}
	return dir, nil
}

// Enrich derives the valuation fields from a ledger snapshot.
func Enrich(snap *ledger.Snapshot, metrics *Metrics) *Enriched {
	netLiq := snap.Equity()
	out := &Enriched{
		Portfolio:      snap.Portfolio,
		Liquid:         snap.Cash,
		NetLiquidation: netLiq,
		PortfolioValue: netLiq,
		Cash:           snap.Cash,
		BuyingPower:    netLiq,
	}
	if metrics != nil {
		out.DailyReturn = finite(metrics.DailyReturn)
		out.CumulativeReturn = finite(metrics.CumulativeReturn)
		out.Drawdown = finite(metrics.Drawdown)
		out.RollingSharpe = finite(metrics.RollingSharpe)
		out.RollingSortino = finite(metrics.RollingSortino)
		out.RollingCalmar = finite(metrics.RollingCalmar)
	}
	return out
}

// WriteDay persists the enriched snapshot for a date and returns the day
// directory for any further artifacts (reports).
func (w *Writer) WriteDay(date string, snap *ledger.Snapshot, metrics *Metrics) (string, error) {
	dir, err := w.DayDir(date)
	if err != nil {
		return "", err
	}

	enriched := Enrich(snap, metrics)
	data, err := json.MarshalIndent(enriched, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot for %s: %w", date, err)
	}

	path := filepath.Join(dir, fmt.Sprintf("portfolio_snapshot_%s.json", date))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write snapshot %s: %w", path, err)
	}

	w.log.Debug().Str("date", date).Str("path", path).Msg("Portfolio snapshot saved")
	return dir, nil
}

// WriteReport saves a resizing report next to the day's snapshot.
func (w *Writer) WriteReport(date, report string) error {
	dir, err := w.DayDir(date)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, "resizingReport.md")
	if err := os.WriteFile(path, []byte(report), 0644); err != nil {
		return fmt.Errorf("failed to write resizing report %s: %w", path, err)
	}
	return nil
}

// RollingMetricsArtifact is the end-of-run metrics summary.
type RollingMetricsArtifact struct {
	Dates   []string  `json:"dates"`
	Sharpe  []float64 `json:"sharpe"`
	Sortino []float64 `json:"sortino"`
	Calmar  []float64 `json:"calmar"`
}

// WriteRollingMetrics persists the end-of-run rolling metric series under
// results/rolling_metrics.json. NaN entries are serialized as null.
func (w *Writer) WriteRollingMetrics(artifact *RollingMetricsArtifact) error {
	dir := filepath.Join(w.baseDir, "results")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create results directory: %w", err)
	}

	// encoding/json rejects NaN; marshal via nullable values.
	type nullable struct {
		Dates   []string   `json:"dates"`
		Sharpe  []*float64 `json:"sharpe"`
		Sortino []*float64 `json:"sortino"`
		Calmar  []*float64 `json:"calmar"`
	}
	out := nullable{
		Dates:   artifact.Dates,
		Sharpe:  nullify(artifact.Sharpe),
		Sortino: nullify(artifact.Sortino),
		Calmar:  nullify(artifact.Calmar),
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal rolling metrics: %w", err)
	}

	path := filepath.Join(dir, "rolling_metrics.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write rolling metrics %s: %w", path, err)
	}
	w.log.Info().Str("path", path).Int("points", len(artifact.Dates)).Msg("Rolling metrics saved")
	return nil
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func nullify(vals []float64) []*float64 {
	out := make([]*float64, len(vals))
	for i, v := range vals {
		out[i] = finite(v)
	}
	return out
}
