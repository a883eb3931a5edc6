package snapshots

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foliotrade/folio/internal/modules/ledger"
)

func TestEnrichDerivesValuation(t *testing.T) {
	snap := ledger.New(1000)
	snap.Portfolio["AAA"] = &ledger.Position{Quantity: 10, LastPrice: 100, EntryPrice: 90}

	e := Enrich(snap, nil)
	assert.Equal(t, 2000.0, e.NetLiquidation)
	assert.Equal(t, 2000.0, e.PortfolioValue)
	assert.Equal(t, 2000.0, e.BuyingPower)
	assert.Equal(t, 1000.0, e.Cash)
	assert.Equal(t, 1000.0, e.Liquid)
	assert.Nil(t, e.DailyReturn)
}

func TestEnrichDropsNaNMetrics(t *testing.T) {
	snap := ledger.New(500)
	e := Enrich(snap, &Metrics{DailyReturn: 0.01, RollingSharpe: math.NaN()})

	require.NotNil(t, e.DailyReturn)
	assert.Equal(t, 0.01, *e.DailyReturn)
	assert.Nil(t, e.RollingSharpe)
}

func TestWriteDayLayout(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, zerolog.Nop())

	snap := ledger.New(1000)
	dayDir, err := w.WriteDay("2024-06-03", snap, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "2024-06-03"), dayDir)

	data, err := os.ReadFile(filepath.Join(dayDir, "portfolio_snapshot_2024-06-03.json"))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, 1000.0, got["liquid"])
	assert.Equal(t, 1000.0, got["net_liquidation"])
}

func TestEnrichedRoundTripsAsLedgerSnapshot(t *testing.T) {
	// Daily snapshots must stay loadable as plain ledgers so a run can
	// resume from its last written day.
	snap := ledger.New(750)
	snap.Portfolio["AAA"] = &ledger.Position{Quantity: 3, LastPrice: 10, EntryPrice: 9}

	data, err := json.Marshal(Enrich(snap, nil))
	require.NoError(t, err)

	var back ledger.Snapshot
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, 750.0, back.Cash)
	assert.Equal(t, 3, back.Quantity("AAA"))
}

func TestWriteReport(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, zerolog.Nop())

	require.NoError(t, w.WriteReport("2024-06-03", "Resizing Report - 2024-06-03\n"))
	data, err := os.ReadFile(filepath.Join(dir, "2024-06-03", "resizingReport.md"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Resizing Report")
}

func TestWriteRollingMetricsNullsNaN(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, zerolog.Nop())

	err := w.WriteRollingMetrics(&RollingMetricsArtifact{
		Dates:   []string{"2024-06-03", "2024-06-04"},
		Sharpe:  []float64{math.NaN(), 1.5},
		Sortino: []float64{math.NaN(), 2.0},
		Calmar:  []float64{math.NaN(), math.NaN()},
	})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "results", "rolling_metrics.json"))
	require.NoError(t, err)

	var got struct {
		Sharpe []*float64 `json:"sharpe"`
	}
	require.NoError(t, json.Unmarshal(data, &got))
	require.Len(t, got.Sharpe, 2)
	assert.Nil(t, got.Sharpe[0])
	require.NotNil(t, got.Sharpe[1])
	assert.Equal(t, 1.5, *got.Sharpe[1])
}
