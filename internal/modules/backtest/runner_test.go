package backtest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foliotrade/folio/internal/modules/optimization"
	"github.com/foliotrade/folio/internal/modules/prices"
	"github.com/foliotrade/folio/internal/modules/rebalancing"
	"github.com/foliotrade/folio/internal/modules/snapshots"
)

func csvFixture(t *testing.T) prices.Source {
	t.Helper()
	content := `Date,AAA,BBB
2024-06-03,100,50
2024-06-04,101,49
2024-06-05,102,48
2024-06-06,103,50
2024-06-07,104,51
2024-06-10,105,52
2024-06-11,104,53
2024-06-12,106,54
`
	path := filepath.Join(t.TempDir(), "prices.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	src, err := prices.NewCSVSource(path, zerolog.Nop())
	require.NoError(t, err)
	return src
}

func newRunner(t *testing.T, src prices.Source, writer *snapshots.Writer) *Runner {
	t.Helper()
	log := zerolog.Nop()
	return NewRunner(
		src,
		optimization.NewReturnsEstimator(src, 252, 0.1, 0.02, log),
		optimization.NewFusion(5.0, 0.05, 0.5, log),
		optimization.NewMVOptimizer(5.0, log),
		rebalancing.NewEngine(0.5, 1, log),
		nil,
		writer,
		log,
	)
}

func TestRunProducesDailyEquitySeries(t *testing.T) {
	src := csvFixture(t)
	r := newRunner(t, src, nil)

	res, err := r.Run(Params{
		Tickers:      []string{"AAA", "BBB"},
		Start:        "2024-06-05",
		End:          "2024-06-12",
		CadenceDays:  3,
		InitialCash:  100000,
		SharpeWindow: 20,
		CalmarWindow: 60,
	})
	require.NoError(t, err)

	require.Len(t, res.Equity, 6)
	assert.Equal(t, "2024-06-05", res.Equity[0].Date)
	assert.Equal(t, "2024-06-12", res.Equity[5].Date)
	for _, pt := range res.Equity {
		assert.Greater(t, pt.TotalEquity, 0.0)
	}
	require.NotNil(t, res.Final)
	assert.GreaterOrEqual(t, res.Final.Cash, 0.0)
}

func TestRunFirstRebalanceDeploysCapital(t *testing.T) {
	src := csvFixture(t)
	r := newRunner(t, src, nil)

	res, err := r.Run(Params{
		Tickers:      []string{"AAA", "BBB"},
		Start:        "2024-06-06",
		End:          "2024-06-12",
		CadenceDays:  3,
		InitialCash:  100000,
		SharpeWindow: 20,
		CalmarWindow: 60,
	})
	require.NoError(t, err)

	require.NotEmpty(t, res.Trades)
	assert.Equal(t, "2024-06-06", res.Trades[0].Date)
	assert.Less(t, res.Final.Cash, 100000.0)
}

func TestRunRevaluationDaysDoNotTrade(t *testing.T) {
	src := csvFixture(t)
	r := newRunner(t, src, nil)

	res, err := r.Run(Params{
		Tickers:      []string{"AAA", "BBB"},
		Start:        "2024-06-06",
		End:          "2024-06-12",
		CadenceDays:  100, // rebalance only on the anchor day
		InitialCash:  100000,
		SharpeWindow: 20,
		CalmarWindow: 60,
	})
	require.NoError(t, err)

	require.NotEmpty(t, res.Trades)
	for _, tr := range res.Trades {
		assert.Equal(t, "2024-06-06", tr.Date)
	}
}

func TestRunNoLookAheadOnFirstDay(t *testing.T) {
	// With only two prior closes per ticker the estimator must still work
	// from data strictly before the decision date; equity on day one can
	// only move by that day's mark-to-market.
	src := csvFixture(t)
	r := newRunner(t, src, nil)

	res, err := r.Run(Params{
		Tickers:      []string{"AAA", "BBB"},
		Start:        "2024-06-06",
		End:          "2024-06-07",
		CadenceDays:  1,
		InitialCash:  50000,
		SharpeWindow: 20,
		CalmarWindow: 60,
	})
	require.NoError(t, err)
	require.Len(t, res.Returns, 2)

	// Day one starts all-cash: its return is zero by construction.
	assert.Equal(t, 0.0, res.Returns[0])
}

func TestRunWritesSnapshotsAndArtifacts(t *testing.T) {
	src := csvFixture(t)
	outDir := t.TempDir()
	w := snapshots.NewWriter(outDir, zerolog.Nop())
	r := newRunner(t, src, w)

	_, err := r.Run(Params{
		Tickers:      []string{"AAA", "BBB"},
		Start:        "2024-06-05",
		End:          "2024-06-12",
		CadenceDays:  3,
		InitialCash:  100000,
		SharpeWindow: 20,
		CalmarWindow: 60,
	})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(outDir, "2024-06-05", "portfolio_snapshot_2024-06-05.json"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(outDir, "results", "rolling_metrics.json"))
	assert.NoError(t, err)
}

func TestRunPersistsLedger(t *testing.T) {
	src := csvFixture(t)
	ledgerPath := filepath.Join(t.TempDir(), "portfolio.json")
	r := newRunner(t, src, nil)

	_, err := r.Run(Params{
		Tickers:      []string{"AAA", "BBB"},
		Start:        "2024-06-05",
		End:          "2024-06-07",
		CadenceDays:  3,
		InitialCash:  100000,
		SharpeWindow: 20,
		CalmarWindow: 60,
		LedgerPath:   ledgerPath,
	})
	require.NoError(t, err)

	_, err = os.Stat(ledgerPath)
	assert.NoError(t, err)
}

func TestRunEmptyUniverse(t *testing.T) {
	src := csvFixture(t)
	r := newRunner(t, src, nil)

	_, err := r.Run(Params{Start: "2024-06-05", End: "2024-06-07"})
	assert.Error(t, err)
}
