package results

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foliotrade/folio/internal/database"
	"github.com/foliotrade/folio/internal/domain"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	// cache=shared keeps the pool's connections on one memory database; the
	// per-test name isolates tests from each other.
	db, err := database.New(database.Config{
		Path:    "file:" + t.Name() + "?mode=memory&cache=shared",
		Profile: database.ProfileCache,
		Name:    "results",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo, err := NewRepository(db, zerolog.Nop())
	require.NoError(t, err)
	return repo
}

func TestSaveAndFetchRun(t *testing.T) {
	repo := newTestRepo(t)

	equity := []domain.EquityPoint{
		{Date: "2024-06-03", TotalEquity: 100000, DailyReturn: 0},
		{Date: "2024-06-04", TotalEquity: 100500, DailyReturn: 0.005},
	}
	trades := []TradeRecord{
		{Date: "2024-06-03", Trade: domain.Trade{Ticker: "AAA", DeltaShare: 10, TargetQty: 10, Price: 100}},
	}

	id, err := repo.SaveRun(Run{
		Start: "2024-06-03", End: "2024-06-04", CadenceDays: 10,
		InitialCash: 100000, FinalEquity: 100500,
	}, equity, trades)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	run, err := repo.GetRun(id)
	require.NoError(t, err)
	assert.Equal(t, "2024-06-03", run.Start)
	assert.Equal(t, 100500.0, run.FinalEquity)
	assert.NotEmpty(t, run.CreatedAt)

	series, err := repo.EquitySeries(id)
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, 0.005, series[1].DailyReturn)

	got, err := repo.Trades(id)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "AAA", got[0].Trade.Ticker)
	assert.Equal(t, 10, got[0].Trade.DeltaShare)
}

func TestListRuns(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.SaveRun(Run{Start: "2024-06-03", End: "2024-06-04"}, nil, nil)
	require.NoError(t, err)
	_, err = repo.SaveRun(Run{Start: "2024-06-05", End: "2024-06-06"}, nil, nil)
	require.NoError(t, err)

	runs, err := repo.ListRuns()
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestGetRunMissing(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.GetRun("nope")
	assert.Error(t, err)
}
