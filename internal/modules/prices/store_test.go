package prices

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "prices.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.UpsertClose("AAA", "2024-06-03", 100))
	require.NoError(t, store.UpsertClose("AAA", "2024-06-04", 101))
	require.NoError(t, store.UpsertClose("BBB", "2024-06-04", 50))

	px, err := store.ClosePrice("AAA", "2024-06-04")
	require.NoError(t, err)
	assert.Equal(t, 101.0, px)

	_, err = store.ClosePrice("AAA", "2024-06-05")
	assert.Error(t, err)
}

func TestStoreClosesBeforeAscending(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.UpsertClose("AAA", "2024-06-03", 100))
	require.NoError(t, store.UpsertClose("AAA", "2024-06-04", 101))
	require.NoError(t, store.UpsertClose("AAA", "2024-06-05", 102))

	closes, err := store.ClosesBefore("AAA", "2024-06-05", 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{100, 101}, closes)
}

func TestStoreTradingDates(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.UpsertClose("AAA", "2024-06-03", 100))
	require.NoError(t, store.UpsertClose("BBB", "2024-06-03", 50))
	require.NoError(t, store.UpsertClose("AAA", "2024-06-05", 102))

	dates, err := store.TradingDates("", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-06-03", "2024-06-05"}, dates)

	dates, err = store.TradingDates("2024-06-04", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-06-05"}, dates)
}

func TestStoreImportSource(t *testing.T) {
	path := writeCSV(t, `Date,AAA,BBB
2024-06-03,100,50
2024-06-04,101,51
`)
	src, err := NewCSVSource(path, zerolog.Nop())
	require.NoError(t, err)

	store := newTestStore(t)
	require.NoError(t, store.ImportSource(src, []string{"AAA", "BBB"}))

	quotes, err := store.PricesOn("2024-06-04", []string{"AAA", "BBB"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"AAA": 101, "BBB": 51}, quotes)
}
