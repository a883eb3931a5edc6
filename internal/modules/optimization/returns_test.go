package optimization

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foliotrade/folio/internal/domain"
)

type mapSource struct {
	closes map[string][]float64
}

func (m *mapSource) ClosesBefore(ticker, asOf string, n int) ([]float64, error) {
	s, ok := m.closes[ticker]
	if !ok {
		return nil, fmt.Errorf("no prices for %s", ticker)
	}
	if len(s) > n {
		s = s[len(s)-n:]
	}
	return s, nil
}

func TestEstimateDropsUnknownTickers(t *testing.T) {
	src := &mapSource{closes: map[string][]float64{
		"AAA": {100, 101, 102, 103, 104, 105},
		"BBB": {50, 51, 50.5, 52, 51, 53},
	}}
	re := NewReturnsEstimator(src, 252, 0.1, 0.02, zerolog.Nop())

	est, err := re.Estimate([]string{"AAA", "ZZZ", "BBB"}, "2024-06-03")
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA", "BBB"}, est.Cols)

	rows, cols := est.Returns.Dims()
	assert.Equal(t, 5, rows)
	assert.Equal(t, 2, cols)
}

func TestEstimateAlignsByShortestSeries(t *testing.T) {
	src := &mapSource{closes: map[string][]float64{
		"AAA": {100, 101, 102, 103, 104, 105, 106, 107},
		"BBB": {50, 51, 52, 53},
	}}
	re := NewReturnsEstimator(src, 252, 0, 0, zerolog.Nop())

	est, err := re.Estimate([]string{"AAA", "BBB"}, "2024-06-03")
	require.NoError(t, err)
	rows, _ := est.Returns.Dims()
	assert.Equal(t, 3, rows)

	// AAA's aligned window is its last 4 closes.
	assert.InDelta(t, 105.0/104.0-1.0, est.Returns.At(0, 0), 1e-12)
}

func TestEstimateDropsSingleCloseSeries(t *testing.T) {
	src := &mapSource{closes: map[string][]float64{"AAA": {100}}}
	re := NewReturnsEstimator(src, 252, 0.1, 0.02, zerolog.Nop())

	est, err := re.Estimate([]string{"AAA"}, "2024-06-03")
	require.NoError(t, err)
	assert.Empty(t, est.Cols)
}

func TestEstimateNeutralPriorOnSingleReturnRow(t *testing.T) {
	// Two closes per ticker give one return row, too few for a covariance.
	src := &mapSource{closes: map[string][]float64{
		"AAA": {100, 101},
		"BBB": {50, 49},
	}}
	re := NewReturnsEstimator(src, 252, 0.1, 0.02, zerolog.Nop())

	est, err := re.Estimate([]string{"AAA", "BBB"}, "2024-06-03")
	require.NoError(t, err)
	require.Equal(t, []string{"AAA", "BBB"}, est.Cols)

	assert.Equal(t, []float64{0, 0}, est.Mu)
	assert.InDelta(t, FallbackVariance, est.Cov.At(0, 0), 1e-15)
	assert.InDelta(t, FallbackVariance, est.Cov.At(1, 1), 1e-15)
	assert.Equal(t, 0.0, est.Cov.At(0, 1))
}

func TestEstimateAnnualizesAndClampsMean(t *testing.T) {
	// 10% daily moves, far beyond the 2% clamp.
	src := &mapSource{closes: map[string][]float64{
		"AAA": {100, 110, 121, 133.1, 146.41},
		"BBB": {100, 99, 101, 100, 102},
	}}
	re := NewReturnsEstimator(src, 252, 0, 0.02, zerolog.Nop())

	est, err := re.Estimate([]string{"AAA", "BBB"}, "2024-06-03")
	require.NoError(t, err)
	assert.InDelta(t, 0.02*TradingDaysPerYear, est.Mu[0], 1e-9)
}

func TestWindowReturns(t *testing.T) {
	src := &mapSource{closes: map[string][]float64{
		"AAA": {100, 102, 101},
	}}
	re := NewReturnsEstimator(src, 252, 0, 0, zerolog.Nop())

	rets := re.WindowReturns([]string{"AAA", "BBB"}, "2024-06-03", 20)
	require.Len(t, rets["AAA"], 2)
	assert.InDelta(t, 0.02, rets["AAA"][0], 1e-12)
	assert.Nil(t, rets["BBB"])
}

func TestViewsFromDecisions(t *testing.T) {
	tickers := []string{"AAA", "BBB", "CCC"}
	views := ViewsFromDecisions(tickers, map[string]domain.Decision{
		"AAA": domain.Buy,
		"BBB": domain.Hold,
		"CCC": domain.Sell,
	})
	require.False(t, views.Empty())

	k, n := views.P.Dims()
	assert.Equal(t, 2, k)
	assert.Equal(t, 3, n)
	assert.Equal(t, 1.0, views.P.At(0, 0))
	assert.Equal(t, 1.0, views.P.At(1, 2))
	assert.Equal(t, []float64{0.02, -0.02}, views.Q)
}

func TestViewsFromDecisionsAllHold(t *testing.T) {
	views := ViewsFromDecisions([]string{"AAA"}, map[string]domain.Decision{
		"AAA": domain.Hold,
	})
	assert.True(t, views.Empty())
}
