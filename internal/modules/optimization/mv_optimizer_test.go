package optimization

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestWeightsSumToOneAndNonNegative(t *testing.T) {
	o := NewMVOptimizer(5.0, zerolog.Nop())

	mu := []float64{0.08, 0.05, 0.12}
	w, err := o.Weights(mu, testCov())
	require.NoError(t, err)
	require.Len(t, w, 3)

	sum := 0.0
	for _, v := range w {
		assert.GreaterOrEqual(t, v, 0.0)
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestWeightsPreferHigherReturnAtEqualRisk(t *testing.T) {
	o := NewMVOptimizer(5.0, zerolog.Nop())

	cov := mat.NewDense(2, 2, []float64{
		0.04, 0,
		0, 0.04,
	})
	w, err := o.Weights([]float64{0.10, 0.05}, cov)
	require.NoError(t, err)
	assert.Greater(t, w[0], w[1])
}

func TestWeightsEqualWeightFallback(t *testing.T) {
	o := NewMVOptimizer(5.0, zerolog.Nop())

	// Uniformly negative expected returns clip every weight to zero.
	w, err := o.Weights([]float64{-0.05, -0.08, -0.02}, testCov())
	require.NoError(t, err)
	for _, v := range w {
		assert.InDelta(t, 1.0/3.0, v, 1e-12)
	}
}

func TestWeightsEmptyUniverse(t *testing.T) {
	o := NewMVOptimizer(5.0, zerolog.Nop())
	_, err := o.Weights(nil, nil)
	assert.Error(t, err)
}

func TestWeightsDeterministic(t *testing.T) {
	o := NewMVOptimizer(5.0, zerolog.Nop())
	mu := []float64{0.08, 0.05, 0.12}

	w1, err := o.Weights(mu, testCov())
	require.NoError(t, err)
	w2, err := o.Weights(mu, testCov())
	require.NoError(t, err)
	assert.Equal(t, w1, w2)
}
