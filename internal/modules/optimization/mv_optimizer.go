package optimization

import (
	"fmt"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
)

// MVOptimizer computes long-only mean-variance weights from expected returns
// and a covariance matrix using the unconstrained closed form followed by a
// clip-and-renormalize projection.
type MVOptimizer struct {
	riskAversion float64
	log          zerolog.Logger
}

func NewMVOptimizer(riskAversion float64, log zerolog.Logger) *MVOptimizer {
	return &MVOptimizer{
		riskAversion: riskAversion,
		log:          log.With().Str("component", "mv_optimizer").Logger(),
	}
}

// Weights solves w = (1/lambda) * pinv(Sigma) * mu, clips negatives to zero
// and renormalizes to sum to one. If every unconstrained weight is clipped
// away the result degrades to equal weight.
func (o *MVOptimizer) Weights(mu []float64, cov *mat.Dense) ([]float64, error) {
	n := len(mu)
	if n == 0 {
		return nil, fmt.Errorf("empty universe")
	}
	if err := checkCovShape(cov, n); err != nil {
		return nil, err
	}

	inv, err := PseudoInverse(cov)
	if err != nil {
		return nil, fmt.Errorf("inverting covariance: %w", err)
	}

	muVec := mat.NewVecDense(n, mu)
	var raw mat.VecDense
	raw.MulVec(inv, muVec)
	raw.ScaleVec(1.0/o.riskAversion, &raw)

	w := make([]float64, n)
	sum := 0.0
	for i := 0; i < n; i++ {
		v := raw.AtVec(i)
		if v < 0 {
			v = 0
		}
		w[i] = v
		sum += v
	}

	if sum == 0 {
		o.log.Warn().Int("assets", n).Msg("All unconstrained weights clipped, falling back to equal weight")
		for i := range w {
			w[i] = 1.0 / float64(n)
		}
		return w, nil
	}

	for i := range w {
		w[i] /= sum
	}
	return w, nil
}
