package optimization

import (
	"fmt"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
)

// ViewSet is a set of K linear views on an N-asset universe: the picking
// matrix P (K x N), the view vector Q (K), and the diagonal uncertainty
// matrix Omega (K x K). Omega may be nil, in which case the fusion derives it
// from the prior. Views are produced externally and consumed as-is.
type ViewSet struct {
	P     *mat.Dense
	Q     []float64
	Omega *mat.Dense
}

// Empty reports whether the set carries no views.
func (v ViewSet) Empty() bool {
	if v.P == nil {
		return true
	}
	k, _ := v.P.Dims()
	return k == 0
}

// validate checks the set's shapes against an N-asset universe. Shape
// mismatches are caller contract violations and the only error condition.
func (v ViewSet) validate(n int) error {
	if v.Empty() {
		return nil
	}
	k, cols := v.P.Dims()
	if cols != n {
		return fmt.Errorf("picking matrix has %d columns, universe has %d assets", cols, n)
	}
	if len(v.Q) != k {
		return fmt.Errorf("view vector has %d entries, picking matrix has %d rows", len(v.Q), k)
	}
	if v.Omega != nil {
		or, oc := v.Omega.Dims()
		if or != k || oc != k {
			return fmt.Errorf("omega is %dx%d, expected %dx%d", or, oc, k, k)
		}
	}
	return nil
}

// Fusion combines market-implied equilibrium returns with external views via
// the standard Black-Litterman closed form.
type Fusion struct {
	riskAversion float64
	tau          float64
	confidence   float64
	log          zerolog.Logger
}

// NewFusion creates a view-fusion component. confidence in (0, 1] controls
// the derived Omega when views arrive without one: higher confidence means
// smaller view uncertainty, so views dominate the posterior more.
func NewFusion(riskAversion, tau, confidence float64, log zerolog.Logger) *Fusion {
	return &Fusion{
		riskAversion: riskAversion,
		tau:          tau,
		confidence:   confidence,
		log:          log.With().Str("component", "black_litterman").Logger(),
	}
}

// Equilibrium computes the market-implied returns pi = lambda * Sigma * w.
// Market weights are renormalized to sum to one; an all-zero vector falls
// back to equal weight.
func (f *Fusion) Equilibrium(cov *mat.Dense, marketWeights []float64) ([]float64, error) {
	n := len(marketWeights)
	if err := checkCovShape(cov, n); err != nil {
		return nil, err
	}

	w := normalizeWeights(marketWeights)
	pi := make([]float64, n)
	for i := 0; i < n; i++ {
		sum := 0.0
		for j := 0; j < n; j++ {
			sum += cov.At(i, j) * w[j]
		}
		pi[i] = f.riskAversion * sum
	}
	return pi, nil
}

// Posterior returns the Black-Litterman posterior mean and covariance. With
// an empty view set the equilibrium returns pass through unchanged and the
// prior covariance is returned as-is.
func (f *Fusion) Posterior(cov *mat.Dense, marketWeights []float64, views ViewSet) ([]float64, *mat.Dense, error) {
	n := len(marketWeights)
	if err := checkCovShape(cov, n); err != nil {
		return nil, nil, err
	}
	if err := views.validate(n); err != nil {
		return nil, nil, err
	}

	pi, err := f.Equilibrium(cov, marketWeights)
	if err != nil {
		return nil, nil, err
	}

	if views.Empty() {
		out := mat.NewDense(n, n, nil)
		out.Copy(cov)
		return pi, out, nil
	}

	k, _ := views.P.Dims()

	// tau * Sigma and its pseudo-inverse.
	tauSigma := mat.NewDense(n, n, nil)
	tauSigma.Scale(f.tau, cov)
	invTauSigma, err := PseudoInverse(tauSigma)
	if err != nil {
		return nil, nil, err
	}

	omega := views.Omega
	if omega == nil {
		omega = f.deriveOmega(views.P, tauSigma)
	}
	invOmega, err := PseudoInverse(omega)
	if err != nil {
		return nil, nil, err
	}

	// M = pinv( pinv(tau*Sigma) + P^T * Omega^-1 * P )
	var ptInvOmega, ptInvOmegaP, precision mat.Dense
	ptInvOmega.Mul(views.P.T(), invOmega)
	ptInvOmegaP.Mul(&ptInvOmega, views.P)
	precision.Add(invTauSigma, &ptInvOmegaP)

	posteriorCov, err := PseudoInverse(&precision)
	if err != nil {
		return nil, nil, err
	}

	// right = pinv(tau*Sigma) * pi + P^T * Omega^-1 * Q
	piVec := mat.NewVecDense(n, pi)
	qVec := mat.NewVecDense(k, views.Q)
	var a, b, right mat.VecDense
	a.MulVec(invTauSigma, piVec)
	b.MulVec(&ptInvOmega, qVec)
	right.AddVec(&a, &b)

	var muVec mat.VecDense
	muVec.MulVec(posteriorCov, &right)

	mu := make([]float64, n)
	for i := 0; i < n; i++ {
		mu[i] = muVec.AtVec(i)
	}

	f.log.Debug().
		Int("assets", n).
		Int("views", k).
		Bool("derived_omega", views.Omega == nil).
		Msg("Fused views into posterior returns")

	return mu, posteriorCov, nil
}

// deriveOmega builds the view uncertainty from the diagonal of
// P * tauSigma * P^T, scaled by (1-c)/c so higher confidence c shrinks
// Omega and the views pull the posterior harder. The diagonal is floored to
// keep Omega invertible.
func (f *Fusion) deriveOmega(p, tauSigma *mat.Dense) *mat.Dense {
	k, _ := p.Dims()
	var tmp, full mat.Dense
	tmp.Mul(p, tauSigma)
	full.Mul(&tmp, p.T())

	scale := (1 - f.confidence) / f.confidence
	omega := mat.NewDense(k, k, nil)
	for i := 0; i < k; i++ {
		d := full.At(i, i) * scale
		if d < 1e-8 {
			d = 1e-8
		}
		omega.Set(i, i, d)
	}
	return omega
}

func checkCovShape(cov *mat.Dense, n int) error {
	if cov == nil {
		return fmt.Errorf("covariance is nil")
	}
	r, c := cov.Dims()
	if r != n || c != n {
		return fmt.Errorf("covariance is %dx%d, expected %dx%d", r, c, n, n)
	}
	if n == 0 {
		return fmt.Errorf("empty universe")
	}
	return nil
}

func normalizeWeights(weights []float64) []float64 {
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	out := make([]float64, len(weights))
	if sum == 0 {
		for i := range out {
			out[i] = 1.0 / float64(len(weights))
		}
		return out
	}
	for i, w := range weights {
		out[i] = w / sum
	}
	return out
}
