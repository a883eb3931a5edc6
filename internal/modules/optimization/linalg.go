package optimization

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// float64 machine epsilon, used for the singular-value cutoff.
const epsilon = 2.220446049250313e-16

// PseudoInverse computes the Moore-Penrose pseudo-inverse via SVD.
//
// Every matrix inversion in this package goes through here rather than a
// strict inverse: short return histories routinely produce singular or
// near-singular covariance matrices, and the engine's policy is to tolerate
// them instead of failing the run. Singular values below the conventional
// cutoff (max dimension × machine epsilon × largest singular value) are
// treated as zero.
func PseudoInverse(a mat.Matrix) (*mat.Dense, error) {
	r, c := a.Dims()
	if r == 0 || c == 0 {
		return nil, fmt.Errorf("cannot invert %dx%d matrix", r, c)
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return nil, fmt.Errorf("SVD factorization failed for %dx%d matrix", r, c)
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	values := svd.Values(nil)

	maxDim := r
	if c > maxDim {
		maxDim = c
	}
	tol := 0.0
	if len(values) > 0 {
		tol = float64(maxDim) * epsilon * values[0]
	}

	// Sigma+ : reciprocal of singular values above the cutoff.
	k := len(values)
	sigmaInv := mat.NewDense(k, k, nil)
	for i, s := range values {
		if s > tol {
			sigmaInv.Set(i, i, 1.0/s)
		}
	}

	// pinv(A) = V * Sigma+ * U^T
	var tmp, pinv mat.Dense
	tmp.Mul(&v, sigmaInv)
	pinv.Mul(&tmp, u.T())
	return &pinv, nil
}

// identityScaled returns s*I of size n.
func identityScaled(n int, s float64) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, s)
	}
	return m
}
