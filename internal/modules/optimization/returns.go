// Package optimization implements the sizing pipeline's quantitative core:
// return/covariance estimation, Black-Litterman view fusion, and closed-form
// mean-variance optimization.
package optimization

import (
	"fmt"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// TradingDaysPerYear is the annualization factor for daily statistics.
const TradingDaysPerYear = 252

// FallbackVariance is the diagonal prior used when fewer than two aligned
// return rows exist for the lookback window.
const FallbackVariance = 1e-4

// PriceSource supplies historical closes. ClosesBefore returns up to n daily
// closes for a ticker ending strictly before asOf, in ascending date order.
// The strict cutoff is what keeps walk-forward decisions free of look-ahead.
type PriceSource interface {
	ClosesBefore(ticker, asOf string, n int) ([]float64, error)
}

// Estimate is an aligned return/covariance/mean bundle. Cols carries the
// tickers that survived data filtering; every other structure (weights,
// views) must be re-aligned to this ordering, not the requested ticker list.
type Estimate struct {
	Cols    []string
	Returns *mat.Dense // T x N daily simple returns
	Cov     *mat.Dense // N x N annualized covariance
	Mu      []float64  // N annualized mean returns
}

// ReturnsEstimator builds annualized covariance and mean estimates from a
// historical price source.
type ReturnsEstimator struct {
	src       PriceSource
	lookback  int
	shrinkage float64 // blend toward mean-diagonal identity, 0 disables
	muClamp   float64 // clamp on daily mean returns, 0 disables
	log       zerolog.Logger
}

// NewReturnsEstimator creates a returns estimator.
func NewReturnsEstimator(src PriceSource, lookback int, shrinkage, muClamp float64, log zerolog.Logger) *ReturnsEstimator {
	return &ReturnsEstimator{
		src:       src,
		lookback:  lookback,
		shrinkage: shrinkage,
		muClamp:   muClamp,
		log:       log.With().Str("component", "returns").Logger(),
	}
}

// Estimate builds the aligned return matrix for the lookback window ending
// strictly before asOf and derives annualized covariance and mean from it.
//
// Tickers with missing or too-short price series are dropped from Cols, not
// reported as errors; data availability is a quality issue, not a caller
// contract violation. With fewer than two usable return rows the estimate
// degrades to a neutral prior: diagonal covariance of small fixed variance
// and zero mean.
func (re *ReturnsEstimator) Estimate(tickers []string, asOf string) (*Estimate, error) {
	if len(tickers) == 0 {
		return nil, fmt.Errorf("no tickers provided")
	}

	series := make([][]float64, 0, len(tickers))
	cols := make([]string, 0, len(tickers))
	for _, t := range tickers {
		closes, err := re.src.ClosesBefore(t, asOf, re.lookback+1)
		if err != nil {
			re.log.Debug().Str("ticker", t).Err(err).Msg("Dropping ticker from estimation universe")
			continue
		}
		if len(closes) < 2 {
			re.log.Debug().Str("ticker", t).Int("closes", len(closes)).Msg("Insufficient history, dropping ticker")
			continue
		}
		series = append(series, closes)
		cols = append(cols, t)
	}

	if len(cols) == 0 {
		return &Estimate{Cols: nil}, nil
	}

	// Align by the shortest surviving series.
	minLen := len(series[0])
	for _, s := range series[1:] {
		if len(s) < minLen {
			minLen = len(s)
		}
	}

	n := len(cols)
	rows := minLen - 1
	returns := mat.NewDense(rows, n, nil)
	for j, s := range series {
		tail := s[len(s)-minLen:]
		for i := 1; i < minLen; i++ {
			r := 0.0
			if tail[i-1] > 0 {
				r = tail[i]/tail[i-1] - 1.0
			}
			returns.Set(i-1, j, r)
		}
	}

	est := &Estimate{Cols: cols, Returns: returns}

	if rows < 2 {
		est.Cov = identityScaled(n, FallbackVariance)
		est.Mu = make([]float64, n)
		re.log.Warn().Str("as_of", asOf).Int("rows", rows).Msg("Too few return rows, using neutral prior")
		return est, nil
	}

	var sym mat.SymDense
	stat.CovarianceMatrix(&sym, returns, nil)

	cov := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			cov.Set(i, j, sym.At(i, j)*TradingDaysPerYear)
		}
		// Jitter keeps zero-variance columns from producing an exactly
		// singular matrix.
		cov.Set(i, i, cov.At(i, i)+1e-8)
	}

	if re.shrinkage > 0 {
		diagMean := 0.0
		for i := 0; i < n; i++ {
			diagMean += cov.At(i, i)
		}
		diagMean /= float64(n)
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				v := (1 - re.shrinkage) * cov.At(i, j)
				if i == j {
					v += re.shrinkage * diagMean
				}
				cov.Set(i, j, v)
			}
		}
	}

	mu := make([]float64, n)
	for j := 0; j < n; j++ {
		mu[j] = stat.Mean(mat.Col(nil, j, returns), nil)
		if re.muClamp > 0 {
			mu[j] = clamp(mu[j], -re.muClamp, re.muClamp)
		}
		mu[j] *= TradingDaysPerYear
	}

	est.Cov = cov
	est.Mu = mu

	re.log.Debug().
		Str("as_of", asOf).
		Int("requested", len(tickers)).
		Int("kept", n).
		Int("rows", rows).
		Msg("Estimated returns")

	return est, nil
}

// WindowReturns collects each ticker's daily returns over the last window
// trading days ending strictly before asOf, for view generation. Tickers
// without usable history map to empty slices.
func (re *ReturnsEstimator) WindowReturns(tickers []string, asOf string, window int) map[string][]float64 {
	out := make(map[string][]float64, len(tickers))
	for _, t := range tickers {
		closes, err := re.src.ClosesBefore(t, asOf, window+1)
		if err != nil || len(closes) < 2 {
			out[t] = nil
			continue
		}
		rets := make([]float64, 0, len(closes)-1)
		for i := 1; i < len(closes); i++ {
			if closes[i-1] > 0 {
				rets = append(rets, closes[i]/closes[i-1]-1.0)
			}
		}
		out[t] = rets
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
