// Package metrics computes rolling and cumulative risk statistics over daily
// return series. Undefined windows (too few points, zero risk denominator)
// yield NaN rather than zero so downstream consumers can tell "no signal"
// from "flat".
package metrics

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// TradingDaysPerYear is the annualization factor for daily statistics.
const TradingDaysPerYear = 252

// RollingSharpe returns the annualized Sharpe ratio of each trailing window.
// Volatility is the sample standard deviation; windows shorter than two
// points or with zero volatility are NaN.
func RollingSharpe(returns []float64, window int) []float64 {
	out := make([]float64, len(returns))
	for i := range returns {
		s := windowStart(i, window)
		w := returns[s : i+1]
		if len(w) < 2 {
			out[i] = math.NaN()
			continue
		}
		vol := stat.StdDev(w, nil)
		if vol <= 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = stat.Mean(w, nil) / vol * math.Sqrt(TradingDaysPerYear)
	}
	return out
}

// RollingSortino is RollingSharpe with downside semideviation as the risk
// denominator: sqrt(mean(min(r,0)^2)) over the full window.
func RollingSortino(returns []float64, window int) []float64 {
	out := make([]float64, len(returns))
	for i := range returns {
		s := windowStart(i, window)
		w := returns[s : i+1]
		if len(w) < 2 {
			out[i] = math.NaN()
			continue
		}
		sumSq := 0.0
		for _, r := range w {
			if r < 0 {
				sumSq += r * r
			}
		}
		dd := math.Sqrt(sumSq / float64(len(w)))
		if dd <= 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = stat.Mean(w, nil) / dd * math.Sqrt(TradingDaysPerYear)
	}
	return out
}

// RollingCalmar returns, for each trailing window, the window's annualized
// compounded return divided by its maximum drawdown. Windows shorter than
// two points or with zero drawdown are NaN.
func RollingCalmar(returns []float64, window int) []float64 {
	cum := make([]float64, len(returns))
	acc := 1.0
	for i, r := range returns {
		acc *= 1.0 + r
		cum[i] = acc
	}

	out := make([]float64, len(returns))
	for i := range returns {
		s := windowStart(i, window)
		period := i - s + 1
		if period < 2 {
			out[i] = math.NaN()
			continue
		}
		base := 1.0
		if s > 0 {
			base = cum[s-1]
		}
		annRet := math.Pow(cum[i]/base, TradingDaysPerYear/float64(period)) - 1.0

		mdd := 0.0
		peak := cum[s]
		for _, c := range cum[s : i+1] {
			if c > peak {
				peak = c
			}
			if dd := (peak - c) / peak; dd > mdd {
				mdd = dd
			}
		}
		if mdd == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = annRet / mdd
	}
	return out
}

// CumulativeReturns compounds daily returns into a growth-of-one series.
func CumulativeReturns(returns []float64) []float64 {
	out := make([]float64, len(returns))
	acc := 1.0
	for i, r := range returns {
		acc *= 1.0 + r
		out[i] = acc - 1.0
	}
	return out
}

// MaxDrawdown is the largest peak-to-trough decline of the compounded series,
// as a positive fraction. Zero for empty or monotonically rising series.
func MaxDrawdown(returns []float64) float64 {
	mdd := 0.0
	peak := 1.0
	acc := 1.0
	for _, r := range returns {
		acc *= 1.0 + r
		if acc > peak {
			peak = acc
		}
		if dd := (peak - acc) / peak; dd > mdd {
			mdd = dd
		}
	}
	return mdd
}

func windowStart(i, window int) int {
	s := i - window + 1
	if s < 0 {
		return 0
	}
	return s
}
