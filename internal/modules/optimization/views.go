package optimization

import (
	"github.com/markcheno/go-talib"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/foliotrade/folio/internal/domain"
)

// ViewGenerator produces a view set for a universe as of a decision date.
type ViewGenerator interface {
	Views(tickers []string, asOf string) (ViewSet, error)
}

// Default absolute view magnitude attached to a directional call.
const viewMagnitude = 0.02

// ViewsFromDecisions turns per-ticker directional decisions into absolute
// views: one identity-row view per non-HOLD ticker, +2% annualized for BUY
// and -2% for SELL. Tickers without a decision contribute no view. Omega is
// left nil so the fusion derives it from the prior.
func ViewsFromDecisions(tickers []string, decisions map[string]domain.Decision) ViewSet {
	type entry struct {
		col int
		q   float64
	}
	var entries []entry
	for i, t := range tickers {
		d, ok := decisions[t]
		if !ok {
			continue
		}
		switch d {
		case domain.Buy:
			entries = append(entries, entry{col: i, q: viewMagnitude})
		case domain.Sell:
			entries = append(entries, entry{col: i, q: -viewMagnitude})
		}
	}
	if len(entries) == 0 {
		return ViewSet{}
	}

	p := mat.NewDense(len(entries), len(tickers), nil)
	q := make([]float64, len(entries))
	for row, e := range entries {
		p.Set(row, e.col, 1)
		q[row] = e.q
	}
	return ViewSet{P: p, Q: q}
}

// DecisionsFromViews inverts a one-hot view set back into per-ticker
// decisions by view sign. Tickers without a view are absent from the map.
func DecisionsFromViews(tickers []string, views ViewSet) map[string]domain.Decision {
	out := make(map[string]domain.Decision)
	if views.Empty() {
		return out
	}
	k, n := views.P.Dims()
	for row := 0; row < k; row++ {
		for col := 0; col < n && col < len(tickers); col++ {
			if views.P.At(row, col) == 1 {
				out[tickers[col]] = domain.DecisionFromView(views.Q[row])
				break
			}
		}
	}
	return out
}

// RSIViews generates contrarian views from the relative strength index of
// each ticker's recent closes: oversold names get a bullish view, overbought
// names a bearish one. Neutral readings produce no view.
type RSIViews struct {
	src        PriceSource
	period     int
	overbought float64
	oversold   float64
	log        zerolog.Logger
}

func NewRSIViews(src PriceSource, period int, log zerolog.Logger) *RSIViews {
	return &RSIViews{
		src:        src,
		period:     period,
		overbought: 70,
		oversold:   30,
		log:        log.With().Str("component", "rsi_views").Logger(),
	}
}

func (g *RSIViews) Views(tickers []string, asOf string) (ViewSet, error) {
	decisions := make(map[string]domain.Decision)
	for _, t := range tickers {
		closes, err := g.src.ClosesBefore(t, asOf, g.period*3)
		if err != nil || len(closes) <= g.period {
			continue
		}
		rsi := talib.Rsi(closes, g.period)
		last := rsi[len(rsi)-1]
		switch {
		case last >= g.overbought:
			decisions[t] = domain.Sell
		case last <= g.oversold:
			decisions[t] = domain.Buy
		}
	}
	g.log.Debug().Int("tickers", len(tickers)).Int("signals", len(decisions)).Str("as_of", asOf).Msg("Generated RSI views")
	return ViewsFromDecisions(tickers, decisions), nil
}
