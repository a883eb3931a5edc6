// Package rebalancing turns target weights into whole-share trades and
// applies them to the ledger under long-only and cash-non-negativity rules.
package rebalancing

import (
	"errors"
	"sort"

	"github.com/rs/zerolog"

	"github.com/foliotrade/folio/internal/domain"
	"github.com/foliotrade/folio/internal/modules/ledger"
)

// ErrInsufficientLiquidity is returned when a cash shortfall cannot be
// covered by selling priced long positions.
var ErrInsufficientLiquidity = errors.New("insufficient liquid holdings to cover cash shortfall")

// Engine sizes positions and mutates ledger snapshots. All quantities are
// whole shares; cash can never end negative and positions can never go short.
type Engine struct {
	perNameCap float64
	minLot     int
	log        zerolog.Logger
}

// NewEngine creates a rebalancing engine. perNameCap is the per-position
// fraction of total equity used by partial rebalances; minLot is the minimum
// opening quantity for a flat position with a non-SELL decision.
func NewEngine(perNameCap float64, minLot int, log zerolog.Logger) *Engine {
	if minLot < 1 {
		minLot = 1
	}
	return &Engine{
		perNameCap: perNameCap,
		minLot:     minLot,
		log:        log.With().Str("component", "rebalancing").Logger(),
	}
}

// SizeTargets translates optimizer weights into per-ticker trades against the
// current snapshot. Decisions override the optimizer: SELL forces a full
// exit, and BUY or HOLD on a flat position opens at least minLot shares even
// when the optimizer sizes it to zero. Tickers without a positive price are
// skipped. The snapshot is not modified.
func (e *Engine) SizeTargets(
	snap *ledger.Snapshot,
	tickers []string,
	weights []float64,
	prices map[string]float64,
	decisions map[string]domain.Decision,
) []domain.Trade {
	equity := snap.Cash + snap.MarketValueAt(prices)
	if equity <= 0 {
		e.log.Warn().Float64("equity", equity).Msg("Non-positive equity, no trades sized")
		return nil
	}

	trades := make([]domain.Trade, 0, len(tickers))
	for i, t := range tickers {
		price := prices[t]
		if price <= 0 {
			continue
		}
		w := weights[i]
		if w < 0 {
			w = 0
		}
		targetQty := int(w * equity / price)
		currQty := snap.Quantity(t)

		decision := decisions[t]
		if decision == domain.Sell {
			targetQty = 0
		}

		var delta int
		if currQty > 0 {
			delta = targetQty - currQty
		} else {
			// Flat. Never open a short; BUY or HOLD opens at least one lot.
			if decision == domain.Sell {
				delta = 0
			} else {
				qty := targetQty
				if qty <= 0 {
					qty = e.minLot
				}
				delta = qty
			}
		}

		trades = append(trades, domain.Trade{
			Ticker:     t,
			DeltaShare: delta,
			TargetQty:  targetQty,
			CurrentQty: currQty,
			Price:      price,
		})
	}
	return trades
}

// Execute applies sized trades to the snapshot in order. Buys are limited to
// what cash affords at the trade price (unaffordable buys shrink, never
// overdraw); sells are limited to the held quantity. Entry price is the
// volume-weighted average cost on buys, unchanged on sells, and reset to zero
// on a full exit. Every touched position is marked to the trade price.
func (e *Engine) Execute(snap *ledger.Snapshot, trades []domain.Trade) {
	for _, tr := range trades {
		if tr.Price <= 0 {
			continue
		}
		pos, held := snap.Portfolio[tr.Ticker]
		currQty := 0
		if held {
			currQty = pos.Quantity
		}

		proposed := currQty + tr.DeltaShare
		if proposed < 0 {
			proposed = 0
		}
		delta := proposed - currQty

		switch {
		case delta > 0:
			maxAffordable := int(snap.Cash / tr.Price)
			buyQty := delta
			if buyQty > maxAffordable {
				buyQty = maxAffordable
			}
			if buyQty <= 0 {
				if held {
					pos.LastPrice = tr.Price
				}
				continue
			}
			if !held {
				pos = &ledger.Position{}
				snap.Portfolio[tr.Ticker] = pos
			}
			newQty := currQty + buyQty
			if currQty > 0 && pos.EntryPrice > 0 {
				pos.EntryPrice = (pos.EntryPrice*float64(currQty) + tr.Price*float64(buyQty)) / float64(newQty)
			} else {
				pos.EntryPrice = tr.Price
			}
			pos.Quantity = newQty
			pos.LastPrice = tr.Price
			snap.Cash -= float64(buyQty) * tr.Price

		case delta < 0:
			sellQty := -delta
			if sellQty > currQty {
				sellQty = currQty
			}
			if sellQty <= 0 || !held {
				continue
			}
			pos.Quantity = currQty - sellQty
			pos.LastPrice = tr.Price
			if pos.Quantity == 0 {
				pos.EntryPrice = 0
			}
			snap.Cash += float64(sellQty) * tr.Price

		default:
			if held {
				pos.LastPrice = tr.Price
			}
		}
	}
	snap.Prune()
}

// ForceCashNonNegative restores cash >= 0 by selling priced holdings, largest
// market value first, keeping entry prices unchanged. Positions that reach
// zero are removed. If no priced holdings can cover the shortfall the
// snapshot is left partially sold and ErrInsufficientLiquidity is returned.
func (e *Engine) ForceCashNonNegative(snap *ledger.Snapshot, prices map[string]float64) error {
	if snap.Cash >= 0 {
		snap.Reprice(prices)
		return nil
	}

	shortfall := -snap.Cash
	candidates := sellCandidates(snap, prices)
	for _, c := range candidates {
		if shortfall <= 0 {
			break
		}
		sellQty := ceilDiv(shortfall, c.price)
		if sellQty > c.qty {
			sellQty = c.qty
		}
		if sellQty <= 0 {
			continue
		}
		pos := snap.Portfolio[c.ticker]
		pos.Quantity -= sellQty
		pos.LastPrice = c.price
		proceeds := float64(sellQty) * c.price
		snap.Cash += proceeds
		shortfall -= proceeds
		if shortfall < 0 {
			shortfall = 0
		}
		e.log.Warn().
			Str("ticker", c.ticker).
			Int("sold", sellQty).
			Float64("remaining_shortfall", shortfall).
			Msg("Emergency sell to restore non-negative cash")
	}
	snap.Prune()
	snap.Reprice(prices)

	if snap.Cash < 0 {
		return ErrInsufficientLiquidity
	}
	return nil
}

type candidate struct {
	ticker string
	qty    int
	price  float64
	value  float64
}

// sellCandidates lists priced long positions ordered largest market value
// first, which minimizes churn when raising cash.
func sellCandidates(snap *ledger.Snapshot, prices map[string]float64) []candidate {
	out := make([]candidate, 0, len(snap.Portfolio))
	for t, p := range snap.Portfolio {
		if p.Quantity <= 0 {
			continue
		}
		px := p.LastPrice
		if v, ok := prices[t]; ok && v > 0 {
			px = v
		}
		if px <= 0 {
			continue
		}
		out = append(out, candidate{ticker: t, qty: p.Quantity, price: px, value: float64(p.Quantity) * px})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].value != out[j].value {
			return out[i].value > out[j].value
		}
		return out[i].ticker < out[j].ticker
	})
	return out
}

func ceilDiv(amount, price float64) int {
	n := int(amount / price)
	if float64(n)*price < amount {
		n++
	}
	return n
}
