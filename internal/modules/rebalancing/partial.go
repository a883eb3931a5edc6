package rebalancing

import (
	"math"
	"sort"

	"github.com/foliotrade/folio/internal/domain"
	"github.com/foliotrade/folio/internal/modules/ledger"
)

// ApplyPartialTargets rebalances only the tickers named in weights, leaving
// every other holding untouched. The buy budget for the subset is the
// subset's own market value plus available cash; each name is additionally
// capped at perNameCap of total portfolio equity, and total new deployment is
// capped at min(cash, perNameCap of total equity). Sells run first to free
// cash, then buys are scaled down proportionally when they exceed the budget.
// A final correction keeps total equity at the given prices unchanged within
// 1e-6, absorbing whole-share rounding drift into cash.
func (e *Engine) ApplyPartialTargets(
	snap *ledger.Snapshot,
	weights map[string]float64,
	prices map[string]float64,
) []domain.Trade {
	initialEquity := snap.Cash + snap.MarketValueAt(prices)
	totalCap := e.perNameCap * initialEquity

	// Subset budget: what the named tickers are worth now, plus cash.
	subsetValue := 0.0
	for t := range weights {
		subsetValue += float64(snap.Quantity(t)) * e.priceFor(snap, prices, t)
	}
	budget := subsetValue + snap.Cash

	// Deterministic iteration order.
	subset := make([]string, 0, len(weights))
	for t := range weights {
		subset = append(subset, t)
	}
	sort.Strings(subset)

	targetQty := make(map[string]int, len(subset))
	for _, t := range subset {
		w := weights[t]
		if w < 0 {
			w = 0
		}
		dollars := w * budget
		if dollars > totalCap {
			dollars = totalCap
		}
		px := e.priceFor(snap, prices, t)
		if px <= 0 {
			targetQty[t] = snap.Quantity(t)
			continue
		}
		targetQty[t] = int(dollars / px)
	}

	var trades []domain.Trade

	// Sells first.
	for _, t := range subset {
		prevQty := snap.Quantity(t)
		tq := targetQty[t]
		if tq >= prevQty {
			continue
		}
		px := e.priceFor(snap, prices, t)
		pos := snap.Portfolio[t]
		pos.Quantity = tq
		pos.LastPrice = px
		if tq == 0 {
			pos.EntryPrice = 0
		}
		snap.Cash += float64(prevQty-tq) * px
		trades = append(trades, domain.Trade{
			Ticker: t, DeltaShare: tq - prevQty, TargetQty: tq, CurrentQty: prevQty, Price: px,
		})
	}

	// Buys, proportionally scaled to the deployable budget.
	type buyReq struct {
		ticker string
		need   int
		price  float64
	}
	var reqs []buyReq
	totalCost := 0.0
	for _, t := range subset {
		prevQty := snap.Quantity(t)
		tq := targetQty[t]
		if tq <= prevQty {
			continue
		}
		px := e.priceFor(snap, prices, t)
		need := tq - prevQty
		reqs = append(reqs, buyReq{ticker: t, need: need, price: px})
		totalCost += float64(need) * px
	}

	allowable := snap.Cash
	if totalCap < allowable {
		allowable = totalCap
	}
	scale := 1.0
	if totalCost > allowable && totalCost > 0 {
		scale = allowable / totalCost
	}

	type appliedBuy struct {
		ticker string
		qty    int
		price  float64
	}
	var applied []appliedBuy
	for _, r := range reqs {
		buyQty := int(float64(r.need) * scale)
		if buyQty <= 0 {
			continue
		}
		prevQty := snap.Quantity(r.ticker)
		pos, ok := snap.Portfolio[r.ticker]
		if !ok {
			pos = &ledger.Position{}
			snap.Portfolio[r.ticker] = pos
		}
		newQty := prevQty + buyQty
		if prevQty > 0 && pos.EntryPrice > 0 {
			pos.EntryPrice = (pos.EntryPrice*float64(prevQty) + r.price*float64(buyQty)) / float64(newQty)
		} else {
			pos.EntryPrice = r.price
		}
		pos.Quantity = newQty
		pos.LastPrice = r.price
		snap.Cash -= float64(buyQty) * r.price
		trades = append(trades, domain.Trade{
			Ticker: r.ticker, DeltaShare: buyQty, TargetQty: targetQty[r.ticker], CurrentQty: prevQty, Price: r.price,
		})
		applied = append(applied, appliedBuy{ticker: r.ticker, qty: buyQty, price: r.price})
	}

	// Rounding can still overdraw cash; unwind buys one share at a time,
	// largest notional first. Removing shares at cost keeps the average
	// entry price unchanged.
	if snap.Cash < 0 && len(applied) > 0 {
		sort.Slice(applied, func(i, j int) bool {
			return float64(applied[i].qty)*applied[i].price > float64(applied[j].qty)*applied[j].price
		})
		for _, b := range applied {
			remaining := b.qty
			for remaining > 0 && snap.Cash < 0 {
				pos := snap.Portfolio[b.ticker]
				if pos == nil || pos.Quantity <= 0 {
					break
				}
				pos.Quantity--
				snap.Cash += b.price
				remaining--
			}
			if snap.Cash >= 0 {
				break
			}
		}
		snap.Prune()
	}

	// A shortfall inherited from before the rebalance has nothing left to
	// unwind; fall back to emergency sells across all holdings.
	if snap.Cash < 0 {
		if err := e.ForceCashNonNegative(snap, prices); err != nil {
			e.log.Error().Err(err).Msg("Cash shortfall not fully covered by emergency sells")
		}
	}

	snap.Reprice(prices)

	// Whole-share rounding must not manufacture or destroy equity.
	drift := initialEquity - (snap.Cash + snap.MarketValueAt(prices))
	if math.Abs(drift) > 1e-6 {
		snap.Cash += drift
	}

	return trades
}

// priceFor resolves a ticker's trade price: today's price when available,
// otherwise the position's last known mark.
func (e *Engine) priceFor(snap *ledger.Snapshot, prices map[string]float64, ticker string) float64 {
	if px, ok := prices[ticker]; ok && px > 0 {
		return px
	}
	if pos, ok := snap.Portfolio[ticker]; ok {
		return pos.LastPrice
	}
	return 0
}
