package rebalancing

import (
	"fmt"
	"strings"

	"github.com/foliotrade/folio/internal/domain"
)

// RenderReport produces the resizing report for a day as a markdown table of
// executed quantity changes.
func RenderReport(date string, trades []domain.Trade) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Resizing Report - %s\n\n", date)
	b.WriteString("Ticker | Prev Qty | New Qty | Delta\n")
	b.WriteString("--- | ---:| ---:| ---:\n")
	for _, tr := range trades {
		newQty := tr.CurrentQty + tr.DeltaShare
		fmt.Fprintf(&b, "%s | %d | %d | %d\n", tr.Ticker, tr.CurrentQty, newQty, tr.DeltaShare)
	}
	return b.String()
}

// RenderUniverseReport produces the per-ticker report used by the live
// sizing job: one line per universe member, whether or not it traded.
func RenderUniverseReport(date string, universe []string, trades []domain.Trade) string {
	byTicker := make(map[string]domain.Trade, len(trades))
	for _, tr := range trades {
		byTicker[tr.Ticker] = tr
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Resizing Report (%s)\n\n## Trades\n", date)
	for _, t := range universe {
		if tr, ok := byTicker[t]; ok {
			fmt.Fprintf(&b, "- %s: delta=%d, target_qty=%d, current_qty=%d, price=%.2f\n",
				t, tr.DeltaShare, tr.TargetQty, tr.CurrentQty, tr.Price)
		} else {
			fmt.Fprintf(&b, "- %s: no change\n", t)
		}
	}
	return b.String()
}
