package domain

// Trade is one whole-share resizing instruction produced by a rebalance.
// Trades are ephemeral: they are persisted only in reports and in the
// results database, never in the ledger itself.
type Trade struct {
	Ticker     string  `json:"ticker"`
	DeltaShare int     `json:"delta_shares"`
	TargetQty  int     `json:"target_qty"`
	CurrentQty int     `json:"current_qty"`
	Price      float64 `json:"price"`
}

// EquityPoint is one simulated trading day's mark-to-market outcome.
type EquityPoint struct {
	Date        string  `json:"date"`
	TotalEquity float64 `json:"total_equity"`
	DailyReturn float64 `json:"daily_return"`
}
