// Package ledger holds the persisted portfolio state: cash plus whole-share
// holdings with entry-price bookkeeping. A single snapshot per run is the
// source of truth every other engine component reads.
package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Position is one long holding. Quantity is whole shares and never negative.
// EntryPrice is the volume-weighted average cost of the open lot; it is reset
// to zero when the position is fully exited.
type Position struct {
	Quantity   int     `json:"totalAmount"`
	LastPrice  float64 `json:"last_price"`
	EntryPrice float64 `json:"entry_price"`
}

// MarketValue values the position at its last known price.
func (p *Position) MarketValue() float64 {
	return float64(p.Quantity) * p.LastPrice
}

// Snapshot is the full portfolio state. It is mutated in place by the
// rebalancing engine and revaluation steps for the lifetime of a run.
type Snapshot struct {
	Portfolio map[string]*Position `json:"portfolio"`
	Cash      float64              `json:"liquid"`
}

// New creates an empty snapshot seeded with cash.
func New(initialCash float64) *Snapshot {
	return &Snapshot{
		Portfolio: make(map[string]*Position),
		Cash:      initialCash,
	}
}

// UnmarshalJSON accepts both the ledger key ("liquid") and the enriched daily
// snapshot key ("cash"); "liquid" wins when both are present.
func (s *Snapshot) UnmarshalJSON(b []byte) error {
	type raw struct {
		Portfolio map[string]*Position `json:"portfolio"`
		Liquid    *float64             `json:"liquid"`
		Cash      *float64             `json:"cash"`
	}
	var r raw
	if err := json.Unmarshal(b, &r); err != nil {
		return err
	}
	s.Portfolio = r.Portfolio
	if s.Portfolio == nil {
		s.Portfolio = make(map[string]*Position)
	}
	switch {
	case r.Liquid != nil:
		s.Cash = *r.Liquid
	case r.Cash != nil:
		s.Cash = *r.Cash
	default:
		s.Cash = 0
	}
	return nil
}

// Load reads a snapshot from disk. A missing file initializes the ledger with
// the seed cash and an empty portfolio, and persists it.
func Load(path string, initialCash float64) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read ledger %s: %w", path, err)
		}
		snap := New(initialCash)
		if err := Save(path, snap); err != nil {
			return nil, err
		}
		return snap, nil
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse ledger %s: %w", path, err)
	}
	return &snap, nil
}

// Save writes the snapshot to disk, creating parent directories as needed.
func Save(path string, snap *Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ledger: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write ledger %s: %w", path, err)
	}
	return nil
}

// Clone deep-copies the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	out := &Snapshot{
		Portfolio: make(map[string]*Position, len(s.Portfolio)),
		Cash:      s.Cash,
	}
	for t, p := range s.Portfolio {
		cp := *p
		out.Portfolio[t] = &cp
	}
	return out
}

// Quantity returns the held share count for a ticker (zero when flat).
func (s *Snapshot) Quantity(ticker string) int {
	if p, ok := s.Portfolio[ticker]; ok {
		return p.Quantity
	}
	return 0
}

// MarketValue is the sum of all positions at their last known prices.
func (s *Snapshot) MarketValue() float64 {
	total := 0.0
	for _, p := range s.Portfolio {
		total += p.MarketValue()
	}
	return total
}

// MarketValueAt values holdings at the supplied prices, falling back to each
// position's last price for tickers not priced today.
func (s *Snapshot) MarketValueAt(prices map[string]float64) float64 {
	total := 0.0
	for t, p := range s.Portfolio {
		px := p.LastPrice
		if v, ok := prices[t]; ok && v > 0 {
			px = v
		}
		total += float64(p.Quantity) * px
	}
	return total
}

// Equity is cash plus market value at last known prices.
func (s *Snapshot) Equity() float64 {
	return s.Cash + s.MarketValue()
}

// Reprice marks all holdings to the supplied closing prices. Tickers without
// a price today keep their previous mark. Quantities and cash are untouched.
func (s *Snapshot) Reprice(prices map[string]float64) {
	for t, p := range s.Portfolio {
		if px, ok := prices[t]; ok && px > 0 {
			p.LastPrice = px
		}
	}
}

// Weights returns each ticker's share of the holdings' market value, aligned
// to the given ticker order. All-zero when there are no priced holdings.
func (s *Snapshot) Weights(tickers []string) []float64 {
	weights := make([]float64, len(tickers))
	total := s.MarketValue()
	if total <= 0 {
		return weights
	}
	for i, t := range tickers {
		if p, ok := s.Portfolio[t]; ok {
			weights[i] = p.MarketValue() / total
		}
	}
	return weights
}

// Prune removes positions whose quantity has reached zero.
func (s *Snapshot) Prune() {
	for t, p := range s.Portfolio {
		if p.Quantity <= 0 {
			delete(s.Portfolio, t)
		}
	}
}
