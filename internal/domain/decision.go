// Package domain contains pure types shared across the sizing engine.
// It has no infrastructure dependencies.
package domain

import (
	"fmt"
	"strings"
)

// Decision is a per-ticker directional signal supplied by an upstream
// strategy. It can override the optimizer's target for that ticker.
type Decision string

const (
	Buy  Decision = "BUY"
	Sell Decision = "SELL"
	Hold Decision = "HOLD"
)

// ParseDecision converts free-form input into a typed Decision.
// Unknown values are an error rather than a silent HOLD so that upstream
// contract violations surface at the boundary.
func ParseDecision(s string) (Decision, error) {
	switch Decision(strings.ToUpper(strings.TrimSpace(s))) {
	case Buy:
		return Buy, nil
	case Sell:
		return Sell, nil
	case Hold, "":
		return Hold, nil
	default:
		return Hold, fmt.Errorf("unknown decision %q", s)
	}
}

// DecisionFromView maps the sign of an expected-return view to a Decision.
func DecisionFromView(view float64) Decision {
	switch {
	case view > 0:
		return Buy
	case view < 0:
		return Sell
	default:
		return Hold
	}
}
