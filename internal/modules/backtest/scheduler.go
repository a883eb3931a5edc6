// Package backtest walks a trading-day calendar, deciding rebalance versus
// revaluation days, and drives the sizing pipeline over it without
// look-ahead.
package backtest

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// RebalanceDays selects the rebalance dates from a trading calendar: the
// first trading day at or after anchor, then every cadenceDays trading days
// after it. An anchor past the calendar yields no rebalance days.
func RebalanceDays(tradingDates []string, anchor string, cadenceDays int) []string {
	if cadenceDays < 1 {
		cadenceDays = 1
	}
	start := -1
	for i, d := range tradingDates {
		if d >= anchor {
			start = i
			break
		}
	}
	if start < 0 {
		return nil
	}
	var out []string
	for i := start; i < len(tradingDates); i += cadenceDays {
		out = append(out, tradingDates[i])
	}
	return out
}

// BiweeklyRebalanceDays selects dates at least 14 calendar days apart,
// starting with the first trading day at or after start. Unparseable dates
// are skipped.
func BiweeklyRebalanceDays(tradingDates []string, start string) []string {
	startDay, err := time.Parse(dateLayout, start)
	if err != nil {
		return nil
	}
	var out []string
	var last time.Time
	for _, d := range tradingDates {
		cur, err := time.Parse(dateLayout, d)
		if err != nil {
			continue
		}
		if cur.Before(startDay) {
			continue
		}
		if last.IsZero() || cur.Sub(last) >= 14*24*time.Hour {
			out = append(out, d)
			last = cur
		}
	}
	return out
}

// WeekdayCalendar generates the Monday-to-Friday dates in [start, end]. It is
// the fallback when no real trading calendar is available; it does not know
// about exchange holidays.
func WeekdayCalendar(start, end string) ([]string, error) {
	s, err := time.Parse(dateLayout, start)
	if err != nil {
		return nil, fmt.Errorf("invalid start date %q: %w", start, err)
	}
	e, err := time.Parse(dateLayout, end)
	if err != nil {
		return nil, fmt.Errorf("invalid end date %q: %w", end, err)
	}

	var out []string
	for d := s; !d.After(e); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			out = append(out, d.Format(dateLayout))
		}
	}
	return out, nil
}
