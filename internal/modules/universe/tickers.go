// Package universe loads and normalizes the set of tickers the engine
// operates on.
package universe

import (
	"fmt"
	"os"
	"strings"
)

// Normalize canonicalizes a raw symbol: trimmed, uppercased, with any
// leading $ prefixes stripped.
func Normalize(symbol string) string {
	return strings.TrimLeft(strings.ToUpper(strings.TrimSpace(symbol)), "$")
}

// LoadTickerFile reads a universe file where symbols are separated by
// whitespace, newlines or commas. Symbols are normalized and deduplicated,
// preserving first-seen order.
func LoadTickerFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ticker file %s: %w", path, err)
	}
	return ParseTickers(string(data)), nil
}

// ParseTickers normalizes and deduplicates a raw symbol list.
func ParseTickers(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == ','
	})
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		u := Normalize(f)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
