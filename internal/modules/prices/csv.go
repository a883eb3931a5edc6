package prices

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// Wide price CSVs exported by spreadsheet tools wrap long rows across
// physical lines; a row only ever starts with a date.
var dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)

// CSVSource serves closes from a wide CSV file: a Date column followed by one
// column per ticker. The whole file is parsed up front and held in memory.
type CSVSource struct {
	dates  []string
	byDate map[string]map[string]float64
	log    zerolog.Logger
}

// NewCSVSource parses the file at path. Header and data rows may be wrapped
// across multiple physical lines. Empty or non-numeric cells are skipped.
func NewCSVSource(path string, log zerolog.Logger) (*CSVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open prices CSV %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read prices CSV %s: %w", path, err)
	}

	src := &CSVSource{
		byDate: make(map[string]map[string]float64),
		log:    log.With().Str("component", "prices_csv").Logger(),
	}
	if err := src.parse(lines); err != nil {
		return nil, fmt.Errorf("failed to parse prices CSV %s: %w", path, err)
	}

	src.log.Info().Int("dates", len(src.dates)).Msg("Loaded price history from CSV")
	return src, nil
}

func (c *CSVSource) parse(lines []string) error {
	// Header spans everything up to the first date line.
	var headerParts []string
	i := 0
	for ; i < len(lines) && !dateRe.MatchString(lines[i]); i++ {
		if part := strings.TrimSpace(lines[i]); part != "" {
			headerParts = append(headerParts, part)
		}
	}
	headerCols := splitCells(strings.Join(headerParts, ""))
	if len(headerCols) == 0 || !strings.EqualFold(headerCols[0], "date") {
		return fmt.Errorf("header must start with Date")
	}
	tickers := headerCols[1:]

	for i < len(lines) {
		if !dateRe.MatchString(lines[i]) {
			i++
			continue
		}
		block := []string{strings.TrimSpace(lines[i])}
		i++
		for i < len(lines) && !dateRe.MatchString(lines[i]) {
			if part := strings.TrimSpace(lines[i]); part != "" {
				block = append(block, part)
			}
			i++
		}
		cells := strings.Split(strings.Join(block, ""), ",")
		if len(cells) < 2 {
			continue
		}
		date := strings.TrimSpace(cells[0])
		row := make(map[string]float64)
		for j, ticker := range tickers {
			idx := j + 1
			if idx >= len(cells) {
				break
			}
			cell := strings.TrimSpace(cells[idx])
			if cell == "" {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				continue
			}
			row[ticker] = v
		}
		c.dates = append(c.dates, date)
		c.byDate[date] = row
	}

	sort.Strings(c.dates)
	return nil
}

func splitCells(line string) []string {
	var out []string
	for _, c := range strings.Split(line, ",") {
		if v := strings.TrimSpace(c); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (c *CSVSource) ClosePrice(ticker, date string) (float64, error) {
	if row, ok := c.byDate[date]; ok {
		if v, ok := row[ticker]; ok {
			return v, nil
		}
	}
	return 0, fmt.Errorf("no close for %s on %s", ticker, date)
}

func (c *CSVSource) ClosesBefore(ticker, asOf string, n int) ([]float64, error) {
	var out []float64
	for _, d := range c.dates {
		if d >= asOf {
			break
		}
		if v, ok := c.byDate[d][ticker]; ok {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no closes for %s before %s", ticker, asOf)
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out, nil
}

func (c *CSVSource) PricesOn(date string, tickers []string) (map[string]float64, error) {
	row, ok := c.byDate[date]
	if !ok {
		return map[string]float64{}, nil
	}
	out := make(map[string]float64, len(tickers))
	for _, t := range tickers {
		if v, ok := row[t]; ok {
			out[t] = v
		}
	}
	return out, nil
}

func (c *CSVSource) TradingDates(start, end string) ([]string, error) {
	var out []string
	for _, d := range c.dates {
		if start != "" && d < start {
			continue
		}
		if end != "" && d > end {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// PreviousTradingDay returns the calendar date immediately before date. An
// off-calendar date resolves against its insertion point.
func (c *CSVSource) PreviousTradingDay(date string) (string, error) {
	idx := sort.SearchStrings(c.dates, date)
	if idx == 0 {
		return "", fmt.Errorf("no trading day before %s", date)
	}
	return c.dates[idx-1], nil
}
