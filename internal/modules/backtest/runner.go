package backtest

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/foliotrade/folio/internal/domain"
	"github.com/foliotrade/folio/internal/modules/ledger"
	"github.com/foliotrade/folio/internal/modules/metrics"
	"github.com/foliotrade/folio/internal/modules/optimization"
	"github.com/foliotrade/folio/internal/modules/prices"
	"github.com/foliotrade/folio/internal/modules/rebalancing"
	"github.com/foliotrade/folio/internal/modules/snapshots"
)

// Params configures one walk-forward run.
type Params struct {
	Tickers     []string
	Start       string
	End         string
	Anchor      string // defaults to Start
	CadenceDays int
	InitialCash float64

	// SharpeWindow and CalmarWindow size the rolling metrics attached to
	// daily snapshots and the end-of-run artifact.
	SharpeWindow int
	CalmarWindow int

	// LedgerPath, when set, persists the evolving ledger after every day so
	// an interrupted run can resume.
	LedgerPath string
}

// TradeRecord is one executed trade tagged with its simulation date.
type TradeRecord struct {
	Date string
	domain.Trade
}

// Result is the complete outcome of a run.
type Result struct {
	Equity  []domain.EquityPoint
	Returns []float64
	Trades  []TradeRecord
	Final   *ledger.Snapshot
}

// Runner folds the sizing pipeline over a trading calendar. Each day is a
// pure state transition on the ledger snapshot; snapshot and report files are
// written as boundary effects after the transition completes. Days are
// strictly sequential: every decision reads the prior day's persisted state.
type Runner struct {
	src       prices.Source
	estimator *optimization.ReturnsEstimator
	fusion    *optimization.Fusion
	optimizer *optimization.MVOptimizer
	engine    *rebalancing.Engine
	viewGen   optimization.ViewGenerator
	writer    *snapshots.Writer
	log       zerolog.Logger
}

// NewRunner wires the pipeline. viewGen and writer may be nil: nil views mean
// pure equilibrium allocation, nil writer disables file output.
func NewRunner(
	src prices.Source,
	estimator *optimization.ReturnsEstimator,
	fusion *optimization.Fusion,
	optimizer *optimization.MVOptimizer,
	engine *rebalancing.Engine,
	viewGen optimization.ViewGenerator,
	writer *snapshots.Writer,
	log zerolog.Logger,
) *Runner {
	return &Runner{
		src:       src,
		estimator: estimator,
		fusion:    fusion,
		optimizer: optimizer,
		engine:    engine,
		viewGen:   viewGen,
		writer:    writer,
		log:       log.With().Str("service", "backtest").Logger(),
	}
}

// Run executes the walk-forward simulation.
func (r *Runner) Run(p Params) (*Result, error) {
	if len(p.Tickers) == 0 {
		return nil, fmt.Errorf("no tickers in universe")
	}
	anchor := p.Anchor
	if anchor == "" {
		anchor = p.Start
	}

	dates, err := r.src.TradingDates(p.Start, p.End)
	if err != nil {
		return nil, fmt.Errorf("failed to load trading calendar: %w", err)
	}
	if len(dates) == 0 {
		return nil, fmt.Errorf("no trading dates between %s and %s", p.Start, p.End)
	}

	rebalanceDays := make(map[string]bool)
	for _, d := range RebalanceDays(dates, anchor, p.CadenceDays) {
		rebalanceDays[d] = true
	}

	snap, err := r.loadLedger(p)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	for _, d := range dates {
		quotes, err := r.src.PricesOn(d, p.Tickers)
		if err != nil {
			return nil, fmt.Errorf("failed to load prices for %s: %w", d, err)
		}

		// Daily return marks yesterday's holdings to today's prices before
		// any trading, so rebalancing itself never shows up as performance.
		mvPrev := snap.MarketValue()
		mvToday := snap.MarketValueAt(quotes)
		equityPrev := mvPrev + snap.Cash
		dayReturn := 0.0
		if equityPrev > 0 {
			dayReturn = (mvToday - mvPrev) / equityPrev
		}

		if rebalanceDays[d] && anyPositive(quotes) {
			trades := r.rebalance(snap, p.Tickers, d, quotes)
			for _, tr := range trades {
				result.Trades = append(result.Trades, TradeRecord{Date: d, Trade: tr})
			}
			if r.writer != nil && len(trades) > 0 {
				if err := r.writer.WriteReport(d, rebalancing.RenderReport(d, trades)); err != nil {
					return nil, err
				}
			}
		} else {
			if rebalanceDays[d] {
				r.log.Warn().Str("date", d).Msg("No usable prices on rebalance day, revaluing only")
			}
			snap.Reprice(quotes)
		}

		if err := r.engine.ForceCashNonNegative(snap, quotes); err != nil {
			r.log.Error().Err(err).Str("date", d).Msg("Cash shortfall persists after emergency sells")
		}

		result.Returns = append(result.Returns, dayReturn)
		result.Equity = append(result.Equity, domain.EquityPoint{
			Date:        d,
			TotalEquity: snap.Equity(),
			DailyReturn: dayReturn,
		})

		if err := r.persistDay(p, d, snap, result.Returns); err != nil {
			return nil, err
		}
	}

	if r.writer != nil {
		artifact := &snapshots.RollingMetricsArtifact{
			Dates:   dateSlice(result.Equity),
			Sharpe:  metrics.RollingSharpe(result.Returns, p.SharpeWindow),
			Sortino: metrics.RollingSortino(result.Returns, p.SharpeWindow),
			Calmar:  metrics.RollingCalmar(result.Returns, p.CalmarWindow),
		}
		if err := r.writer.WriteRollingMetrics(artifact); err != nil {
			return nil, err
		}
	}

	result.Final = snap
	r.log.Info().
		Int("days", len(result.Equity)).
		Int("trades", len(result.Trades)).
		Float64("final_equity", snap.Equity()).
		Msg("Backtest complete")
	return result, nil
}

// rebalance runs the full pipeline for one day and applies the resulting
// subset targets. Estimation, fusion or optimization failures degrade to a
// revaluation day rather than aborting the run.
func (r *Runner) rebalance(snap *ledger.Snapshot, tickers []string, date string, quotes map[string]float64) []domain.Trade {
	est, err := r.estimator.Estimate(tickers, date)
	if err != nil || len(est.Cols) == 0 {
		r.log.Warn().Str("date", date).Msg("No estimable universe, revaluing only")
		snap.Reprice(quotes)
		return nil
	}

	views := optimization.ViewSet{}
	if r.viewGen != nil {
		views, err = r.viewGen.Views(est.Cols, date)
		if err != nil {
			r.log.Warn().Err(err).Str("date", date).Msg("View generation failed, proceeding without views")
			views = optimization.ViewSet{}
		}
	}

	marketW := snap.Weights(est.Cols)
	mu, covBL, err := r.fusion.Posterior(est.Cov, marketW, views)
	if err != nil {
		r.log.Error().Err(err).Str("date", date).Msg("View fusion failed, revaluing only")
		snap.Reprice(quotes)
		return nil
	}

	weights, err := r.optimizer.Weights(mu, covBL)
	if err != nil {
		r.log.Error().Err(err).Str("date", date).Msg("Optimization failed, revaluing only")
		snap.Reprice(quotes)
		return nil
	}

	targets := make(map[string]float64, len(est.Cols))
	for i, t := range est.Cols {
		targets[t] = weights[i]
	}
	trades := r.engine.ApplyPartialTargets(snap, targets, quotes)
	r.log.Info().Str("date", date).Int("trades", len(trades)).Msg("Rebalanced")
	return trades
}

func (r *Runner) loadLedger(p Params) (*ledger.Snapshot, error) {
	if p.LedgerPath == "" {
		return ledger.New(p.InitialCash), nil
	}
	snap, err := ledger.Load(p.LedgerPath, p.InitialCash)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}
	return snap, nil
}

func (r *Runner) persistDay(p Params, date string, snap *ledger.Snapshot, returns []float64) error {
	if p.LedgerPath != "" {
		if err := ledger.Save(p.LedgerPath, snap); err != nil {
			return fmt.Errorf("failed to persist ledger: %w", err)
		}
	}
	if r.writer == nil {
		return nil
	}

	last := len(returns) - 1
	m := &snapshots.Metrics{
		DailyReturn:      returns[last],
		CumulativeReturn: lastOf(metrics.CumulativeReturns(returns)),
		Drawdown:         metrics.MaxDrawdown(returns),
		RollingSharpe:    lastOf(metrics.RollingSharpe(returns, p.SharpeWindow)),
		RollingSortino:   lastOf(metrics.RollingSortino(returns, p.SharpeWindow)),
		RollingCalmar:    lastOf(metrics.RollingCalmar(returns, p.CalmarWindow)),
	}
	if _, err := r.writer.WriteDay(date, snap, m); err != nil {
		return err
	}
	return nil
}

func anyPositive(quotes map[string]float64) bool {
	for _, v := range quotes {
		if v > 0 {
			return true
		}
	}
	return false
}

func dateSlice(points []domain.EquityPoint) []string {
	out := make([]string, len(points))
	for i, p := range points {
		out[i] = p.Date
	}
	return out
}

func lastOf(vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	return vals[len(vals)-1]
}
