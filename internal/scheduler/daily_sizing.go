package scheduler

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/foliotrade/folio/internal/domain"
	"github.com/foliotrade/folio/internal/modules/ledger"
	"github.com/foliotrade/folio/internal/modules/optimization"
	"github.com/foliotrade/folio/internal/modules/prices"
	"github.com/foliotrade/folio/internal/modules/rebalancing"
	"github.com/foliotrade/folio/internal/modules/snapshots"
)

// DailySizingJob runs the live sizing pipeline once for the current date:
// estimate, fuse views, optimize, translate to trades with decision
// overrides, execute against the persisted ledger, and write the daily
// snapshot and report.
type DailySizingJob struct {
	src         prices.Source
	estimator   *optimization.ReturnsEstimator
	fusion      *optimization.Fusion
	optimizer   *optimization.MVOptimizer
	engine      *rebalancing.Engine
	viewGen     optimization.ViewGenerator
	writer      *snapshots.Writer
	tickers     []string
	ledgerPath  string
	initialCash float64
	log         zerolog.Logger

	// now is swappable for tests.
	now func() time.Time
}

func NewDailySizingJob(
	src prices.Source,
	estimator *optimization.ReturnsEstimator,
	fusion *optimization.Fusion,
	optimizer *optimization.MVOptimizer,
	engine *rebalancing.Engine,
	viewGen optimization.ViewGenerator,
	writer *snapshots.Writer,
	tickers []string,
	ledgerPath string,
	initialCash float64,
	log zerolog.Logger,
) *DailySizingJob {
	return &DailySizingJob{
		src:         src,
		estimator:   estimator,
		fusion:      fusion,
		optimizer:   optimizer,
		engine:      engine,
		viewGen:     viewGen,
		writer:      writer,
		tickers:     tickers,
		ledgerPath:  ledgerPath,
		initialCash: initialCash,
		log:         log.With().Str("service", "daily_sizing").Logger(),
	}
}

func (j *DailySizingJob) Name() string {
	return "daily_sizing"
}

func (j *DailySizingJob) Run() error {
	date := j.today()
	return j.RunForDate(date)
}

// RunForDate executes the sizing pipeline for one date. A date with no
// usable prices degrades to a snapshot of the previous state.
func (j *DailySizingJob) RunForDate(date string) error {
	snap, err := ledger.Load(j.ledgerPath, j.initialCash)
	if err != nil {
		return fmt.Errorf("failed to load ledger: %w", err)
	}

	quotes, err := j.src.PricesOn(date, j.tickers)
	if err != nil {
		return fmt.Errorf("failed to load prices for %s: %w", date, err)
	}
	if !hasUsableQuote(quotes) {
		j.log.Warn().Str("date", date).Msg("No usable prices, writing snapshot unchanged")
		return j.persist(date, snap)
	}

	est, err := j.estimator.Estimate(j.tickers, date)
	if err != nil {
		return fmt.Errorf("failed to estimate returns: %w", err)
	}
	if len(est.Cols) == 0 {
		j.log.Warn().Str("date", date).Msg("No estimable universe, revaluing only")
		snap.Reprice(quotes)
		return j.persist(date, snap)
	}

	views := optimization.ViewSet{}
	if j.viewGen != nil {
		if views, err = j.viewGen.Views(est.Cols, date); err != nil {
			j.log.Warn().Err(err).Msg("View generation failed, proceeding without views")
			views = optimization.ViewSet{}
		}
	}
	decisions := optimization.DecisionsFromViews(est.Cols, views)

	mu, covBL, err := j.fusion.Posterior(est.Cov, snap.Weights(est.Cols), views)
	if err != nil {
		return fmt.Errorf("failed to fuse views: %w", err)
	}
	weights, err := j.optimizer.Weights(mu, covBL)
	if err != nil {
		return fmt.Errorf("failed to optimize: %w", err)
	}

	trades := j.engine.SizeTargets(snap, est.Cols, weights, quotes, decisions)
	j.engine.Execute(snap, trades)
	if err := j.engine.ForceCashNonNegative(snap, quotes); err != nil {
		j.log.Error().Err(err).Str("date", date).Msg("Cash shortfall persists after emergency sells")
	}

	if j.writer != nil {
		report := rebalancing.RenderUniverseReport(date, j.tickers, executedOnly(trades))
		if err := j.writer.WriteReport(date, report); err != nil {
			return err
		}
	}

	j.log.Info().
		Str("date", date).
		Int("trades", len(trades)).
		Float64("equity", snap.Equity()).
		Msg("Daily sizing complete")
	return j.persist(date, snap)
}

func (j *DailySizingJob) persist(date string, snap *ledger.Snapshot) error {
	if j.writer != nil {
		if _, err := j.writer.WriteDay(date, snap, nil); err != nil {
			return err
		}
	}
	if err := ledger.Save(j.ledgerPath, snap); err != nil {
		return fmt.Errorf("failed to persist ledger: %w", err)
	}
	return nil
}

func (j *DailySizingJob) today() string {
	now := time.Now
	if j.now != nil {
		now = j.now
	}
	return now().UTC().Format("2006-01-02")
}

func hasUsableQuote(quotes map[string]float64) bool {
	for _, v := range quotes {
		if v > 0 {
			return true
		}
	}
	return false
}

func executedOnly(trades []domain.Trade) []domain.Trade {
	out := make([]domain.Trade, 0, len(trades))
	for _, tr := range trades {
		if tr.DeltaShare != 0 {
			out = append(out, tr)
		}
	}
	return out
}
