// Package main runs a walk-forward backtest of the sizing pipeline over a
// CSV or sqlite price history and persists the result to the results
// database.
package main

import (
	"flag"
	"os"
	"path/filepath"
	"strings"

	"github.com/foliotrade/folio/internal/config"
	"github.com/foliotrade/folio/internal/database"
	"github.com/foliotrade/folio/internal/modules/backtest"
	"github.com/foliotrade/folio/internal/modules/optimization"
	"github.com/foliotrade/folio/internal/modules/prices"
	"github.com/foliotrade/folio/internal/modules/rebalancing"
	"github.com/foliotrade/folio/internal/modules/results"
	"github.com/foliotrade/folio/internal/modules/snapshots"
	"github.com/foliotrade/folio/internal/modules/universe"
	"github.com/foliotrade/folio/pkg/logger"
)

func main() {
	var (
		start      = flag.String("start", "", "first trading day (YYYY-MM-DD, required)")
		end        = flag.String("end", "", "last trading day (YYYY-MM-DD, required)")
		anchor     = flag.String("anchor", "", "rebalance anchor date (defaults to start)")
		cadence    = flag.Int("cadence", 0, "trading days between rebalances (default from config)")
		pricesPath = flag.String("prices", "", "price history path (default from config)")
		tickerPath = flag.String("universe", "", "ticker list file (default from config)")
		outDir     = flag.String("out", "", "snapshot output directory (empty disables file output)")
		ledgerPath = flag.String("ledger", "", "persist the evolving ledger to this file")
		cash       = flag.Float64("cash", 0, "initial cash (default from config)")
		useRSI     = flag.Bool("rsi-views", false, "derive views from 14-day RSI signals")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: true})
	logger.SetGlobalLogger(log)

	if *start == "" || *end == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *cadence <= 0 {
		*cadence = cfg.Engine.CadenceDays
	}
	if *pricesPath == "" {
		*pricesPath = cfg.PricesPath
	}
	if *tickerPath == "" {
		*tickerPath = cfg.UniversePath
	}
	if *cash <= 0 {
		*cash = cfg.Engine.InitialCash
	}

	var src prices.Source
	if strings.HasSuffix(*pricesPath, ".csv") {
		csvSrc, err := prices.NewCSVSource(*pricesPath, log)
		if err != nil {
			log.Fatal().Err(err).Str("path", *pricesPath).Msg("Failed to load price history")
		}
		src = csvSrc
	} else {
		store, err := prices.NewStore(*pricesPath, log)
		if err != nil {
			log.Fatal().Err(err).Str("path", *pricesPath).Msg("Failed to open price store")
		}
		defer store.Close()
		src = store
	}

	tickers, err := universe.LoadTickerFile(*tickerPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *tickerPath).Msg("Failed to load universe")
	}

	estimator := optimization.NewReturnsEstimator(src, cfg.Engine.LookbackDays,
		cfg.Engine.Shrinkage, cfg.Engine.MuClamp, log)
	fusion := optimization.NewFusion(cfg.Engine.RiskAversion, cfg.Engine.Tau,
		cfg.Engine.Confidence, log)
	optimizer := optimization.NewMVOptimizer(cfg.Engine.RiskAversion, log)
	engine := rebalancing.NewEngine(cfg.Engine.PerNameCap, cfg.Engine.MinLot, log)

	var viewGen optimization.ViewGenerator
	if *useRSI {
		viewGen = optimization.NewRSIViews(src, 14, log)
	}
	var writer *snapshots.Writer
	if *outDir != "" {
		writer = snapshots.NewWriter(*outDir, log)
	}

	runner := backtest.NewRunner(src, estimator, fusion, optimizer, engine, viewGen, writer, log)
	res, err := runner.Run(backtest.Params{
		Tickers:      tickers,
		Start:        *start,
		End:          *end,
		Anchor:       *anchor,
		CadenceDays:  *cadence,
		InitialCash:  *cash,
		SharpeWindow: cfg.Engine.SharpeWindow,
		CalmarWindow: cfg.Engine.CalmarWindow,
		LedgerPath:   *ledgerPath,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Backtest failed")
	}

	resultsDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "results.db"),
		Profile: database.ProfileResults,
		Name:    "results",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open results database")
	}
	defer resultsDB.Close()

	repo, err := results.NewRepository(resultsDB, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize results repository")
	}

	trades := make([]results.TradeRecord, len(res.Trades))
	for i, tr := range res.Trades {
		trades[i] = results.TradeRecord{Date: tr.Date, Trade: tr.Trade}
	}
	finalEquity := *cash
	if n := len(res.Equity); n > 0 {
		finalEquity = res.Equity[n-1].TotalEquity
	}
	id, err := repo.SaveRun(results.Run{
		Start:       *start,
		End:         *end,
		CadenceDays: *cadence,
		InitialCash: *cash,
		FinalEquity: finalEquity,
	}, res.Equity, trades)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to persist run")
	}

	log.Info().
		Str("run_id", id).
		Int("days", len(res.Equity)).
		Int("trades", len(res.Trades)).
		Float64("final_equity", finalEquity).
		Msg("Backtest complete")
}
