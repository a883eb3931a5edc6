// Package main is the entry point for the Folio portfolio-sizing service.
// It runs the daily sizing job on a schedule and serves the read-only API
// over the ledger and the backtest results database.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/foliotrade/folio/internal/config"
	"github.com/foliotrade/folio/internal/database"
	"github.com/foliotrade/folio/internal/modules/optimization"
	"github.com/foliotrade/folio/internal/modules/prices"
	"github.com/foliotrade/folio/internal/modules/rebalancing"
	"github.com/foliotrade/folio/internal/modules/results"
	"github.com/foliotrade/folio/internal/modules/snapshots"
	"github.com/foliotrade/folio/internal/modules/universe"
	"github.com/foliotrade/folio/internal/scheduler"
	"github.com/foliotrade/folio/internal/server"
	"github.com/foliotrade/folio/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)
	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting folio")

	// Price history. CSV files are read directly; anything else is opened as
	// a sqlite price store.
	var src prices.Source
	if strings.HasSuffix(cfg.PricesPath, ".csv") {
		csvSrc, err := prices.NewCSVSource(cfg.PricesPath, log)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.PricesPath).Msg("Failed to load price history")
		}
		src = csvSrc
	} else {
		store, err := prices.NewStore(cfg.PricesPath, log)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.PricesPath).Msg("Failed to open price store")
		}
		defer store.Close()
		src = store
	}

	tickers, err := universe.LoadTickerFile(cfg.UniversePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.UniversePath).Msg("Failed to load universe")
	}
	log.Info().Int("tickers", len(tickers)).Msg("Universe loaded")

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

	estimator := optimization.NewReturnsEstimator(src, cfg.Engine.LookbackDays,
		cfg.Engine.Shrinkage, cfg.Engine.MuClamp, log)
	fusion := optimization.NewFusion(cfg.Engine.RiskAversion, cfg.Engine.Tau,
		cfg.Engine.Confidence, log)
	optimizer := optimization.NewMVOptimizer(cfg.Engine.RiskAversion, log)
	engine := rebalancing.NewEngine(cfg.Engine.PerNameCap, cfg.Engine.MinLot, log)
	viewGen := optimization.NewRSIViews(src, 14, log)
	writer := snapshots.NewWriter(filepath.Join(cfg.DataDir, "runs"), log)

	sizingJob := scheduler.NewDailySizingJob(src, estimator, fusion, optimizer,
		engine, viewGen, writer, tickers, cfg.LedgerPath, cfg.Engine.InitialCash, log)

	sched := scheduler.New(log)
	if err := sched.AddJob(cfg.SizingSchedule, sizingJob); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.SizingSchedule).Msg("Failed to schedule sizing job")
	}
	sched.Start()
	defer sched.Stop()

	srv := server.New(server.Config{
		Log:     log,
		Config:  cfg,
		Results: repo,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}
	log.Info().Msg("Folio stopped")
}
