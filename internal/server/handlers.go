package server

import (
	"encoding/json"
	"math"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/foliotrade/folio/internal/config"
	"github.com/foliotrade/folio/internal/modules/ledger"
	"github.com/foliotrade/folio/internal/modules/metrics"
	"github.com/foliotrade/folio/internal/modules/results"
	"github.com/foliotrade/folio/internal/modules/snapshots"
)

type handlers struct {
	cfg     *config.Config
	results *results.Repository
	log     zerolog.Logger
}

func newHandlers(cfg *config.Config, repo *results.Repository, log zerolog.Logger) *handlers {
	return &handlers{
		cfg:     cfg,
		results: repo,
		log:     log.With().Str("component", "api").Logger(),
	}
}

// handleHealth handles health check requests
func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "folio",
	})
}

// handlePortfolio returns the current ledger snapshot in enriched form.
func (h *handlers) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	snap, err := ledger.Load(h.cfg.LedgerPath, h.cfg.Engine.InitialCash)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load ledger")
		http.Error(w, "failed to load portfolio", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, snapshots.Enrich(snap, nil))
}

// handleListRuns returns all persisted backtest runs, newest first.
func (h *handlers) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.results.ListRuns()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list runs")
		http.Error(w, "failed to list runs", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []results.Run{}
	}
	h.writeJSON(w, http.StatusOK, runs)
}

// handleGetRun returns one run's metadata.
func (h *handlers) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := h.results.GetRun(id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Str("run_id", id).Msg("Failed to fetch run")
		http.Error(w, "failed to fetch run", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, run)
}

// handleRunEquity returns a run's daily equity series.
func (h *handlers) handleRunEquity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	points, err := h.results.EquitySeries(id)
	if err != nil {
		h.log.Error().Err(err).Str("run_id", id).Msg("Failed to fetch equity series")
		http.Error(w, "failed to fetch equity series", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, points)
}

// handleRunTrades returns a run's executed trades.
func (h *handlers) handleRunTrades(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	trades, err := h.results.Trades(id)
	if err != nil {
		h.log.Error().Err(err).Str("run_id", id).Msg("Failed to fetch trades")
		http.Error(w, "failed to fetch trades", http.StatusInternalServerError)
		return
	}
	if trades == nil {
		trades = []results.TradeRecord{}
	}
	h.writeJSON(w, http.StatusOK, trades)
}

// runMetricsResponse carries the rolling risk metrics recomputed from a
// run's stored return series. NaN values serialize as null.
type runMetricsResponse struct {
	Dates   []string   `json:"dates"`
	Sharpe  []*float64 `json:"rolling_sharpe"`
	Sortino []*float64 `json:"rolling_sortino"`
	Calmar  []*float64 `json:"rolling_calmar"`
}

// handleRunMetrics recomputes rolling Sharpe, Sortino and Calmar from the
// run's persisted daily returns.
func (h *handlers) handleRunMetrics(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	points, err := h.results.EquitySeries(id)
	if err != nil {
		h.log.Error().Err(err).Str("run_id", id).Msg("Failed to fetch equity series")
		http.Error(w, "failed to fetch equity series", http.StatusInternalServerError)
		return
	}

	dates := make([]string, len(points))
	returns := make([]float64, len(points))
	for i, pt := range points {
		dates[i] = pt.Date
		returns[i] = pt.DailyReturn
	}

	resp := runMetricsResponse{
		Dates:   dates,
		Sharpe:  nullable(metrics.RollingSharpe(returns, h.cfg.Engine.SharpeWindow)),
		Sortino: nullable(metrics.RollingSortino(returns, h.cfg.Engine.SharpeWindow)),
		Calmar:  nullable(metrics.RollingCalmar(returns, h.cfg.Engine.CalmarWindow)),
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// nullable converts NaN entries to nil for JSON serialization.
func nullable(vals []float64) []*float64 {
	out := make([]*float64, len(vals))
	for i := range vals {
		if !math.IsNaN(vals[i]) && !math.IsInf(vals[i], 0) {
			v := vals[i]
			out[i] = &v
		}
	}
	return out
}

// writeJSON writes a JSON response
func (h *handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
