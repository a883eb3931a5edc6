package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foliotrade/folio/internal/config"
	"github.com/foliotrade/folio/internal/database"
	"github.com/foliotrade/folio/internal/domain"
	"github.com/foliotrade/folio/internal/modules/ledger"
	"github.com/foliotrade/folio/internal/modules/results"
)

func newTestServer(t *testing.T) (*Server, *results.Repository, *config.Config) {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    "file:" + t.Name() + "?mode=memory&cache=shared",
		Profile: database.ProfileResults,
		Name:    "results",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo, err := results.NewRepository(db, zerolog.Nop())
	require.NoError(t, err)

	cfg := &config.Config{
		DataDir:    t.TempDir(),
		LedgerPath: filepath.Join(t.TempDir(), "portfolio.json"),
		Port:       0,
		DevMode:    true,
		Engine: config.EngineConfig{
			InitialCash:  50000,
			SharpeWindow: 3,
			CalmarWindow: 3,
		},
	}

	srv := New(Config{Log: zerolog.Nop(), Config: cfg, Results: repo})
	return srv, repo, cfg
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := get(t, srv, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "folio", body["service"])
}

func TestPortfolioEndpointSeedsLedger(t *testing.T) {
	srv, _, _ := newTestServer(t)

	// No ledger file exists yet, so the endpoint serves the seeded snapshot.
	rec := get(t, srv, "/api/portfolio")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.InDelta(t, 50000, body["cash"], 1e-9)
	assert.InDelta(t, 50000, body["net_liquidation"], 1e-9)
}

func TestPortfolioEndpointServesSavedLedger(t *testing.T) {
	srv, _, cfg := newTestServer(t)

	snap := ledger.New(10000)
	snap.Portfolio["AAA"] = &ledger.Position{Quantity: 10, LastPrice: 50, EntryPrice: 40}
	require.NoError(t, ledger.Save(cfg.LedgerPath, snap))

	rec := get(t, srv, "/api/portfolio")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.InDelta(t, 10000, body["cash"], 1e-9)
	assert.InDelta(t, 10500, body["net_liquidation"], 1e-9)

	portfolio, ok := body["portfolio"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, portfolio, "AAA")
}

func TestRunsEndpoints(t *testing.T) {
	srv, repo, _ := newTestServer(t)

	rec := get(t, srv, "/api/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	equity := []domain.EquityPoint{
		{Date: "2024-06-03", TotalEquity: 100000, DailyReturn: 0},
		{Date: "2024-06-04", TotalEquity: 101000, DailyReturn: 0.01},
		{Date: "2024-06-05", TotalEquity: 100500, DailyReturn: -0.00495},
	}
	trades := []results.TradeRecord{
		{Date: "2024-06-03", Trade: domain.Trade{Ticker: "AAA", DeltaShare: 5, TargetQty: 5, Price: 100}},
	}
	id, err := repo.SaveRun(results.Run{
		Start: "2024-06-03", End: "2024-06-05", CadenceDays: 10,
		InitialCash: 100000, FinalEquity: 100500,
	}, equity, trades)
	require.NoError(t, err)

	rec = get(t, srv, "/api/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []results.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)

	rec = get(t, srv, "/api/runs/"+id)
	require.Equal(t, http.StatusOK, rec.Code)
	var run results.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.InDelta(t, 100500, run.FinalEquity, 1e-9)

	rec = get(t, srv, "/api/runs/"+id+"/equity")
	require.Equal(t, http.StatusOK, rec.Code)
	var points []domain.EquityPoint
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &points))
	require.Len(t, points, 3)
	assert.Equal(t, "2024-06-03", points[0].Date)

	rec = get(t, srv, "/api/runs/"+id+"/trades")
	require.Equal(t, http.StatusOK, rec.Code)
	var recs []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &recs))
	require.Len(t, recs, 1)
}

func TestGetRunNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := get(t, srv, "/api/runs/no-such-run")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunMetricsEndpoint(t *testing.T) {
	srv, repo, _ := newTestServer(t)

	equity := []domain.EquityPoint{
		{Date: "2024-06-03", TotalEquity: 100000, DailyReturn: 0},
		{Date: "2024-06-04", TotalEquity: 101000, DailyReturn: 0.01},
		{Date: "2024-06-05", TotalEquity: 101500, DailyReturn: 0.00495},
		{Date: "2024-06-06", TotalEquity: 102000, DailyReturn: 0.00493},
	}
	id, err := repo.SaveRun(results.Run{
		Start: "2024-06-03", End: "2024-06-06", CadenceDays: 10,
		InitialCash: 100000, FinalEquity: 102000,
	}, equity, nil)
	require.NoError(t, err)

	rec := get(t, srv, "/api/runs/"+id+"/metrics")
	require.Equal(t, http.StatusOK, rec.Code)

	var body runMetricsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Dates, 4)
	require.Len(t, body.Sharpe, 4)

	// The first window entries have too little data and serialize as null.
	assert.Nil(t, body.Sharpe[0])
	assert.NotNil(t, body.Sharpe[3])
}

func TestSystemEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := get(t, srv, "/api/system")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "cpu_percent")
	assert.Contains(t, body, "ram_percent")
	assert.Contains(t, body, "goroutines")
}
