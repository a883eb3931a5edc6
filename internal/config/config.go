// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration. It is built once at startup and
// passed to components at construction; nothing mutates it afterwards.
type Config struct {
	DataDir      string // Base directory for databases and run outputs (always absolute)
	LedgerPath   string // Portfolio ledger JSON file
	UniversePath string // Ticker list file, one or more symbols per line
	PricesPath   string // Daily-close price history, CSV or sqlite
	LogLevel     string
	Port         int
	DevMode      bool

	SizingSchedule string // cron expression (with seconds) for the daily sizing job

	Engine EngineConfig
}

// EngineConfig holds the sizing-engine parameters.
type EngineConfig struct {
	RiskAversion float64 // lambda in reverse optimization and MVO
	Tau          float64 // Black-Litterman prior scale
	Confidence   float64 // view-uncertainty scale when Omega is derived
	LookbackDays int     // returns window for covariance estimation
	CadenceDays  int     // trading days between rebalances
	SharpeWindow int
	CalmarWindow int
	PerNameCap   float64 // max fraction of total equity per name in partial rebalances
	MinLot       int     // minimum opening position size in shares
	InitialCash  float64 // ledger seed when the file is absent
	Shrinkage    float64 // diagonal shrinkage blend for the covariance estimate
	MuClamp      float64 // absolute clamp on historical daily mean returns (0 disables)
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("FOLIO_DATA_DIR", "data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:      absDataDir,
		LedgerPath:   getEnv("FOLIO_LEDGER_PATH", filepath.Join(absDataDir, "portfolio.json")),
		UniversePath: getEnv("FOLIO_UNIVERSE_FILE", filepath.Join(absDataDir, "universe.txt")),
		PricesPath:   getEnv("FOLIO_PRICES_PATH", filepath.Join(absDataDir, "prices.csv")),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		Port:         getEnvAsInt("FOLIO_PORT", 8011),
		DevMode:      getEnvAsBool("DEV_MODE", false),

		// 22:30 UTC, after US close.
		SizingSchedule: getEnv("FOLIO_SIZING_SCHEDULE", "0 30 22 * * MON-FRI"),

		Engine: EngineConfig{
			RiskAversion: getEnvAsFloat("FOLIO_RISK_AVERSION", 5.0),
			Tau:          getEnvAsFloat("FOLIO_TAU", 0.05),
			Confidence:   getEnvAsFloat("FOLIO_VIEW_CONFIDENCE", 0.5),
			LookbackDays: getEnvAsInt("FOLIO_LOOKBACK_DAYS", 252),
			CadenceDays:  getEnvAsInt("FOLIO_CADENCE_DAYS", 10),
			SharpeWindow: getEnvAsInt("FOLIO_SHARPE_WINDOW", 20),
			CalmarWindow: getEnvAsInt("FOLIO_CALMAR_WINDOW", 60),
			PerNameCap:   getEnvAsFloat("FOLIO_PER_NAME_CAP", 0.05),
			MinLot:       getEnvAsInt("FOLIO_MIN_LOT", 1),
			InitialCash:  getEnvAsFloat("FOLIO_INITIAL_CASH", 1000000),
			Shrinkage:    getEnvAsFloat("FOLIO_COV_SHRINKAGE", 0.1),
			MuClamp:      getEnvAsFloat("FOLIO_MU_CLAMP", 0.02),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Engine.RiskAversion <= 0 {
		return fmt.Errorf("risk aversion must be positive, got %f", c.Engine.RiskAversion)
	}
	if c.Engine.Tau <= 0 {
		return fmt.Errorf("tau must be positive, got %f", c.Engine.Tau)
	}
	if c.Engine.Confidence <= 0 || c.Engine.Confidence > 1 {
		return fmt.Errorf("view confidence must be in (0, 1], got %f", c.Engine.Confidence)
	}
	if c.Engine.CadenceDays < 1 {
		return fmt.Errorf("cadence must be at least 1 trading day, got %d", c.Engine.CadenceDays)
	}
	if c.Engine.PerNameCap <= 0 || c.Engine.PerNameCap > 1 {
		return fmt.Errorf("per-name cap must be in (0, 1], got %f", c.Engine.PerNameCap)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
