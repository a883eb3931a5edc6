package server

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

type systemHandlers struct {
	log         zerolog.Logger
	startupTime time.Time
}

func newSystemHandlers(log zerolog.Logger) *systemHandlers {
	return &systemHandlers{
		log:         log.With().Str("component", "system").Logger(),
		startupTime: time.Now(),
	}
}

// handleStats returns process and host resource usage.
// GET /api/system
func (h *systemHandlers) handleStats(w http.ResponseWriter, r *http.Request) {
	cpuPct, ramPct := h.getSystemStats()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	response := map[string]interface{}{
		"cpu_percent":    cpuPct,
		"ram_percent":    ramPct,
		"goroutines":     runtime.NumGoroutine(),
		"heap_alloc_mb":  float64(memStats.HeapAlloc) / 1024 / 1024,
		"uptime_seconds": time.Since(h.startupTime).Seconds(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// getSystemStats samples CPU and RAM usage. The 100ms CPU window keeps the
// endpoint responsive while still giving a usable reading.
func (h *systemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}
	return cpuAvg, memStat.UsedPercent
}
