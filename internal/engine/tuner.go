package engine

import (
	"runtime"
	"time"

	"github.com/chessanalytics/core/internal/models"
)

// Tuner surfaces read-only auto-tuning diagnostics about the runtime the
// pool is hosted on, generalized from the teacher's PerformanceOptimizer
// (internal/services/performance_optimizer.go) into a pure reporting helper
// rather than a second source of truth for engine options — tier presets
// resolved at startup (configs.Load) remain authoritative.
type Tuner struct {
	pool *Pool
}

// NewTuner binds a Tuner to a running pool.
func NewTuner(pool *Pool) *Tuner {
	return &Tuner{pool: pool}
}

// PerformanceMetrics is the shape returned by the orchestrator's debug
// surface (spec.md §9 supplement: "GET /engine/performance/metrics"-style
// accessor).
type PerformanceMetrics struct {
	CPUCount          int               `json:"cpuCount"`
	SystemMemoryMB    int               `json:"systemMemoryMb"`
	PoolSize          int               `json:"poolSize"`
	CurrentConfig     models.EngineOptions `json:"currentConfig"`
	EngineName        string            `json:"engineName,omitempty"`
	EngineAuthor      string            `json:"engineAuthor,omitempty"`
	EstimatedGameTime time.Duration     `json:"estimatedGameTimeNs"`
}

// Report returns a snapshot of the pool's current sizing alongside the
// host's CPU count and the memory the Go runtime has obtained from the OS
// (runtime.MemStats.Sys, not the host's total memory), and an estimate of how long a typical 40-move game
// would take to analyze at the pool's current depth/time settings.
func (t *Tuner) Report(averageMovesPerGame int) PerformanceMetrics {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	cfg := t.pool.Config()
	info := t.pool.Info()

	return PerformanceMetrics{
		CPUCount:          runtime.NumCPU(),
		SystemMemoryMB:    int(memStats.Sys / 1024 / 1024),
		PoolSize:          t.pool.poolCfg.MaxConcurrentEngines,
		CurrentConfig:     cfg,
		EngineName:        info.Name,
		EngineAuthor:      info.Author,
		EstimatedGameTime: t.estimateGameTime(averageMovesPerGame),
	}
}

func (t *Tuner) estimateGameTime(moveCount int) time.Duration {
	perMove := time.Duration(t.pool.poolCfg.DefaultTimeSeconds * float64(time.Second))
	concurrency := t.pool.poolCfg.MaxConcurrentEngines
	if concurrency < 1 {
		concurrency = 1
	}
	total := perMove * time.Duration(moveCount)
	return total / time.Duration(concurrency)
}
