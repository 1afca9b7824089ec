package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chessanalytics/core/internal/orchestrator"
)

var startTime = time.Now()

// HealthHandler serves liveness and engine-performance diagnostics.
type HealthHandler struct {
	orch *orchestrator.Orchestrator
}

// NewHealthHandler wires a HealthHandler.
func NewHealthHandler(orch *orchestrator.Orchestrator) *HealthHandler {
	return &HealthHandler{orch: orch}
}

// Health returns basic liveness status.
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "chessanalytics-core",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(startTime).Seconds(),
	})
}

// EngineMetrics surfaces the engine pool's auto-tuning diagnostics (spec.md
// §9 supplement: the teacher's performance-optimizer recommendations,
// adapted into a read-only accessor).
// GET /engine/performance/metrics
func (h *HealthHandler) EngineMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"metrics": h.orch.PerformanceMetrics(),
		"limits":  h.orch.Limits(),
	})
}
