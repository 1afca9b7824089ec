package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chessanalytics/core/internal/opening"
)

// OpeningHandler serves read-only access to the curated opening table
// (spec §4.6). There is no free-text or position-based search index behind
// it — the curated table is keyed by ECO code only, per spec's Non-goal
// "no opening-theory database beyond the curated table".
type OpeningHandler struct {
	openings *opening.Table
}

// NewOpeningHandler wires an OpeningHandler.
func NewOpeningHandler(openings *opening.Table) *OpeningHandler {
	return &OpeningHandler{openings: openings}
}

// GetByECO retrieves one curated entry by its ECO code.
// GET /openings/:eco
func (h *OpeningHandler) GetByECO(c *gin.Context) {
	eco := c.Param("eco")
	entry, ok := h.openings.Get(eco)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "opening not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "opening": entry})
}

// GetAll returns every curated opening entry.
// GET /openings
func (h *OpeningHandler) GetAll(c *gin.Context) {
	entries := h.openings.All()
	c.JSON(http.StatusOK, gin.H{"success": true, "openings": entries, "count": len(entries)})
}
