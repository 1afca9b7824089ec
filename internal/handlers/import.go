package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chessanalytics/core/internal/importer"
	"github.com/chessanalytics/core/internal/models"
)

// recentWindowGames bounds the "smart" incremental import to a small,
// fast-returning batch; the two-phase "more games" endpoint is uncapped
// up to the importer's own session cap.
const recentWindowGames = 100

// ImportHandler serves the incremental and bulk import endpoints.
type ImportHandler struct {
	imp *importer.Importer
}

// NewImportHandler wires an ImportHandler.
func NewImportHandler(imp *importer.Importer) *ImportHandler {
	return &ImportHandler{imp: imp}
}

type importRequestBody struct {
	UserID   string `json:"user_id" binding:"required"`
	Platform string `json:"platform" binding:"required"`
	MaxGames int    `json:"max_games"`
}

// ImportGamesSmart starts a small, recent-window incremental import.
// POST /import-games-smart
func (h *ImportHandler) ImportGamesSmart(c *gin.Context) {
	h.startImport(c, recentWindowGames)
}

// ImportMoreGames starts a large, two-phase import bounded by the
// importer's configured session cap.
// POST /import-more-games
func (h *ImportHandler) ImportMoreGames(c *gin.Context) {
	h.startImport(c, 0)
}

func (h *ImportHandler) startImport(c *gin.Context, defaultMax int) {
	var body importRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body"})
		return
	}

	maxGames := body.MaxGames
	if maxGames <= 0 {
		maxGames = defaultMax
	}

	session, err := h.imp.StartImport(body.UserID, models.Platform(body.Platform), maxGames)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"success": true, "session": session})
}
