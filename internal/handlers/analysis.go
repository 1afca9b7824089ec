package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/chessanalytics/core/internal/apperr"
	"github.com/chessanalytics/core/internal/cache"
	"github.com/chessanalytics/core/internal/models"
	"github.com/chessanalytics/core/internal/opening"
	"github.com/chessanalytics/core/internal/orchestrator"
	"github.com/chessanalytics/core/internal/persistence"
)

// AnalysisHandler serves the unified analysis surface: submitting jobs,
// polling progress, and reading back persisted results.
type AnalysisHandler struct {
	orch     *orchestrator.Orchestrator
	store    *persistence.Store
	analytics *cache.AnalyticsCache
	openings *opening.Table
}

// NewAnalysisHandler wires an AnalysisHandler.
func NewAnalysisHandler(orch *orchestrator.Orchestrator, store *persistence.Store, analytics *cache.AnalyticsCache, openings *opening.Table) *AnalysisHandler {
	return &AnalysisHandler{orch: orch, store: store, analytics: analytics, openings: openings}
}

// analyzeRequestBody is the unified body of spec §6's "POST /analyze":
// exactly one of game_id, pgn, fen(+move), or batch must be present.
type analyzeRequestBody struct {
	UserID       string `json:"user_id" binding:"required"`
	Platform     string `json:"platform" binding:"required"`
	AnalysisType string `json:"analysis_type"`
	GameID       string `json:"game_id"`
	PGN          string `json:"pgn"`
	FEN          string `json:"fen"`
	Move         string `json:"move"`
	Depth        int    `json:"depth"`
	MultiPV      int    `json:"multi_pv"`
	Batch        *struct {
		Limit int `json:"limit"`
	} `json:"batch"`
}

func (b analyzeRequestBody) classify() (models.AnalyzeRequestKind, error) {
	set := 0
	var kind models.AnalyzeRequestKind
	if b.GameID != "" {
		set++
		kind = models.RequestSingleGameByID
	}
	if b.PGN != "" {
		set++
		kind = models.RequestSingleGameByPGN
	}
	if b.FEN != "" {
		set++
		if b.Move != "" {
			kind = models.RequestMove
		} else {
			kind = models.RequestPosition
		}
	}
	if b.Batch != nil {
		set++
		kind = models.RequestBatch
	}
	if set != 1 {
		return "", apperr.New(apperr.TagValidation, "exactly one of game_id, pgn, fen, or batch is required")
	}
	return kind, nil
}

// tenantFromContext reads the upstream auth layer's populated "userID"/
// "tier" keys (spec §1: authentication itself is out of scope here), and
// defaults to anonymous when absent.
func tenantFromContext(c *gin.Context) (isAnonymous bool, tier models.AccountTier) {
	_, authenticated := c.Get("userID")
	if !authenticated {
		return true, models.TierAnonymous
	}
	tierVal, ok := c.Get("tier")
	if !ok {
		return false, models.TierFree
	}
	if t, ok := tierVal.(models.AccountTier); ok {
		return false, t
	}
	return false, models.TierFree
}

// Analyze handles the unified analysis request.
// POST /analyze
func (h *AnalysisHandler) Analyze(c *gin.Context) {
	var body analyzeRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body"})
		return
	}

	kind, err := body.classify()
	if err != nil {
		writeError(c, err)
		return
	}

	analysisType := models.AnalysisStockfish
	if body.AnalysisType == string(models.AnalysisDeep) {
		analysisType = models.AnalysisDeep
	}

	isAnonymous, tier := tenantFromContext(c)
	req := models.AnalyzeRequest{
		Kind:         kind,
		UserID:       body.UserID,
		Platform:     models.Platform(body.Platform),
		AnalysisType: analysisType,
		IsAnonymous:  isAnonymous,
		ClientIP:     c.ClientIP(),
		AccountTier:  tier,
	}

	switch kind {
	case models.RequestSingleGameByID:
		req.SingleGameByID = &models.SingleGameByIDRequest{ProviderGameID: body.GameID}
	case models.RequestSingleGameByPGN:
		req.SingleGameByPGN = &models.SingleGameByPGNRequest{PGN: body.PGN}
	case models.RequestBatch:
		req.Batch = &models.BatchRequest{Limit: body.Batch.Limit}
	case models.RequestPosition:
		result, err := h.orch.AnalyzePosition(c.Request.Context(), models.PositionRequest{FEN: body.FEN, Depth: body.Depth, MultiPV: body.MultiPV})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
		return
	case models.RequestMove:
		result, err := h.orch.AnalyzeMove(c.Request.Context(), models.MoveRequest{FEN: body.FEN, Move: body.Move, Depth: body.Depth})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
		return
	}

	job, err := h.orch.Submit(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}

	h.analytics.InvalidateTenant(body.UserID, models.Platform(body.Platform))

	c.JSON(http.StatusAccepted, gin.H{
		"success":      true,
		"message":      "analysis started",
		"analysis_id":  job.ID,
		"progress_url": "/progress/" + body.UserID + "/" + body.Platform + "?job_id=" + job.ID,
	})
}

// GetProgress returns the import and/or analysis progress snapshot for a
// tenant. A job_id query parameter, taken from a prior POST /analyze's
// progress_url, selects which in-flight analysis job to report — the
// scheduler indexes jobs by id, not by tenant, so without it only the
// import session's progress is returned.
// GET /progress/:user_id/:platform
func (h *AnalysisHandler) GetProgress(c *gin.Context) {
	userID := c.Param("user_id")
	platform := models.Platform(c.Param("platform"))

	resp := gin.H{}
	if session, ok := h.store.ImportSessions.Get(persistence.CanonicalUserID(userID, platform), platform); ok {
		resp["import"] = session
	}
	if jobID := c.Query("job_id"); jobID != "" {
		if snapshot, ok := h.orch.Progress(jobID); ok {
			resp["analysis"] = snapshot
		} else {
			resp["analysis"] = nil
		}
	}
	c.JSON(http.StatusOK, resp)
}

// CancelAnalysis requests cancellation of a running analysis job.
// POST /analyze/:job_id/cancel
func (h *AnalysisHandler) CancelAnalysis(c *gin.Context) {
	jobID := c.Param("job_id")
	if !h.orch.Cancel(jobID) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GetResults returns a page of a tenant's recent games with their analysis
// aggregate, if one has been computed.
// GET /results/:user_id/:platform?limit&offset
func (h *AnalysisHandler) GetResults(c *gin.Context) {
	userID := c.Param("user_id")
	platform := models.Platform(c.Param("platform"))
	limit := queryInt(c, "limit", 20, 100)
	offset := queryInt(c, "offset", 0, 1_000_000)

	games, err := h.store.Games.GetOrdered(c.Request.Context(), userID, platform, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}

	type gameResult struct {
		models.Game
		Analysis *models.GameAnalysis `json:"analysis,omitempty"`
	}
	out := make([]gameResult, 0, len(games))
	for _, g := range games {
		item := gameResult{Game: g}
		if a, ok, err := h.store.GameAnalyses.Get(c.Request.Context(), userID, platform, g.ProviderGameID, models.AnalysisStockfish); err == nil && ok {
			item.Analysis = &a
		}
		out = append(out, item)
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "results": out, "count": len(out), "limit": limit, "offset": offset})
}

// GetStats returns the tenant's player-level personality summary.
// GET /stats/:user_id/:platform
func (h *AnalysisHandler) GetStats(c *gin.Context) {
	userID := c.Param("user_id")
	platform := models.Platform(c.Param("platform"))

	stats, ok, err := h.store.PersonalityScores.Get(c.Request.Context(), userID, platform)
	if err != nil {
		writeError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "no analyzed games for this player yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "stats": stats})
}

// CheckAnalyses reports, for a batch of game ids, whether each has been
// analyzed and its accuracy.
// POST /analyses/:user_id/:platform/check
func (h *AnalysisHandler) CheckAnalyses(c *gin.Context) {
	userID := c.Param("user_id")
	platform := models.Platform(c.Param("platform"))

	var body struct {
		GameIDs []string `json:"game_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body"})
		return
	}

	type status struct {
		Analyzed bool    `json:"analyzed"`
		Accuracy float64 `json:"accuracy,omitempty"`
	}
	result := make(map[string]status, len(body.GameIDs))
	for _, id := range body.GameIDs {
		a, ok, err := h.store.GameAnalyses.Get(c.Request.Context(), userID, platform, id, models.AnalysisStockfish)
		if err != nil {
			writeError(c, err)
			return
		}
		if ok {
			result[id] = status{Analyzed: true, Accuracy: a.Accuracy}
		} else {
			result[id] = status{Analyzed: false}
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "results": result})
}

// GetDeepAnalysis returns the full personality profile plus an
// opening-repertoire breakdown, cached per spec §4.7 unless force_refresh
// is set.
// GET /deep-analysis/:user_id/:platform?force_refresh
func (h *AnalysisHandler) GetDeepAnalysis(c *gin.Context) {
	userID := c.Param("user_id")
	platform := models.Platform(c.Param("platform"))
	forceRefresh := c.Query("force_refresh") == "true"

	key := cache.AnalyticsKey{Endpoint: "deep-analysis", UserID: userID, Platform: platform, ParamHash: cache.ParamHash("")}
	if !forceRefresh {
		if payload, ok := h.analytics.Get(key); ok {
			c.Data(http.StatusOK, "application/json", payload)
			return
		}
	}

	stats, ok, err := h.store.PersonalityScores.Get(c.Request.Context(), userID, platform)
	if err != nil {
		writeError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "no analyzed games for this player yet"})
		return
	}

	games, err := h.store.Games.GetOrdered(c.Request.Context(), userID, platform, 500, 0)
	if err != nil {
		writeError(c, err)
		return
	}
	repertoire := make(map[string]int)
	for _, g := range games {
		if g.Opening == "" {
			continue
		}
		classification := h.openings.Classify(g.Opening, g.OpeningFamily, nil)
		if classification.MatchesColor(g.Color) {
			repertoire[classification.Name]++
		}
	}

	body := gin.H{"success": true, "personality": stats, "opening_repertoire": repertoire}
	if payload, err := json.Marshal(body); err == nil {
		h.analytics.Set(key, payload)
	}
	c.JSON(http.StatusOK, body)
}

func queryInt(c *gin.Context, key string, def, max int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}
