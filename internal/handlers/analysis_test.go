package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chessanalytics/core/internal/apperr"
	"github.com/chessanalytics/core/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestAnalyzeRequestBodyClassifyRejectsZeroTargets(t *testing.T) {
	var body analyzeRequestBody
	_, err := body.classify()
	require.Error(t, err)
	tag, ok := apperr.AsTag(err)
	require.True(t, ok)
	assert.Equal(t, apperr.TagValidation, tag)
}

func TestAnalyzeRequestBodyClassifyRejectsMultipleTargets(t *testing.T) {
	body := analyzeRequestBody{GameID: "abc123", PGN: "1. e4 e5"}
	_, err := body.classify()
	require.Error(t, err)
}

func TestAnalyzeRequestBodyClassifySingleGameByID(t *testing.T) {
	body := analyzeRequestBody{GameID: "abc123"}
	kind, err := body.classify()
	require.NoError(t, err)
	assert.Equal(t, models.RequestSingleGameByID, kind)
}

func TestAnalyzeRequestBodyClassifySingleGameByPGN(t *testing.T) {
	body := analyzeRequestBody{PGN: "1. e4 e5 2. Nf3"}
	kind, err := body.classify()
	require.NoError(t, err)
	assert.Equal(t, models.RequestSingleGameByPGN, kind)
}

func TestAnalyzeRequestBodyClassifyPositionWithoutMove(t *testing.T) {
	body := analyzeRequestBody{FEN: "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"}
	kind, err := body.classify()
	require.NoError(t, err)
	assert.Equal(t, models.RequestPosition, kind)
}

func TestAnalyzeRequestBodyClassifyMoveWhenMoveGiven(t *testing.T) {
	body := analyzeRequestBody{FEN: "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", Move: "e4"}
	kind, err := body.classify()
	require.NoError(t, err)
	assert.Equal(t, models.RequestMove, kind)
}

func TestAnalyzeRequestBodyClassifyBatch(t *testing.T) {
	body := analyzeRequestBody{Batch: &struct {
		Limit int `json:"limit"`
	}{Limit: 10}}
	kind, err := body.classify()
	require.NoError(t, err)
	assert.Equal(t, models.RequestBatch, kind)
}

func TestTenantFromContextDefaultsToAnonymous(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	isAnon, tier := tenantFromContext(c)
	assert.True(t, isAnon)
	assert.Equal(t, models.TierAnonymous, tier)
}

func TestTenantFromContextAuthenticatedDefaultsToFreeWithoutTier(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Set("userID", "hero")

	isAnon, tier := tenantFromContext(c)
	assert.False(t, isAnon)
	assert.Equal(t, models.TierFree, tier)
}

func TestTenantFromContextAuthenticatedPaid(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Set("userID", "hero")
	c.Set("tier", models.TierPaid)

	isAnon, tier := tenantFromContext(c)
	assert.False(t, isAnon)
	assert.Equal(t, models.TierPaid, tier)
}

func TestQueryIntDefaultsWhenAbsent(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	assert.Equal(t, 20, queryInt(c, "limit", 20, 100))
}

func TestQueryIntClampsToMax(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/?limit=9999", nil)

	assert.Equal(t, 100, queryInt(c, "limit", 20, 100))
}

func TestQueryIntFallsBackOnGarbageValue(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/?offset=not-a-number", nil)

	assert.Equal(t, 0, queryInt(c, "offset", 0, 1_000_000))
}
