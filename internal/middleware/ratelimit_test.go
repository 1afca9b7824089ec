package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chessanalytics/core/internal/models"
	"github.com/chessanalytics/core/internal/ratelimit"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// Regression test for a tier-type mismatch: "tier" must be compared as a
// models.AccountTier, not models.TierPreset (a distinct enum used for
// engine-pool sizing) — an authenticated paid user must reach
// CheckUnlimited, not silently fall through to CheckFreeTier.
func TestRateLimitAuthenticatedPaidTierDoesNotFallThroughToFreeTier(t *testing.T) {
	limiter := ratelimit.New(nil, 3, 100, 24*time.Hour, 30*24*time.Hour)

	w := httptest.NewRecorder()
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("userID", "hero")
		c.Set("tier", models.TierPaid)
		c.Next()
	})
	router.Use(RateLimit(limiter))
	router.GET("/ping", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "-1", w.Header().Get("X-RateLimit-Limit"), "paid tier must bypass the free-tier monthly cap")
}
