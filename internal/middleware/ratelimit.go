package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/chessanalytics/core/internal/apperr"
	"github.com/chessanalytics/core/internal/models"
	"github.com/chessanalytics/core/internal/ratelimit"
)

// RateLimit admits or denies an analysis request per spec §4.3's two-level
// quota: anonymous callers are checked against the IP-daily window,
// authenticated free-tier callers against the account-monthly window. It
// expects an upstream auth layer (out of scope, spec §1) to have already
// populated "userID"/"tier" in the gin context for authenticated requests.
func RateLimit(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, authenticated := c.Get("userID")
		tier, _ := c.Get("tier")

		var decision ratelimit.Decision
		switch {
		case !authenticated:
			decision = limiter.CheckAnonymous(c.Request.Context(), c.ClientIP())
		case tier == models.TierPaid:
			decision = limiter.CheckUnlimited()
		default:
			decision = limiter.CheckFreeTier(c.Request.Context(), userID.(string))
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))

		if !decision.Allowed {
			tag := apperr.TagRateLimit
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": apperr.SafeMessage(apperr.New(tag, "rate limit exceeded")),
				"tag":   tag,
				"detail": gin.H{
					"limit":           decision.Limit,
					"current_usage":   decision.CurrentUsage,
					"remaining":       decision.Remaining,
					"resets_in_hours": decision.ResetsInHours,
				},
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
