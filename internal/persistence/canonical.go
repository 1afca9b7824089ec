package persistence

import (
	"strings"

	"github.com/chessanalytics/core/internal/models"
)

// CanonicalUserID normalizes a platform user id per spec §3/§4.4:
// lower(trim(x)) on Chess.com, unchanged on Lichess. Idempotent by
// construction — canonicalizing an already-canonical id is a no-op.
func CanonicalUserID(userID string, platform models.Platform) string {
	if platform == models.PlatformChessCom {
		return strings.ToLower(strings.TrimSpace(userID))
	}
	return userID
}
