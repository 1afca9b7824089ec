package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/chessanalytics/core/internal/models"
)

// AnalyticsKey identifies one cached read-path response (spec §4.7):
// (endpoint, canonical_user_id, platform, param_hash, cache_version).
type AnalyticsKey struct {
	Endpoint  string
	UserID    string
	Platform  models.Platform
	ParamHash string
	Version   string
}

func (k AnalyticsKey) String() string {
	return strings.Join([]string{k.Endpoint, k.UserID, string(k.Platform), k.ParamHash, k.Version}, "\x00")
}

// ParamHash derives a stable hash for a param string, used to build
// AnalyticsKey.ParamHash without the caller needing crypto/sha1 directly.
func ParamHash(params string) string {
	sum := sha1.Sum([]byte(params))
	return hex.EncodeToString(sum[:])
}

// AnalyticsCache is the TTL layer for expensive read paths (player stats,
// opening repertoire, game analysis summaries).
type AnalyticsCache struct {
	dict    *TTLDict[string, []byte]
	version string
}

// NewAnalyticsCache builds an AnalyticsCache with the given TTL and static
// version token (bumped on breaking response-format changes, spec §4.7).
func NewAnalyticsCache(ttl time.Duration, version string) (*AnalyticsCache, error) {
	dict, err := NewTTLDict[string, []byte](ttl)
	if err != nil {
		return nil, fmt.Errorf("analytics cache: %w", err)
	}
	return &AnalyticsCache{dict: dict, version: version}, nil
}

// Get returns the cached response bytes for key, if present and unexpired.
func (c *AnalyticsCache) Get(key AnalyticsKey) ([]byte, bool) {
	key.Version = c.version
	return c.dict.Get(key.String())
}

// Set stores response bytes under key.
func (c *AnalyticsCache) Set(key AnalyticsKey, payload []byte) {
	key.Version = c.version
	c.dict.Set(key.String(), payload)
}

// InvalidateTenant removes every cached entry for (userID, platform). The
// scheduler calls it after each analyzed game's transaction commits, and the
// analysis handler calls it when it accepts a job. The importer does not
// call it, so completing an import leaves the tenant's entries in place.
func (c *AnalyticsCache) InvalidateTenant(userID string, platform models.Platform) int {
	prefix := "\x00" + userID + "\x00" + string(platform) + "\x00"
	return c.dict.DeleteMatching(func(k string) bool {
		return strings.Contains(k, prefix)
	})
}
