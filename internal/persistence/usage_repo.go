package persistence

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chessanalytics/core/internal/apperr"
)

// UsageTrackingRepo backs the rate limiter's persistence-side counters
// (anonymous IP daily window, authenticated tier monthly window), keyed by
// an opaque tracking key the caller constructs (spec §4.4: "usage
// tracking ... not readable by anonymous identities").
type UsageTrackingRepo struct {
	pool *pgxpool.Pool
}

const incrementUsageSQL = `
INSERT INTO usage_tracking (tracking_key, window_start, count, updated_at)
VALUES ($1, $2, 1, NOW())
ON CONFLICT (tracking_key) DO UPDATE SET
	count = CASE
		WHEN usage_tracking.window_start <= $2 - $3::interval THEN 1
		ELSE usage_tracking.count + 1
	END,
	window_start = CASE
		WHEN usage_tracking.window_start <= $2 - $3::interval THEN $2
		ELSE usage_tracking.window_start
	END,
	updated_at = NOW()
RETURNING count, window_start
`

// Increment atomically bumps the counter for key, rolling the window over
// if the prior window_start is older than window. Returns the post-
// increment count and the window's start time.
func (r *UsageTrackingRepo) Increment(ctx context.Context, key string, now time.Time, window time.Duration) (int, time.Time, error) {
	var count int
	var windowStart time.Time
	err := r.pool.QueryRow(ctx, incrementUsageSQL, key, now, window).Scan(&count, &windowStart)
	if err != nil {
		return 0, time.Time{}, apperr.Wrap(apperr.TagPersistenceFailed, "increment usage counter", err)
	}
	return count, windowStart, nil
}

const getUsageSQL = `SELECT count, window_start FROM usage_tracking WHERE tracking_key = $1`

// Get reads the current counter without incrementing it.
func (r *UsageTrackingRepo) Get(ctx context.Context, key string) (int, time.Time, bool, error) {
	var count int
	var windowStart time.Time
	err := r.pool.QueryRow(ctx, getUsageSQL, key).Scan(&count, &windowStart)
	if err != nil {
		if isNoRows(err) {
			return 0, time.Time{}, false, nil
		}
		return 0, time.Time{}, false, apperr.Wrap(apperr.TagPersistenceFailed, "fetch usage counter", err)
	}
	return count, windowStart, true, nil
}
