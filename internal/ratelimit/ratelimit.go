// Package ratelimit implements the two-level quota of spec §4.3/§5:
// an IP-level anonymous daily window and an account-tier monthly window,
// both backed by internal/persistence.UsageTrackingRepo, with fail-open
// semantics when that backend is unavailable. Grounded on the teacher's
// internal/middleware/ratelimit.go (per-IP token bucket) and
// r3e-network-service_layer/infrastructure/ratelimit (typed RateLimiter
// wrapping a pluggable backend).
package ratelimit

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chessanalytics/core/internal/apperr"
	"github.com/chessanalytics/core/internal/persistence"
)

// Decision is the admission-control outcome of spec §4.3 step 3.
type Decision struct {
	Allowed       bool
	Limit         int
	CurrentUsage  int
	Remaining     int
	ResetsInHours float64
}

// Limiter enforces the anonymous-IP and free-tier-monthly windows.
type Limiter struct {
	usage *persistence.UsageTrackingRepo

	anonymousDailyCap  int
	freeTierMonthlyCap int
	anonymousWindow    time.Duration
	monthlyWindow      time.Duration
}

// New builds a Limiter against the given usage-tracking backend.
func New(usage *persistence.UsageTrackingRepo, anonymousDailyCap, freeTierMonthlyCap int, anonymousWindow, monthlyWindow time.Duration) *Limiter {
	return &Limiter{
		usage:              usage,
		anonymousDailyCap:  anonymousDailyCap,
		freeTierMonthlyCap: freeTierMonthlyCap,
		anonymousWindow:    anonymousWindow,
		monthlyWindow:      monthlyWindow,
	}
}

// CheckAnonymous enforces the ≤3-per-rolling-24h-per-IP cap (spec §4.3).
// On a persistence error the check fails open: the request is allowed, and
// the error is logged but not surfaced (spec §4.3: "fail-open mode is used
// when the limiter backend is temporarily unavailable").
func (l *Limiter) CheckAnonymous(ctx context.Context, clientIP string) Decision {
	return l.check(ctx, "anon:"+clientIP, l.anonymousDailyCap, l.anonymousWindow)
}

// CheckFreeTier enforces the tier-configured monthly cap for an
// authenticated free-tier user.
func (l *Limiter) CheckFreeTier(ctx context.Context, userID string) Decision {
	return l.check(ctx, "free:"+userID, l.freeTierMonthlyCap, l.monthlyWindow)
}

// CheckUnlimited always allows — paid tiers above free (spec §4.3: "paid
// tiers → unlimited or larger cap"); a larger-but-finite paid cap can be
// added by calling check directly with the tier's configured limit.
func (l *Limiter) CheckUnlimited() Decision {
	return Decision{Allowed: true, Limit: -1, Remaining: -1}
}

// PeekAnonymous reports the anonymous IP's current standing against its
// daily cap without incrementing the counter. internal/middleware already
// increments once per POST /analyze at the HTTP boundary; internal/
// scheduler's admission check re-reads that same counter so a request
// flowing through Submit is never counted twice.
func (l *Limiter) PeekAnonymous(ctx context.Context, clientIP string) Decision {
	return l.peek(ctx, "anon:"+clientIP, l.anonymousDailyCap, l.anonymousWindow)
}

// PeekFreeTier is PeekAnonymous's authenticated-tier counterpart.
func (l *Limiter) PeekFreeTier(ctx context.Context, userID string) Decision {
	return l.peek(ctx, "free:"+userID, l.freeTierMonthlyCap, l.monthlyWindow)
}

// peek mirrors check's window arithmetic read-only: an expired or never-
// written window reads as fully available rather than as a live count.
func (l *Limiter) peek(ctx context.Context, key string, limit int, window time.Duration) Decision {
	now := time.Now()
	count, windowStart, found, err := l.usage.Get(ctx, key)
	if err != nil {
		logrus.WithError(err).WithField("component", "ratelimit").Warn("usage backend unavailable, failing open")
		return Decision{Allowed: true, Limit: limit, Remaining: limit}
	}
	if !found || now.Sub(windowStart) >= window {
		return Decision{Allowed: true, Limit: limit, Remaining: limit}
	}

	remaining := limit - count
	resetsIn := window - now.Sub(windowStart)
	if resetsIn < 0 {
		resetsIn = 0
	}
	return Decision{
		Allowed:       count <= limit,
		Limit:         limit,
		CurrentUsage:  count,
		Remaining:     max(remaining, 0),
		ResetsInHours: resetsIn.Hours(),
	}
}

func (l *Limiter) check(ctx context.Context, key string, limit int, window time.Duration) Decision {
	now := time.Now()
	count, windowStart, err := l.usage.Increment(ctx, key, now, window)
	if err != nil {
		logrus.WithError(err).WithField("component", "ratelimit").Warn("usage backend unavailable, failing open")
		return Decision{Allowed: true, Limit: limit, Remaining: limit}
	}

	remaining := limit - count
	resetsIn := window - now.Sub(windowStart)
	if resetsIn < 0 {
		resetsIn = 0
	}

	return Decision{
		Allowed:       count <= limit,
		Limit:         limit,
		CurrentUsage:  count,
		Remaining:     max(remaining, 0),
		ResetsInHours: resetsIn.Hours(),
	}
}

// ErrRateLimitExceeded builds the rate_limit taxonomy error for a deny
// decision. The decision's counters (limit, usage, remaining, reset) are not
// attached to the error.
func ErrRateLimitExceeded(d Decision) error {
	return apperr.New(apperr.TagRateLimit, "rate limit exceeded")
}
