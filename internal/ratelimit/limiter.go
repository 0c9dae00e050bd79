// Package ratelimit enforces per-user request quotas with fixed windows.
//
// A window opens on the first request and lasts for Quota.Window. Up to
// Quota.Limit requests are counted inside it; once it is stale the next
// request starts a fresh window with count 1. Bursts straddling two adjacent
// windows (up to 2×limit in a short span) are an accepted property of the
// fixed-window scheme, not a bug.
//
// Store failures never deny a request: read errors fail open and write errors
// after an allow decision keep the allow.
package ratelimit

import (
	"context"
	"time"

	"github.com/tbourn/connectai-gateway/internal/config"
	"github.com/tbourn/connectai-gateway/internal/domain"
)

// Quota is the limit applied to one purpose.
type Quota struct {
	Purpose domain.RateLimitPurpose
	Limit   int
	Window  time.Duration
}

// Decision is the outcome of Allow.
type Decision struct {
	Allowed    bool
	Count      int           // requests counted in the current window
	RetryAfter time.Duration // time until the window resets; set when rejected
}

// Limiter counts one request against a quota.
type Limiter interface {
	Allow(ctx context.Context, userID string, q Quota) (Decision, error)
}

// Quotas holds the configured limits for each purpose.
type Quotas struct {
	ChatWindow           time.Duration
	ChatLimits           map[domain.PlanType]int
	RecommendationWindow time.Duration
	RecommendationLimit  int
}

// QuotasFromConfig maps configuration to quotas.
func QuotasFromConfig(c config.QuotaConfig) Quotas {
	return Quotas{
		ChatWindow: c.ChatWindow,
		ChatLimits: map[domain.PlanType]int{
			domain.PlanFree:    c.ChatLimitFree,
			domain.PlanVIP:     c.ChatLimitVIP,
			domain.PlanPremium: c.ChatLimitPremium,
		},
		RecommendationWindow: c.RecommendationWindow,
		RecommendationLimit:  c.RecommendationLimit,
	}
}

// ChatQuota returns the chat quota for plan. Unknown plans get the free limit.
func (q Quotas) ChatQuota(plan domain.PlanType) Quota {
	limit, ok := q.ChatLimits[plan]
	if !ok {
		limit = q.ChatLimits[domain.PlanFree]
	}
	return Quota{Purpose: domain.PurposeChat, Limit: limit, Window: q.ChatWindow}
}

// RecommendationQuota returns the flat recommendation quota.
func (q Quotas) RecommendationQuota() Quota {
	return Quota{Purpose: domain.PurposeRecommendation, Limit: q.RecommendationLimit, Window: q.RecommendationWindow}
}

// retryAfter is the time left in a window, never below one second so
// Retry-After headers stay meaningful.
func retryAfter(windowStart time.Time, window time.Duration, now time.Time) time.Duration {
	d := windowStart.Add(window).Sub(now)
	if d < time.Second {
		return time.Second
	}
	return d
}
