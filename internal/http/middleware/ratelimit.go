// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the edge limiter: an in-memory token bucket per
// client IP, in front of authentication. It absorbs floods before they reach
// the identity provider or the subscription store. It is unrelated to the
// per-plan quotas, which are fixed windows persisted in the store
// (internal/ratelimit) and charged by the services.
//
// The limiter is process-local and is not an authorization mechanism.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

const (
	// MsgRateLimited is shared with the quota rejection.
	MsgRateLimited  = "Limite de requisições atingido. Tente novamente em breve."
	codeRateLimited = "RATE_LIMIT_EXCEEDED"

	// bucketTTL evicts buckets of clients that went quiet.
	bucketTTL = 10 * time.Minute
)

// KeyFunc selects the bucket a request is charged to.
type KeyFunc func(*gin.Context) string

// KeyByClientIP keys buckets by gin's ClientIP, which honours the engine's
// trusted proxy settings.
func KeyByClientIP() KeyFunc {
	return func(c *gin.Context) string { return "ip:" + c.ClientIP() }
}

// RateLimiter is a per-key token bucket. Buckets live in an expiring cache,
// so memory stays bounded by the number of recently active clients.
// It is safe for concurrent use.
type RateLimiter struct {
	rps     rate.Limit
	burst   int
	keyFn   KeyFunc
	buckets *cache.Cache
}

// NewRateLimiter constructs a RateLimiter refilling rps tokens per second up
// to burst (coerced to at least 1).
func NewRateLimiter(rps float64, burst int, keyFn KeyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		keyFn:   keyFn,
		buckets: cache.New(bucketTTL, bucketTTL),
	}
}

// bucket returns the limiter for key, creating it on first use. Every lookup
// pushes the expiry out again.
func (rl *RateLimiter) bucket(key string) *rate.Limiter {
	if v, ok := rl.buckets.Get(key); ok {
		lim := v.(*rate.Limiter)
		rl.buckets.SetDefault(key, lim)
		return lim
	}
	lim := rate.NewLimiter(rl.rps, rl.burst)
	if err := rl.buckets.Add(key, lim, cache.DefaultExpiration); err != nil {
		// Lost the race; use the winner's bucket.
		if v, ok := rl.buckets.Get(key); ok {
			return v.(*rate.Limiter)
		}
	}
	return lim
}

// wait reports how long until key may send again; zero means allowed now
// and a token was taken.
func (rl *RateLimiter) wait(key string, now time.Time) time.Duration {
	r := rl.bucket(key).ReserveN(now, 1)
	if !r.OK() {
		// rps == 0 with an empty bucket never refills.
		return time.Hour
	}
	d := r.DelayFrom(now)
	if d > 0 {
		r.CancelAt(now)
	}
	return d
}

// Handler returns a Gin middleware that enforces per-key token-bucket limits.
// CORS preflights are never counted. Rejections look like:
//
//	HTTP/1.1 429 Too Many Requests
//	Retry-After: 1
//	{
//	  "request_id": "<uuid>",
//	  "error":      "Limite de requisições atingido. Tente novamente em breve.",
//	  "code":       "RATE_LIMIT_EXCEEDED"
//	}
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		key := rl.keyFn(c)
		d := rl.wait(key, time.Now())
		if d <= 0 {
			c.Next()
			return
		}

		LoggerFrom(c).Warn().Str("bucket", key).Dur("retry_in", d).Msg("edge rate limit hit")
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(d.Seconds()))))
		deny(c, http.StatusTooManyRequests, MsgRateLimited, codeRateLimited)
	}
}
