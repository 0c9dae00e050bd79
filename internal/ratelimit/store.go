package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/connectai-gateway/internal/domain"
	"github.com/tbourn/connectai-gateway/internal/observability"
	"github.com/tbourn/connectai-gateway/internal/repo"
)

// WindowRepo defines the repository contract required by StoreLimiter.
type WindowRepo interface {
	CheckAndIncrementWindow(ctx context.Context, db *gorm.DB, userID string, purpose domain.RateLimitPurpose, limit int, window time.Duration, now time.Time) (repo.WindowResult, error)
}

// StoreLimiter keeps windows in the relational store.
type StoreLimiter struct {
	DB   *gorm.DB
	Repo WindowRepo
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// NewStoreLimiter constructs a StoreLimiter.
func NewStoreLimiter(db *gorm.DB, r WindowRepo) *StoreLimiter {
	return &StoreLimiter{DB: db, Repo: r, Now: time.Now}
}

// Allow counts one request. Store errors are logged and returned alongside an
// allowing decision; callers should act on the decision, not the error.
func (l *StoreLimiter) Allow(ctx context.Context, userID string, q Quota) (Decision, error) {
	now := l.Now().UTC()
	res, err := l.Repo.CheckAndIncrementWindow(ctx, l.DB, userID, q.Purpose, q.Limit, q.Window, now)
	if err != nil {
		ev := log.Warn().Err(err).Str("user_id", userID).Str("purpose", string(q.Purpose))
		switch {
		case errors.Is(err, repo.ErrWindowRead):
			ev.Msg("rate window read failed; allowing request")
		default:
			ev.Msg("rate window write failed; keeping allow decision")
		}
		return Decision{Allowed: true, Count: res.Count}, err
	}

	d := Decision{Allowed: res.Allowed, Count: res.Count}
	if !res.Allowed {
		d.RetryAfter = retryAfter(res.WindowStart, q.Window, now)
		observability.QuotaRejections.WithLabelValues(string(q.Purpose)).Inc()
	}
	return d, nil
}
