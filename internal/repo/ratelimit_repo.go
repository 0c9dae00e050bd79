// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the fixed-window counter used by the
// quota limiter.
//
// CheckAndIncrementWindow runs read and conditional write in one transaction.
// The row is locked with SELECT ... FOR UPDATE where the dialect supports it
// (PostgreSQL); SQLite ignores the locking clause and serialises writers
// instead. Increments are conditional on request_count < limit, so two
// concurrent callers can never push a window past its limit.
package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/connectai-gateway/internal/domain"
)

var (
	// ErrWindowRead wraps failures loading the current window.
	ErrWindowRead = errors.New("rate window read failed")
	// ErrWindowWrite wraps failures persisting an allowed request.
	ErrWindowWrite = errors.New("rate window write failed")

	errWindowConflict = errors.New("rate window changed concurrently")
)

const windowAttempts = 3

// WindowResult is the outcome of one check-and-increment.
type WindowResult struct {
	Allowed     bool
	Count       int       // request_count after the call
	WindowStart time.Time // start of the window the request was counted in
}

// CheckAndIncrementWindow counts one request for (userID, purpose) against a
// fixed window of the given length.
//
//   - no row: insert {count: 1, window_start: now}, allow
//   - stale row (now - window_start >= window): reset to count 1, allow
//   - count < limit: increment, allow
//   - count >= limit: reject without incrementing
//
// When a write fails after the decision to allow, the returned result still
// has Allowed=true alongside an error wrapping ErrWindowWrite. Read failures
// wrap ErrWindowRead and carry a zero result.
func CheckAndIncrementWindow(ctx context.Context, db *gorm.DB, userID string, purpose domain.RateLimitPurpose, limit int, window time.Duration, now time.Time) (WindowResult, error) {
	var (
		res WindowResult
		err error
	)
	for attempt := 0; attempt < windowAttempts; attempt++ {
		res, err = checkAndIncrementOnce(ctx, db, userID, purpose, limit, window, now)
		if !errors.Is(err, errWindowConflict) {
			return res, err
		}
	}
	return WindowResult{Allowed: true, Count: res.Count, WindowStart: now}, fmt.Errorf("%w: %v", ErrWindowWrite, err)
}

func checkAndIncrementOnce(ctx context.Context, db *gorm.DB, userID string, purpose domain.RateLimitPurpose, limit int, window time.Duration, now time.Time) (WindowResult, error) {
	var res WindowResult
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var w domain.RateLimitWindow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND purpose = ?", userID, purpose).
			Take(&w).Error

		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			res = WindowResult{Allowed: true, Count: 1, WindowStart: now}
			w = domain.RateLimitWindow{
				ID:           uuid.NewString(),
				UserID:       userID,
				Purpose:      purpose,
				WindowStart:  now,
				RequestCount: 1,
				UpdatedAt:    now,
			}
			if err := tx.Create(&w).Error; err != nil {
				if isUniqueViolation(err) {
					return errWindowConflict
				}
				return fmt.Errorf("%w: %v", ErrWindowWrite, err)
			}
			return nil

		case err != nil:
			return fmt.Errorf("%w: %v", ErrWindowRead, err)
		}

		if now.Sub(w.WindowStart) >= window {
			res = WindowResult{Allowed: true, Count: 1, WindowStart: now}
			r := tx.Model(&domain.RateLimitWindow{}).
				Where("id = ? AND request_count = ?", w.ID, w.RequestCount).
				Updates(map[string]any{"window_start": now, "request_count": 1, "updated_at": now})
			if r.Error != nil {
				return fmt.Errorf("%w: %v", ErrWindowWrite, r.Error)
			}
			if r.RowsAffected == 0 {
				return errWindowConflict
			}
			return nil
		}

		if w.RequestCount >= limit {
			res = WindowResult{Allowed: false, Count: w.RequestCount, WindowStart: w.WindowStart}
			return nil
		}

		res = WindowResult{Allowed: true, Count: w.RequestCount + 1, WindowStart: w.WindowStart}
		r := tx.Model(&domain.RateLimitWindow{}).
			Where("id = ? AND request_count < ?", w.ID, limit).
			Updates(map[string]any{"request_count": gorm.Expr("request_count + 1"), "updated_at": now})
		if r.Error != nil {
			return fmt.Errorf("%w: %v", ErrWindowWrite, r.Error)
		}
		if r.RowsAffected == 0 {
			return errWindowConflict
		}
		return nil
	})
	if err != nil && errors.Is(err, ErrWindowRead) {
		return WindowResult{}, err
	}
	return res, err
}

// isUniqueViolation matches duplicate-key errors across drivers.
// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key value")
}
