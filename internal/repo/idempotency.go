// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file stores replayable responses for requests that
// carry an Idempotency-Key.
package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/connectai-gateway/internal/domain"
)

// ErrDuplicate indicates a live result already exists for the given
// (user_id, route, key).
var ErrDuplicate = errors.New("duplicate")

// GetIdempotentResult returns the unexpired result for (userID, route, key)
// or ErrNotFound.
func GetIdempotentResult(ctx context.Context, db *gorm.DB, userID, route, key string, now time.Time) (*domain.IdempotentResult, error) {
	var rec domain.IdempotentResult
	err := db.WithContext(ctx).
		Where("user_id = ? AND route = ? AND key = ? AND expires_at > ?", userID, route, key, now).
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// SaveIdempotentResult stores rec for ttl. An expired row with the same key
// is replaced; a live one yields ErrDuplicate.
func SaveIdempotentResult(ctx context.Context, db *gorm.DB, rec *domain.IdempotentResult, ttl time.Duration, now time.Time) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.CreatedAt = now
	rec.ExpiresAt = now.Add(ttl)

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("user_id = ? AND route = ? AND key = ? AND expires_at <= ?", rec.UserID, rec.Route, rec.Key, now).
			Delete(&domain.IdempotentResult{}).Error
		if err != nil {
			return fmt.Errorf("purge expired result: %w", err)
		}
		if err := tx.Create(rec).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return err
		}
		return nil
	})
}
