// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the read-only subscription lookup used
// by the access guard.
//
// Error semantics:
//   - When no active subscription exists, ErrNotFound is returned.
//   - On DB errors the raw gorm error is propagated.
package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tbourn/connectai-gateway/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// GetActiveSubscription returns the user's subscription with status "active",
// or ErrNotFound. Zero or one row is expected; if several exist the most
// recently started one wins. Expiry is not evaluated here, callers apply
// domain.Subscription.IsEntitled.
func GetActiveSubscription(ctx context.Context, db *gorm.DB, userID string) (*domain.Subscription, error) {
	var s domain.Subscription
	err := db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, domain.StatusActive).
		Order("started_at desc").
		Take(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
