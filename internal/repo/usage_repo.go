// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the append-only AI usage log.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/connectai-gateway/internal/domain"
)

// InsertUsageLog appends one usage entry. A missing ID or CreatedAt is filled
// in (UUID, UTC now).
func InsertUsageLog(ctx context.Context, db *gorm.DB, entry *domain.UsageLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(entry).Error
}
