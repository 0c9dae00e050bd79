package domain

import "time"

// IdempotentResult is a stored successful response, keyed by
// (user_id, route, key). A retry carrying the same Idempotency-Key gets the
// stored body back instead of running the operation again. RequestHash is
// the SHA-256 of the original request body, so a key cannot be reused for a
// different request.
type IdempotentResult struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	UserID      string    `json:"user_id"      gorm:"type:varchar(64);not null;uniqueIndex:ux_idem_user_route_key,priority:1"`
	Route       string    `json:"route"        gorm:"type:varchar(128);not null;uniqueIndex:ux_idem_user_route_key,priority:2"`
	Key         string    `json:"key"          gorm:"type:varchar(200);not null;uniqueIndex:ux_idem_user_route_key,priority:3"`
	RequestHash string    `json:"request_hash" gorm:"type:char(64);not null"`
	Status      int       `json:"status"       gorm:"not null"`
	Body        []byte    `json:"-"            gorm:"not null"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"   gorm:"not null;index"`
}

// TableName returns the database table name for IdempotentResult.
func (IdempotentResult) TableName() string { return "idempotent_results" }
