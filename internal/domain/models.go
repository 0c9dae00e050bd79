// Package domain defines the records the gateway reads and writes:
// subscriptions, rate-limit windows, and AI usage logs. These types are
// mapped with GORM. It also holds the request-side shapes that never touch
// the database (conversations, questionnaire answers, goal recommendations).
package domain

import (
	"time"
)

// PlanType is the subscription tier of a user.
type PlanType string

const (
	PlanFree    PlanType = "free"
	PlanVIP     PlanType = "vip"
	PlanPremium PlanType = "premium"
)

// Valid reports whether p is a known plan.
func (p PlanType) Valid() bool {
	switch p {
	case PlanFree, PlanVIP, PlanPremium:
		return true
	}
	return false
}

// SubscriptionStatus is the lifecycle state of a subscription row.
type SubscriptionStatus string

const (
	StatusActive    SubscriptionStatus = "active"
	StatusCancelled SubscriptionStatus = "cancelled"
	StatusExpired   SubscriptionStatus = "expired"
)

// Subscription is a user's entitlement record. Rows are owned by the billing
// side of the platform; the gateway only reads them.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - UserID: identity-provider user id (indexed).
//   - PlanType: free, vip or premium.
//   - Status: active, cancelled or expired.
//   - StartedAt: when the plan began; newest wins on lookups.
//   - ExpiresAt: optional end of validity. An active row past this instant
//     is treated as absent.
type Subscription struct {
	ID        string             `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string             `json:"user_id"    gorm:"type:varchar(64);not null;index:idx_user_subs,priority:1"`
	PlanType  PlanType           `json:"plan_type"  gorm:"type:varchar(16);not null;check:plan_type IN ('free','vip','premium')"`
	Status    SubscriptionStatus `json:"status"     gorm:"type:varchar(16);not null;index:idx_user_subs,priority:2"`
	StartedAt time.Time          `json:"started_at" gorm:"not null"`
	ExpiresAt *time.Time         `json:"expires_at,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// TableName returns the database table name for Subscription.
func (Subscription) TableName() string { return "user_subscriptions" }

// IsEntitled reports whether the subscription authorizes use at now.
// Expiry is evaluated lazily here, not by a background job.
func (s *Subscription) IsEntitled(now time.Time) bool {
	if s == nil || s.Status != StatusActive {
		return false
	}
	return s.ExpiresAt == nil || s.ExpiresAt.After(now)
}

// RateLimitPurpose separates independent quota counters.
type RateLimitPurpose string

const (
	PurposeChat           RateLimitPurpose = "chat_message"
	PurposeRecommendation RateLimitPurpose = "recommendation_generation"
)

// RateLimitWindow is the fixed-window counter for one (user, purpose) pair.
// There is at most one row per pair; a stale window is reset in place.
type RateLimitWindow struct {
	ID           string           `json:"id"            gorm:"type:char(36);primaryKey"`
	UserID       string           `json:"user_id"       gorm:"type:varchar(64);not null;uniqueIndex:ux_ratelimit_user_purpose,priority:1"`
	Purpose      RateLimitPurpose `json:"purpose"       gorm:"type:varchar(32);not null;uniqueIndex:ux_ratelimit_user_purpose,priority:2"`
	WindowStart  time.Time        `json:"window_start"  gorm:"not null"`
	RequestCount int              `json:"request_count" gorm:"not null;default:0"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// TableName returns the database table name for RateLimitWindow.
func (RateLimitWindow) TableName() string { return "rate_limit_windows" }

// TaskType is the router's classification of a chat request.
type TaskType string

const (
	TaskQuickResponse    TaskType = "quick_response"
	TaskCreativeLongForm TaskType = "creative_long_form"
)

// UsageLog is an append-only audit row written after every chat relay.
type UsageLog struct {
	ID             string    `json:"id"               gorm:"type:char(36);primaryKey"`
	UserID         string    `json:"user_id"          gorm:"type:varchar(64);not null;index"`
	ModelUsed      string    `json:"model_used"       gorm:"type:varchar(64);not null"`
	ResponseTimeMS int64     `json:"response_time_ms" gorm:"not null"`
	TaskType       TaskType  `json:"task_type"        gorm:"type:varchar(32);not null"`
	Success        bool      `json:"success"          gorm:"not null"`
	ErrorMessage   *string   `json:"error_message,omitempty" gorm:"type:text"`
	CreatedAt      time.Time `json:"created_at"       gorm:"index"`
}

// TableName returns the database table name for UsageLog.
func (UsageLog) TableName() string { return "ai_usage_logs" }
