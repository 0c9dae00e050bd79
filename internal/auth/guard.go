package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/connectai-gateway/internal/domain"
)

// SubscriptionRepo defines the repository contract required by Guard.
// GetActiveSubscription returns gorm.ErrRecordNotFound when the user has no
// active row.
type SubscriptionRepo interface {
	GetActiveSubscription(ctx context.Context, db *gorm.DB, userID string) (*domain.Subscription, error)
}

// Guard authenticates callers and checks their entitlement. It is read-only.
type Guard struct {
	// DB is the GORM handle used for subscription lookups.
	DB *gorm.DB
	// Subs loads the active subscription row.
	Subs SubscriptionRepo
	// Resolver maps a bearer token to a user id.
	Resolver IdentityResolver
}

// NewGuard constructs a Guard.
func NewGuard(db *gorm.DB, subs SubscriptionRepo, resolver IdentityResolver) *Guard {
	return &Guard{DB: db, Subs: subs, Resolver: resolver}
}

// Authenticate resolves an Authorization header value to a user id.
func (g *Guard) Authenticate(ctx context.Context, authorization string) (string, error) {
	token, ok := ExtractBearer(authorization)
	if !ok {
		return "", ErrUnauthorized
	}
	return g.AuthenticateToken(ctx, token)
}

// AuthenticateToken resolves a raw token to a user id.
func (g *Guard) AuthenticateToken(ctx context.Context, token string) (string, error) {
	tr := otel.Tracer("auth/Guard")
	ctx, span := tr.Start(ctx, "Authenticate")
	defer span.End()

	if token == "" {
		return "", ErrUnauthorized
	}
	userID, err := g.Resolver.Resolve(ctx, token)
	if err != nil {
		span.SetStatus(codes.Error, "unauthorized")
		if !errors.Is(err, ErrUnauthorized) {
			err = fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		return "", err
	}
	span.SetAttributes(attribute.String("user.id", userID))
	return userID, nil
}

// Entitle returns the user's active, unexpired subscription at now, or
// ErrForbidden. Store failures are returned wrapped and are not ErrForbidden.
func (g *Guard) Entitle(ctx context.Context, userID string, now time.Time) (*domain.Subscription, error) {
	tr := otel.Tracer("auth/Guard")
	ctx, span := tr.Start(ctx, "Entitle", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	sub, err := g.Subs.GetActiveSubscription(ctx, g.DB, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrForbidden
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "subscription lookup failed")
		return nil, fmt.Errorf("auth: load subscription: %w", err)
	}
	if !sub.IsEntitled(now) {
		return nil, ErrForbidden
	}
	span.SetAttributes(attribute.String("subscription.plan", string(sub.PlanType)))
	return sub, nil
}

// RequirePlan checks that an entitled subscription is on the given plan.
// It is a separate check from Entitle: an expired premium row never reaches it.
func RequirePlan(sub *domain.Subscription, plan domain.PlanType) error {
	if sub == nil {
		return ErrForbidden
	}
	if sub.PlanType != plan {
		return ErrPlanRequired
	}
	return nil
}
