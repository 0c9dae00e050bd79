package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/connectai-gateway/internal/auth"
	"github.com/tbourn/connectai-gateway/internal/domain"
)

// Gin context keys set by AccessGuard.
const (
	CtxUserID       = "userID"
	CtxSubscription = "subscription"
)

// Access messages.
const (
	MsgUnauthorized      = "Não autorizado"
	MsgForbidden         = "Assinatura inválida ou expirada"
	MsgUpgradeRequired   = "Assinatura Premium necessária"
	MsgSubscriptionCheck = "Erro ao verificar assinatura"

	codeUpgradeRequired = "UPGRADE_REQUIRED"
)

// Authenticator is the part of auth.Guard the middleware needs.
type Authenticator interface {
	AuthenticateToken(ctx context.Context, token string) (string, error)
	Entitle(ctx context.Context, userID string, now time.Time) (*domain.Subscription, error)
}

// AccessGuard authenticates the caller and loads their entitlement before
// any quota or model work. The credential comes from the Authorization
// header, or from the access_token query parameter when the header is
// absent, since browsers cannot set headers on WebSocket upgrades.
func AccessGuard(g Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		lg := LoggerFrom(c)

		token, ok := credential(c)
		if !ok {
			deny(c, http.StatusUnauthorized, MsgUnauthorized, "")
			return
		}
		userID, err := g.AuthenticateToken(ctx, token)
		if err != nil {
			lg.Info().Err(err).Msg("authentication failed")
			deny(c, http.StatusUnauthorized, MsgUnauthorized, "")
			return
		}

		sub, err := g.Entitle(ctx, userID, time.Now())
		switch {
		case errors.Is(err, auth.ErrForbidden):
			lg.Info().Str("user_id", userID).Msg("no active subscription")
			deny(c, http.StatusForbidden, MsgForbidden, "")
			return
		case err != nil:
			lg.Error().Err(err).Str("user_id", userID).Msg("subscription lookup failed")
			deny(c, http.StatusInternalServerError, MsgSubscriptionCheck, "")
			return
		}

		c.Set(CtxUserID, userID)
		c.Set(CtxSubscription, sub)
		c.Next()
	}
}

// RequirePlan rejects entitled callers whose subscription is on another
// plan. It must run after AccessGuard.
func RequirePlan(plan domain.PlanType) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch err := auth.RequirePlan(SubscriptionFrom(c), plan); {
		case errors.Is(err, auth.ErrPlanRequired):
			deny(c, http.StatusForbidden, MsgUpgradeRequired, codeUpgradeRequired)
			return
		case err != nil:
			deny(c, http.StatusForbidden, MsgForbidden, "")
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated user id, or "".
func UserID(c *gin.Context) string {
	v, _ := c.Get(CtxUserID)
	return asString(v)
}

// SubscriptionFrom returns the entitled subscription, or nil.
func SubscriptionFrom(c *gin.Context) *domain.Subscription {
	if v, ok := c.Get(CtxSubscription); ok {
		if s, ok := v.(*domain.Subscription); ok {
			return s
		}
	}
	return nil
}

func credential(c *gin.Context) (string, bool) {
	if h := c.GetHeader("Authorization"); h != "" {
		return auth.ExtractBearer(h)
	}
	if t := c.Query("access_token"); t != "" {
		return t, true
	}
	return "", false
}

func deny(c *gin.Context, status int, msg, code string) {
	body := gin.H{"error": msg}
	if rid := c.Writer.Header().Get(requestIDHeader); rid != "" {
		body["request_id"] = rid
	}
	if code != "" {
		body["code"] = code
	}
	c.AbortWithStatusJSON(status, body)
}
