// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, edge throttling and the access guard.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	_ "github.com/tbourn/connectai-gateway/docs"
	"github.com/tbourn/connectai-gateway/internal/auth"
	"github.com/tbourn/connectai-gateway/internal/config"
	"github.com/tbourn/connectai-gateway/internal/domain"
	"github.com/tbourn/connectai-gateway/internal/http/handlers"
	"github.com/tbourn/connectai-gateway/internal/http/middleware"
	"github.com/tbourn/connectai-gateway/internal/ratelimit"
	"github.com/tbourn/connectai-gateway/internal/repo"
	"github.com/tbourn/connectai-gateway/internal/services"
	"github.com/tbourn/connectai-gateway/internal/upstream"
	"github.com/tbourn/connectai-gateway/internal/voice"
)

// maxBodyBytes caps every request body.
const maxBodyBytes = 1 << 20

// subscriptionRepoShim adapts repo.GetActiveSubscription to auth.SubscriptionRepo.
type subscriptionRepoShim struct{}

func (subscriptionRepoShim) GetActiveSubscription(ctx context.Context, db *gorm.DB, userID string) (*domain.Subscription, error) {
	return repo.GetActiveSubscription(ctx, db, userID)
}

// windowRepoShim adapts repo.CheckAndIncrementWindow to ratelimit.WindowRepo.
type windowRepoShim struct{}

func (windowRepoShim) CheckAndIncrementWindow(ctx context.Context, db *gorm.DB, userID string, purpose domain.RateLimitPurpose, limit int, window time.Duration, now time.Time) (repo.WindowResult, error) {
	return repo.CheckAndIncrementWindow(ctx, db, userID, purpose, limit, window, now)
}

// idempotencyStoreShim adapts the repo idempotency helpers to
// middleware.IdempotencyStore.
type idempotencyStoreShim struct {
	db  *gorm.DB
	ttl time.Duration
}

func (s idempotencyStoreShim) Lookup(ctx context.Context, userID, route, key string, now time.Time) (*domain.IdempotentResult, error) {
	rec, err := repo.GetIdempotentResult(ctx, s.db, userID, route, key, now)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	return rec, err
}

func (s idempotencyStoreShim) Save(ctx context.Context, rec *domain.IdempotentResult, now time.Time) error {
	return repo.SaveIdempotentResult(ctx, s.db, rec, s.ttl, now)
}

// Deps are the process-level collaborators the routes are built from.
type Deps struct {
	// DB backs subscriptions and, without Redis, the quota windows.
	DB *gorm.DB
	// Resolver maps bearer tokens to user ids.
	Resolver auth.IdentityResolver
	// Redis, when set, holds the quota windows instead of DB.
	Redis redis.Scripter
	// Upstream is the chat-completion gateway client.
	Upstream *upstream.Client
	// Usage receives one entry per finished chat stream.
	Usage services.UsageRecorder
}

// NewLimiter selects the quota store.
func NewLimiter(d Deps) ratelimit.Limiter {
	if d.Redis != nil {
		return ratelimit.NewRedisLimiter(d.Redis, "ratelimit:")
	}
	return ratelimit.NewStoreLimiter(d.DB, windowRepoShim{})
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the public API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with credential scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. CORS (preflights end here)
//  8. Edge rate limiter (per IP)
//  9. Security headers
//
// The access guard and plan checks are per route. Idempotency sits inside
// gzip on the recommendation route so it stores and replays plain JSON.
func RegisterRoutes(r *gin.Engine, d Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxBodyBytes))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	corsCfg := cors.Config{
		AllowMethods:     []string{http.MethodPost, http.MethodGet, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "X-Client-Info", "Apikey", "Content-Type", "Upgrade", middleware.HeaderIdempotencyKey},
		ExposeHeaders:    []string{"X-Request-ID", "Retry-After", middleware.HeaderIdempotentReplay},
		AllowCredentials: false,
		AllowWebSockets:  true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// ACAO: * on every response, with or without an Origin header.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.CORS.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))
	r.Use(preflight())

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByClientIP())
	r.Use(rl.Handler())

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		EnablePolicy: true,
		Expose:       []string{"X-Request-ID", "Retry-After", middleware.HeaderIdempotentReplay},
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, "", handlers.MsgNotFound)
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, "", handlers.MsgMethodNotAllowed)
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: guard/services ← repo/db/upstream
	guard := auth.NewGuard(d.DB, subscriptionRepoShim{}, d.Resolver)
	limiter := NewLimiter(d)
	quotas := ratelimit.QuotasFromConfig(cfg.Quota)

	chatSvc := services.NewChatService(d.Upstream, limiter, quotas, d.Usage, cfg.Upstream.Timeout)
	goalSvc := services.NewRecommendationService(d.Upstream, limiter, quotas,
		cfg.Upstream.RecommendationModel, cfg.Upstream.RecommendationTemp, cfg.Upstream.Timeout)
	h := handlers.New(chatSvc, goalSvc, voice.Config{
		APIKey:       cfg.Voice.OpenAIKey,
		URL:          cfg.Voice.RealtimeURL,
		Model:        cfg.Voice.Model,
		IdleTimeout:  cfg.Voice.IdleTimeout,
		WriteTimeout: 10 * time.Second,
	})

	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(middleware.AccessGuard(guard))
	{
		api.POST("/chat", h.Chat)
		api.POST("/generate-goal-recommendations",
			middleware.RequirePlan(domain.PlanPremium),
			gzip.Gzip(gzip.DefaultCompression),
			middleware.Idempotency(middleware.IdempotencyOptions{}, idempotencyStoreShim{db: d.DB, ttl: cfg.IdempotencyTTL}),
			h.GenerateGoalRecommendations)
		api.GET("/realtime-voice", h.RealtimeVoice)
	}
}

// preflight answers OPTIONS requests that cors.New let through, which are
// the ones without an Origin header.
func preflight() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
