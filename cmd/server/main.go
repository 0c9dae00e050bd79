// Command server runs the ConnectAI gateway: the access-guarded chat relay,
// goal recommendations and realtime voice endpoints.
//
// @title                      ConnectAI Gateway API
// @version                    1.0
// @description                Subscription-gated health assistant gateway: streaming chat, goal recommendations and realtime voice.
// @BasePath                   /
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
// @description                Type "Bearer" followed by a space and the access token.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gin-gonic/gin"
	_ "github.com/joho/godotenv/autoload"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/connectai-gateway/internal/auth"
	"github.com/tbourn/connectai-gateway/internal/config"
	"github.com/tbourn/connectai-gateway/internal/domain"
	httpapi "github.com/tbourn/connectai-gateway/internal/http"
	"github.com/tbourn/connectai-gateway/internal/observability"
	"github.com/tbourn/connectai-gateway/internal/ratelimit"
	"github.com/tbourn/connectai-gateway/internal/repo"
	"github.com/tbourn/connectai-gateway/internal/sysutil"
	"github.com/tbourn/connectai-gateway/internal/upstream"
	"github.com/tbourn/connectai-gateway/internal/usage"
)

// shutdownGrace bounds draining in-flight requests and usage writes.
const shutdownGrace = 15 * time.Second

// usageRepoShim adapts repo.InsertUsageLog to usage.UsageRepo.
type usageRepoShim struct{}

func (usageRepoShim) InsertUsageLog(ctx context.Context, db *gorm.DB, entry *domain.UsageLog) error {
	return repo.InsertUsageLog(ctx, db, entry)
}

func main() {
	cfg := config.MustLoad()
	logCloser := sysutil.SetupLogger(cfg)
	defer logCloser.Close()

	version := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), "dev")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.Open(cfg.DBDriver, cfg.DBPath, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("database open failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("database migration failed")
	}

	// Usage entries travel over an in-process topic to the store writer.
	pubsub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, usage.NewLogger())
	sink := usage.NewSink(db, usageRepoShim{}, pubsub)
	if err := sink.Start(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("usage sink start failed")
	}

	resolver, err := newResolver(ctx, cfg.Auth)
	if err != nil {
		log.Fatal().Err(err).Msg("identity resolver setup failed")
	}

	deps := httpapi.Deps{
		DB:       db,
		Resolver: resolver,
		Usage:    usage.NewRecorder(pubsub),
	}
	if cfg.Quota.Backend == "redis" {
		rc, err := ratelimit.NewRedisClient(cfg.Quota.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("redis setup failed")
		}
		defer rc.Close()
		deps.Redis = rc
	}

	up := upstream.New(cfg.Upstream.GatewayURL, cfg.Upstream.GatewayKey, nil)
	up.MaxRetryElapsed = cfg.Upstream.MaxRetryElapsed
	deps.Upstream = up
	if !up.Configured() {
		log.Warn().Msg("LOVABLE_API_KEY not set; chat and recommendations will fail")
	}
	if cfg.Voice.OpenAIKey == "" {
		log.Warn().Msg("OPENAI_API_KEY not set; voice sessions will close on connect")
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, deps, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Str("quota_backend", cfg.Quota.Backend).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	// Closing the topic lets the sink drain and exit.
	if err := pubsub.Close(); err != nil {
		log.Error().Err(err).Msg("usage topic close")
	}
	select {
	case <-sink.Done():
	case <-shutdownCtx.Done():
		log.Warn().Msg("usage sink did not drain in time")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("server stopped")
}

// newResolver verifies tokens locally when a JWT secret or JWKS URL is
// configured and otherwise asks the identity provider.
func newResolver(ctx context.Context, c config.AuthConfig) (auth.IdentityResolver, error) {
	if c.JWTSecret != "" || c.JWKSURL != "" {
		r, err := auth.NewJWTResolver(ctx, auth.JWTOptions{
			Secret:   c.JWTSecret,
			JWKSURL:  c.JWKSURL,
			Issuer:   c.Issuer,
			Audience: c.Audience,
		})
		if err != nil {
			return nil, err
		}
		return r, nil
	}
	return auth.NewRemoteResolver(c.SupabaseURL, c.SupabaseAnonKey, c.CacheTTL, nil), nil
}
