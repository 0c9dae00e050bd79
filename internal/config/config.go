// Package config loads the gateway settings from the environment.
//
// Every field names its variable in an `env` tag; validation rules live next
// to it in `validate` tags checked by go-playground/validator, so an invalid
// deployment fails at startup with every problem listed at once.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// CORSConfig lists the origins allowed to call the API; empty allows any.
type CORSConfig struct {
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS"`
}

// SecurityConfig controls HSTS.
type SecurityConfig struct {
	EnableHSTS bool          `env:"ENABLE_HSTS"`
	HSTSMaxAge time.Duration `env:"HSTS_MAX_AGE" validate:"gte=0"`
}

// OTELConfig defines OpenTelemetry tracing settings.
type OTELConfig struct {
	Enabled     bool    `env:"OTEL_ENABLED"`
	Endpoint    string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" validate:"required_if=Enabled true"`
	Insecure    bool    `env:"OTEL_EXPORTER_OTLP_INSECURE"`
	ServiceName string  `env:"OTEL_SERVICE_NAME" validate:"required"`
	SampleRatio float64 `env:"OTEL_TRACES_SAMPLER_ARG" validate:"gte=0,lte=1"`
}

// LogFileConfig enables rotating file output next to stdout. An empty Path
// disables it.
type LogFileConfig struct {
	Path       string `env:"LOG_FILE"`
	MaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" validate:"gte=1"`
	MaxBackups int    `env:"LOG_MAX_BACKUPS" validate:"gte=0"`
	MaxAgeDays int    `env:"LOG_MAX_AGE_DAYS" validate:"gte=0"`
}

// AuthConfig selects how bearer credentials become a user id. A JWT secret
// or JWKS URL verifies tokens locally; otherwise the identity provider at
// SupabaseURL is asked.
type AuthConfig struct {
	JWTSecret       string        `env:"AUTH_JWT_SECRET" validate:"required_without_all=JWKSURL SupabaseURL"`
	JWKSURL         string        `env:"AUTH_JWKS_URL" validate:"omitempty,url"`
	Issuer          string        `env:"AUTH_JWT_ISSUER"`
	Audience        string        `env:"AUTH_JWT_AUDIENCE"`
	SupabaseURL     string        `env:"SUPABASE_URL" validate:"omitempty,url"`
	SupabaseAnonKey string        `env:"SUPABASE_ANON_KEY"`
	CacheTTL        time.Duration `env:"AUTH_CACHE_TTL" validate:"gte=0"`
}

// UpstreamConfig holds the chat-completion gateway settings.
type UpstreamConfig struct {
	GatewayURL          string        `env:"AI_GATEWAY_URL" validate:"required,url"`
	GatewayKey          string        `env:"LOVABLE_API_KEY"`
	Timeout             time.Duration `env:"UPSTREAM_TIMEOUT" validate:"gt=0"`
	RecommendationModel string        `env:"RECOMMENDATION_MODEL" validate:"required"`
	RecommendationTemp  float64       `env:"RECOMMENDATION_TEMPERATURE" validate:"gte=0,lte=2"`
	MaxRetryElapsed     time.Duration `env:"UPSTREAM_MAX_RETRY_ELAPSED" validate:"gte=0"`
}

// VoiceConfig holds the realtime voice provider settings.
type VoiceConfig struct {
	OpenAIKey   string        `env:"OPENAI_API_KEY"`
	RealtimeURL string        `env:"REALTIME_URL" validate:"required,url"`
	Model       string        `env:"REALTIME_MODEL" validate:"required"`
	IdleTimeout time.Duration `env:"VOICE_IDLE_TIMEOUT" validate:"gt=0"`
}

// QuotaConfig defines the fixed-window quotas per purpose and where their
// counters live.
type QuotaConfig struct {
	Backend  string `env:"RATE_LIMIT_BACKEND" validate:"oneof=db redis"`
	RedisURL string `env:"REDIS_URL" validate:"required_if=Backend redis"`

	ChatWindow       time.Duration `env:"CHAT_WINDOW" validate:"gt=0"`
	ChatLimitFree    int           `env:"CHAT_LIMIT_FREE" validate:"gte=1"`
	ChatLimitVIP     int           `env:"CHAT_LIMIT_VIP" validate:"gte=1"`
	ChatLimitPremium int           `env:"CHAT_LIMIT_PREMIUM" validate:"gte=1"`

	RecommendationWindow time.Duration `env:"RECOMMENDATION_WINDOW" validate:"gt=0"`
	RecommendationLimit  int           `env:"RECOMMENDATION_LIMIT" validate:"gte=1"`
}

// Config holds all configuration values for the application.
type Config struct {
	Port              string        `env:"PORT" validate:"required,numeric"`
	ReadTimeout       time.Duration `env:"READ_TIMEOUT" validate:"gt=0"`
	ReadHeaderTimeout time.Duration `env:"READ_HEADER_TIMEOUT" validate:"gt=0"`
	// WriteTimeout must outlive UPSTREAM_TIMEOUT or streams get cut.
	WriteTimeout   time.Duration `env:"WRITE_TIMEOUT" validate:"gt=0"`
	IdleTimeout    time.Duration `env:"IDLE_TIMEOUT" validate:"gt=0"`
	MaxHeaderBytes int           `env:"MAX_HEADER_BYTES" validate:"gt=0"`
	GinMode        string        `env:"GIN_MODE" validate:"oneof=debug release test"`

	LogLevel       string `env:"LOG_LEVEL" validate:"oneof=debug info warn error fatal panic"`
	LogPretty      bool   `env:"LOG_PRETTY"`
	LogFile        LogFileConfig
	SwaggerEnabled bool   `env:"SWAGGER_ENABLED"`
	APIBasePath    string `env:"API_BASE_PATH" validate:"startswith=/"`

	DBDriver    string `env:"DB_DRIVER" validate:"oneof=sqlite postgres"`
	DBPath      string `env:"DB_PATH" validate:"required_if=DBDriver sqlite"`
	DatabaseURL string `env:"DATABASE_URL" validate:"required_if=DBDriver postgres"`

	// Edge token bucket per client IP.
	RateRPS   float64 `env:"RATE_RPS" validate:"gte=0"`
	RateBurst int     `env:"RATE_BURST" validate:"gte=1"`

	// Lifetime of stored responses replayed for a repeated Idempotency-Key.
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" validate:"gt=0"`

	Auth     AuthConfig
	Upstream UpstreamConfig
	Voice    VoiceConfig
	Quota    QuotaConfig
	CORS     CORSConfig
	Security SecurityConfig
	OTEL     OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads the environment, applies defaults, normalizes spellings and
// validates the result. The returned error lists every violation.
func Load() (Config, error) {
	cfg := Config{
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 120*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           getlower("GIN_MODE", "release"),

		LogLevel:       getlower("LOG_LEVEL", "info"),
		LogPretty:      getbool("LOG_PRETTY", false),
		LogFile:        loadLogFile(),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/")),

		DBDriver:    getlower("DB_DRIVER", "sqlite"),
		DBPath:      getenv("DB_PATH", "app.db"),
		DatabaseURL: getenv("DATABASE_URL", ""),

		RateRPS:   getfloat("RATE_RPS", 5),
		RateBurst: getint("RATE_BURST", 10),

		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		Auth:     loadAuth(),
		Upstream: loadUpstream(),
		Voice:    loadVoice(),
		Quota:    loadQuota(),
		CORS:     CORSConfig{AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", ""))},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},
		OTEL: loadOTEL(),
	}
	normalize(&cfg)
	return cfg, Validate(cfg)
}

func loadLogFile() LogFileConfig {
	return LogFileConfig{
		Path:       getenv("LOG_FILE", ""),
		MaxSizeMB:  getint("LOG_MAX_SIZE_MB", 10),
		MaxBackups: getint("LOG_MAX_BACKUPS", 5),
		MaxAgeDays: getint("LOG_MAX_AGE_DAYS", 30),
	}
}

func loadAuth() AuthConfig {
	return AuthConfig{
		JWTSecret:       getenv("AUTH_JWT_SECRET", ""),
		JWKSURL:         getenv("AUTH_JWKS_URL", ""),
		Issuer:          getenv("AUTH_JWT_ISSUER", ""),
		Audience:        getenv("AUTH_JWT_AUDIENCE", ""),
		SupabaseURL:     strings.TrimRight(getenv("SUPABASE_URL", ""), "/"),
		SupabaseAnonKey: getenv("SUPABASE_ANON_KEY", ""),
		CacheTTL:        getdur("AUTH_CACHE_TTL", 30*time.Second),
	}
}

func loadUpstream() UpstreamConfig {
	return UpstreamConfig{
		GatewayURL:          getenv("AI_GATEWAY_URL", "https://ai.gateway.lovable.dev/v1/chat/completions"),
		GatewayKey:          getenv("LOVABLE_API_KEY", ""),
		Timeout:             getdur("UPSTREAM_TIMEOUT", 90*time.Second),
		RecommendationModel: getenv("RECOMMENDATION_MODEL", "google/gemini-2.5-flash"),
		RecommendationTemp:  getfloat("RECOMMENDATION_TEMPERATURE", 0.7),
		MaxRetryElapsed:     getdur("UPSTREAM_MAX_RETRY_ELAPSED", 20*time.Second),
	}
}

func loadVoice() VoiceConfig {
	return VoiceConfig{
		OpenAIKey:   getenv("OPENAI_API_KEY", ""),
		RealtimeURL: getenv("REALTIME_URL", "wss://api.openai.com/v1/realtime"),
		Model:       getenv("REALTIME_MODEL", "gpt-4o-realtime-preview-2024-12-17"),
		IdleTimeout: getdur("VOICE_IDLE_TIMEOUT", 10*time.Minute),
	}
}

func loadQuota() QuotaConfig {
	return QuotaConfig{
		Backend:  getlower("RATE_LIMIT_BACKEND", "db"),
		RedisURL: getenv("REDIS_URL", ""),

		ChatWindow:       getdur("CHAT_WINDOW", 10*time.Minute),
		ChatLimitFree:    getint("CHAT_LIMIT_FREE", 10),
		ChatLimitVIP:     getint("CHAT_LIMIT_VIP", 50),
		ChatLimitPremium: getint("CHAT_LIMIT_PREMIUM", 100),

		RecommendationWindow: getdur("RECOMMENDATION_WINDOW", time.Hour),
		RecommendationLimit:  getint("RECOMMENDATION_LIMIT", 5),
	}
}

func loadOTEL() OTELConfig {
	return OTELConfig{
		Enabled:     getbool("OTEL_ENABLED", false),
		Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
		ServiceName: getenv("OTEL_SERVICE_NAME", "connectai-gateway"),
		SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1),
	}
}

// normalize maps accepted aliases onto the canonical values Validate checks.
// An unknown GIN_MODE falls back to release instead of failing startup.
func normalize(cfg *Config) {
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	if cfg.DBDriver == "postgresql" {
		cfg.DBDriver = "postgres"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("env")
	})
	return v
}

// Validate checks cfg against its `validate` tags. Each violation becomes
// one line naming the environment variable at fault.
func Validate(cfg Config) error {
	err := validate.Struct(cfg)
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	errs := make([]error, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		errs = append(errs, errors.New(describe(fe)))
	}
	return errors.Join(errs...)
}

func describe(fe validator.FieldError) string {
	name := fe.Field()
	switch fe.Tag() {
	case "required":
		return name + " must be set"
	case "required_if":
		return fmt.Sprintf("%s must be set when %s", name, strings.Replace(fe.Param(), " ", "=", 1))
	case "required_without_all":
		return "one of AUTH_JWT_SECRET, AUTH_JWKS_URL or SUPABASE_URL must be set"
	case "oneof":
		return name + " must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "gt":
		return name + " must be > " + fe.Param()
	case "gte":
		return name + " must be >= " + fe.Param()
	case "lte":
		return name + " must be <= " + fe.Param()
	case "url":
		return name + " must be an absolute URL"
	case "numeric":
		return name + " must be a number"
	case "startswith":
		return name + " must start with " + fe.Param()
	}
	return fmt.Sprintf("%s failed %q", name, fe.Tag())
}

// ---- environment helpers ----

func lookup(k string) (string, bool) {
	v, ok := os.LookupEnv(k)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func getenv(k, def string) string {
	if v, ok := lookup(k); ok {
		return v
	}
	return def
}

func getlower(k, def string) string { return strings.ToLower(getenv(k, def)) }

func getfloat(k string, def float64) float64 {
	if v, ok := lookup(k); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := lookup(k); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	v, ok := lookup(k)
	if !ok {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := lookup(k); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// normalizeBasePath returns p with a leading slash and no trailing one,
// except for the root itself.
func normalizeBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	return "/" + p
}
