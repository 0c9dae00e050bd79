// Package repo implements the data persistence layer for domain entities,
// backed by GORM: subscriptions, quota windows and usage logs. This file
// opens the store (SQLite through a pure Go driver, or PostgreSQL) and
// migrates the schema.
package repo

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/connectai-gateway/internal/domain"
)

// slowQuery is the threshold above which GORM logs a statement at WARN.
const slowQuery = 500 * time.Millisecond

// sqlitePragmas run on every pooled connection. busy_timeout matters most:
// quota increments from concurrent requests otherwise fail with SQLITE_BUSY.
var sqlitePragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"foreign_keys(ON)",
	"busy_timeout(5000)",
}

type pool struct {
	maxOpen, maxIdle  int
	idleTime, maxLife time.Duration
}

var pools = map[string]pool{
	"sqlite":   {maxOpen: 10, maxIdle: 10, idleTime: 5 * time.Minute, maxLife: 30 * time.Minute},
	"postgres": {maxOpen: 50, maxIdle: 10, maxLife: time.Hour},
}

// Open connects to the configured store. driver is "sqlite" (path is a file)
// or "postgres" (dsn is a connection URL). Statements are logged through
// zerolog and traced through the global OpenTelemetry provider.
func Open(driver, path, dsn string) (*gorm.DB, error) {
	var dial gorm.Dialector
	switch driver {
	case "sqlite":
		// Fail on a missing parent directory instead of sqlite's opaque
		// "out of memory (14)".
		if dir := filepath.Dir(path); dir != "." {
			if _, err := os.Stat(dir); err != nil {
				return nil, fmt.Errorf("repo: sqlite dir: %w", err)
			}
		}
		dial = sqlite.Open(sqliteDSN(path))
	case "postgres":
		dial = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("repo: unsupported driver %q", driver)
	}

	db, err := gorm.Open(dial, &gorm.Config{Logger: gormLogger()})
	if err != nil {
		return nil, fmt.Errorf("repo: open %s: %w", driver, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("repo: pool: %w", err)
	}
	p := pools[driver]
	sqlDB.SetMaxOpenConns(p.maxOpen)
	sqlDB.SetMaxIdleConns(p.maxIdle)
	sqlDB.SetConnMaxIdleTime(p.idleTime)
	sqlDB.SetConnMaxLifetime(p.maxLife)

	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, fmt.Errorf("repo: tracing plugin: %w", err)
	}
	return db, nil
}

// sqliteDSN appends the connection pragmas to path as _pragma parameters.
func sqliteDSN(path string) string {
	q := url.Values{}
	for _, p := range sqlitePragmas {
		q.Add("_pragma", p)
	}
	return path + "?" + q.Encode()
}

func gormLogger() logger.Interface {
	zl := log.With().Str("component", "gorm").Logger()
	return logger.New(&zl, logger.Config{
		SlowThreshold:             slowQuery,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}

// AutoMigrate creates or updates the tables the gateway touches.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Subscription{},
		&domain.RateLimitWindow{},
		&domain.UsageLog{},
		&domain.IdempotentResult{},
	)
}
