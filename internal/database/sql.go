// Package database provides connection setup for the SQL and Redis storage
// backends. Connections are created once at startup and handed to the
// storage package via dependency injection. This package owns the
// connection lifecycle (open, configure pool, ping, close).
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	// SQL drivers -- imported for side effect of registering them.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/opendreams/opendreams/internal/config"
)

// driverName maps the configured driver to its database/sql name.
func driverName(driver string) string {
	if driver == config.DriverPostgres {
		return "pgx"
	}
	return "mysql"
}

// NewSQL opens a connection pool for the configured driver and pings it
// before returning, retrying while the server is still starting up.
func NewSQL(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open(driverName(cfg.Driver), cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening %s connection: %w", cfg.Driver, err)
	}

	// A device-side snapshot needs only a handful of connections.
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	const maxRetries = 5
	backoff := 1 * time.Second
	var pingErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		pingErr = db.PingContext(ctx)
		cancel()

		if pingErr == nil {
			return db, nil
		}

		if attempt == maxRetries {
			break
		}

		slog.Warn("database not ready, retrying...",
			slog.String("driver", cfg.Driver),
			slog.Int("attempt", attempt),
			slog.Int("max_retries", maxRetries),
			slog.Duration("backoff", backoff),
			slog.Any("error", pingErr),
		)
		time.Sleep(backoff)
		backoff = min(backoff*2, 10*time.Second)
	}

	db.Close()
	return nil, fmt.Errorf("pinging %s after %d attempts: %w", cfg.Driver, maxRetries, pingErr)
}
