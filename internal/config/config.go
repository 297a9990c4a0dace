// Package config handles loading application configuration from environment
// variables. All config is centralized here so no other package reads env
// vars directly. Sensible defaults are provided for local development.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Storage backend names accepted by STORAGE_BACKEND.
const (
	BackendFile     = "file"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendDatabase = "database"
)

// Database driver names accepted by DB_DRIVER.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

// Config holds all application configuration. Populated from environment
// variables at startup. Passed to other packages via dependency injection.
type Config struct {
	// Env is the runtime environment: "development" or "production".
	Env string

	// Port is the listen port of the app shell (default: 8080).
	Port int

	// LogLevel controls log verbosity: "debug", "info", "warn", "error".
	LogLevel string

	// Identity holds the remote identity service settings.
	Identity IdentityConfig

	// Storage holds settings for the device-local session snapshot.
	Storage StorageConfig

	// Redis holds Redis connection settings (STORAGE_BACKEND=redis).
	Redis RedisConfig

	// Database holds SQL connection settings (STORAGE_BACKEND=database).
	Database DatabaseConfig
}

// IdentityConfig describes how to reach the identity service.
type IdentityConfig struct {
	// BaseURL is the origin of the identity service (e.g. "https://id.opendreams.app").
	BaseURL string

	// BasePath is the mount point of the auth API on the service.
	BasePath string

	// CallbackURL is where the social sign-in handshake redirects back to.
	CallbackURL string

	// Timeout bounds every single call to the identity service.
	Timeout time.Duration
}

// StorageConfig holds snapshot persistence settings.
type StorageConfig struct {
	// Backend selects the key-value store: file, memory, redis or database.
	Backend string

	// Dir is the directory used by the file backend.
	Dir string

	// Key is the namespace key the auth snapshot is stored under.
	Key string

	// SecretKey enables sealing of persisted bytes when non-empty.
	SecretKey string
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379").
	URL string
}

// DatabaseConfig holds SQL connection parameters. Individual fields are read
// from separate env vars; if DATABASE_URL is set it takes precedence.
type DatabaseConfig struct {
	// Driver is "mysql" or "postgres".
	Driver string

	// Host is the server address in host:port format.
	Host string

	// User is the database username.
	User string

	// Password is the database password.
	Password string

	// Name is the database name.
	Name string

	// dsnOverride is set when DATABASE_URL is provided, bypassing individual fields.
	dsnOverride string

	// MaxOpenConns is the maximum number of open connections in the pool.
	MaxOpenConns int

	// ConnMaxLifetime is how long a connection can be reused.
	ConnMaxLifetime time.Duration
}

// DSN returns the connection string for the configured driver. If
// DATABASE_URL was set, it is returned as-is.
func (d DatabaseConfig) DSN() string {
	if d.dsnOverride != "" {
		return d.dsnOverride
	}

	if d.Driver == DriverPostgres {
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(d.User, d.Password),
			Host:   ensurePort(d.Host, "5432"),
			Path:   "/" + d.Name,
		}
		return u.String()
	}

	// FormatDSN handles special characters in passwords safely.
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = ensurePort(d.Host, "3306")
	cfg.DBName = d.Name
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

// ensurePort appends the default port if the host string doesn't include one.
func ensurePort(host, defaultPort string) string {
	_, _, err := net.SplitHostPort(host)
	if err != nil {
		return net.JoinHostPort(host, defaultPort)
	}
	return host
}

// Load reads configuration from environment variables with sensible defaults.
// Returns an error if a value is present but unusable.
func Load() (*Config, error) {
	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		Identity: IdentityConfig{
			BaseURL:     strings.TrimRight(getEnv("IDENTITY_URL", "http://localhost:3000"), "/"),
			BasePath:    getEnv("IDENTITY_BASE_PATH", "/api/auth"),
			CallbackURL: getEnv("IDENTITY_CALLBACK_URL", "http://127.0.0.1:8765/auth/callback"),
			Timeout:     getEnvDuration("IDENTITY_TIMEOUT", 10*time.Second),
		},

		Storage: StorageConfig{
			Backend:   strings.ToLower(getEnv("STORAGE_BACKEND", BackendFile)),
			Dir:       getEnv("STORAGE_DIR", defaultStorageDir()),
			Key:       getEnv("STORAGE_KEY", "opendreams-auth-storage"),
			SecretKey: getEnv("STORAGE_SECRET_KEY", ""),
		},

		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379"),
		},

		Database: DatabaseConfig{
			Driver:          strings.ToLower(getEnv("DB_DRIVER", DriverMySQL)),
			Host:            getEnv("DB_HOST", "localhost"),
			User:            getEnv("DB_USER", "opendreams"),
			Password:        getEnv("DB_PASSWORD", "opendreams"),
			Name:            getEnv("DB_NAME", "opendreams"),
			dsnOverride:     getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case BackendFile, BackendMemory, BackendRedis, BackendDatabase:
	default:
		return fmt.Errorf("STORAGE_BACKEND must be one of file, memory, redis, database (got %q)", c.Storage.Backend)
	}

	switch c.Database.Driver {
	case DriverMySQL, DriverPostgres:
	default:
		return fmt.Errorf("DB_DRIVER must be mysql or postgres (got %q)", c.Database.Driver)
	}

	if c.Storage.Key == "" {
		return fmt.Errorf("STORAGE_KEY must not be empty")
	}

	if c.Identity.Timeout <= 0 {
		return fmt.Errorf("IDENTITY_TIMEOUT must be positive")
	}

	if _, err := url.Parse(c.Identity.CallbackURL); err != nil {
		return fmt.Errorf("IDENTITY_CALLBACK_URL: %w", err)
	}

	// Case-insensitive check catches common variants like "Production", "prod".
	envLower := strings.ToLower(c.Env)
	if envLower == "production" || envLower == "prod" {
		if !strings.HasPrefix(c.Identity.BaseURL, "https://") {
			return fmt.Errorf("IDENTITY_URL must use https in production")
		}
	}

	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Env)
	return env == "development" || env == "dev"
}

// defaultStorageDir places the snapshot under the user's config directory,
// falling back to the working directory when none is available.
func defaultStorageDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".opendreams"
	}
	return filepath.Join(dir, "opendreams")
}

// --- Helper functions for reading environment variables ---

// getEnv reads a string env var or returns the default.
func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvInt reads an integer env var or returns the default.
func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvDuration reads a duration env var (e.g., "15s") or returns the default.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
