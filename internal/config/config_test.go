package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORAGE_DIR", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Storage.Backend != BackendFile {
		t.Errorf("expected file backend, got %q", cfg.Storage.Backend)
	}
	if cfg.Storage.Key != "opendreams-auth-storage" {
		t.Errorf("unexpected storage key %q", cfg.Storage.Key)
	}
	if cfg.Identity.Timeout != 10*time.Second {
		t.Errorf("expected 10s identity timeout, got %v", cfg.Identity.Timeout)
	}
	if !cfg.IsDevelopment() {
		t.Error("expected development by default")
	}
}

func TestLoad_RejectsUnknownBackend(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "s3")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestLoad_ProductionRequiresHTTPS(t *testing.T) {
	t.Setenv("ENV", "Production")
	t.Setenv("IDENTITY_URL", "http://id.example.com")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for plain http identity URL in production")
	}

	t.Setenv("IDENTITY_URL", "https://id.example.com/")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Identity.BaseURL != "https://id.example.com" {
		t.Errorf("expected trailing slash trimmed, got %q", cfg.Identity.BaseURL)
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	mysqlCfg := DatabaseConfig{Driver: DriverMySQL, Host: "db", User: "u", Password: "p@ss", Name: "od"}
	dsn := mysqlCfg.DSN()
	if !strings.Contains(dsn, "tcp(db:3306)/od") {
		t.Errorf("unexpected mysql DSN %q", dsn)
	}

	pgCfg := DatabaseConfig{Driver: DriverPostgres, Host: "db:6543", User: "u", Password: "p", Name: "od"}
	if got := pgCfg.DSN(); got != "postgres://u:p@db:6543/od" {
		t.Errorf("unexpected postgres DSN %q", got)
	}

	override := DatabaseConfig{Driver: DriverMySQL, dsnOverride: "custom"}
	if got := override.DSN(); got != "custom" {
		t.Errorf("expected override DSN, got %q", got)
	}
}
