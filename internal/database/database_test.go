package database

import (
	"context"
	"io/fs"
	"os"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/opendreams/opendreams/internal/config"
	"github.com/opendreams/opendreams/internal/storage"
)

// TestMigrations_EveryUpHasDown checks the embedded migrations are paired
// per driver so a rollback never hits a missing file.
func TestMigrations_EveryUpHasDown(t *testing.T) {
	for _, driver := range []string{config.DriverMySQL, config.DriverPostgres} {
		ups, err := fs.Glob(migrationsFS, "migrations/"+driver+"/*.up.sql")
		if err != nil {
			t.Fatalf("globbing %s migrations: %v", driver, err)
		}
		if len(ups) == 0 {
			t.Fatalf("no %s migrations embedded", driver)
		}
		for _, up := range ups {
			down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
			if _, err := fs.Stat(migrationsFS, down); err != nil {
				t.Errorf("%s has no matching down migration", up)
			}
		}
	}
}

// TestMigrations_CreateStorageTable guards the table name the SQL backend
// queries against.
func TestMigrations_CreateStorageTable(t *testing.T) {
	for _, driver := range []string{config.DriverMySQL, config.DriverPostgres} {
		data, err := migrationsFS.ReadFile("migrations/" + driver + "/000001_create_opendreams_kv.up.sql")
		if err != nil {
			t.Fatalf("reading %s migration: %v", driver, err)
		}
		if !strings.Contains(string(data), storage.DefaultTable) {
			t.Errorf("%s migration does not create %s", driver, storage.DefaultTable)
		}
	}
}

func TestDriverName(t *testing.T) {
	if got := driverName(config.DriverPostgres); got != "pgx" {
		t.Errorf("postgres driver = %q, want pgx", got)
	}
	if got := driverName(config.DriverMySQL); got != "mysql" {
		t.Errorf("mysql driver = %q, want mysql", got)
	}
}

func TestNewRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedis(config.RedisConfig{URL: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	defer client.Close()

	if err := client.Set(context.Background(), "k", "v", 0).Err(); err != nil {
		t.Fatalf("Set: %v", err)
	}
}

func TestNewRedis_BadURL(t *testing.T) {
	if _, err := NewRedis(config.RedisConfig{URL: "not-a-url"}); err == nil {
		t.Error("expected error for malformed URL")
	}
}

// TestSQLBackend_Integration runs the storage contract against a real
// database when OPENDREAMS_TEST_DB_DRIVER and DATABASE_URL are set.
func TestSQLBackend_Integration(t *testing.T) {
	driver := os.Getenv("OPENDREAMS_TEST_DB_DRIVER")
	if driver == "" || os.Getenv("DATABASE_URL") == "" {
		t.Skip("OPENDREAMS_TEST_DB_DRIVER/DATABASE_URL not set; skipping SQL integration test")
	}

	t.Setenv("DB_DRIVER", driver)
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}

	db, err := NewSQL(cfg.Database)
	if err != nil {
		t.Fatalf("NewSQL: %v", err)
	}
	defer db.Close()

	if err := RunMigrations(db, driver); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}

	dialect := storage.DialectMySQL
	if driver == config.DriverPostgres {
		dialect = storage.DialectPostgres
	}
	backend := storage.NewSQLBackend(db, dialect)
	ctx := context.Background()

	key := "integration-" + t.Name()
	t.Cleanup(func() { _ = backend.Delete(ctx, key) })

	if err := backend.Set(ctx, key, []byte("v1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := backend.Set(ctx, key, []byte("v2")); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	got, err := backend.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "v2" {
		t.Errorf("Get = %q, want v2", got)
	}
}
