package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// runBackendContract exercises the behavior every Backend must share.
func runBackendContract(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	data, err := b.Get(ctx, "missing")
	if err != nil || data != nil {
		t.Fatalf("Get(missing) = %q, %v; want nil, nil", data, err)
	}

	if err := b.Set(ctx, "k", []byte("v1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := b.Set(ctx, "k", []byte("v2")); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}

	data, err = b.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(data, []byte("v2")) {
		t.Errorf("Get = %q, want v2", data)
	}

	if err := b.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := b.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete of missing key should not fail: %v", err)
	}
	if data, _ := b.Get(ctx, "k"); data != nil {
		t.Errorf("expected key gone, got %q", data)
	}

	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := b.Get(ctx, "k"); !errors.Is(err, ErrClosed) {
		t.Errorf("Get after Close = %v, want ErrClosed", err)
	}
	if err := b.Set(ctx, "k", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Set after Close = %v, want ErrClosed", err)
	}
}

func TestMemoryBackend_Contract(t *testing.T) {
	runBackendContract(t, NewMemoryBackend())
}

func TestMemoryBackend_CopiesValues(t *testing.T) {
	b := NewMemoryBackend()
	ctx := context.Background()

	in := []byte("abc")
	_ = b.Set(ctx, "k", in)
	in[0] = 'x'

	out, _ := b.Get(ctx, "k")
	if string(out) != "abc" {
		t.Errorf("stored value aliased caller slice: %q", out)
	}
}

func TestFileBackend_Contract(t *testing.T) {
	b, err := NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}
	runBackendContract(t, b)
}

func TestFileBackend_PrivateFilesInsideDir(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileBackend(dir)
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}

	if err := b.Set(context.Background(), "../escape/attempt", []byte("x")); err != nil {
		t.Fatalf("Set: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one file, got %d", len(entries))
	}
	name := entries[0].Name()
	if strings.HasPrefix(name, ".tmp-") {
		t.Errorf("temp file left behind: %s", name)
	}

	info, err := os.Stat(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("expected mode 0600, got %o", perm)
	}
}

func TestRedisBackend_Contract(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	runBackendContract(t, NewRedisBackend(rdb))
}

func TestRedisBackend_Prefix(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	b := NewRedisBackend(rdb, WithRedisPrefix("device-1:"))
	if err := b.Set(context.Background(), "opendreams-auth-storage", []byte("{}")); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := mr.Get("device-1:opendreams-auth-storage")
	if err != nil {
		t.Fatalf("expected prefixed key in Redis: %v", err)
	}
	if got != "{}" {
		t.Errorf("unexpected value %q", got)
	}
	if mr.TTL("device-1:opendreams-auth-storage") != 0 {
		t.Error("expected no expiry on stored snapshot")
	}
}

func TestSQLBackend_QueriesPerDialect(t *testing.T) {
	mysqlGet, mysqlUpsert, _ := NewSQLBackend(nil, DialectMySQL).queries()
	if !strings.Contains(mysqlGet, "storage_key = ?") {
		t.Errorf("mysql get uses wrong placeholder: %s", mysqlGet)
	}
	if !strings.Contains(mysqlUpsert, "ON DUPLICATE KEY UPDATE") {
		t.Errorf("mysql upsert missing ON DUPLICATE KEY: %s", mysqlUpsert)
	}

	pgGet, pgUpsert, pgDel := NewSQLBackend(nil, DialectPostgres).queries()
	if !strings.Contains(pgGet, "storage_key = $1") || !strings.Contains(pgDel, "storage_key = $1") {
		t.Errorf("postgres queries use wrong placeholder: %s / %s", pgGet, pgDel)
	}
	if !strings.Contains(pgUpsert, "ON CONFLICT (storage_key)") {
		t.Errorf("postgres upsert missing ON CONFLICT: %s", pgUpsert)
	}
}
