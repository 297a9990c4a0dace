package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// DefaultTable is the key-value table created by the embedded migrations.
const DefaultTable = "opendreams_kv"

// Dialect selects SQL syntax for the backend's queries.
type Dialect int

const (
	// DialectMySQL uses MySQL/MariaDB syntax (? placeholders).
	DialectMySQL Dialect = iota
	// DialectPostgres uses PostgreSQL syntax ($n placeholders).
	DialectPostgres
)

// SQLBackend stores values in a database/sql table:
//
//	storage_key  primary key
//	value        blob
//	updated_at   timestamp
type SQLBackend struct {
	db      *sql.DB
	dialect Dialect
	table   string
	closed  atomic.Bool
}

// NewSQLBackend wraps an open pool. The pool stays owned by the caller and
// the table must already exist (see database.RunMigrations).
func NewSQLBackend(db *sql.DB, dialect Dialect) *SQLBackend {
	return &SQLBackend{db: db, dialect: dialect, table: DefaultTable}
}

// queries returns the select, upsert and delete statements for the dialect.
func (s *SQLBackend) queries() (get, upsert, del string) {
	switch s.dialect {
	case DialectPostgres:
		get = fmt.Sprintf(`SELECT value FROM %s WHERE storage_key = $1`, s.table)
		upsert = fmt.Sprintf(`
			INSERT INTO %s (storage_key, value, updated_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (storage_key) DO UPDATE SET
				value = EXCLUDED.value,
				updated_at = EXCLUDED.updated_at`, s.table)
		del = fmt.Sprintf(`DELETE FROM %s WHERE storage_key = $1`, s.table)
	default:
		get = fmt.Sprintf(`SELECT value FROM %s WHERE storage_key = ?`, s.table)
		upsert = fmt.Sprintf(`
			INSERT INTO %s (storage_key, value, updated_at)
			VALUES (?, ?, ?)
			ON DUPLICATE KEY UPDATE
				value = VALUES(value),
				updated_at = VALUES(updated_at)`, s.table)
		del = fmt.Sprintf(`DELETE FROM %s WHERE storage_key = ?`, s.table)
	}
	return get, upsert, del
}

// Get reads key from the table.
func (s *SQLBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	query, _, _ := s.queries()

	var data []byte
	err := s.db.QueryRowContext(ctx, query, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return data, nil
}

// Set upserts key.
func (s *SQLBackend) Set(ctx context.Context, key string, data []byte) error {
	if s.closed.Load() {
		return ErrClosed
	}

	_, query, _ := s.queries()
	if _, err := s.db.ExecContext(ctx, query, key, data, time.Now().UTC()); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *SQLBackend) Delete(ctx context.Context, key string) error {
	if s.closed.Load() {
		return ErrClosed
	}

	_, _, query := s.queries()
	if _, err := s.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// Close marks the backend closed. The pool is not closed.
func (s *SQLBackend) Close() error {
	s.closed.Store(true)
	return nil
}
