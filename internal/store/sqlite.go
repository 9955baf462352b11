package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/byteball/attestation-kit/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db    *sql.DB
	retry shared.RetryPolicy
}

var _ Repository = (*SQLiteStore)(nil)

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string, retry shared.RetryPolicy) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL for concurrent readers; write transactions take the lock up front so
	// a read-then-update never fails halfway on lock upgrade.
	dsn := dbPath +
		"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)" +
		"&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, retry: retry}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS attestation_orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		data_key0 TEXT NOT NULL,
		data_value0 TEXT NOT NULL,
		data_key1 TEXT,
		data_value1 TEXT,
		data_key2 TEXT,
		data_value2 TEXT,
		data_key3 TEXT,
		data_value3 TEXT,
		fields_key TEXT NOT NULL,
		user_wallet_address TEXT,
		status TEXT NOT NULL DEFAULT 'pending'
			CHECK (status IN ('pending', 'addressed', 'attested')),
		unit TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		CHECK (status = 'pending' OR user_wallet_address IS NOT NULL),
		CHECK (status != 'attested' OR unit IS NOT NULL)
	);
	CREATE INDEX IF NOT EXISTS idx_orders_fields ON attestation_orders(fields_key, status);
	CREATE INDEX IF NOT EXISTS idx_orders_address ON attestation_orders(user_wallet_address)
		WHERE user_wallet_address IS NOT NULL;

	CREATE TABLE IF NOT EXISTS client_sessions (
		client_id TEXT PRIMARY KEY,
		session_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_client_sessions_updated ON client_sessions(updated_at);

	CREATE TABLE IF NOT EXISTS attestations (
		unit TEXT PRIMARY KEY,
		address TEXT NOT NULL,
		profile_json TEXT NOT NULL,
		attestor TEXT NOT NULL,
		signature TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_attestations_address ON attestations(address);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// inTx runs fn in a write transaction, retrying the whole transaction on lock
// contention.
func (s *SQLiteStore) inTx(ctx context.Context, name string, fn func(tx *sql.Tx) error) error {
	return shared.RetryOnConflict(ctx, s.retry, name, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin %s: %w", name, err)
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", name, err)
		}
		return nil
	})
}
