package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"beacon/internal/platform/config"
)

func Open(cfg config.DatabaseConfig) (*sql.DB, error) {
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", cfg.Path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// EnsureSchema creates the pipeline tables if they do not exist. Both the
// server and the worker call this at startup so either can come up first.
func EnsureSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS webhook_subscriptions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		url TEXT NOT NULL,
		event_types TEXT NOT NULL,
		secret TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		retry_count INTEGER NOT NULL DEFAULT 3,
		timeout_seconds INTEGER NOT NULL DEFAULT 10,
		total_deliveries INTEGER NOT NULL DEFAULT 0,
		successful_deliveries INTEGER NOT NULL DEFAULT 0,
		failed_deliveries INTEGER NOT NULL DEFAULT 0,
		last_delivery_at INTEGER,
		last_success_at INTEGER,
		last_failure_at INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_subscriptions_user_active
		ON webhook_subscriptions(user_id, is_active);

	CREATE TABLE IF NOT EXISTS webhook_deliveries (
		id TEXT PRIMARY KEY,
		subscription_id TEXT NOT NULL REFERENCES webhook_subscriptions(id) ON DELETE CASCADE,
		event_type TEXT NOT NULL,
		event_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		attempt_count INTEGER NOT NULL DEFAULT 0,
		max_attempts INTEGER NOT NULL,
		response_status_code INTEGER,
		response_body TEXT,
		error_message TEXT,
		created_at INTEGER NOT NULL,
		first_attempted_at INTEGER,
		last_attempted_at INTEGER,
		completed_at INTEGER,
		next_retry_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_deliveries_retry
		ON webhook_deliveries(status, next_retry_at);
	CREATE INDEX IF NOT EXISTS idx_deliveries_subscription
		ON webhook_deliveries(subscription_id, created_at);

	CREATE TABLE IF NOT EXISTS api_keys (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		key_hash TEXT NOT NULL,
		key_prefix TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		revoked_at INTEGER
	);
	`
	_, err := db.Exec(schema)
	return err
}
