// Package postgres implements the repository interfaces on PostgreSQL using
// lib/pq behind sqlx. It is selected instead of SQLite when DATABASE_URL is
// set.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	// Registers the "postgres" driver with database/sql.
	_ "github.com/lib/pq"
)

// Config holds connection settings.
type Config struct {
	DSN         string
	MaxConns    int
	PingTimeout time.Duration
}

// DB wraps a sqlx pool.
type DB struct {
	conn *sqlx.DB
}

// New connects, verifies the connection with a bounded ping and migrates.
func New(cfg Config) (*DB, error) {
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 5
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = 5 * time.Second
	}

	conn, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: opening database: %w", err)
	}
	conn.SetMaxOpenConns(cfg.MaxConns)
	conn.SetMaxIdleConns(cfg.MaxConns)
	conn.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.PingTimeout)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("postgres: pinging database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("postgres: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate(ctx context.Context) error {
	_, err := db.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			username      TEXT NOT NULL UNIQUE,
			name          TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL DEFAULT '',
			github_id     BIGINT UNIQUE,
			preferences   JSONB NOT NULL DEFAULT '{}'::jsonb,
			study_time    BIGINT NOT NULL DEFAULT 0 CHECK (study_time >= 0),
			days_logged   JSONB NOT NULL DEFAULT '[]'::jsonb,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}
	return nil
}
