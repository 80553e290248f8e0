// Package store provides storage backends for BulkPipe.
//
// This file implements a PostgreSQL-backed delivery ledger.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 4
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 4
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// Compile-time checks that PostgresStore implements Ledger and RecordLister.
var (
	_ Ledger       = (*PostgresStore)(nil)
	_ RecordLister = (*PostgresStore)(nil)
)

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres ledger based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, &StorageError{Op: "open", Err: fmt.Errorf("database DSN not set")}
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, &StorageError{Op: "open", Err: err}
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		db.Close()
		return nil, &StorageError{Op: "ping", Err: err}
	}
	slog.Debug("Postgres ping successful")

	if err := migratePostgres(db); err != nil {
		db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func migratePostgres(db *sql.DB) error {
	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return &StorageError{Op: "migrate", Err: fmt.Errorf("failed to run migrations: %w", err)}
	}
	slog.Debug("Postgres migrations applied successfully")
	return nil
}

func (s *PostgresStore) HasSent(ctx context.Context, contactID string) (bool, error) {
	if contactID == "" {
		return false, &StorageError{Op: "has_sent", Err: fmt.Errorf("contact id cannot be empty")}
	}
	var sent bool
	err := s.db.QueryRowContext(ctx, `SELECT sent FROM checks WHERE cellphone_id = $1`, contactID).Scan(&sent)
	if errors.Is(err, sql.ErrNoRows) {
		slog.Debug("PostgresStore HasSent not found", "contact", contactID)
		return false, nil
	}
	if err != nil {
		slog.Error("PostgresStore HasSent failed", "error", err, "contact", contactID)
		return false, &StorageError{Op: "has_sent", Err: err}
	}
	return true, nil
}

func (s *PostgresStore) MarkSent(ctx context.Context, contactID string) error {
	if contactID == "" {
		return &StorageError{Op: "mark_sent", Err: fmt.Errorf("contact id cannot be empty")}
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO checks (cellphone_id, sent) VALUES ($1, $2) ON CONFLICT (cellphone_id) DO NOTHING`,
		contactID, true,
	)
	if err != nil {
		slog.Error("PostgresStore MarkSent failed", "error", err, "contact", contactID)
		return &StorageError{Op: "mark_sent", Err: err}
	}
	n, err := result.RowsAffected()
	if err != nil {
		return &StorageError{Op: "mark_sent", Err: fmt.Errorf("rows affected check failed: %w", err)}
	}
	if n == 0 {
		slog.Warn("PostgresStore MarkSent: contact already recorded", "contact", contactID)
		return nil
	}
	slog.Debug("PostgresStore MarkSent succeeded", "contact", contactID)
	return nil
}

// Records returns every delivery record ordered by contact id.
func (s *PostgresStore) Records(ctx context.Context) ([]DeliveryRecord, error) {
	return queryRecords(ctx, s.db)
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
