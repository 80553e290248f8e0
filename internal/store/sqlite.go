// Package store provides storage backends for BulkPipe.
//
// This file implements an SQLite-backed delivery ledger.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// Compile-time checks that SQLiteStore implements Ledger and RecordLister.
var (
	_ Ledger       = (*SQLiteStore)(nil)
	_ RecordLister = (*SQLiteStore)(nil)
)

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite ledger with the given DSN.
// The DSN should be a file path to the SQLite database file, optionally in
// "file:" URI form. If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	// Apply options
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, &StorageError{Op: "open", Err: fmt.Errorf("database DSN not set")}
	}

	// Ensure the directory exists
	dir := filepath.Dir(sqliteFilePath(dsn))
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, &StorageError{Op: "open", Err: fmt.Errorf("failed to create database directory: %w", err)}
	}
	slog.Debug("SQLite database directory verified/created", "dir", dir)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, &StorageError{Op: "open", Err: err}
	}
	// A single writer avoids SQLITE_BUSY on the ledger file.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		db.Close()
		return nil, &StorageError{Op: "ping", Err: err}
	}
	slog.Debug("SQLite ping successful")

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, &StorageError{Op: "migrate", Err: fmt.Errorf("failed to run migrations: %w", err)}
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// sqliteFilePath strips the "file:" scheme and query parameters from a DSN.
func sqliteFilePath(dsn string) string {
	p := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	return p
}

func (s *SQLiteStore) HasSent(ctx context.Context, contactID string) (bool, error) {
	if contactID == "" {
		return false, &StorageError{Op: "has_sent", Err: fmt.Errorf("contact id cannot be empty")}
	}
	var sent bool
	err := s.db.QueryRowContext(ctx, `SELECT sent FROM checks WHERE cellphone_id = ?`, contactID).Scan(&sent)
	if errors.Is(err, sql.ErrNoRows) {
		slog.Debug("SQLiteStore HasSent not found", "contact", contactID)
		return false, nil
	}
	if err != nil {
		slog.Error("SQLiteStore HasSent failed", "error", err, "contact", contactID)
		return false, &StorageError{Op: "has_sent", Err: err}
	}
	// Any existing record counts as delivered, whatever its flag.
	return true, nil
}

func (s *SQLiteStore) MarkSent(ctx context.Context, contactID string) error {
	if contactID == "" {
		return &StorageError{Op: "mark_sent", Err: fmt.Errorf("contact id cannot be empty")}
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO checks (cellphone_id, sent) VALUES (?, ?)`,
		contactID, true,
	)
	if err != nil {
		slog.Error("SQLiteStore MarkSent failed", "error", err, "contact", contactID)
		return &StorageError{Op: "mark_sent", Err: err}
	}
	n, err := result.RowsAffected()
	if err != nil {
		return &StorageError{Op: "mark_sent", Err: fmt.Errorf("rows affected check failed: %w", err)}
	}
	if n == 0 {
		slog.Warn("SQLiteStore MarkSent: contact already recorded", "contact", contactID)
		return nil
	}
	slog.Debug("SQLiteStore MarkSent succeeded", "contact", contactID)
	return nil
}

// Records returns every delivery record ordered by contact id.
func (s *SQLiteStore) Records(ctx context.Context) ([]DeliveryRecord, error) {
	return queryRecords(ctx, s.db)
}

// queryRecords reads the checks table; the statement is valid on both backends.
func queryRecords(ctx context.Context, db *sql.DB) ([]DeliveryRecord, error) {
	rows, err := db.QueryContext(ctx, `SELECT cellphone_id, sent FROM checks ORDER BY cellphone_id`)
	if err != nil {
		return nil, &StorageError{Op: "records", Err: err}
	}
	defer rows.Close()

	var records []DeliveryRecord
	for rows.Next() {
		var r DeliveryRecord
		if err := rows.Scan(&r.ContactID, &r.Sent); err != nil {
			return nil, &StorageError{Op: "records", Err: fmt.Errorf("failed to scan record row: %w", err)}
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "records", Err: err}
	}
	return records, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	} else {
		slog.Debug("SQLite database connection closed successfully")
	}
	return err
}
