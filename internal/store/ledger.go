// Package store provides the delivery ledger for BulkPipe.
//
// The ledger durably records which contact identifiers have already been
// sent a campaign message so that a restarted campaign never sends twice.
package store

import (
	"context"
	"fmt"
	"log/slog"
)

// DeliveryRecord is one row of the checks table.
type DeliveryRecord struct {
	ContactID string `json:"cellphone_id"`
	Sent      bool   `json:"sent"`
}

// Ledger defines the interface for delivery deduplication.
type Ledger interface {
	// HasSent reports whether a delivery record exists for contactID.
	HasSent(ctx context.Context, contactID string) (bool, error)

	// MarkSent records a successful delivery. Recording an identifier that is
	// already present is not an error.
	MarkSent(ctx context.Context, contactID string) error

	// Close releases the backing store.
	Close() error
}

// RecordLister is implemented by ledgers that can enumerate their records.
type RecordLister interface {
	Records(ctx context.Context) ([]DeliveryRecord, error)
}

// StorageError reports a ledger that is unreachable or a failed query.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("ledger %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewLedger opens the durable ledger selected by the DSN and creates its
// schema if absent.
func NewLedger(dsn string) (Ledger, error) {
	if dsn == "" {
		return nil, &StorageError{Op: "open", Err: fmt.Errorf("database DSN not set")}
	}
	if DetectDSNType(dsn) == "postgres" {
		slog.Debug("Ledger using PostgreSQL backend", "dsn_type", "postgresql")
		pg, err := NewPostgresStore(WithPostgresDSN(dsn))
		if err != nil {
			return nil, err
		}
		return pg, nil
	}
	slog.Debug("Ledger using SQLite backend", "db_path", dsn)
	lite, err := NewSQLiteStore(WithSQLiteDSN(dsn))
	if err != nil {
		return nil, err
	}
	return lite, nil
}
