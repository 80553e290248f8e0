package store

import "strings"

// Opts holds configuration options for ledger backends.
type Opts struct {
	DSN string // database connection string or SQLite file path
}

// Option defines a configuration option for ledger backends.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType returns "postgres" for PostgreSQL connection strings and
// "sqlite3" for anything else, which is treated as a SQLite file path.
func DetectDSNType(dsn string) string {
	s := strings.TrimSpace(dsn)
	if strings.HasPrefix(s, "postgres://") || strings.HasPrefix(s, "postgresql://") {
		return "postgres"
	}
	if strings.HasPrefix(s, "file:") {
		return "sqlite3"
	}
	// key=value form, e.g. "host=localhost user=postgres dbname=test"
	if strings.Contains(s, "host=") || strings.Contains(s, "dbname=") || strings.Contains(s, "user=") {
		return "postgres"
	}
	return "sqlite3"
}
