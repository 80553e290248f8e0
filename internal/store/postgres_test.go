package store

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New failed: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet sqlmock expectations: %v", err)
		}
	})
	return &PostgresStore{db: db}, mock
}

var (
	pgSelectSent = regexp.QuoteMeta(`SELECT sent FROM checks WHERE cellphone_id = $1`)
	pgInsertSent = regexp.QuoteMeta(`INSERT INTO checks (cellphone_id, sent) VALUES ($1, $2) ON CONFLICT (cellphone_id) DO NOTHING`)
)

func TestPostgresStore_HasSent(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(pgSelectSent).
		WithArgs("5511999990000").
		WillReturnRows(sqlmock.NewRows([]string{"sent"}).AddRow(true))
	mock.ExpectQuery(pgSelectSent).
		WithArgs("5511999991111").
		WillReturnRows(sqlmock.NewRows([]string{"sent"}))

	sent, err := s.HasSent(context.Background(), "5511999990000")
	if err != nil || !sent {
		t.Fatalf("HasSent(known) = %v, %v; want true, nil", sent, err)
	}
	sent, err = s.HasSent(context.Background(), "5511999991111")
	if err != nil || sent {
		t.Fatalf("HasSent(unknown) = %v, %v; want false, nil", sent, err)
	}
}

func TestPostgresStore_HasSentQueryFailure(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(pgSelectSent).
		WithArgs("5511999990000").
		WillReturnError(errors.New("connection refused"))

	_, err := s.HasSent(context.Background(), "5511999990000")
	var storageErr *StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("Expected StorageError, got %v", err)
	}
}

func TestPostgresStore_MarkSent(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(pgInsertSent).
		WithArgs("5511999990000", true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.MarkSent(context.Background(), "5511999990000"); err != nil {
		t.Fatalf("MarkSent failed: %v", err)
	}
}

func TestPostgresStore_MarkSentConflictIsSwallowed(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(pgInsertSent).
		WithArgs("5511999990000", true).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.MarkSent(context.Background(), "5511999990000"); err != nil {
		t.Fatalf("MarkSent on existing record should not fail, got: %v", err)
	}
}

func TestPostgresStore_MarkSentFailure(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(pgInsertSent).
		WithArgs("5511999990000", true).
		WillReturnError(errors.New("disk full"))

	err := s.MarkSent(context.Background(), "5511999990000")
	var storageErr *StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("Expected StorageError, got %v", err)
	}
	if storageErr.Op != "mark_sent" {
		t.Errorf("Expected op mark_sent, got %q", storageErr.Op)
	}
}

func TestMigratePostgres(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New failed: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS checks").
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := migratePostgres(db); err != nil {
		t.Fatalf("migratePostgres failed: %v", err)
	}

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS checks").
		WillReturnError(errors.New("permission denied"))
	err = migratePostgres(db)
	var storageErr *StorageError
	if !errors.As(err, &storageErr) || storageErr.Op != "migrate" {
		t.Fatalf("Expected migrate StorageError, got %v", err)
	}
}

func TestPostgresStore_Records(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT cellphone_id, sent FROM checks ORDER BY cellphone_id`)).
		WillReturnRows(sqlmock.NewRows([]string{"cellphone_id", "sent"}).
			AddRow("1001", true).
			AddRow("1002", true))

	records, err := s.Records(context.Background())
	if err != nil {
		t.Fatalf("Records failed: %v", err)
	}
	if len(records) != 2 || records[0].ContactID != "1001" || !records[1].Sent {
		t.Errorf("Unexpected records %+v", records)
	}
}
