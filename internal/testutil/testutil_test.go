package testutil

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/BTreeMap/BulkPipe/internal/messaging"
	"github.com/BTreeMap/BulkPipe/internal/store"
)

func TestWriteFile(t *testing.T) {
	path := WriteFile(t, "contacts.csv", "phone\n1\n")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "phone\n1\n" {
		t.Errorf("content = %q", data)
	}
	if filepath.Base(path) != "contacts.csv" {
		t.Errorf("path = %q", path)
	}
}

func TestOpenSQLiteLedgerAndAssertions(t *testing.T) {
	ledger := OpenSQLiteLedger(t, filepath.Join(t.TempDir(), "ledger.db"))
	if err := ledger.MarkSent(context.Background(), "5511"); err != nil {
		t.Fatalf("MarkSent failed: %v", err)
	}
	AssertSent(t, ledger, "5511")
	AssertNotSent(t, ledger, "5522")

	// Explicit close before cleanup must not break the cleanup close.
	if err := ledger.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestAssertionsAcceptInMemoryLedger(t *testing.T) {
	ledger := store.NewInMemoryStore()
	ledger.MarkSent(context.Background(), "1")
	AssertSent(t, ledger, "1")
	AssertNotSent(t, ledger, "2", "3")
}

func TestRecordingSender(t *testing.T) {
	boom := errors.New("boom")
	s := &RecordingSender{Fail: map[string]error{"2": boom}}

	if err := s.SendMessage(context.Background(), "1", "a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := s.SendMessage(context.Background(), "2", "b")
	var transportErr *messaging.TransportError
	if !errors.As(err, &transportErr) || !errors.Is(err, boom) {
		t.Errorf("expected TransportError wrapping boom, got %v", err)
	}
	if err := s.SendMessage(context.Background(), "3", "c"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := s.Recipients()
	if len(got) != 2 || got[0] != "1" || got[1] != "3" {
		t.Errorf("Recipients() = %v", got)
	}
	if sent := s.Sent(); sent[1].Body != "c" {
		t.Errorf("Sent() = %+v", sent)
	}
}
