// Package testutil provides common test utilities and helpers for BulkPipe tests.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/BTreeMap/BulkPipe/internal/messaging"
	"github.com/BTreeMap/BulkPipe/internal/store"
)

// WriteFile writes content to name inside a fresh temp directory and returns
// the full path.
func WriteFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

// OpenSQLiteLedger opens an SQLite ledger at path and closes it when the test
// ends. Closing it earlier is allowed.
func OpenSQLiteLedger(t *testing.T, path string) *store.SQLiteStore {
	t.Helper()
	ledger, err := store.NewSQLiteStore(store.WithSQLiteDSN(path))
	if err != nil {
		t.Fatalf("failed to open SQLite ledger: %v", err)
	}
	t.Cleanup(func() { ledger.Close() })
	return ledger
}

// AssertSent checks that every id has a delivery record in ledger.
func AssertSent(t *testing.T, ledger store.Ledger, ids ...string) {
	t.Helper()
	for _, id := range ids {
		sent, err := ledger.HasSent(context.Background(), id)
		if err != nil {
			t.Fatalf("HasSent(%q) failed: %v", id, err)
		}
		if !sent {
			t.Errorf("expected delivery record for %q", id)
		}
	}
}

// AssertNotSent checks that no id has a delivery record in ledger.
func AssertNotSent(t *testing.T, ledger store.Ledger, ids ...string) {
	t.Helper()
	for _, id := range ids {
		sent, err := ledger.HasSent(context.Background(), id)
		if err != nil {
			t.Fatalf("HasSent(%q) failed: %v", id, err)
		}
		if sent {
			t.Errorf("unexpected delivery record for %q", id)
		}
	}
}

// SentMessage is one message accepted by a RecordingSender.
type SentMessage struct {
	To   string
	Body string
}

// RecordingSender is a messaging.Sender that keeps every accepted message.
// Recipients listed in Fail get the mapped error instead.
type RecordingSender struct {
	mu   sync.Mutex
	sent []SentMessage
	Fail map[string]error
}

var _ messaging.Sender = (*RecordingSender)(nil)

func (s *RecordingSender) SendMessage(_ context.Context, to string, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.Fail[to]; ok {
		return &messaging.TransportError{To: to, Err: err}
	}
	s.sent = append(s.sent, SentMessage{To: to, Body: body})
	return nil
}

// Sent returns a copy of the accepted messages in send order.
func (s *RecordingSender) Sent() []SentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SentMessage(nil), s.sent...)
}

// Recipients returns the accepted recipients in send order.
func (s *RecordingSender) Recipients() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	to := make([]string, len(s.sent))
	for i, m := range s.sent {
		to[i] = m.To
	}
	return to
}
