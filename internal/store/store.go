package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// InMemoryStore is a process-local ledger. Dry runs use it so that rendered
// but unsent messages never reach the durable ledger.
type InMemoryStore struct {
	mu   sync.Mutex
	sent map[string]bool
}

// Compile-time checks that InMemoryStore implements Ledger and RecordLister.
var (
	_ Ledger       = (*InMemoryStore)(nil)
	_ RecordLister = (*InMemoryStore)(nil)
)

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sent: make(map[string]bool)}
}

func (s *InMemoryStore) HasSent(_ context.Context, contactID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sent[contactID]
	return ok, nil
}

func (s *InMemoryStore) MarkSent(_ context.Context, contactID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sent[contactID]; ok {
		slog.Warn("InMemoryStore MarkSent: contact already recorded", "contact", contactID)
		return nil
	}
	s.sent[contactID] = true
	return nil
}

// Records returns every delivery record ordered by contact id.
func (s *InMemoryStore) Records(_ context.Context) ([]DeliveryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := make([]DeliveryRecord, 0, len(s.sent))
	for id, sent := range s.sent {
		records = append(records, DeliveryRecord{ContactID: id, Sent: sent})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ContactID < records[j].ContactID })
	return records, nil
}

func (s *InMemoryStore) Close() error {
	return nil
}
