package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]memoryRecord
}

type memoryRecord struct {
	Record
	completed bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty memory-backed store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]memoryRecord)}
}

// Begin implements Store.
func (s *MemoryStore) Begin(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Outcome, Record, error) {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := documentID(key)
	stored, ok := s.records[id]
	if !ok || (!stored.ExpiresAt.IsZero() && !now.Before(stored.ExpiresAt)) {
		fresh := memoryRecord{Record: Record{
			Fingerprint: fingerprint,
			CreatedAt:   now,
			ExpiresAt:   now.Add(ttl),
		}}
		s.records[id] = fresh
		return OutcomeNew, fresh.Record, nil
	}

	if stored.Fingerprint != fingerprint {
		return OutcomeNew, Record{}, ErrFingerprintMismatch
	}
	if stored.completed {
		return OutcomeReplay, stored.Record, nil
	}
	return OutcomeInFlight, stored.Record, nil
}

// Finish implements Store.
func (s *MemoryStore) Finish(_ context.Context, key, fingerprint string, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := documentID(key)
	if stored, ok := s.records[id]; ok && stored.Fingerprint != fingerprint {
		return ErrFingerprintMismatch
	}
	record.Fingerprint = fingerprint
	if len(record.Body) > 0 {
		record.Body = append([]byte(nil), record.Body...)
	}
	s.records[id] = memoryRecord{Record: record, completed: true}
	return nil
}

// Abandon implements Store.
func (s *MemoryStore) Abandon(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, documentID(key))
	return nil
}

// Purge implements Store.
func (s *MemoryStore) Purge(_ context.Context, now time.Time, limit int) (int, error) {
	now = now.UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.records) {
		limit = len(s.records)
	}

	removed := 0
	for id, stored := range s.records {
		if stored.ExpiresAt.IsZero() || now.Before(stored.ExpiresAt) {
			continue
		}
		delete(s.records, id)
		removed++
		if removed >= limit {
			break
		}
	}
	return removed, nil
}
