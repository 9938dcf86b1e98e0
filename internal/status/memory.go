package status

import (
	"context"
	"sync"
	"time"
)

type memoryRecord struct {
	status    JobStatus
	expiresAt time.Time
}

// MemoryStore is an in-process Store used for local development and tests.
// It honors the same TTL re-arm semantics as the Redis backend.
type MemoryStore struct {
	mu      sync.Mutex
	now     func() time.Time
	records map[string]memoryRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:     time.Now,
		records: make(map[string]memoryRecord),
	}
}

// SetClock overrides the time source. Test hook.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) Put(_ context.Context, jobID string, st JobStatus, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[jobID] = memoryRecord{
		status:    st,
		expiresAt: s.now().Add(ttl),
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, jobID string) (*JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[jobID]
	if !ok {
		return nil, nil
	}
	if !s.now().Before(rec.expiresAt) {
		delete(s.records, jobID)
		return nil, nil
	}
	st := rec.status
	return &st, nil
}

func (s *MemoryStore) Scan(_ context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var entries []Entry
	for id, rec := range s.records {
		if !now.Before(rec.expiresAt) {
			delete(s.records, id)
			continue
		}
		entries = append(entries, Entry{JobID: id, Status: rec.status})
	}
	return entries, nil
}
