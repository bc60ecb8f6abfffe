package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps records in process memory. Single-instance development
// and tests only: instances do not share windows.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string][]Record
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]Record)}
}

// Attempt implements Store
func (s *MemoryStore) Attempt(_ context.Context, rec Record, limit Limit) (Window, error) {
	key := storeKey(rec.Identifier, rec.Operation)
	since := rec.ObservedAt.Add(-limit.Window)

	s.mu.Lock()
	defer s.mu.Unlock()

	var win Window
	for _, r := range s.records[key] {
		if r.ObservedAt.Before(since) {
			continue
		}
		if win.Count == 0 || r.ObservedAt.Before(win.Oldest) {
			win.Oldest = r.ObservedAt
		}
		win.Count++
	}

	if win.Count < limit.MaxRequests {
		rec.ConsecutiveAttempts = win.Count + 1
		s.records[key] = append(s.records[key], rec)
		win.Recorded = true
	}
	return win, nil
}

// Prune implements Store
func (s *MemoryStore) Prune(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for key, recs := range s.records {
		kept := recs[:0]
		for _, r := range recs {
			if r.ObservedAt.Before(before) {
				deleted++
				continue
			}
			kept = append(kept, r)
		}
		if len(kept) == 0 {
			delete(s.records, key)
			continue
		}
		s.records[key] = kept
	}
	return deleted, nil
}

// Ping implements Store
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Len returns the total number of stored records
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, recs := range s.records {
		n += len(recs)
	}
	return n
}

func storeKey(identifier string, op Operation) string {
	return "rate_limit:" + string(op) + ":" + identifier
}
