package session

import (
	"context"
	"sync"
)

// MemoryStore is a process-local [Store]. Records are kept encoded so reads
// never alias the caller's value.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string][]byte
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]byte)}
}

func (s *MemoryStore) Save(_ context.Context, key string, r *Record) error {
	blob, err := Encode(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.records[key] = blob
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Load(_ context.Context, key string) (*Record, error) {
	s.mu.Lock()
	blob, ok := s.records[key]
	s.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return Decode(blob)
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.records, key)
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
