package store

import (
	"fmt"
	"sync"
)

// MemStore is an in-memory Store used by tests and ephemeral hosts.
type MemStore struct {
	mu      sync.RWMutex
	records map[string][]byte
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{records: make(map[string][]byte)}
}

// Save implements Store.
func (s *MemStore) Save(id string, data []byte) (string, error) {
	if id == "" {
		return "", fmt.Errorf("mem store: empty plugin id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[id] = append([]byte(nil), data...)
	return "mem://" + id, nil
}

// Load implements Store.
func (s *MemStore) Load(id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return append([]byte(nil), data...), nil
}

// Delete implements Store.
func (s *MemStore) Delete(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[id]
	delete(s.records, id)
	return ok, nil
}

// Exists implements Store.
func (s *MemStore) Exists(id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[id]
	return ok, nil
}
