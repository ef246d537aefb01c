package storage

import (
	"sort"
	"sync"
)

// Store defines the interface for node-local key-value storage.
type Store interface {
	// Get retrieves a value by key. The bool is false if the key is absent.
	Get(key string) (string, bool)
	// Put inserts or overwrites a value. Last write wins.
	Put(key, value string)
	// Snapshot returns a copy of every entry.
	Snapshot() map[string]string
	// Absorb overwrites local entries with the given ones.
	Absorb(entries map[string]string)
	// Keys returns all keys in lexical order.
	Keys() []string
	// Len returns the number of entries.
	Len() int
}

// InMemoryStore is an in-memory implementation of Store.
// It's safe for concurrent use so a join can run beside the serve loop.
type InMemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewInMemoryStore creates a new in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		data: make(map[string]string),
	}
}

// Get retrieves a value by key.
func (s *InMemoryStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, exists := s.data[key]
	return value, exists
}

// Put stores a value.
func (s *InMemoryStore) Put(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = value
}

// Snapshot returns a copy of the store so callers can iterate without
// holding the lock.
func (s *InMemoryStore) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make(map[string]string, len(s.data))
	for k, v := range s.data {
		snapshot[k] = v
	}
	return snapshot
}

// Absorb applies all entries under a single lock acquisition.
func (s *InMemoryStore) Absorb(entries map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, v := range entries {
		s.data[k] = v
	}
}

// Keys returns all keys in lexical order.
func (s *InMemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of entries.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
