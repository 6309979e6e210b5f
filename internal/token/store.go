// Package token holds the access credential for the current session.
// The store is a single slot: the token is replaced wholesale on sign-in or
// refresh and cleared on sign-out or terminal authentication failure.
package token

import "sync"

// Store is the single-slot credential store.
type Store interface {
	// Get returns the stored token, or false when none is held.
	Get() (string, bool)

	// Set replaces the stored token.
	Set(token string) error

	// Clear removes the stored token.
	Clear() error
}

// MemoryStore keeps the token for the lifetime of the process.
type MemoryStore struct {
	mu    sync.RWMutex
	token string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Get() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

func (s *MemoryStore) Set(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}
