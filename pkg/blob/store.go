// Package blob keeps encoded crop outputs addressable by an opaque handle
// until they are explicitly revoked.
package blob

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Handle identifies a stored blob
type Handle string

// Store is a concurrency-safe in-memory blob registry
type Store struct {
	mu    sync.RWMutex
	blobs map[Handle][]byte
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{blobs: make(map[Handle][]byte)}
}

// Put stores data and returns its handle
func (s *Store) Put(data []byte) Handle {
	h := Handle("blob:" + uuid.NewString())

	s.mu.Lock()
	s.blobs[h] = data
	s.mu.Unlock()

	return h
}

// Get returns the bytes for h
func (s *Store) Get(h Handle) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.blobs[h]
	if !ok {
		return nil, fmt.Errorf("blob %s: not found", h)
	}
	return data, nil
}

// Revoke releases h. Revoking an unknown handle is a no-op.
func (s *Store) Revoke(h Handle) {
	s.mu.Lock()
	delete(s.blobs, h)
	s.mu.Unlock()
}

// Len reports how many blobs are held
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
