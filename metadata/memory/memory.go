// Package memory provides an in-process metadata store.
package memory

import (
	"context"
	"errors"
	"maps"
	"sync"
)

// ErrStoreClosed is returned by operations on a closed store.
var ErrStoreClosed = errors.New("memory: store closed")

// Store is an in-memory metadata.Store. Data is lost when the process exits.
type Store struct {
	mu     sync.RWMutex
	values map[string]int64
	puts   int
	closed bool
}

// New creates an empty store.
func New() *Store {
	return &Store{values: make(map[string]int64)}
}

// Get implements metadata.Store.
func (s *Store) Get(_ context.Context, key string) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, false, ErrStoreClosed
	}
	v, ok := s.values[key]
	return v, ok, nil
}

// Put implements metadata.Store.
func (s *Store) Put(_ context.Context, values map[string]int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	maps.Copy(s.values, values)
	s.puts++
	return nil
}

// Puts returns the number of successful Put calls.
func (s *Store) Puts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.puts
}

// Snapshot returns a copy of the stored values.
func (s *Store) Snapshot() map[string]int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.values)
}

// Close marks the store closed. Later calls fail with ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
