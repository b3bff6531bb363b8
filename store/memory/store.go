// Package memory provides an in-process Store. State lives only as long as
// the process.
package memory

import (
	"context"
	"sync"

	"github.com/xraph/entitle"
	"github.com/xraph/entitle/store"
)

var (
	_ store.Store             = (*Store)(nil)
	_ store.CompareAndSwapper = (*Store)(nil)
)

// Store is a map guarded by a RWMutex.
type Store struct {
	mu     sync.RWMutex
	values map[string]string
	closed bool
}

// New creates an empty Store.
func New() *Store {
	return &Store{values: make(map[string]string)}
}

// Get implements store.Store.
func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", false, entitle.ErrStoreClosed
	}
	v, ok := s.values[key]
	return v, ok, nil
}

// Set implements store.Store.
func (s *Store) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return entitle.ErrStoreClosed
	}
	s.values[key] = value
	return nil
}

// CompareAndSwap implements store.CompareAndSwapper.
func (s *Store) CompareAndSwap(_ context.Context, key, old, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, entitle.ErrStoreClosed
	}
	if s.values[key] != old {
		return false, nil
	}
	s.values[key] = value
	return true, nil
}

// Delete removes key. It exists for tests and tooling; the engine never deletes.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)
	return nil
}

// Ping implements store.Store.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return entitle.ErrStoreClosed
	}
	return nil
}

// Close implements store.Store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}
