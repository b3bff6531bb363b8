// Package file provides a Store backed by a single JSON document on local
// disk, the equivalent of device-local key-value storage. Writes go to a
// temporary file first and are renamed into place.
//
// Set and CompareAndSwap hold an exclusive lock on a sibling ".lock" file
// for the whole read-modify-write, so several processes sharing one document
// (two CLI invocations, say) cannot both pass a cap. On platforms without
// flock(2) the lock only covers the current process.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/xraph/entitle"
	"github.com/xraph/entitle/store"
)

var (
	_ store.Store             = (*Store)(nil)
	_ store.CompareAndSwapper = (*Store)(nil)
)

// DefaultFileName is used when New is given a directory.
const DefaultFileName = "entitlements.json"

// Store persists all keys in one file.
type Store struct {
	path   string
	mu     sync.Mutex
	closed bool
}

// New creates a Store writing to path. If path is an existing directory the
// document is stored as DefaultFileName inside it.
func New(path string) *Store {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, DefaultFileName)
	}
	return &Store{path: path}
}

// Path returns the document location.
func (s *Store) Path() string { return s.path }

// Get implements store.Store.
func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", false, entitle.ErrStoreClosed
	}
	values, err := s.read()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

// Set implements store.Store.
func (s *Store) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return entitle.ErrStoreClosed
	}
	return s.locked(func() error {
		values, err := s.read()
		if err != nil {
			// An unreadable document is replaced rather than blocking writes.
			values = make(map[string]string)
		}
		values[key] = value
		return s.write(values)
	})
}

// CompareAndSwap implements store.CompareAndSwapper.
func (s *Store) CompareAndSwap(_ context.Context, key, old, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, entitle.ErrStoreClosed
	}
	var swapped bool
	err := s.locked(func() error {
		values, err := s.read()
		if err != nil {
			return err
		}
		if values[key] != old {
			return nil
		}
		values[key] = value
		if err := s.write(values); err != nil {
			return err
		}
		swapped = true
		return nil
	})
	return swapped, err
}

// locked runs fn holding the document's lock file.
func (s *Store) locked(fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("entitle/file: create directory: %w", err)
	}
	f, err := os.OpenFile(s.path+".lock", os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return fmt.Errorf("entitle/file: open lock: %w", err)
	}
	defer f.Close()

	if err := lockFile(f); err != nil {
		return fmt.Errorf("entitle/file: acquire lock: %w", err)
	}
	defer unlockFile(f) //nolint:errcheck

	return fn()
}

// Ping implements store.Store by checking that the directory is writable.
func (s *Store) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return entitle.ErrStoreClosed
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("entitle/file: create directory %s: %w", dir, err)
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

func (s *Store) read() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return make(map[string]string), nil
		}
		return nil, fmt.Errorf("entitle/file: read %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return make(map[string]string), nil
	}

	values := make(map[string]string)
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("entitle/file: decode %s: %w", s.path, err)
	}
	return values, nil
}

func (s *Store) write(values map[string]string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("entitle/file: encode: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("entitle/file: create directory: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("entitle/file: write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("entitle/file: commit %s: %w", s.path, err)
	}
	return nil
}
