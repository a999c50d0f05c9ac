// Package filestore implements the durable key/value store as a single JSONL
// file. Every write rewrites the file atomically, so the file on disk is
// always a complete snapshot that can be inspected or copied by hand.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/mesh-intelligence/cartsync/pkg/types"
)

// FileName is the JSONL file created inside Config.DataDir.
const FileName = "cart.jsonl"

var _ types.KVStore = (*Store)(nil)

// Store implements types.KVStore on top of a JSONL file.
type Store struct {
	mu       sync.Mutex
	attached bool
	path     string
	values   map[string]string
}

// NewStore creates a detached file store.
func NewStore() *Store {
	return &Store{}
}

// Attach creates DataDir and the store file if needed, then loads every
// record into memory. Returns ErrAlreadyAttached if already attached.
func (s *Store) Attach(config types.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attached {
		return types.ErrAlreadyAttached
	}
	if err := config.Validate(); err != nil {
		return err
	}

	dataDir := config.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	path := filepath.Join(dataDir, FileName)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := writeJSONL(path, nil); err != nil {
			return fmt.Errorf("initialize %s: %w", FileName, err)
		}
	}

	records, err := readJSONL(path)
	if err != nil {
		return fmt.Errorf("load %s: %w", FileName, err)
	}

	s.values = make(map[string]string, len(records))
	for _, rec := range records {
		s.values[rec.Key] = rec.Value
	}
	s.path = path
	s.attached = true
	return nil
}

// Detach releases the in-memory copy. Detach is idempotent.
func (s *Store) Detach() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attached = false
	s.values = nil
	return nil
}

// Get returns the value stored under key, or ErrNotFound.
func (s *Store) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.attached {
		return "", types.ErrStoreDetached
	}
	if key == "" {
		return "", types.ErrInvalidKey
	}
	v, ok := s.values[key]
	if !ok {
		return "", types.ErrNotFound
	}
	return v, nil
}

// Set stores value under key and rewrites the file. On write failure the
// in-memory value is rolled back so memory never runs ahead of disk.
func (s *Store) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.attached {
		return types.ErrStoreDetached
	}
	if key == "" {
		return types.ErrInvalidKey
	}

	prev, had := s.values[key]
	s.values[key] = value
	if err := s.persistLocked(); err != nil {
		if had {
			s.values[key] = prev
		} else {
			delete(s.values, key)
		}
		return fmt.Errorf("setting %s: %w", key, err)
	}
	return nil
}

// Remove deletes key and rewrites the file. Removing a missing key succeeds.
func (s *Store) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.attached {
		return types.ErrStoreDetached
	}
	if key == "" {
		return types.ErrInvalidKey
	}

	prev, had := s.values[key]
	if !had {
		return nil
	}
	delete(s.values, key)
	if err := s.persistLocked(); err != nil {
		s.values[key] = prev
		return fmt.Errorf("removing %s: %w", key, err)
	}
	return nil
}

// persistLocked writes every key in lexical order. The caller must hold s.mu.
func (s *Store) persistLocked() error {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	records := make([]record, 0, len(keys))
	for _, k := range keys {
		records = append(records, record{Key: k, Value: s.values[k]})
	}
	return writeJSONL(s.path, records)
}
