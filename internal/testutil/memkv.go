// Package testutil provides in-memory collaborators for cartsync tests.
package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/mesh-intelligence/cartsync/pkg/types"
)

// ErrInjected is returned by MemKV operations configured to fail.
var ErrInjected = errors.New("injected storage failure")

var _ types.KVStore = (*MemKV)(nil)

// MemKV is an in-memory types.KVStore with per-operation failure switches.
type MemKV struct {
	mu         sync.Mutex
	values     map[string]string
	FailGet    bool
	FailSet    bool
	FailRemove bool
	Sets       int
}

// NewMemKV returns an attached, empty MemKV.
func NewMemKV() *MemKV {
	return &MemKV{values: make(map[string]string)}
}

func (m *MemKV) Attach(types.Config) error { return nil }
func (m *MemKV) Detach() error             { return nil }

func (m *MemKV) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailGet {
		return "", ErrInjected
	}
	v, ok := m.values[key]
	if !ok {
		return "", types.ErrNotFound
	}
	return v, nil
}

func (m *MemKV) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSet {
		return ErrInjected
	}
	m.Sets++
	m.values[key] = value
	return nil
}

func (m *MemKV) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailRemove {
		return ErrInjected
	}
	delete(m.values, key)
	return nil
}

// Peek reads a value without failure injection.
func (m *MemKV) Peek(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok
}

// Put writes a value without failure injection.
func (m *MemKV) Put(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
}

// SetFailures switches failure injection under the lock.
func (m *MemKV) SetFailures(get, set, remove bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailGet, m.FailSet, m.FailRemove = get, set, remove
}
