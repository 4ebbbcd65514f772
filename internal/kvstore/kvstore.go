// Package kvstore provides the key-value capability that holds per-visitor cart state.
// Backends: in-memory, SQLite (file-backed) and Redis.
package kvstore

import (
	"context"
	"sync"
)

// Well-known keys. Stores are scoped per visitor with Namespaced.
const (
	KeyGuestCart  = "cart.guest"
	KeyPending    = "cart.pending"
	KeyCartMerged = "session.cartMerged"
)

// Store is a minimal byte-valued key-value store.
// Get reports ok=false for a missing key; that is not an error.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

// Memory is an in-process Store. The zero value is not usable; use NewMemory.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Len returns the number of stored keys.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// namespaced prefixes every key so many visitors can share one backend.
type namespaced struct {
	store  Store
	prefix string
}

// Namespaced scopes store to keys under prefix ("prefix:key").
func Namespaced(store Store, prefix string) Store {
	return &namespaced{store: store, prefix: prefix + ":"}
}

func (n *namespaced) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return n.store.Get(ctx, n.prefix+key)
}

func (n *namespaced) Set(ctx context.Context, key string, value []byte) error {
	return n.store.Set(ctx, n.prefix+key, value)
}

func (n *namespaced) Remove(ctx context.Context, key string) error {
	return n.store.Remove(ctx, n.prefix+key)
}
