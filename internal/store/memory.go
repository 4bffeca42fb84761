package store

import (
	"context"
	"slices"
	"sort"
	"sync"
)

// MemoryKV is an in-process KV used for tests and single-shot CLI runs.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

// NewMemoryKV creates an empty in-memory store.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string]map[string][]byte)}
}

// Put implements KV.
func (m *MemoryKV) Put(_ context.Context, namespace, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ns, ok := m.data[namespace]
	if !ok {
		ns = make(map[string][]byte)
		m.data[namespace] = ns
	}
	ns[key] = slices.Clone(value)
	return nil
}

// Get implements KV.
func (m *MemoryKV) Get(_ context.Context, namespace, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[namespace][key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return slices.Clone(v), nil
}

// Delete implements KV.
func (m *MemoryKV) Delete(_ context.Context, namespace, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data[namespace], key)
	return nil
}

// Keys implements KV.
func (m *MemoryKV) Keys(_ context.Context, namespace string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.data[namespace]))
	for k := range m.data[namespace] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close implements KV.
func (m *MemoryKV) Close() error { return nil }
