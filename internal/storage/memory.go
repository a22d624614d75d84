// ABOUTME: In-memory KV store for tests and ephemeral runs
// ABOUTME: Copies values in and out so callers cannot alias stored bytes

package storage

import "sync"

// MemoryKV is a process-local KV store.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ KV = (*MemoryKV)(nil)

// NewMemoryKV creates an empty in-memory store.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

func (m *MemoryKV) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryKV) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryKV) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemoryKV) Close() error {
	return nil
}
