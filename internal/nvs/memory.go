package nvs

import (
	"context"
	"sort"
	"sync"
)

// MemoryBackend keeps committed blobs in a map. FailApply, when set, is
// returned by the next Apply calls and FailGet maps keys to read errors;
// tests use them to simulate flash errors.
type MemoryBackend struct {
	mu        sync.Mutex
	data      map[string]map[string][]byte
	FailApply error
	FailGet   map[string]error
	commits   int
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string]map[string][]byte)}
}

// Get implements Backend.
func (m *MemoryBackend) Get(_ context.Context, namespace, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.FailGet[key]; err != nil {
		return nil, false, err
	}
	v, ok := m.data[namespace][key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Apply implements Backend.
func (m *MemoryBackend) Apply(_ context.Context, namespace string, puts map[string][]byte, deletes []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailApply != nil {
		return m.FailApply
	}

	ns, ok := m.data[namespace]
	if !ok {
		ns = make(map[string][]byte)
		m.data[namespace] = ns
	}
	for k, v := range puts {
		ns[k] = append([]byte(nil), v...)
	}
	for _, k := range deletes {
		delete(ns, k)
	}
	m.commits++
	return nil
}

// Keys implements Backend.
func (m *MemoryBackend) Keys(_ context.Context, namespace string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.data[namespace]))
	for k := range m.data[namespace] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Commits returns how many batches were applied.
func (m *MemoryBackend) Commits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits
}

// Close implements Backend.
func (m *MemoryBackend) Close() error {
	return nil
}
