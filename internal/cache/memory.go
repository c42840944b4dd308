package cache

import (
	"context"
	"sync"
)

var _ Store = (*Memory)(nil)

// bucket is the state of a single namespace.
type bucket struct {
	gen     uint64
	entries map[string][]byte
}

// Memory is a process-local Store.
type Memory struct {
	maxEntries int

	mu      sync.RWMutex
	buckets map[string]*bucket
}

// NewMemory creates a Memory store keeping at most maxEntries values per
// namespace. Zero means unbounded.
func NewMemory(maxEntries int) *Memory {
	return &Memory{
		maxEntries: maxEntries,
		buckets:    make(map[string]*bucket),
	}
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, ns, key string) ([]byte, uint64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.buckets[ns]
	if !ok {
		return nil, 0, false, nil
	}
	v, ok := b.entries[key]
	return v, b.gen, ok, nil
}

// Put implements Store.
func (m *Memory) Put(_ context.Context, ns, key string, val []byte, gen uint64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.bucketLocked(ns)
	if b.gen != gen {
		return false, nil
	}
	if _, exists := b.entries[key]; !exists && m.maxEntries > 0 && len(b.entries) >= m.maxEntries {
		return false, nil
	}
	b.entries[key] = val
	return true, nil
}

// Purge implements Store.
func (m *Memory) Purge(_ context.Context, ns string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.bucketLocked(ns)
	b.gen++
	b.entries = make(map[string][]byte)
	return nil
}

// Ping implements Store.
func (m *Memory) Ping(context.Context) error {
	return nil
}

// Len returns the number of entries cached in ns.
func (m *Memory) Len(ns string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if b, ok := m.buckets[ns]; ok {
		return len(b.entries)
	}
	return 0
}

func (m *Memory) bucketLocked(ns string) *bucket {
	b, ok := m.buckets[ns]
	if !ok {
		b = &bucket{entries: make(map[string][]byte)}
		m.buckets[ns] = b
	}
	return b
}
