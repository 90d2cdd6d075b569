package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value      []byte
	insertedAt time.Time
}

// Memory is a TTL- and capacity-bounded in-memory store. Expired entries
// read as misses and are replaced on the next Put; insertion beyond
// capacity evicts the oldest entry first.
type Memory struct {
	mu       sync.Mutex
	entries  map[string]entry
	ttl      time.Duration
	capacity int
	now      func() time.Time
}

// NewMemory builds a store with the given TTL and entry capacity.
func NewMemory(ttl time.Duration, capacity int) *Memory {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Memory{
		entries:  make(map[string]entry, capacity),
		ttl:      ttl,
		capacity: capacity,
		now:      time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if m.now().Sub(e.insertedAt) >= m.ttl {
		delete(m.entries, key)
		return nil, false
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true
}

func (m *Memory) Put(_ context.Context, key string, value []byte) {
	stored := make([]byte, len(value))
	copy(stored, value)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[key]; !exists && len(m.entries) >= m.capacity {
		m.evictOldestLocked()
	}
	m.entries[key] = entry{value: stored, insertedAt: m.now()}
}

func (m *Memory) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	first := true
	for k, e := range m.entries {
		if first || e.insertedAt.Before(oldestAt) {
			oldestKey, oldestAt = k, e.insertedAt
			first = false
		}
	}
	if !first {
		delete(m.entries, oldestKey)
	}
}

// Len reports the current entry count, expired entries included until
// their next read or eviction.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
