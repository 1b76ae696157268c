// Package respcache stores raw upstream response bodies keyed by request
// fingerprint. A broken cache backend is never fatal to the pipeline:
// reads degrade to a miss and writes to a no-op.
package respcache

import (
	"context"
	"sync"
	"time"
)

// Store is a key/value store with per-entry expiry. It does not
// interpret the body.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, body []byte, ttl time.Duration)
}

type memoryEntry struct {
	body      []byte
	expiresAt time.Time
}

// Memory is an in-process Store. Expired entries are dropped lazily on
// read and whenever the map grows past its high-water mark.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		entries: map[string]memoryEntry{},
		now:     time.Now,
	}
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if m.now().After(entry.expiresAt) {
		delete(m.entries, key)
		return nil, false
	}
	return entry.body, true
}

func (m *Memory) Set(ctx context.Context, key string, body []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.entries) > 4096 {
		now := m.now()
		for k, e := range m.entries {
			if now.After(e.expiresAt) {
				delete(m.entries, k)
			}
		}
	}
	m.entries[key] = memoryEntry{
		body:      body,
		expiresAt: m.now().Add(ttl),
	}
}
