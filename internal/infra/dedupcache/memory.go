package dedupcache

import (
	"context"
	"sync"

	"incidentproxy/internal/domain"
)

// memoryCache keeps recent dedup keys in a bounded set. When the cap
// is hit the oldest keys fall out first, so a very chatty provider can
// only age out history, never grow the set without bound.
type memoryCache struct {
	mu    sync.Mutex
	keys  map[string]struct{}
	order []string
	cap   int
}

const defaultMemoryCap = 1000

func NewMemoryCache(capacity int) domain.DedupCache {
	if capacity <= 0 {
		capacity = defaultMemoryCap
	}
	return &memoryCache{
		keys: make(map[string]struct{}, capacity),
		cap:  capacity,
	}
}

func (m *memoryCache) Remember(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.keys[key]; ok {
		return true, nil
	}
	for len(m.order) >= m.cap {
		oldest := m.order[0]
		m.order = m.order[1:]
		delete(m.keys, oldest)
	}
	m.keys[key] = struct{}{}
	m.order = append(m.order, key)
	return false, nil
}
