package cache

import (
	"context"
	"sync"
	"time"

	"github.com/poyrazK/dnsSentinel/internal/core/domain"
	"github.com/poyrazK/dnsSentinel/internal/infrastructure/metrics"
)

type memoryEntry struct {
	snap      domain.Snapshot
	expiresAt time.Time
}

// MemoryCache is a process-local snapshot cache used when Redis is not
// configured. Expired entries are dropped on read; the portfolio is small
// enough that no cleanup loop is needed.
type MemoryCache struct {
	mu    sync.RWMutex
	items map[string]memoryEntry
}

// NewMemoryCache initializes an empty in-memory snapshot cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: make(map[string]memoryEntry)}
}

func (c *MemoryCache) Get(ctx context.Context, domainName string) (*domain.Snapshot, bool) {
	c.mu.RLock()
	entry, found := c.items[domainName]
	c.mu.RUnlock()

	if !found || time.Now().After(entry.expiresAt) {
		if found {
			c.mu.Lock()
			delete(c.items, domainName)
			c.mu.Unlock()
		}
		metrics.SnapshotCacheOperations.WithLabelValues("miss").Inc()
		return nil, false
	}
	metrics.SnapshotCacheOperations.WithLabelValues("hit").Inc()
	snap := entry.snap
	return &snap, true
}

func (c *MemoryCache) Set(ctx context.Context, snap domain.Snapshot, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[snap.Domain] = memoryEntry{snap: snap, expiresAt: time.Now().Add(ttl)}
}
