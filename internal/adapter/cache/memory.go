package cache

import (
	"context"
	"sync"
	"time"

	"github.com/semmidev/sqlkeep/internal/domain"
)

type memoryEntry struct {
	entries   []domain.BackupEntry
	expiresAt time.Time
}

// MemoryCache is a process-local listing cache.
type MemoryCache struct {
	mu    sync.Mutex
	items map[string]memoryEntry
	now   func() time.Time
}

func NewMemory() *MemoryCache {
	return &MemoryCache{
		items: make(map[string]memoryEntry),
		now:   time.Now,
	}
}

func (c *MemoryCache) Get(ctx context.Context, key string) ([]domain.BackupEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(item.expiresAt) {
		delete(c.items, key)
		return nil, false
	}
	return append([]domain.BackupEntry(nil), item.entries...), true
}

func (c *MemoryCache) Set(ctx context.Context, key string, entries []domain.BackupEntry, ttl time.Duration) error {
	if ttl <= 0 {
		return c.Invalidate(ctx, key)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = memoryEntry{
		entries:   append([]domain.BackupEntry(nil), entries...),
		expiresAt: c.now().Add(ttl),
	}
	return nil
}

func (c *MemoryCache) Invalidate(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}
