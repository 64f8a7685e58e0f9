package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryProbeCache is an in-process cache with a fixed TTL.
type MemoryProbeCache struct {
	cache *ttlcache.Cache[string, []string]
	ttl   time.Duration
}

var _ ProbeCache = (*MemoryProbeCache)(nil)

// NewMemoryProbeCache creates a cache whose entries expire after ttl.
// Entries are not refreshed on read.
func NewMemoryProbeCache(ttl time.Duration) *MemoryProbeCache {
	c := ttlcache.New(
		ttlcache.WithTTL[string, []string](ttl),
		ttlcache.WithDisableTouchOnHit[string, []string](),
	)
	go c.Start()
	return &MemoryProbeCache{cache: c, ttl: ttl}
}

func (m *MemoryProbeCache) Get(_ context.Context, key string) ([]string, bool) {
	item := m.cache.Get(key)
	if item == nil {
		return nil, false
	}
	return append([]string(nil), item.Value()...), true
}

func (m *MemoryProbeCache) Set(_ context.Context, key string, values []string) {
	m.cache.Set(key, append([]string(nil), values...), m.ttl)
}

// Close stops the expiry loop.
func (m *MemoryProbeCache) Close() {
	m.cache.Stop()
}
