package cache

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/geolumen/nightlights/internal/domain"
)

type entry struct {
	records   []domain.TimeseriesRecord
	createdAt time.Time
	expiresAt time.Time
}

type Config struct {
	TTL        time.Duration
	MaxEntries int
}

// MemoryCache keeps query results in process memory with TTL expiry and
// oldest-first eviction. Used when no Redis address is configured, and by
// tests.
type MemoryCache struct {
	mu         sync.RWMutex
	entries    map[string]entry
	ttl        time.Duration
	maxEntries int
}

func NewMemoryCache(config Config) *MemoryCache {
	if config.TTL <= 0 {
		config.TTL = 15 * time.Minute
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = 2000
	}
	return &MemoryCache{
		entries:    make(map[string]entry),
		ttl:        config.TTL,
		maxEntries: config.MaxEntries,
	}
}

func (c *MemoryCache) Get(_ context.Context, areaID int64, from, to *time.Time) ([]domain.TimeseriesRecord, bool) {
	key := rangeKey(areaID, from, to)

	c.mu.RLock()
	cached, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists {
		return nil, false
	}
	if time.Now().UTC().After(cached.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}
	return cloneRecords(cached.records), true
}

func (c *MemoryCache) Set(_ context.Context, areaID int64, from, to *time.Time, records []domain.TimeseriesRecord) {
	now := time.Now().UTC()

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}
	c.entries[rangeKey(areaID, from, to)] = entry{
		records:   cloneRecords(records),
		createdAt: now,
		expiresAt: now.Add(c.ttl),
	}
}

func (c *MemoryCache) InvalidateArea(_ context.Context, areaID int64) {
	prefix := areaPrefix(areaID)

	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
}

func (c *MemoryCache) evictOldest() {
	if len(c.entries) == 0 {
		return
	}

	type pair struct {
		key   string
		value entry
	}
	pairs := make([]pair, 0, len(c.entries))
	for key, value := range c.entries {
		pairs = append(pairs, pair{key: key, value: value})
	}
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].value.createdAt.Before(pairs[j].value.createdAt)
	})
	delete(c.entries, pairs[0].key)
}

func cloneRecords(records []domain.TimeseriesRecord) []domain.TimeseriesRecord {
	return append([]domain.TimeseriesRecord(nil), records...)
}
