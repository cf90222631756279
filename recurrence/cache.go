package recurrence

import (
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// CacheEntry holds the resolved days of one month for one ordinal list.
type CacheEntry struct {
	Days       []int
	ExpiresAt  time.Time
	AccessedAt time.Time
}

// MonthCache memoises ordinal weekday resolution per (ordinals, year, month).
// Cached slices are shared and must not be modified by callers.
type MonthCache struct {
	entries         map[string]*CacheEntry
	mutex           sync.RWMutex
	ttl             time.Duration
	maxEntries      int
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	closeOnce       sync.Once
}

// CacheConfig holds configuration for the month cache
type CacheConfig struct {
	TTL             time.Duration // How long entries stay valid, 0 for no expiry
	MaxEntries      int           // Maximum number of entries before cleanup, 0 for no limit
	CleanupInterval time.Duration // How often to run cleanup, 0 disables the background loop
}

// DefaultCacheConfig provides sensible defaults for month caching
var DefaultCacheConfig = CacheConfig{
	TTL:             15 * time.Minute,
	MaxEntries:      1000,
	CleanupInterval: 5 * time.Minute,
}

// NewMonthCache creates a new month cache with the given configuration
func NewMonthCache(config CacheConfig) *MonthCache {
	cache := &MonthCache{
		entries:         make(map[string]*CacheEntry),
		ttl:             config.TTL,
		maxEntries:      config.MaxEntries,
		cleanupInterval: config.CleanupInterval,
		stopCleanup:     make(chan struct{}),
	}

	if cache.cleanupInterval > 0 {
		go cache.cleanupLoop()
	}

	return cache
}

// cacheKey renders e.g. "2024-09|1FR,-1SA".
func cacheKey(year int, month time.Month, ords []OrdinalWeekday) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(year))
	b.WriteByte('-')
	b.WriteString(strconv.Itoa(int(month)))
	b.WriteByte('|')
	for i, o := range ords {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(o.String())
	}
	return b.String()
}

func (c *MonthCache) expired(entry *CacheEntry, now time.Time) bool {
	return !entry.ExpiresAt.IsZero() && now.After(entry.ExpiresAt)
}

// Get retrieves cached days if they exist and haven't expired
func (c *MonthCache) Get(year int, month time.Month, ords []OrdinalWeekday) ([]int, bool) {
	key := cacheKey(year, month, ords)
	now := time.Now()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, exists := c.entries[key]
	if !exists {
		return nil, false
	}
	if c.expired(entry, now) {
		delete(c.entries, key)
		return nil, false
	}
	entry.AccessedAt = now
	return entry.Days, true
}

// Set stores resolved days in the cache
func (c *MonthCache) Set(year int, month time.Month, ords []OrdinalWeekday, days []int) {
	key := cacheKey(year, month, ords)
	now := time.Now()

	entry := &CacheEntry{Days: days, AccessedAt: now}
	if c.ttl > 0 {
		entry.ExpiresAt = now.Add(c.ttl)
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.entries[key] = entry
	if c.maxEntries > 0 && len(c.entries) > c.maxEntries {
		c.cleanup()
	}
}

// Resolve returns the days of year/month selected by ords, computing and
// storing them on a miss.
func (c *MonthCache) Resolve(year int, month time.Month, ords []OrdinalWeekday) []int {
	if days, ok := c.Get(year, month, ords); ok {
		return days
	}
	days := resolveOrdinals(year, month, ords)
	c.Set(year, month, ords, days)
	return days
}

// cleanup removes expired entries and least recently used entries if over
// the limit. The caller holds the write lock.
func (c *MonthCache) cleanup() {
	now := time.Now()

	for key, entry := range c.entries {
		if c.expired(entry, now) {
			delete(c.entries, key)
		}
	}

	if c.maxEntries <= 0 || len(c.entries) <= c.maxEntries {
		return
	}

	type keyAccess struct {
		key        string
		accessedAt time.Time
	}
	keys := make([]keyAccess, 0, len(c.entries))
	for key, entry := range c.entries {
		keys = append(keys, keyAccess{key: key, accessedAt: entry.AccessedAt})
	}
	slices.SortFunc(keys, func(a, b keyAccess) int { return a.accessedAt.Compare(b.accessedAt) })

	for _, k := range keys[:len(c.entries)-c.maxEntries] {
		delete(c.entries, k.key)
	}
}

// cleanupLoop runs periodic cleanup
func (c *MonthCache) cleanupLoop() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mutex.Lock()
			c.cleanup()
			c.mutex.Unlock()
		case <-c.stopCleanup:
			return
		}
	}
}

// Close stops the cleanup goroutine and clears the cache. It is safe to call
// more than once.
func (c *MonthCache) Close() {
	c.closeOnce.Do(func() { close(c.stopCleanup) })
	c.mutex.Lock()
	c.entries = make(map[string]*CacheEntry)
	c.mutex.Unlock()
}

// Stats returns cache statistics
func (c *MonthCache) Stats() CacheStats {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	now := time.Now()
	expired := 0
	for _, entry := range c.entries {
		if c.expired(entry, now) {
			expired++
		}
	}

	return CacheStats{
		TotalEntries:   len(c.entries),
		ExpiredEntries: expired,
		ActiveEntries:  len(c.entries) - expired,
	}
}

// CacheStats provides information about cache usage
type CacheStats struct {
	TotalEntries   int
	ExpiredEntries int
	ActiveEntries  int
}
