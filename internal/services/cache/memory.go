package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const defaultTTL = 30 * time.Minute

// MemoryCache is a size-bounded in-process cache
type MemoryCache struct {
	mu          sync.RWMutex
	items       map[string]*cacheItem
	maxBytes    int64
	currentSize int64

	hits, misses, sets, deletes, evictions int64

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

type cacheItem struct {
	value  []byte
	expiry time.Time
	size   int64
}

// NewMemoryCache creates a cache holding at most maxSizeMB megabytes.
// Expired entries are swept every cleanupInterval.
func NewMemoryCache(maxSizeMB int64, cleanupInterval time.Duration) *MemoryCache {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	mc := &MemoryCache{
		items:    make(map[string]*cacheItem),
		maxBytes: maxSizeMB * 1024 * 1024,
		stopCh:   make(chan struct{}),
	}

	mc.wg.Add(1)
	go mc.cleanupExpired(cleanupInterval)

	return mc
}

func (mc *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool) {
	mc.mu.RLock()
	item, exists := mc.items[key]
	mc.mu.RUnlock()

	if !exists || time.Now().After(item.expiry) {
		if exists {
			_ = mc.Delete(ctx, key)
		}
		atomic.AddInt64(&mc.misses, 1)
		return nil, false
	}

	atomic.AddInt64(&mc.hits, 1)
	return item.value, true
}

func (mc *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	item := &cacheItem{
		value:  value,
		expiry: time.Now().Add(ttl),
		size:   int64(len(key) + len(value)),
	}

	mc.mu.Lock()
	if old, exists := mc.items[key]; exists {
		mc.currentSize -= old.size
		delete(mc.items, key)
	}
	mc.makeRoomLocked(item.size)
	mc.items[key] = item
	mc.currentSize += item.size
	mc.mu.Unlock()

	atomic.AddInt64(&mc.sets, 1)
	return nil
}

func (mc *MemoryCache) Delete(ctx context.Context, key string) error {
	mc.mu.Lock()
	if item, exists := mc.items[key]; exists {
		delete(mc.items, key)
		mc.currentSize -= item.size
		atomic.AddInt64(&mc.deletes, 1)
	}
	mc.mu.Unlock()
	return nil
}

// Stats returns cache statistics
func (mc *MemoryCache) Stats() CacheStats {
	mc.mu.RLock()
	size := mc.currentSize
	mc.mu.RUnlock()
	return CacheStats{
		Hits:      atomic.LoadInt64(&mc.hits),
		Misses:    atomic.LoadInt64(&mc.misses),
		Sets:      atomic.LoadInt64(&mc.sets),
		Deletes:   atomic.LoadInt64(&mc.deletes),
		Evictions: atomic.LoadInt64(&mc.evictions),
		Size:      size,
		MaxSize:   mc.maxBytes,
	}
}

// Stop ends the sweeper. It is safe to call more than once.
func (mc *MemoryCache) Stop() {
	mc.stopOnce.Do(func() { close(mc.stopCh) })
	mc.wg.Wait()
}

func (mc *MemoryCache) cleanupExpired(interval time.Duration) {
	defer mc.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			mc.mu.Lock()
			mc.removeExpiredLocked(time.Now())
			mc.mu.Unlock()
		case <-mc.stopCh:
			return
		}
	}
}

func (mc *MemoryCache) removeExpiredLocked(now time.Time) {
	for key, item := range mc.items {
		if now.After(item.expiry) {
			delete(mc.items, key)
			mc.currentSize -= item.size
			atomic.AddInt64(&mc.evictions, 1)
		}
	}
}

// makeRoomLocked drops expired entries, then the entries closest to
// expiry, until sizeNeeded fits
func (mc *MemoryCache) makeRoomLocked(sizeNeeded int64) {
	if mc.maxBytes <= 0 || mc.currentSize+sizeNeeded <= mc.maxBytes {
		return
	}
	mc.removeExpiredLocked(time.Now())

	for mc.currentSize+sizeNeeded > mc.maxBytes && len(mc.items) > 0 {
		var victim string
		var soonest time.Time
		for key, item := range mc.items {
			if victim == "" || item.expiry.Before(soonest) {
				victim, soonest = key, item.expiry
			}
		}
		mc.currentSize -= mc.items[victim].size
		delete(mc.items, victim)
		atomic.AddInt64(&mc.evictions, 1)
	}
}
