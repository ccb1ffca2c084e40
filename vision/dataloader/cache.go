// Package dataloader feeds decoded image tensors to the training loop,
// keeping decoded data in a bounded cache shared across epochs and runs.
package dataloader

import (
	"container/list"
	"fmt"
	"sync"
)

// CacheManager is a bounded LRU cache over decoded image data, keyed by
// file path. It is safe for concurrent use and may be shared between
// datasets so the train and validation sides decode each file once.
type CacheManager struct {
	mu          sync.Mutex
	cache       map[string][]float32
	lru         *list.List
	lruMap      map[string]*list.Element
	maxSize     int
	currentSize int

	hits   int64
	misses int64
}

// NewCacheManager creates a cache holding at most maxSize decoded images
func NewCacheManager(maxSize int) *CacheManager {
	return &CacheManager{
		cache:   make(map[string][]float32),
		lru:     list.New(),
		lruMap:  make(map[string]*list.Element),
		maxSize: maxSize,
	}
}

// Get retrieves the decoded data for a path. The returned slice is shared:
// callers must treat it as read-only.
func (cm *CacheManager) Get(key string) ([]float32, bool) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if data, exists := cm.cache[key]; exists {
		cm.lru.MoveToFront(cm.lruMap[key])
		cm.hits++
		return data, true
	}

	cm.misses++
	return nil, false
}

// Put stores decoded data for a path, evicting the least recently used
// entries when the cache is full
func (cm *CacheManager) Put(key string, data []float32) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, exists := cm.cache[key]; exists {
		cm.lru.MoveToFront(cm.lruMap[key])
		return
	}

	elem := cm.lru.PushFront(key)
	cm.lruMap[key] = elem
	cm.cache[key] = data
	cm.currentSize++

	for cm.currentSize > cm.maxSize && cm.lru.Len() > 0 {
		cm.removeElement(cm.lru.Back())
	}
}

func (cm *CacheManager) removeElement(elem *list.Element) {
	key := elem.Value.(string)
	cm.lru.Remove(elem)
	delete(cm.lruMap, key)
	delete(cm.cache, key)
	cm.currentSize--
}

// Clear drops every entry. Statistics stay cumulative.
func (cm *CacheManager) Clear() {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.cache = make(map[string][]float32)
	cm.lru = list.New()
	cm.lruMap = make(map[string]*list.Element)
	cm.currentSize = 0
}

// ResetStats zeroes the hit and miss counters
func (cm *CacheManager) ResetStats() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.hits = 0
	cm.misses = 0
}

// Stats returns a snapshot of cache occupancy and hit rates
func (cm *CacheManager) Stats() CacheStats {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	stats := CacheStats{
		Size:    cm.currentSize,
		MaxSize: cm.maxSize,
		Hits:    cm.hits,
		Misses:  cm.misses,
	}
	if total := cm.hits + cm.misses; total > 0 {
		stats.HitRate = float64(cm.hits) / float64(total) * 100
	}
	return stats
}

// CacheStats holds cache statistics
type CacheStats struct {
	Size    int
	MaxSize int
	Hits    int64
	Misses  int64
	HitRate float64
}

// String returns a one-line summary of the statistics
func (cs CacheStats) String() string {
	return fmt.Sprintf("Cache: %d/%d items, Hits: %d, Misses: %d, Hit Rate: %.1f%%",
		cs.Size, cs.MaxSize, cs.Hits, cs.Misses, cs.HitRate)
}
