package artwork

import (
	"container/list"
	"sync"
)

// Default cache limits, sized for a constrained desktop profile. Operators
// tune these via SetLimits without any behavioral change.
const (
	DefaultMaxEntries   = 120
	DefaultMaxTotalCost = 64 << 20 // 64 MiB of decoded pixels
	minCacheEntries     = 1
)

// Cache is a thread-safe LRU store for decoded thumbnails with two
// independent eviction limits: entry count and total cost in bytes.
//
// When either limit would be exceeded, least recently accessed entries are
// evicted until both are satisfied. Both Get and Put mark an entry as
// recently used. The cache never triggers a decode and issues no callbacks
// on eviction; callers must tolerate entries disappearing between calls.
type Cache struct {
	mu           sync.Mutex
	maxEntries   int
	maxTotalCost int64
	totalCost    int64
	items        map[CacheKey]*list.Element
	order        *list.List // Front = most recent, Back = least recent
}

// cacheEntry holds one cached bitmap and its cost at insertion time.
type cacheEntry struct {
	key  CacheKey
	bmp  Bitmap
	cost int64
}

// NewCache creates a cache bounded by maxEntries and maxTotalCost bytes.
// Non-positive limits fall back to the constrained defaults.
func NewCache(maxEntries int, maxTotalCost int64) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if maxTotalCost <= 0 {
		maxTotalCost = DefaultMaxTotalCost
	}
	return &Cache{
		maxEntries:   maxEntries,
		maxTotalCost: maxTotalCost,
		items:        make(map[CacheKey]*list.Element),
		order:        list.New(),
	}
}

// Get retrieves the bitmap for key and marks it as recently used.
// It never blocks on decode work.
func (c *Cache) Get(key CacheKey) (Bitmap, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		return elem.Value.(*cacheEntry).bmp, true
	}
	return Bitmap{}, false
}

// Contains reports whether key is resident, without promoting it.
func (c *Cache) Contains(key CacheKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[key]
	return ok
}

// Put inserts or overwrites the bitmap for key; the last put for a key wins.
// Cost is computed from the bitmap's pixel dimensions, falling back to its
// encoded size. Entries are evicted until both limits hold, which may evict
// the new entry itself if its cost alone exceeds the total-cost limit.
func (c *Cache) Put(key CacheKey, bmp Bitmap) {
	cost := bmp.Cost()

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		ent := elem.Value.(*cacheEntry)
		c.totalCost += cost - ent.cost
		ent.bmp = bmp
		ent.cost = cost
		c.order.MoveToFront(elem)
		c.evictLocked()
		return
	}

	elem := c.order.PushFront(&cacheEntry{key: key, bmp: bmp, cost: cost})
	c.items[key] = elem
	c.totalCost += cost
	c.evictLocked()
}

// SetLimits reconfigures the eviction thresholds. Occupancy above the new
// limits is evicted eagerly, oldest first.
func (c *Cache) SetLimits(maxEntries int, maxTotalCost int64) {
	if maxEntries <= 0 {
		maxEntries = minCacheEntries
	}
	if maxTotalCost <= 0 {
		maxTotalCost = DefaultMaxTotalCost
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxEntries = maxEntries
	c.maxTotalCost = maxTotalCost
	c.evictLocked()
}

// evictLocked drops least-recently-used entries until both limits hold.
// Caller must hold c.mu.
func (c *Cache) evictLocked() {
	for c.order.Len() > c.maxEntries || c.totalCost > c.maxTotalCost {
		oldest := c.order.Back()
		if oldest == nil {
			return
		}
		ent := oldest.Value.(*cacheEntry)
		c.order.Remove(oldest)
		delete(c.items, ent.key)
		c.totalCost -= ent.cost
	}
}

// Remove deletes key if present.
func (c *Cache) Remove(key CacheKey) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.totalCost -= elem.Value.(*cacheEntry).cost
		c.order.Remove(elem)
		delete(c.items, key)
	}
}

// Purge empties the cache. This is the hook for external memory-pressure
// signals; there is no per-entry notification.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[CacheKey]*list.Element)
	c.order.Init()
	c.totalCost = 0
}

// Len returns the number of resident entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// TotalCost returns the summed cost of resident entries in bytes.
func (c *Cache) TotalCost() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalCost
}
