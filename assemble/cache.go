package assemble

import (
	"container/list"
	"fmt"
	"sync"
)

// defaultCacheCap bounds the compile cache's entry count. The spec calls
// the cache "bounded" but does not mandate an eviction policy; an LRU
// keeps hot queries resident under churn better than FIFO would.
const defaultCacheCap = 256

// cacheKey is (optimized-plan-hash, tool-fingerprint): a hit requires
// both the plan and the resolved toolchain to match, so a fingerprint
// change (e.g. ripgrep becomes available) never serves a stale command
// compiled against the old toolchain.
type cacheKey struct {
	planHash    uint64
	fingerprint string
}

type cacheEntry struct {
	key     cacheKey
	command string
}

// Cache memoizes compiled commands, directly adapted from the teacher's
// PreparedDataCache: one mutex guarding a map, with lookup/store/Clear
// renamed from GetCachedStmt/CacheStmt/DeleteSessionData. Unlike the
// teacher's per-session map of maps, there is only one process-wide
// scope here, so eviction order (not session scoping) is the added
// concern, tracked with a container/list so the least-recently-used
// entry is O(1) to find and evict. The zero value is not usable;
// construct with NewCache.
type Cache struct {
	mu      sync.Mutex
	cap     int
	entries map[cacheKey]*list.Element
	order   *list.List // front = most recently used
}

// NewCache constructs a Cache bounded at capacity entries (defaultCacheCap
// when capacity <= 0).
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = defaultCacheCap
	}
	return &Cache{
		cap:     capacity,
		entries: make(map[cacheKey]*list.Element),
		order:   list.New(),
	}
}

// lookup returns the cached command for key, if any, and marks it most
// recently used.
func (c *Cache) lookup(key cacheKey) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return "", false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).command, true
}

// store records command under key, evicting the least-recently-used
// entry if the cache is at capacity.
func (c *Cache) store(key cacheKey, command string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheEntry).command = command
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&cacheEntry{key: key, command: command})
	c.entries[key] = el

	for len(c.entries) > c.cap {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

// Clear discards every cached entry, forcing the next compile of every
// plan to re-run emission.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[cacheKey]*list.Element)
	c.order.Init()
}

// Len reports the current entry count; used by tests to assert eviction.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func newCacheKey(planHash uint64, fingerprint []byte) cacheKey {
	return cacheKey{planHash: planHash, fingerprint: fmt.Sprintf("%x", fingerprint)}
}
