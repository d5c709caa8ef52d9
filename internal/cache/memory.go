package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// MemoryCache is the in-process tier: an LRU map with TTL, sized in bytes of
// stored artifact text. It is owned by a single runtime instance and safe for
// concurrent readers and writers.
type MemoryCache struct {
	entries     map[memKey]*memEntry
	mutex       sync.Mutex
	maxSize     int64
	currentSize int64
	ttl         time.Duration

	// LRU doubly-linked list with dummy head and tail.
	head *memEntry
	tail *memEntry

	// Statistics, atomic so stats reads never contend with the hot path.
	hits   int64
	misses int64
}

type memEntry struct {
	key       memKey
	content   string
	createdAt time.Time

	prev *memEntry
	next *memEntry
}

// DefaultMemorySize bounds the memory tier when the host configures nothing.
const DefaultMemorySize = 8 << 20 // 8 MiB of compiled text

// NewMemoryCache creates the in-process tier. A non-positive maxSize falls
// back to DefaultMemorySize; a non-positive ttl disables expiry.
func NewMemoryCache(maxSize int64, ttl time.Duration) *MemoryCache {
	if maxSize <= 0 {
		maxSize = DefaultMemorySize
	}

	mc := &MemoryCache{
		entries: make(map[memKey]*memEntry),
		maxSize: maxSize,
		ttl:     ttl,
	}

	mc.head = &memEntry{}
	mc.tail = &memEntry{}
	mc.head.next = mc.tail
	mc.tail.prev = mc.head

	return mc
}

// Get retrieves the artifact for key, refreshing its LRU position.
func (mc *MemoryCache) Get(key Key) (string, bool) {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	entry, exists := mc.entries[key.memKey()]
	if !exists {
		atomic.AddInt64(&mc.misses, 1)

		return "", false
	}

	if mc.ttl > 0 && time.Since(entry.createdAt) > mc.ttl {
		mc.remove(entry)
		atomic.AddInt64(&mc.misses, 1)

		return "", false
	}

	mc.moveToFront(entry)
	atomic.AddInt64(&mc.hits, 1)

	return entry.content, true
}

// Set stores the artifact for key, evicting least-recently-used entries as
// needed to stay under the size bound.
func (mc *MemoryCache) Set(key Key, content string) {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	mk := key.memKey()

	if existing, ok := mc.entries[mk]; ok {
		mc.currentSize += int64(len(content)) - int64(len(existing.content))
		existing.content = content
		existing.createdAt = time.Now()
		mc.moveToFront(existing)
		mc.evict()

		return
	}

	entry := &memEntry{
		key:       mk,
		content:   content,
		createdAt: time.Now(),
	}

	mc.entries[mk] = entry
	mc.currentSize += int64(len(content))
	mc.addToFront(entry)
	mc.evict()
}

// Delete removes a single entry.
func (mc *MemoryCache) Delete(key Key) {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	if entry, ok := mc.entries[key.memKey()]; ok {
		mc.remove(entry)
	}
}

// Invalidate removes every entry for identity across scopes and hashes.
func (mc *MemoryCache) Invalidate(identity string) int {
	sanitized := SanitizeIdentity(identity)

	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	removed := 0
	for mk, entry := range mc.entries {
		if mk.identity == sanitized {
			mc.remove(entry)
			removed++
		}
	}

	return removed
}

// Clear empties the tier.
func (mc *MemoryCache) Clear() int {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	removed := len(mc.entries)
	mc.entries = make(map[memKey]*memEntry)
	mc.currentSize = 0
	mc.head.next = mc.tail
	mc.tail.prev = mc.head

	return removed
}

// Stats returns cumulative hit and miss counts.
func (mc *MemoryCache) Stats() (hits, misses int64) {
	return atomic.LoadInt64(&mc.hits), atomic.LoadInt64(&mc.misses)
}

// Size returns the current stored byte size.
func (mc *MemoryCache) Size() int64 {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	return mc.currentSize
}

// evict drops LRU entries until the size bound holds. Caller holds the lock.
func (mc *MemoryCache) evict() {
	for mc.currentSize > mc.maxSize && mc.tail.prev != mc.head {
		mc.remove(mc.tail.prev)
	}
}

// remove unlinks an entry and deletes it from the map. Caller holds the lock.
func (mc *MemoryCache) remove(entry *memEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
	entry.prev = nil
	entry.next = nil
	delete(mc.entries, entry.key)
	mc.currentSize -= int64(len(entry.content))
}

func (mc *MemoryCache) addToFront(entry *memEntry) {
	entry.next = mc.head.next
	entry.prev = mc.head
	mc.head.next.prev = entry
	mc.head.next = entry
}

func (mc *MemoryCache) moveToFront(entry *memEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
	mc.addToFront(entry)
}
