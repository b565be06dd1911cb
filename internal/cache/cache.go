// Package cache implements the two-tier TTL+LRU result cache keyed by a
// hash of (HostKey, canonicalized command, shaping spec).
package cache

import (
	"container/list"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Tier is a cache hint: static entries are evicted only after all dynamic
// entries are gone.
type Tier string

const (
	Static  Tier = "static"
	Dynamic Tier = "dynamic"
)

// Key computes the cache key for (host, command, shapeSpec). Credentials
// are deliberately excluded: outputs for the same command on the same
// HostKey are identical regardless of which user authenticated.
func Key(hostKey, canonicalCommand, shapeSpec string) string {
	h := xxhash.New()
	_, _ = h.WriteString(hostKey)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(canonicalCommand)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(shapeSpec)
	return fmt.Sprintf("%016x", h.Sum64())
}

type entry struct {
	key        string
	host       string
	value      any
	tier       Tier
	insertedAt time.Time
	ttl        time.Duration
	elem       *list.Element // position in its tier's LRU list
}

func (e *entry) expired(now time.Time) bool {
	return e.ttl > 0 && now.Sub(e.insertedAt) > e.ttl
}

// Cache is a two-tier TTL+LRU map guarded by a single mutex, matching the
// "each guarded by a per-structure mutex" concurrency model.
type Cache struct {
	mu      sync.Mutex
	maxSize int
	entries map[string]*entry

	// lru[tier] orders entries from least- (front) to most- (back) recently used.
	lru map[Tier]*list.List
}

// New builds a Cache with a total entry budget of maxSize across both tiers.
func New(maxSize int) *Cache {
	return &Cache{
		maxSize: maxSize,
		entries: make(map[string]*entry),
		lru: map[Tier]*list.List{
			Static:  list.New(),
			Dynamic: list.New(),
		},
	}
}

// Get returns the cached value for key iff present and not expired. An
// expired entry is removed and reported as a miss.
func (c *Cache) Get(key string) (value any, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, found := c.entries[key]
	if !found {
		return nil, false
	}
	if e.expired(time.Now()) {
		c.removeLocked(e)
		return nil, false
	}
	c.lru[e.tier].MoveToBack(e.elem)
	return e.value, true
}

// Put inserts value under key in the given tier with the given ttl. If
// inserting would push the total entry count over maxSize, the LRU entry
// is evicted from the dynamic tier first, then the static tier.
func (c *Cache) Put(key, host string, value any, tier Tier, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, found := c.entries[key]; found {
		c.removeLocked(existing)
	}

	for len(c.entries) >= c.maxSize && c.maxSize > 0 {
		if !c.evictOneLocked() {
			break
		}
	}

	e := &entry{
		key:        key,
		host:       host,
		value:      value,
		tier:       tier,
		insertedAt: time.Now(),
		ttl:        ttl,
	}
	e.elem = c.lru[tier].PushBack(e)
	c.entries[key] = e
}

// evictOneLocked evicts the LRU entry from dynamic first, then static.
// Returns false if both tiers are empty.
func (c *Cache) evictOneLocked() bool {
	if front := c.lru[Dynamic].Front(); front != nil {
		c.removeLocked(front.Value.(*entry))
		return true
	}
	if front := c.lru[Static].Front(); front != nil {
		c.removeLocked(front.Value.(*entry))
		return true
	}
	return false
}

// removeLocked deletes e from both the entries map and its tier's LRU list.
// Caller must hold c.mu.
func (c *Cache) removeLocked(e *entry) {
	delete(c.entries, e.key)
	c.lru[e.tier].Remove(e.elem)
}

// Invalidate removes every entry for host. An empty host removes all
// entries (the "all" bulk-removal form).
func (c *Cache) Invalidate(host string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if host == "" {
		c.entries = make(map[string]*entry)
		c.lru[Static] = list.New()
		c.lru[Dynamic] = list.New()
		return
	}

	for key, e := range c.entries {
		if e.host == host {
			c.lru[e.tier].Remove(e.elem)
			delete(c.entries, key)
		}
	}
}

// Stats summarizes tier occupancy for the ssh_session_info tool.
type Stats struct {
	StaticCount  int
	DynamicCount int
	MaxSize      int
}

// Stats returns current tier occupancy.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		StaticCount:  c.lru[Static].Len(),
		DynamicCount: c.lru[Dynamic].Len(),
		MaxSize:      c.maxSize,
	}
}
