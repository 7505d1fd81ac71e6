// Package cache implements the content-addressed extraction cache.
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/docparse/docparse/internal/parser"
)

// Cache memoizes extracted text by content fingerprint. Entries expire a
// fixed TTL after insertion; reads do not extend expiry. A capacity bound
// evicts the least recently used entry so sustained unique-content load
// cannot grow the cache without limit.
//
// The cache alone does not serialize concurrent misses on the same
// fingerprint; Lock/Unlock provide the per-fingerprint in-flight marker
// workers hold for the duration of an extraction.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*list.Element
	lru      *list.List // front = most recently used
	inflight map[string]*flightLock

	ttl        time.Duration
	maxEntries int
	clock      parser.Clock

	hits   uint64
	misses uint64
}

type entry struct {
	fingerprint string
	text        string
	expiresAt   time.Time
}

type flightLock struct {
	mu   sync.Mutex
	refs int
}

// New constructs a Cache with the given TTL and capacity bound.
func New(ttl time.Duration, maxEntries int, clock parser.Clock) *Cache {
	return &Cache{
		entries:    make(map[string]*list.Element),
		lru:        list.New(),
		inflight:   make(map[string]*flightLock),
		ttl:        ttl,
		maxEntries: maxEntries,
		clock:      clock,
	}
}

// Get returns the cached text for a fingerprint. An entry past its expiry
// is purged and reported as a miss.
func (c *Cache) Get(fingerprint string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[fingerprint]
	if !ok {
		c.misses++
		return "", false
	}
	e := elem.Value.(*entry)
	if !c.clock.Now().Before(e.expiresAt) {
		c.removeLocked(elem)
		c.misses++
		return "", false
	}
	c.lru.MoveToFront(elem)
	c.hits++
	return e.text, true
}

// Put inserts or overwrites the entry for a fingerprint, resetting its
// expiry to now+TTL.
func (c *Cache) Put(fingerprint, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expires := c.clock.Now().Add(c.ttl)
	if elem, ok := c.entries[fingerprint]; ok {
		e := elem.Value.(*entry)
		e.text = text
		e.expiresAt = expires
		c.lru.MoveToFront(elem)
		return
	}

	elem := c.lru.PushFront(&entry{
		fingerprint: fingerprint,
		text:        text,
		expiresAt:   expires,
	})
	c.entries[fingerprint] = elem

	for c.lru.Len() > c.maxEntries {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
	}
}

// Lock acquires the in-flight marker for a fingerprint, blocking while
// another worker holds it. Holders release with Unlock after populating
// the cache, at which point blocked workers re-read the fresh entry.
func (c *Cache) Lock(fingerprint string) {
	c.mu.Lock()
	fl, ok := c.inflight[fingerprint]
	if !ok {
		fl = &flightLock{}
		c.inflight[fingerprint] = fl
	}
	fl.refs++
	c.mu.Unlock()

	fl.mu.Lock()
}

// Unlock releases the in-flight marker for a fingerprint.
func (c *Cache) Unlock(fingerprint string) {
	c.mu.Lock()
	fl, ok := c.inflight[fingerprint]
	if ok {
		fl.refs--
		if fl.refs == 0 {
			delete(c.inflight, fingerprint)
		}
	}
	c.mu.Unlock()

	if ok {
		fl.mu.Unlock()
	}
}

// Stats reports entry count and hit/miss totals since construction.
func (c *Cache) Stats() parser.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	rate := 0.0
	if total > 0 {
		rate = float64(c.hits) / float64(total) * 100
	}
	return parser.CacheStats{
		EntryCount: c.lru.Len(),
		MaxEntries: c.maxEntries,
		HitCount:   c.hits,
		MissCount:  c.misses,
		HitRate:    rate,
	}
}

func (c *Cache) removeLocked(elem *list.Element) {
	e := elem.Value.(*entry)
	c.lru.Remove(elem)
	delete(c.entries, e.fingerprint)
}
