package explain

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultCacheEntries is the cache size used when none is configured.
const DefaultCacheEntries = 50

// Cache holds finished explanations keyed by the verbatim source text.
// When a Put takes it above its maximum, only the most recently inserted
// half is kept. Reads do not refresh an entry's position.
type Cache struct {
	mu    sync.Mutex
	items *gocache.Cache
	order []string
	max   int
}

// NewCache returns a cache holding at most max entries after each Put.
// A positive ttl expires entries lazily; zero keeps them until evicted.
func NewCache(max int, ttl time.Duration) *Cache {
	if max <= 0 {
		max = DefaultCacheEntries
	}
	exp := ttl
	if exp <= 0 {
		exp = gocache.NoExpiration
	}
	// No janitor: expired entries are dropped on access and on Put.
	return &Cache{
		items: gocache.New(exp, 0),
		max:   max,
	}
}

// Get returns the cached explanation for code.
func (c *Cache) Get(code string) (string, bool) {
	v, ok := c.items.Get(code)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Put stores text for code, moving code to the newest position, then
// trims the cache if it grew past its maximum.
func (c *Cache) Put(code, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items.SetDefault(code, text)
	c.order = append(c.withoutLocked(code), code)
	c.maintainLocked()
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.dropExpiredLocked()
	return len(c.order)
}

// Keys returns the live keys, oldest insertion first.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.dropExpiredLocked()
	return append([]string(nil), c.order...)
}

// Max returns the configured maximum.
func (c *Cache) Max() int { return c.max }

// Clear removes every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items.Flush()
	c.order = nil
}

func (c *Cache) withoutLocked(code string) []string {
	kept := c.order[:0]
	for _, k := range c.order {
		if k != code {
			kept = append(kept, k)
		}
	}
	return kept
}

func (c *Cache) dropExpiredLocked() {
	c.items.DeleteExpired()
	kept := c.order[:0]
	for _, k := range c.order {
		if _, ok := c.items.Get(k); ok {
			kept = append(kept, k)
		}
	}
	c.order = kept
}

func (c *Cache) maintainLocked() {
	c.dropExpiredLocked()
	if len(c.order) <= c.max {
		return
	}
	keep := c.max / 2
	if keep < 1 {
		keep = 1
	}
	cut := len(c.order) - keep
	for _, k := range c.order[:cut] {
		c.items.Delete(k)
	}
	c.order = append([]string(nil), c.order[cut:]...)
}
