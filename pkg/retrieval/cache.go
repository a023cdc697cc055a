package retrieval

import (
	"container/list"
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// Cache holds packed bundles keyed by tenant-prefixed request hashes. It
// evicts least-recently-used entries when the entry or byte bound is
// exceeded, expires entries after the TTL, and supports bulk invalidation
// by tenant prefix.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List
	bytes   int

	ttl        time.Duration
	maxEntries int
	maxBytes   int

	clock  clock.PassiveClock
	logger *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

type cacheEntry struct {
	key       string
	bundle    *Bundle
	size      int
	expiresAt time.Time
}

// NewCache builds a cache with the given TTL and bounds. Non-positive
// arguments fall back to safe defaults.
func NewCache(ttl time.Duration, maxEntries, maxBytes int, clk clock.PassiveClock, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = 300 * time.Second
	}
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	if maxBytes <= 0 {
		maxBytes = 32 << 20
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		ttl:        ttl,
		maxEntries: maxEntries,
		maxBytes:   maxBytes,
		clock:      clk,
		logger:     logger,
	}
}

// Get returns a copy of the cached bundle with CacheHit set, or false when
// the key is absent or expired.
func (c *Cache) Get(key string) (*Bundle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	ent := el.Value.(*cacheEntry)
	if c.clock.Now().After(ent.expiresAt) {
		c.removeElement(el)
		return nil, false
	}
	c.order.MoveToFront(el)

	bundle := ent.bundle.clone()
	bundle.CacheHit = true
	return bundle, true
}

// Put stores a copy of the bundle under key, evicting old entries until the
// cache fits its bounds again.
func (c *Cache) Put(key string, bundle *Bundle) {
	if bundle == nil {
		return
	}
	clone := bundle.clone()
	clone.CacheHit = false
	size := clone.sizeBytes()

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.removeElement(el)
	}
	el := c.order.PushFront(&cacheEntry{
		key:       key,
		bundle:    clone,
		size:      size,
		expiresAt: c.clock.Now().Add(c.ttl),
	})
	c.entries[key] = el
	c.bytes += size

	for (len(c.entries) > c.maxEntries || c.bytes > c.maxBytes) && c.order.Len() > 0 {
		c.removeElement(c.order.Back())
	}
}

// InvalidateTenant removes every entry whose key belongs to the tenant and
// returns the number removed.
func (c *Cache) InvalidateTenant(tenantID string) int {
	prefix := tenantID + "|"

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, el := range c.entries {
		if strings.HasPrefix(key, prefix) {
			c.removeElement(el)
			removed++
		}
	}
	if removed > 0 {
		c.logger.Debug("context cache invalidated", "tenant_id", tenantID, "removed", removed)
	}
	return removed
}

// Stats reports the current entry count and byte footprint.
func (c *Cache) Stats() (entries, bytes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries), c.bytes
}

// Start launches the periodic expiry sweep.
func (c *Cache) Start(ctx context.Context) {
	if c.cancel != nil {
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.run(ctx)
}

// Stop signals the sweep loop to exit and waits for it to finish.
func (c *Cache) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
	c.cancel = nil
}

func (c *Cache) run(ctx context.Context) {
	defer close(c.done)

	interval := c.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := c.removeExpired(); removed > 0 {
				c.logger.Debug("context cache swept", "removed", removed)
			}
		}
	}
}

func (c *Cache) removeExpired() int {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, el := range c.entries {
		if now.After(el.Value.(*cacheEntry).expiresAt) {
			c.removeElement(el)
			removed++
		}
	}
	return removed
}

// removeElement must be called with the mutex held.
func (c *Cache) removeElement(el *list.Element) {
	ent := el.Value.(*cacheEntry)
	c.order.Remove(el)
	delete(c.entries, ent.key)
	c.bytes -= ent.size
}
