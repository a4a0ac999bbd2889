package stages

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

type cacheEntry[T any] struct {
	tenantID uuid.UUID
	value    T
	storedAt time.Time
	expired  bool
}

// ttlCache keeps values per criteria signature. Expired entries are kept
// so a failing collaborator can still be answered from stale data.
type ttlCache[T any] struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	ttl     time.Duration
	entries map[string]*cacheEntry[T]
}

func newTTLCache[T any](clock clockwork.Clock, ttl time.Duration) *ttlCache[T] {
	return &ttlCache[T]{clock: clock, ttl: ttl, entries: make(map[string]*cacheEntry[T])}
}

func (c *ttlCache[T]) fresh(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || e.expired || c.clock.Since(e.storedAt) >= c.ttl {
		var zero T
		return zero, false
	}
	return e.value, true
}

func (c *ttlCache[T]) stale(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		var zero T
		return zero, false
	}
	return e.value, true
}

func (c *ttlCache[T]) put(key string, tenantID uuid.UUID, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &cacheEntry[T]{tenantID: tenantID, value: value, storedAt: c.clock.Now()}
}

// invalidate expires every entry of a tenant.
func (c *ttlCache[T]) invalidate(tenantID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if e.tenantID == tenantID {
			e.expired = true
		}
	}
}

func (c *ttlCache[T]) invalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		e.expired = true
	}
}
