// Package cache holds completed outcomes keyed by the request's canonical hash.
// Runs are deterministic, so a hit is a faithful replay of the same input.
package cache

import (
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/wonny/aegis-rebalance/internal/contracts"
)

// Cache is a bounded in-process replay cache (프로세스 메모리 전용, 영속화 없음)
type Cache struct {
	c   *ristretto.Cache
	ttl time.Duration
}

// New creates a cache holding up to size outcomes for ttl each
func New(size int64, ttl time.Duration) (*Cache, error) {
	counters := size * 10
	if counters < 1000 {
		counters = 1000
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: counters,
		MaxCost:     size,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c, ttl: ttl}, nil
}

// Get returns the outcome stored under a canonical hash
func (c *Cache) Get(hash string) (*contracts.Outcome, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.c.Get(hash)
	if !ok {
		return nil, false
	}
	out, ok := v.(*contracts.Outcome)
	return out, ok
}

// Set stores an outcome. Writes are buffered; Wait makes it visible to Get.
func (c *Cache) Set(hash string, out *contracts.Outcome) {
	if c == nil {
		return
	}
	c.c.SetWithTTL(hash, out, 1, c.ttl)
	c.c.Wait()
}

// Del drops one entry
func (c *Cache) Del(hash string) {
	if c == nil {
		return
	}
	c.c.Del(hash)
}

// Close releases the cache's background goroutines
func (c *Cache) Close() {
	if c == nil {
		return
	}
	c.c.Close()
}
