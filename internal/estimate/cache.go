package estimate

import (
	"fmt"
	"sync"
	"time"

	"github.com/example/campus-dispatch/internal/models"
)

// Cached decorates an Estimator with a tiny in-memory TTL cache
// keyed by the coordinate pair.
type Cached struct {
	inner Estimator
	ttl   time.Duration
	mu    sync.RWMutex
	store map[string]cacheEntry
}

type cacheEntry struct {
	v  float64
	ts time.Time
}

func NewCached(inner Estimator, ttl time.Duration) *Cached {
	return &Cached{inner: inner, ttl: ttl, store: make(map[string]cacheEntry)}
}

func (c *Cached) EstimateSeconds(from, to models.Coord) (float64, error) {
	k := keyFor(from, to)
	c.mu.RLock()
	e, ok := c.store[k]
	c.mu.RUnlock()
	if ok && time.Since(e.ts) <= c.ttl {
		return e.v, nil
	}
	v, err := c.inner.EstimateSeconds(from, to)
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	c.store[k] = cacheEntry{v: v, ts: time.Now()}
	c.mu.Unlock()
	return v, nil
}

func keyFor(a, b models.Coord) string {
	return fmt.Sprintf("%.6f,%.6f->%.6f,%.6f", a.Lat, a.Lon, b.Lat, b.Lon)
}
