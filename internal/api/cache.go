package api

import (
	"context"
	"sync"
	"time"
)

// venueCallTimeout bounds venue calls made from HTTP handlers so the API
// stays responsive; cacheTTL is how long a last-known-good value may stand
// in for a slow or failing venue.
const (
	venueCallTimeout = 3 * time.Second
	cacheTTL         = 10 * time.Second
)

// ttlCache is a last-known-good cache for one expensive venue read.
type ttlCache[T any] struct {
	mu      sync.Mutex
	value   T
	fetched time.Time
	have    bool
}

// get returns the cached value when fresh; otherwise it runs fetch under
// the venue-call timeout and falls back to the stale value on failure.
func (c *ttlCache[T]) get(ctx context.Context, fetch func(context.Context) (T, error)) (T, error) {
	c.mu.Lock()
	if c.have && time.Since(c.fetched) < cacheTTL {
		v := c.value
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	fetchCtx, cancel := context.WithTimeout(ctx, venueCallTimeout)
	defer cancel()
	v, err := fetch(fetchCtx)
	if err != nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.have {
			return c.value, nil // stale beats nothing
		}
		var zero T
		return zero, err
	}

	c.mu.Lock()
	c.value = v
	c.fetched = time.Now()
	c.have = true
	c.mu.Unlock()
	return v, nil
}
