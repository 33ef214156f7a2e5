package media

import (
	"context"
	"sync"
	"time"
)

type cacheEntry struct {
	seconds float64
	expires time.Time
}

// CachingProber wraps another Prober with a TTL-based in-memory cache keyed by URL.
type CachingProber struct {
	base Prober
	ttl  time.Duration
	now  func() time.Time

	mu    sync.RWMutex
	items map[string]cacheEntry
}

// NewCachingProber returns a Prober that remembers results for ttl.
func NewCachingProber(base Prober, ttl time.Duration) *CachingProber {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachingProber{
		base:  base,
		ttl:   ttl,
		now:   time.Now,
		items: make(map[string]cacheEntry),
	}
}

// Duration returns a cached duration when fresh, otherwise it probes and stores
// the result. Failures are not cached.
func (c *CachingProber) Duration(ctx context.Context, url string) (float64, error) {
	if c == nil || c.base == nil {
		return 0, ErrProberUnavailable
	}

	now := c.now()

	c.mu.RLock()
	entry, ok := c.items[url]
	c.mu.RUnlock()
	if ok && now.Before(entry.expires) {
		return entry.seconds, nil
	}

	seconds, err := c.base.Duration(ctx, url)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.items[url] = cacheEntry{seconds: seconds, expires: now.Add(c.ttl)}
	for key, e := range c.items {
		if !now.Before(e.expires) {
			delete(c.items, key)
		}
	}
	c.mu.Unlock()

	return seconds, nil
}
