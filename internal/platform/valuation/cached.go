package valuation

import (
	"context"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
)

// CachedLookup memoizes successful lookups. Failures are never cached.
type CachedLookup struct {
	inner Lookup
	cache *cache.Cache
}

func NewCachedLookup(inner Lookup, ttl time.Duration) *CachedLookup {
	return &CachedLookup{inner: inner, cache: cache.New(ttl, 2*ttl)}
}

func (c *CachedLookup) Backend() string { return c.inner.Backend() }

func (c *CachedLookup) Lookup(ctx context.Context, q Query) (Result, error) {
	key := cacheKey(q)
	if v, ok := c.cache.Get(key); ok {
		return v.(Result), nil
	}
	res, err := c.inner.Lookup(ctx, q)
	if err != nil {
		return Result{}, err
	}
	c.cache.SetDefault(key, res)
	return res, nil
}

func cacheKey(q Query) string {
	t := ""
	if q.TypeFilter != nil {
		t = strconv.Itoa(*q.TypeFilter)
	}
	return q.Name + "\x00" + q.Variant + "\x00" + t
}
