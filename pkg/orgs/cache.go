package orgs

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// StatusLookup resolves a tenant's status
type StatusLookup interface {
	TenantStatus(ctx context.Context, id int64) (Status, error)
}

// CachedDirectory memoizes tenant status for a short TTL so the request guard
// does not hit the database on every call. A suspension takes effect within
// one TTL, or immediately on this instance via Forget.
type CachedDirectory struct {
	next  StatusLookup
	cache *lru.LRU[int64, Status]
}

// NewCachedDirectory wraps next with an expirable LRU
func NewCachedDirectory(next StatusLookup, size int, ttl time.Duration) *CachedDirectory {
	return &CachedDirectory{next: next, cache: lru.NewLRU[int64, Status](size, nil, ttl)}
}

// TenantStatus returns the cached status or loads it. Lookup errors are not cached.
func (c *CachedDirectory) TenantStatus(ctx context.Context, id int64) (Status, error) {
	if status, ok := c.cache.Get(id); ok {
		return status, nil
	}
	status, err := c.next.TenantStatus(ctx, id)
	if err != nil {
		return "", err
	}
	c.cache.Add(id, status)
	return status, nil
}

// Forget drops id from the cache
func (c *CachedDirectory) Forget(id int64) {
	c.cache.Remove(id)
}
