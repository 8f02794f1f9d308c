// Package cache provides the two-tier resource cache: a bounded
// in-process LRU in front of a shared durable tier reachable by all
// instances.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/louisbranch/taskweave/internal/storage"
)

// DefaultL1TTL bounds how long an L1 copy may outlive its last L2 read.
const DefaultL1TTL = 30 * time.Second

// Backend is the shared L2 tier. The SQLite store satisfies it.
type Backend interface {
	GetCacheEntry(ctx context.Context, namespace, key string, now time.Time) (storage.CacheEntryRecord, error)
	PutCacheEntry(ctx context.Context, record storage.CacheEntryRecord) error
	DeleteCacheEntry(ctx context.Context, namespace, key string) error
}

// TwoTier is a namespaced read-through cache over an L1 LRU and an L2
// backend. Writes go through both tiers; invalidation removes from both
// tiers before returning.
type TwoTier struct {
	namespace string
	l1        *LRU
	l1TTL     time.Duration
	backend   Backend
	now       func() time.Time
}

// Option configures a TwoTier cache.
type Option func(*TwoTier)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *TwoTier) { c.now = now }
}

// WithL1TTL overrides the maximum L1 entry lifetime.
func WithL1TTL(ttl time.Duration) Option {
	return func(c *TwoTier) { c.l1TTL = ttl }
}

// NewTwoTier creates a namespaced two-tier cache bounded to capacity L1
// entries.
func NewTwoTier(namespace string, capacity int, backend Backend, opts ...Option) (*TwoTier, error) {
	if namespace == "" {
		return nil, fmt.Errorf("namespace is required")
	}
	if backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	cache := &TwoTier{
		namespace: namespace,
		l1:        NewLRU(capacity),
		l1TTL:     DefaultL1TTL,
		backend:   backend,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(cache)
	}
	return cache, nil
}

// Get returns the cached value for key, checking L1 first and falling
// back to L2. An L2 hit repopulates L1 with a deadline capped at the
// remaining L2 lifetime, so an L1 copy can never outlive its L2 entry.
func (c *TwoTier) Get(ctx context.Context, key string) ([]byte, bool, error) {
	now := c.now()
	if value, ok := c.l1.Get(key, now); ok {
		return value, true, nil
	}

	record, err := c.backend.GetCacheEntry(ctx, c.namespace, key, now)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache backend get: %w", err)
	}

	deadline := now.Add(c.l1TTL)
	if record.ExpiresAt.Before(deadline) {
		deadline = record.ExpiresAt
	}
	c.l1.Put(key, record.Value, deadline)
	return record.Value, true, nil
}

// Put writes the value through both tiers with the given TTL. The L2
// expiry is computed here, at insertion time.
func (c *TwoTier) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive")
	}
	now := c.now()
	expiresAt := now.Add(ttl)

	if err := c.backend.PutCacheEntry(ctx, storage.CacheEntryRecord{
		Namespace: c.namespace,
		Key:       key,
		Value:     value,
		ExpiresAt: expiresAt,
	}); err != nil {
		return fmt.Errorf("cache backend put: %w", err)
	}

	deadline := now.Add(c.l1TTL)
	if expiresAt.Before(deadline) {
		deadline = expiresAt
	}
	c.l1.Put(key, value, deadline)
	return nil
}

// Invalidate removes key from both tiers synchronously. L1 is cleared
// last so a concurrent reader on this node cannot repopulate it from a
// still-present L2 row.
func (c *TwoTier) Invalidate(ctx context.Context, key string) error {
	if err := c.backend.DeleteCacheEntry(ctx, c.namespace, key); err != nil {
		return fmt.Errorf("cache backend delete: %w", err)
	}
	c.l1.Delete(key)
	return nil
}
