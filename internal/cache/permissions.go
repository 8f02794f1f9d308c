package cache

import (
	"context"
	"fmt"
	"time"
)

// Verdict is a cached authorization outcome.
type Verdict string

const (
	// VerdictAllow records that the remote service permitted the subject.
	VerdictAllow Verdict = "allow"
	// VerdictDeny records that the remote service refused the subject.
	VerdictDeny Verdict = "deny"
)

// PermissionCache caches authorization decisions under their own
// namespace. Expiry is computed at insertion time and enforced at read
// time; a decision read at or after its expiry is a miss, never a hit.
type PermissionCache struct {
	tier *TwoTier
}

// NewPermissionCache creates a permission cache over the shared backend.
func NewPermissionCache(capacity int, backend Backend, opts ...Option) (*PermissionCache, error) {
	tier, err := NewTwoTier("permissions", capacity, backend, opts...)
	if err != nil {
		return nil, err
	}
	return &PermissionCache{tier: tier}, nil
}

func permissionKey(subject, resourceID string) string {
	return subject + ":" + resourceID
}

// Get returns the cached verdict for subject on resourceID, if one is
// still live.
func (p *PermissionCache) Get(ctx context.Context, subject, resourceID string) (Verdict, bool, error) {
	value, ok, err := p.tier.Get(ctx, permissionKey(subject, resourceID))
	if err != nil || !ok {
		return "", false, err
	}
	verdict := Verdict(value)
	if verdict != VerdictAllow && verdict != VerdictDeny {
		// Unknown payloads behave as misses so the caller re-checks.
		return "", false, nil
	}
	return verdict, true, nil
}

// Put caches a verdict for ttl.
func (p *PermissionCache) Put(ctx context.Context, subject, resourceID string, verdict Verdict, ttl time.Duration) error {
	if verdict != VerdictAllow && verdict != VerdictDeny {
		return fmt.Errorf("verdict %q is not valid", verdict)
	}
	return p.tier.Put(ctx, permissionKey(subject, resourceID), []byte(verdict), ttl)
}

// Invalidate drops the cached verdict for subject on resourceID.
func (p *PermissionCache) Invalidate(ctx context.Context, subject, resourceID string) error {
	return p.tier.Invalidate(ctx, permissionKey(subject, resourceID))
}
