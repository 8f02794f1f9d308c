package cache

import (
	"context"
	"testing"
	"time"
)

func TestPermissionCacheRoundTrip(t *testing.T) {
	backend := newFakeBackend()
	clk := &clock{now: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)}
	perms, err := NewPermissionCache(8, backend, WithClock(clk.Now))
	if err != nil {
		t.Fatalf("new permission cache: %v", err)
	}

	if err := perms.Put(context.Background(), "user-1", "plan-9", VerdictAllow, time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}

	verdict, ok, err := perms.Get(context.Background(), "user-1", "plan-9")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok || verdict != VerdictAllow {
		t.Fatalf("get = %q, %v; want allow, true", verdict, ok)
	}
}

func TestPermissionCacheExpiryBoundaryIsAMiss(t *testing.T) {
	backend := newFakeBackend()
	clk := &clock{now: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)}
	perms, err := NewPermissionCache(8, backend, WithClock(clk.Now))
	if err != nil {
		t.Fatalf("new permission cache: %v", err)
	}

	if err := perms.Put(context.Background(), "user-1", "plan-9", VerdictAllow, time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}

	// A read exactly at expires_at must be treated as expired.
	clk.Advance(time.Minute)
	if _, ok, err := perms.Get(context.Background(), "user-1", "plan-9"); err != nil || ok {
		t.Fatalf("get at expiry = %v, %v; want miss", ok, err)
	}
}

func TestPermissionCacheRejectsUnknownVerdict(t *testing.T) {
	backend := newFakeBackend()
	clk := &clock{now: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)}
	perms, err := NewPermissionCache(8, backend, WithClock(clk.Now))
	if err != nil {
		t.Fatalf("new permission cache: %v", err)
	}

	if err := perms.Put(context.Background(), "user-1", "plan-9", Verdict("maybe"), time.Minute); err == nil {
		t.Fatal("expected error for unknown verdict")
	}
}

func TestPermissionCacheIsolatedFromObjectNamespace(t *testing.T) {
	backend := newFakeBackend()
	clk := &clock{now: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)}
	perms, err := NewPermissionCache(8, backend, WithClock(clk.Now))
	if err != nil {
		t.Fatalf("new permission cache: %v", err)
	}
	objects := newTestCache(t, backend, clk)

	if err := perms.Put(context.Background(), "user-1", "plan-9", VerdictDeny, time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, ok, _ := objects.Get(context.Background(), permissionKey("user-1", "plan-9")); ok {
		t.Fatal("expected object namespace not to see permission entries")
	}
}
