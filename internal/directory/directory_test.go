package directory

import (
	"context"
	"path/filepath"
	"testing"

	apperrors "github.com/louisbranch/taskweave/internal/platform/errors"
	"github.com/louisbranch/taskweave/internal/storage/sqlite"
)

func openService(t *testing.T) *Service {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "directory.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	service, err := New(store)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service
}

func TestLookupExactMatch(t *testing.T) {
	ctx := context.Background()
	service := openService(t)

	if err := service.Register(ctx, "user-alice", "Alice"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := service.Register(ctx, "user-alicia", "Alicia"); err != nil {
		t.Fatalf("register: %v", err)
	}

	id, err := service.LookupUser(ctx, "alice")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if id != "user-alice" {
		t.Fatalf("id = %q, want %q", id, "user-alice")
	}
}

func TestLookupUniquePrefix(t *testing.T) {
	ctx := context.Background()
	service := openService(t)

	if err := service.Register(ctx, "user-bob", "Bob Martin"); err != nil {
		t.Fatalf("register: %v", err)
	}

	id, err := service.LookupUser(ctx, "bob")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if id != "user-bob" {
		t.Fatalf("id = %q, want %q", id, "user-bob")
	}
}

func TestLookupAmbiguousPrefix(t *testing.T) {
	ctx := context.Background()
	service := openService(t)

	if err := service.Register(ctx, "user-1", "Sam Harper"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := service.Register(ctx, "user-2", "Sam Okafor"); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, err := service.LookupUser(ctx, "sam")
	if !apperrors.IsCode(err, apperrors.CodeValidation) {
		t.Fatalf("err = %v, want %s", err, apperrors.CodeValidation)
	}
}

func TestLookupUnknownName(t *testing.T) {
	ctx := context.Background()
	service := openService(t)

	_, err := service.LookupUser(ctx, "nobody")
	if !apperrors.IsCode(err, apperrors.CodeValidation) {
		t.Fatalf("err = %v, want %s", err, apperrors.CodeValidation)
	}
}

func TestRegisterUpdatesName(t *testing.T) {
	ctx := context.Background()
	service := openService(t)

	if err := service.Register(ctx, "user-1", "Sam"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := service.Register(ctx, "user-1", "Samantha"); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := service.LookupUser(ctx, "Sam"); err != nil {
		t.Fatalf("lookup by prefix after rename: %v", err)
	}
	id, err := service.LookupUser(ctx, "Samantha")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if id != "user-1" {
		t.Fatalf("id = %q, want %q", id, "user-1")
	}
}
