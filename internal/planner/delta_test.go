package planner

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/louisbranch/taskweave/internal/storage"
)

func tokenRecord(userID, planID, token string) storage.DeltaTokenRecord {
	return storage.DeltaTokenRecord{
		UserID:    userID,
		Scope:     deltaScope(planID),
		Token:     token,
		UpdatedAt: time.Now(),
	}
}

func TestDeltaFirstSyncPersistsTokenDurably(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("token"); got != "" {
			t.Errorf("first sync sent token %q, want none", got)
		}
		writeJSON(t, w, DeltaPage{
			Changes: []Change{{Resource: "task", Op: ChangeCreated, ID: "task-1", Task: &Task{ID: "task-1", PlanID: "plan-1", Title: "Draft agenda", ETag: "v1"}}},
			Token:   "cursor-1",
		})
	})
	env := newTestEnv(t, handler, 1)

	page, err := env.client.Delta(context.Background(), "user-1", "plan-1")
	if err != nil {
		t.Fatalf("Delta() error = %v", err)
	}
	if !page.FullSnapshot {
		t.Fatal("first sync should report a full snapshot")
	}
	if len(page.Changes) != 1 {
		t.Fatalf("changes = %d, want 1", len(page.Changes))
	}

	record, err := env.deltas.GetDeltaToken(context.Background(), "user-1", deltaScope("plan-1"))
	if err != nil {
		t.Fatalf("GetDeltaToken() error = %v", err)
	}
	if record.Token != "cursor-1" {
		t.Fatalf("stored token = %q, want %q", record.Token, "cursor-1")
	}
}

func TestDeltaResumesFromStoredToken(t *testing.T) {
	var gotToken string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.URL.Query().Get("token")
		writeJSON(t, w, DeltaPage{Token: "cursor-2"})
	})
	env := newTestEnv(t, handler, 1)
	ctx := context.Background()

	if err := env.deltas.PutDeltaToken(ctx, tokenRecord("user-1", "plan-1", "cursor-1")); err != nil {
		t.Fatalf("PutDeltaToken() error = %v", err)
	}

	page, err := env.client.Delta(ctx, "user-1", "plan-1")
	if err != nil {
		t.Fatalf("Delta() error = %v", err)
	}
	if gotToken != "cursor-1" {
		t.Fatalf("sent token = %q, want %q", gotToken, "cursor-1")
	}
	if page.FullSnapshot {
		t.Fatal("resumed sync should not report a full snapshot")
	}

	record, err := env.deltas.GetDeltaToken(ctx, "user-1", deltaScope("plan-1"))
	if err != nil {
		t.Fatalf("GetDeltaToken() error = %v", err)
	}
	if record.Token != "cursor-2" {
		t.Fatalf("stored token = %q, want %q", record.Token, "cursor-2")
	}
}

func TestDeltaExpiredTokenRestartsFromSnapshot(t *testing.T) {
	var hits int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if r.URL.Query().Get("token") != "" {
			w.WriteHeader(http.StatusGone)
			return
		}
		writeJSON(t, w, DeltaPage{
			Changes: []Change{{Resource: "task", Op: ChangeCreated, ID: "task-1", Task: &Task{ID: "task-1", PlanID: "plan-1", ETag: "v3"}}},
			Token:   "cursor-fresh",
		})
	})
	env := newTestEnv(t, handler, 1)
	ctx := context.Background()

	if err := env.deltas.PutDeltaToken(ctx, tokenRecord("user-1", "plan-1", "cursor-stale")); err != nil {
		t.Fatalf("PutDeltaToken() error = %v", err)
	}

	page, err := env.client.Delta(ctx, "user-1", "plan-1")
	if err != nil {
		t.Fatalf("Delta() error = %v", err)
	}
	if !page.FullSnapshot {
		t.Fatal("expired token should restart from a full snapshot")
	}
	if hits != 2 {
		t.Fatalf("server hits = %d, want 2 (expired call plus restart)", hits)
	}

	record, err := env.deltas.GetDeltaToken(ctx, "user-1", deltaScope("plan-1"))
	if err != nil {
		t.Fatalf("GetDeltaToken() error = %v", err)
	}
	if record.Token != "cursor-fresh" {
		t.Fatalf("stored token = %q, want %q", record.Token, "cursor-fresh")
	}
}

func TestDeltaRefreshesChangedTaskInCache(t *testing.T) {
	var getHits int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/plans/plan-1/delta":
			writeJSON(t, w, DeltaPage{
				Changes: []Change{{Resource: "task", Op: ChangeUpdated, ID: "task-1", Task: &Task{ID: "task-1", PlanID: "plan-1", Title: "Updated remotely", ETag: "v4"}}},
				Token:   "cursor-1",
			})
		default:
			getHits++
			writeJSON(t, w, Task{ID: "task-1", PlanID: "plan-1", Title: "Updated remotely", ETag: "v4"})
		}
	})
	env := newTestEnv(t, handler, 1)
	ctx := context.Background()

	if _, err := env.client.Delta(ctx, "user-1", "plan-1"); err != nil {
		t.Fatalf("Delta() error = %v", err)
	}

	task, err := env.client.GetTask(ctx, "user-1", "task-1")
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	if getHits != 0 {
		t.Fatalf("get hits = %d, want 0 (delta payload refreshed the cache)", getHits)
	}
	if task.ETag != "v4" {
		t.Fatalf("task.ETag = %q, want %q", task.ETag, "v4")
	}
}

func TestDeltaDeletedTaskDropsCachedCopy(t *testing.T) {
	var getHits int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/plans/plan-1/delta":
			writeJSON(t, w, DeltaPage{
				Changes: []Change{{Resource: "task", Op: ChangeDeleted, ID: "task-1"}},
				Token:   "cursor-1",
			})
		default:
			getHits++
			w.WriteHeader(http.StatusNotFound)
		}
	})
	env := newTestEnv(t, handler, 1)
	ctx := context.Background()

	// Seed the cache, then observe the delta drop it.
	raw := []byte(`{"id":"task-1","planId":"plan-1","etag":"v1"}`)
	if err := env.client.objects.Put(ctx, taskKey("task-1"), raw, DefaultObjectTTL); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	if _, err := env.client.Delta(ctx, "user-1", "plan-1"); err != nil {
		t.Fatalf("Delta() error = %v", err)
	}

	if _, err := env.client.GetTask(ctx, "user-1", "task-1"); err == nil {
		t.Fatal("GetTask() after deletion expected error")
	}
	if getHits != 1 {
		t.Fatalf("get hits = %d, want 1 (cached copy dropped)", getHits)
	}
}
