package planner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/louisbranch/taskweave/internal/cache"
	apperrors "github.com/louisbranch/taskweave/internal/platform/errors"
	"github.com/louisbranch/taskweave/internal/resilience"
	"github.com/louisbranch/taskweave/internal/storage"
)

// memBackend is an in-memory stand-in for the SQLite L2 tier.
type memBackend struct {
	mu      sync.Mutex
	entries map[string]storage.CacheEntryRecord
}

func newMemBackend() *memBackend {
	return &memBackend{entries: map[string]storage.CacheEntryRecord{}}
}

func (b *memBackend) GetCacheEntry(_ context.Context, namespace, key string, now time.Time) (storage.CacheEntryRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	record, ok := b.entries[namespace+"\x00"+key]
	if !ok || !record.ExpiresAt.After(now) {
		return storage.CacheEntryRecord{}, storage.ErrNotFound
	}
	return record, nil
}

func (b *memBackend) PutCacheEntry(_ context.Context, record storage.CacheEntryRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[record.Namespace+"\x00"+record.Key] = record
	return nil
}

func (b *memBackend) DeleteCacheEntry(_ context.Context, namespace, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, namespace+"\x00"+key)
	return nil
}

// memDeltaStorage is an in-memory stand-in for the delta token table.
type memDeltaStorage struct {
	mu     sync.Mutex
	tokens map[string]storage.DeltaTokenRecord
}

func newMemDeltaStorage() *memDeltaStorage {
	return &memDeltaStorage{tokens: map[string]storage.DeltaTokenRecord{}}
}

func (s *memDeltaStorage) GetDeltaToken(_ context.Context, userID, scope string) (storage.DeltaTokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.tokens[userID+"\x00"+scope]
	if !ok {
		return storage.DeltaTokenRecord{}, storage.ErrNotFound
	}
	return record, nil
}

func (s *memDeltaStorage) PutDeltaToken(_ context.Context, record storage.DeltaTokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[record.UserID+"\x00"+record.Scope] = record
	return nil
}

// staticTokens serves a fixed access token and swaps to a second one on
// forced refresh.
type staticTokens struct {
	mu        sync.Mutex
	token     string
	refreshed string
	refreshes int
}

func (s *staticTokens) ValidToken(context.Context, string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

func (s *staticTokens) Refresh(context.Context, string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshes++
	if s.refreshed != "" {
		s.token = s.refreshed
	}
	return s.token, nil
}

func quickPolicy(maxTries uint) resilience.Policy {
	return resilience.Policy{
		InitialInterval:     time.Millisecond,
		MaxInterval:         2 * time.Millisecond,
		Multiplier:          2,
		RandomizationFactor: 0.1,
		MaxTries:            maxTries,
		MaxElapsedTime:      5 * time.Second,
	}
}

type testEnv struct {
	client *Client
	server *httptest.Server
	tokens *staticTokens
	deltas *memDeltaStorage
}

func newTestEnv(t *testing.T, handler http.Handler, maxTries uint) *testEnv {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	backend := newMemBackend()
	objects, err := cache.NewTwoTier("objects", 64, backend)
	if err != nil {
		t.Fatalf("NewTwoTier() error = %v", err)
	}
	perms, err := cache.NewPermissionCache(64, backend)
	if err != nil {
		t.Fatalf("NewPermissionCache() error = %v", err)
	}

	tokens := &staticTokens{token: "tok-1"}
	deltas := newMemDeltaStorage()
	executor := resilience.NewExecutor(quickPolicy(maxTries), nil)

	client, err := NewClient(Config{BaseURL: server.URL}, tokens, executor, objects, perms, deltas)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return &testEnv{client: client, server: server, tokens: tokens, deltas: deltas}
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func TestListTasksServesSecondReadFromCache(t *testing.T) {
	var hits int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		writeJSON(t, w, []Task{{ID: "task-1", PlanID: "plan-1", Title: "Draft agenda", ETag: "v1"}})
	})
	env := newTestEnv(t, handler, 1)

	ctx := context.Background()
	first, err := env.client.ListTasks(ctx, "user-1", "plan-1")
	if err != nil {
		t.Fatalf("ListTasks() error = %v", err)
	}
	second, err := env.client.ListTasks(ctx, "user-1", "plan-1")
	if err != nil {
		t.Fatalf("ListTasks() second call error = %v", err)
	}

	if hits != 1 {
		t.Fatalf("server hits = %d, want 1", hits)
	}
	if len(first) != 1 || len(second) != 1 || second[0].ID != "task-1" {
		t.Fatalf("cached listing = %+v, want the original task", second)
	}
}

func TestCreateTaskSendsIdempotencyKeyAndInvalidatesListing(t *testing.T) {
	var listHits int
	var gotKey string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			gotKey = r.Header.Get("Idempotency-Key")
			var input CreateTaskInput
			if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
				t.Errorf("decode create input: %v", err)
			}
			writeJSON(t, w, Task{ID: "task-9", PlanID: input.PlanID, Title: input.Title, ETag: "v1"})
		default:
			listHits++
			writeJSON(t, w, []Task{})
		}
	})
	env := newTestEnv(t, handler, 1)
	ctx := context.Background()

	if _, err := env.client.ListTasks(ctx, "user-1", "plan-1"); err != nil {
		t.Fatalf("ListTasks() error = %v", err)
	}
	task, err := env.client.CreateTask(ctx, "user-1", CreateTaskInput{PlanID: "plan-1", Title: "Send invites"}, "key-42")
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	if task.ID != "task-9" {
		t.Fatalf("task.ID = %q, want %q", task.ID, "task-9")
	}
	if gotKey != "key-42" {
		t.Fatalf("Idempotency-Key = %q, want %q", gotKey, "key-42")
	}

	if _, err := env.client.ListTasks(ctx, "user-1", "plan-1"); err != nil {
		t.Fatalf("ListTasks() after create error = %v", err)
	}
	if listHits != 2 {
		t.Fatalf("list hits = %d, want 2 (cache invalidated by create)", listHits)
	}
}

func TestCreateTaskRequiresTitle(t *testing.T) {
	var hits int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits++ })
	env := newTestEnv(t, handler, 1)

	_, err := env.client.CreateTask(context.Background(), "user-1", CreateTaskInput{PlanID: "plan-1"}, "key-1")
	if got := apperrors.GetCode(err); got != apperrors.CodeValidation {
		t.Fatalf("error code = %q, want %q", got, apperrors.CodeValidation)
	}
	if hits != 0 {
		t.Fatalf("server hits = %d, want 0", hits)
	}
}

func TestCallRefreshesTokenOnceOnRejection(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(t, w, Task{ID: "task-1", ETag: "v1"})
	})
	env := newTestEnv(t, handler, 1)
	env.tokens.refreshed = "tok-2"

	task, err := env.client.GetTask(context.Background(), "user-1", "task-1")
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	if task.ID != "task-1" {
		t.Fatalf("task.ID = %q, want %q", task.ID, "task-1")
	}
	if env.tokens.refreshes != 1 {
		t.Fatalf("refreshes = %d, want 1", env.tokens.refreshes)
	}
}

func TestUpdateTaskConflictDropsCachedCopy(t *testing.T) {
	var getHits int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPatch:
			w.WriteHeader(http.StatusPreconditionFailed)
		default:
			getHits++
			writeJSON(t, w, Task{ID: "task-1", PlanID: "plan-1", Title: "Draft agenda", ETag: "v2"})
		}
	})
	env := newTestEnv(t, handler, 1)
	ctx := context.Background()

	if _, err := env.client.GetTask(ctx, "user-1", "task-1"); err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}

	title := "Draft agenda v2"
	_, err := env.client.UpdateTask(ctx, "user-1", "task-1", "v1", UpdateTaskInput{Title: &title})
	if got := apperrors.GetCode(err); got != apperrors.CodeConflict {
		t.Fatalf("error code = %q, want %q", got, apperrors.CodeConflict)
	}

	// The stale cached copy must be gone so the re-fetch observes the
	// remote state.
	task, err := env.client.GetTask(ctx, "user-1", "task-1")
	if err != nil {
		t.Fatalf("GetTask() after conflict error = %v", err)
	}
	if getHits != 2 {
		t.Fatalf("get hits = %d, want 2", getHits)
	}
	if task.ETag != "v2" {
		t.Fatalf("task.ETag = %q, want %q", task.ETag, "v2")
	}
}

func TestRateLimitedSurfacesRetryAfterAdvice(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	env := newTestEnv(t, handler, 1)

	_, err := env.client.ListPlans(context.Background(), "user-1")
	if got := apperrors.GetCode(err); got != apperrors.CodeRateLimited {
		t.Fatalf("error code = %q, want %q", got, apperrors.CodeRateLimited)
	}
	if got := apperrors.GetMetadata(err)[resilience.RetryAfterKey]; got != "30" {
		t.Fatalf("retry-after metadata = %q, want %q", got, "30")
	}
}

func TestForbiddenPlanCachesDenyVerdict(t *testing.T) {
	var hits int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusForbidden)
	})
	env := newTestEnv(t, handler, 1)
	ctx := context.Background()

	_, err := env.client.GetPlan(ctx, "user-1", "plan-1")
	if got := apperrors.GetCode(err); got != apperrors.CodePermissionDenied {
		t.Fatalf("error code = %q, want %q", got, apperrors.CodePermissionDenied)
	}
	_, err = env.client.GetPlan(ctx, "user-1", "plan-1")
	if got := apperrors.GetCode(err); got != apperrors.CodePermissionDenied {
		t.Fatalf("second error code = %q, want %q", got, apperrors.CodePermissionDenied)
	}
	if hits != 1 {
		t.Fatalf("server hits = %d, want 1 (deny verdict cached)", hits)
	}
}

func TestServerErrorRetriesThenSucceeds(t *testing.T) {
	var hits int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(t, w, []Plan{{ID: "plan-1", Title: "Launch", ETag: "v1"}})
	})
	env := newTestEnv(t, handler, 5)

	plans, err := env.client.ListPlans(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("ListPlans() error = %v", err)
	}
	if len(plans) != 1 || plans[0].ID != "plan-1" {
		t.Fatalf("plans = %+v, want plan-1", plans)
	}
	if hits != 3 {
		t.Fatalf("server hits = %d, want 3", hits)
	}
}

func TestNewClientValidatesDependencies(t *testing.T) {
	if _, err := NewClient(Config{}, nil, nil, nil, nil, nil); err == nil {
		t.Fatal("NewClient() with empty config expected error")
	}
}
