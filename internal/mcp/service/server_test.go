// Package service tests the MCP server wiring.
package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/taskweave/internal/assistant"
	"github.com/louisbranch/taskweave/internal/comments"
	"github.com/louisbranch/taskweave/internal/mcp/domain"
	"github.com/louisbranch/taskweave/internal/planner"
	apperrors "github.com/louisbranch/taskweave/internal/platform/errors"
	"github.com/louisbranch/taskweave/internal/resolver"
)

// fakePlanner implements domain.PlanAdmin for tests.
type fakePlanner struct {
	plans       []planner.Plan
	buckets     []planner.Bucket
	tasks       map[string]planner.Task
	deltaPage   planner.DeltaPage
	err         error
	updateErrs  []error
	lastCreate  planner.CreateTaskInput
	lastKey     string
	lastUpdate  planner.UpdateTaskInput
	lastETag    string
	getCalls    int
	updateCalls int
	deleted     []string
}

func (f *fakePlanner) ListPlans(ctx context.Context, userID string) ([]planner.Plan, error) {
	return f.plans, f.err
}

func (f *fakePlanner) ListTasks(ctx context.Context, userID, planID string) ([]planner.Task, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []planner.Task
	for _, task := range f.tasks {
		if task.PlanID == planID {
			out = append(out, task)
		}
	}
	return out, nil
}

func (f *fakePlanner) GetTask(ctx context.Context, userID, taskID string) (planner.Task, error) {
	f.getCalls++
	task, ok := f.tasks[taskID]
	if !ok {
		return planner.Task{}, apperrors.New(apperrors.CodeNotFound, "no such task")
	}
	return task, f.err
}

func (f *fakePlanner) CreateTask(ctx context.Context, userID string, input planner.CreateTaskInput, idempotencyKey string) (planner.Task, error) {
	f.lastCreate = input
	f.lastKey = idempotencyKey
	if f.err != nil {
		return planner.Task{}, f.err
	}
	return planner.Task{ID: "task-1", PlanID: input.PlanID, Title: input.Title, DueAt: input.DueAt, ETag: "v1"}, nil
}

func (f *fakePlanner) UpdateTask(ctx context.Context, userID, taskID, etag string, input planner.UpdateTaskInput) (planner.Task, error) {
	f.updateCalls++
	f.lastUpdate = input
	f.lastETag = etag
	if len(f.updateErrs) > 0 {
		err := f.updateErrs[0]
		f.updateErrs = f.updateErrs[1:]
		if err != nil {
			return planner.Task{}, err
		}
	}
	task := f.tasks[taskID]
	if input.PercentComplete != nil {
		task.PercentComplete = *input.PercentComplete
	}
	if input.Title != nil {
		task.Title = *input.Title
	}
	f.tasks[taskID] = task
	return task, nil
}

func (f *fakePlanner) DeleteTask(ctx context.Context, userID, taskID, etag, planID string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, taskID)
	delete(f.tasks, taskID)
	return nil
}

func (f *fakePlanner) CreatePlan(ctx context.Context, userID string, input planner.CreatePlanInput, idempotencyKey string) (planner.Plan, error) {
	f.lastKey = idempotencyKey
	if f.err != nil {
		return planner.Plan{}, f.err
	}
	return planner.Plan{ID: "plan-1", Title: input.Title}, nil
}

func (f *fakePlanner) ListBuckets(ctx context.Context, userID, planID string) ([]planner.Bucket, error) {
	return f.buckets, f.err
}

func (f *fakePlanner) CreateBucket(ctx context.Context, userID string, input planner.CreateBucketInput, idempotencyKey string) (planner.Bucket, error) {
	f.lastKey = idempotencyKey
	if f.err != nil {
		return planner.Bucket{}, f.err
	}
	return planner.Bucket{ID: "bucket-1", PlanID: input.PlanID, Name: input.Name}, nil
}

func (f *fakePlanner) Delta(ctx context.Context, userID, planID string) (planner.DeltaPage, error) {
	return f.deltaPage, f.err
}

// fakeCommenter implements domain.Commenter for tests.
type fakeCommenter struct {
	comments []comments.Comment
	err      error
}

func (f *fakeCommenter) Append(ctx context.Context, taskID, authorID, body string) (comments.Comment, error) {
	if f.err != nil {
		return comments.Comment{}, f.err
	}
	comment := comments.Comment{ID: "comment-1", TaskID: taskID, AuthorID: authorID, Body: body, CreatedAt: time.Now()}
	f.comments = append(f.comments, comment)
	return comment, nil
}

func (f *fakeCommenter) List(ctx context.Context, taskID string, limit int) ([]comments.Comment, error) {
	return f.comments, f.err
}

// fakeAssistant implements domain.Assistant for tests.
type fakeAssistant struct {
	reply       assistant.Reply
	err         error
	lastSession string
	lastText    string
}

func (f *fakeAssistant) HandleMessage(ctx context.Context, sessionID, userID, text string) (assistant.Reply, error) {
	f.lastSession = sessionID
	f.lastText = text
	return f.reply, f.err
}

// fakeDirectory implements domain.Directory for tests.
type fakeDirectory struct {
	entries map[string]string
}

func (f *fakeDirectory) Register(ctx context.Context, id, displayName string) error {
	if f.entries == nil {
		f.entries = map[string]string{}
	}
	f.entries[strings.ToLower(displayName)] = id
	return nil
}

func (f *fakeDirectory) LookupUser(ctx context.Context, name string) (string, error) {
	id, ok := f.entries[strings.ToLower(name)]
	if !ok {
		return "", apperrors.New(apperrors.CodeValidation, "unknown name")
	}
	return id, nil
}

func staticKey() string { return "key-static" }

func testDeps() Deps {
	return Deps{
		Planner:   &fakePlanner{},
		Comments:  &fakeCommenter{},
		Assistant: &fakeAssistant{},
		Directory: &fakeDirectory{},
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	for _, tc := range []struct {
		name string
		mod  func(deps *Deps)
	}{
		{"planner", func(deps *Deps) { deps.Planner = nil }},
		{"comments", func(deps *Deps) { deps.Comments = nil }},
		{"assistant", func(deps *Deps) { deps.Assistant = nil }},
		{"directory", func(deps *Deps) { deps.Directory = nil }},
	} {
		deps := testDeps()
		tc.mod(&deps)
		if _, err := New(deps); err == nil {
			t.Fatalf("expected error for missing %s", tc.name)
		}
	}
}

func TestNewRegistersTools(t *testing.T) {
	server, err := New(testDeps())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if server == nil || server.mcpServer == nil {
		t.Fatal("expected configured server")
	}
}

func TestRunRejectsUnknownTransport(t *testing.T) {
	err := Run(context.Background(), testDeps(), RunConfig{Transport: TransportKind("carrier-pigeon")})
	if err == nil {
		t.Fatal("expected error for unknown transport")
	}
}

func TestCreateTaskHandlerGeneratesIdempotencyKey(t *testing.T) {
	client := &fakePlanner{tasks: map[string]planner.Task{}}
	handler := domain.CreateTaskHandler(client, staticKey)

	result, output, err := handler(context.Background(), &mcp.CallToolRequest{}, domain.CreateTaskInput{
		UserID: "user-1",
		PlanID: "plan-1",
		Title:  "Draft agenda",
		DueAt:  "2026-09-04T23:59:59Z",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result != nil {
		t.Fatal("expected nil result on success")
	}
	if client.lastKey != "key-static" {
		t.Fatalf("idempotency key = %q, want %q", client.lastKey, "key-static")
	}
	if client.lastCreate.DueAt == nil {
		t.Fatal("expected due date on create")
	}
	if output.Title != "Draft agenda" || output.PlanID != "plan-1" {
		t.Fatalf("unexpected payload %+v", output)
	}
}

func TestCreateTaskHandlerKeepsCallerKey(t *testing.T) {
	client := &fakePlanner{tasks: map[string]planner.Task{}}
	handler := domain.CreateTaskHandler(client, staticKey)

	_, _, err := handler(context.Background(), &mcp.CallToolRequest{}, domain.CreateTaskInput{
		UserID:         "user-1",
		PlanID:         "plan-1",
		Title:          "Draft agenda",
		IdempotencyKey: "caller-key",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if client.lastKey != "caller-key" {
		t.Fatalf("idempotency key = %q, want %q", client.lastKey, "caller-key")
	}
}

func TestCreateTaskHandlerRejectsBadDueDate(t *testing.T) {
	client := &fakePlanner{tasks: map[string]planner.Task{}}
	handler := domain.CreateTaskHandler(client, staticKey)

	_, _, err := handler(context.Background(), &mcp.CallToolRequest{}, domain.CreateTaskInput{
		UserID: "user-1",
		PlanID: "plan-1",
		Title:  "Draft agenda",
		DueAt:  "next friday",
	})
	if err == nil {
		t.Fatal("expected error for non-RFC 3339 due date")
	}
}

func TestUpdateTaskHandlerRetriesStaleToken(t *testing.T) {
	client := &fakePlanner{
		tasks:      map[string]planner.Task{"task-1": {ID: "task-1", PlanID: "plan-1", Title: "Budget", ETag: "v1"}},
		updateErrs: []error{apperrors.New(apperrors.CodeConflict, "stale token"), nil},
	}
	handler := domain.UpdateTaskHandler(client)

	_, output, err := handler(context.Background(), &mcp.CallToolRequest{}, domain.UpdateTaskInput{
		UserID: "user-1",
		TaskID: "task-1",
		Title:  "Budget v2",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if client.updateCalls != 2 {
		t.Fatalf("update calls = %d, want 2", client.updateCalls)
	}
	if output.Title != "Budget v2" {
		t.Fatalf("title = %q, want %q", output.Title, "Budget v2")
	}
}

func TestCompleteTaskHandlerSetsFullCompletion(t *testing.T) {
	client := &fakePlanner{
		tasks: map[string]planner.Task{"task-1": {ID: "task-1", PlanID: "plan-1", Title: "Budget", ETag: "v1"}},
	}
	handler := domain.CompleteTaskHandler(client)

	_, output, err := handler(context.Background(), &mcp.CallToolRequest{}, domain.CompleteTaskInput{
		UserID: "user-1",
		TaskID: "task-1",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if client.lastUpdate.PercentComplete == nil || *client.lastUpdate.PercentComplete != 100 {
		t.Fatalf("percent complete = %v, want 100", client.lastUpdate.PercentComplete)
	}
	if !output.Completed {
		t.Fatal("expected completed payload")
	}
}

func TestDeleteTaskHandlerSendsFreshToken(t *testing.T) {
	client := &fakePlanner{
		tasks: map[string]planner.Task{"task-1": {ID: "task-1", PlanID: "plan-1", Title: "Budget", ETag: "v3"}},
	}
	handler := domain.DeleteTaskHandler(client)

	_, output, err := handler(context.Background(), &mcp.CallToolRequest{}, domain.DeleteTaskInput{
		UserID: "user-1",
		TaskID: "task-1",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !output.Deleted {
		t.Fatal("expected deleted payload")
	}
	if len(client.deleted) != 1 || client.deleted[0] != "task-1" {
		t.Fatalf("deleted = %v, want [task-1]", client.deleted)
	}
	if client.getCalls == 0 {
		t.Fatal("expected a fetch for the concurrency token before delete")
	}
}

func TestHandlersHideInternalErrorDetail(t *testing.T) {
	client := &fakePlanner{err: apperrors.New(apperrors.CodeTransient, "dial tcp 10.0.0.1: connection refused")}
	handler := domain.ListPlansHandler(client)

	_, _, err := handler(context.Background(), &mcp.CallToolRequest{}, domain.ListPlansInput{UserID: "user-1"})
	if err == nil {
		t.Fatal("expected error")
	}
	if strings.Contains(err.Error(), "10.0.0.1") {
		t.Fatalf("error leaks internals: %v", err)
	}
	if !strings.Contains(err.Error(), string(apperrors.CodeTransient)) {
		t.Fatalf("error missing code: %v", err)
	}
}

func TestSyncPlanHandlerSummarizesPage(t *testing.T) {
	client := &fakePlanner{deltaPage: planner.DeltaPage{
		Changes:      []planner.Change{{Resource: "task", Op: planner.ChangeUpdated, ID: "task-1"}},
		FullSnapshot: true,
	}}
	handler := domain.SyncPlanHandler(client)

	_, output, err := handler(context.Background(), &mcp.CallToolRequest{}, domain.SyncPlanInput{UserID: "user-1", PlanID: "plan-1"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if output.Changes != 1 || !output.FullSnapshot {
		t.Fatalf("unexpected summary %+v", output)
	}
}

func TestAddCommentHandlerRoundTrips(t *testing.T) {
	service := &fakeCommenter{}
	add := domain.AddCommentHandler(service)
	list := domain.ListCommentsHandler(service)

	_, created, err := add(context.Background(), &mcp.CallToolRequest{}, domain.AddCommentInput{
		UserID: "user-1",
		TaskID: "task-1",
		Body:   "waiting on finance",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if created.Body != "waiting on finance" {
		t.Fatalf("body = %q, want %q", created.Body, "waiting on finance")
	}

	_, listed, err := list(context.Background(), &mcp.CallToolRequest{}, domain.ListCommentsInput{TaskID: "task-1"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(listed.Comments) != 1 || listed.Comments[0].ID != created.ID {
		t.Fatalf("unexpected comments %+v", listed.Comments)
	}
}

func TestProcessMessageHandlerFlattensClarification(t *testing.T) {
	orchestrator := &fakeAssistant{reply: assistant.Reply{
		Text:  "Which task do you mean?",
		State: assistant.StateClarifying,
		Clarification: &resolver.Clarification{
			Question: "Which task do you mean?",
			Candidates: []resolver.Candidate{
				{ID: "task-1", Label: "Budget review"},
				{ID: "task-2", Label: "Budget summary"},
			},
		},
	}}
	handler := domain.ProcessMessageHandler(orchestrator)

	_, output, err := handler(context.Background(), &mcp.CallToolRequest{}, domain.ProcessMessageInput{
		SessionID: "session-1",
		UserID:    "user-1",
		Text:      "mark the budget task done",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if output.State != string(assistant.StateClarifying) {
		t.Fatalf("state = %q, want %q", output.State, assistant.StateClarifying)
	}
	if len(output.Options) != 2 || output.Options[0] != "Budget review" {
		t.Fatalf("unexpected options %v", output.Options)
	}
	if orchestrator.lastSession != "session-1" {
		t.Fatalf("session = %q, want %q", orchestrator.lastSession, "session-1")
	}
}

func TestProcessMessageHandlerPropagatesFailure(t *testing.T) {
	orchestrator := &fakeAssistant{err: errors.New("storage offline")}
	handler := domain.ProcessMessageHandler(orchestrator)

	result, _, err := handler(context.Background(), &mcp.CallToolRequest{}, domain.ProcessMessageInput{
		SessionID: "session-1",
		UserID:    "user-1",
		Text:      "list my plans",
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if result != nil {
		t.Fatal("expected nil result on error")
	}
}

func TestDirectoryToolsRoundTrip(t *testing.T) {
	dir := &fakeDirectory{}
	register := domain.RegisterUserHandler(dir)
	lookup := domain.LookupUserHandler(dir)

	_, registered, err := register(context.Background(), &mcp.CallToolRequest{}, domain.RegisterUserInput{
		ID:          "user-alice",
		DisplayName: "Alice",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !registered.Registered {
		t.Fatal("expected registered payload")
	}

	_, resolved, err := lookup(context.Background(), &mcp.CallToolRequest{}, domain.LookupUserInput{Name: "alice"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if resolved.ID != "user-alice" {
		t.Fatalf("id = %q, want %q", resolved.ID, "user-alice")
	}
}
