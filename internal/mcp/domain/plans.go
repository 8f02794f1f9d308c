package domain

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/taskweave/internal/planner"
)

// PlanAdmin extends Planner with the plan-structure operations that are
// only reachable through direct tool calls.
type PlanAdmin interface {
	Planner
	CreatePlan(ctx context.Context, userID string, input planner.CreatePlanInput, idempotencyKey string) (planner.Plan, error)
	ListBuckets(ctx context.Context, userID, planID string) ([]planner.Bucket, error)
	CreateBucket(ctx context.Context, userID string, input planner.CreateBucketInput, idempotencyKey string) (planner.Bucket, error)
	Delta(ctx context.Context, userID, planID string) (planner.DeltaPage, error)
}

// PlanPayload is the plan shape returned by plan tools.
type PlanPayload struct {
	ID    string `json:"id" jsonschema:"plan identifier"`
	Title string `json:"title" jsonschema:"plan title"`
}

// ListPlansInput is the MCP input for plan listing.
type ListPlansInput struct {
	UserID string `json:"user_id" jsonschema:"acting user identifier"`
}

// ListPlansResult is the MCP output for plan listing.
type ListPlansResult struct {
	Plans []PlanPayload `json:"plans" jsonschema:"plans visible to the user"`
}

// ListPlansTool defines the MCP tool schema for plan listing.
func ListPlansTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "list_plans",
		Description: "Lists the plans visible to a user",
	}
}

// ListPlansHandler executes a plan listing request.
func ListPlansHandler(client Planner) mcp.ToolHandlerFor[ListPlansInput, ListPlansResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ListPlansInput) (*mcp.CallToolResult, ListPlansResult, error) {
		runCtx, cancel := context.WithTimeout(ctx, toolTimeout)
		defer cancel()

		plans, err := client.ListPlans(runCtx, input.UserID)
		if err != nil {
			return nil, ListPlansResult{}, toolError("list plans", err)
		}
		result := ListPlansResult{Plans: []PlanPayload{}}
		for _, plan := range plans {
			result.Plans = append(result.Plans, PlanPayload{ID: plan.ID, Title: plan.Title})
		}
		return nil, result, nil
	}
}

// CreatePlanInput is the MCP input for plan creation.
type CreatePlanInput struct {
	UserID         string `json:"user_id" jsonschema:"acting user identifier"`
	Title          string `json:"title" jsonschema:"plan title"`
	IdempotencyKey string `json:"idempotency_key,omitempty" jsonschema:"optional idempotency key for safe retries"`
}

// CreatePlanTool defines the MCP tool schema for plan creation.
func CreatePlanTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "create_plan",
		Description: "Creates a plan on the remote planning service",
	}
}

// CreatePlanHandler executes a plan creation request.
func CreatePlanHandler(client PlanAdmin, newKey func() string) mcp.ToolHandlerFor[CreatePlanInput, PlanPayload] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input CreatePlanInput) (*mcp.CallToolResult, PlanPayload, error) {
		runCtx, cancel := context.WithTimeout(ctx, toolTimeout)
		defer cancel()

		key := input.IdempotencyKey
		if key == "" {
			key = newKey()
		}
		plan, err := client.CreatePlan(runCtx, input.UserID, planner.CreatePlanInput{Title: input.Title}, key)
		if err != nil {
			return nil, PlanPayload{}, toolError("create plan", err)
		}
		return nil, PlanPayload{ID: plan.ID, Title: plan.Title}, nil
	}
}

// BucketPayload is the bucket shape returned by bucket tools.
type BucketPayload struct {
	ID     string `json:"id" jsonschema:"bucket identifier"`
	PlanID string `json:"plan_id" jsonschema:"owning plan identifier"`
	Name   string `json:"name" jsonschema:"bucket name"`
}

// ListBucketsInput is the MCP input for bucket listing.
type ListBucketsInput struct {
	UserID string `json:"user_id" jsonschema:"acting user identifier"`
	PlanID string `json:"plan_id" jsonschema:"plan whose buckets to list"`
}

// ListBucketsResult is the MCP output for bucket listing.
type ListBucketsResult struct {
	Buckets []BucketPayload `json:"buckets" jsonschema:"buckets in the plan"`
}

// ListBucketsTool defines the MCP tool schema for bucket listing.
func ListBucketsTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "list_buckets",
		Description: "Lists the buckets of a plan",
	}
}

// ListBucketsHandler executes a bucket listing request.
func ListBucketsHandler(client PlanAdmin) mcp.ToolHandlerFor[ListBucketsInput, ListBucketsResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ListBucketsInput) (*mcp.CallToolResult, ListBucketsResult, error) {
		runCtx, cancel := context.WithTimeout(ctx, toolTimeout)
		defer cancel()

		buckets, err := client.ListBuckets(runCtx, input.UserID, input.PlanID)
		if err != nil {
			return nil, ListBucketsResult{}, toolError("list buckets", err)
		}
		result := ListBucketsResult{Buckets: []BucketPayload{}}
		for _, bucket := range buckets {
			result.Buckets = append(result.Buckets, BucketPayload{ID: bucket.ID, PlanID: bucket.PlanID, Name: bucket.Name})
		}
		return nil, result, nil
	}
}

// CreateBucketInput is the MCP input for bucket creation.
type CreateBucketInput struct {
	UserID         string `json:"user_id" jsonschema:"acting user identifier"`
	PlanID         string `json:"plan_id" jsonschema:"plan to create the bucket in"`
	Name           string `json:"name" jsonschema:"bucket name"`
	IdempotencyKey string `json:"idempotency_key,omitempty" jsonschema:"optional idempotency key for safe retries"`
}

// CreateBucketTool defines the MCP tool schema for bucket creation.
func CreateBucketTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "create_bucket",
		Description: "Creates a bucket within a plan",
	}
}

// CreateBucketHandler executes a bucket creation request.
func CreateBucketHandler(client PlanAdmin, newKey func() string) mcp.ToolHandlerFor[CreateBucketInput, BucketPayload] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input CreateBucketInput) (*mcp.CallToolResult, BucketPayload, error) {
		runCtx, cancel := context.WithTimeout(ctx, toolTimeout)
		defer cancel()

		key := input.IdempotencyKey
		if key == "" {
			key = newKey()
		}
		bucket, err := client.CreateBucket(runCtx, input.UserID,
			planner.CreateBucketInput{PlanID: input.PlanID, Name: input.Name}, key)
		if err != nil {
			return nil, BucketPayload{}, toolError("create bucket", err)
		}
		return nil, BucketPayload{ID: bucket.ID, PlanID: bucket.PlanID, Name: bucket.Name}, nil
	}
}

// SyncPlanInput is the MCP input for an incremental plan sync.
type SyncPlanInput struct {
	UserID string `json:"user_id" jsonschema:"acting user identifier"`
	PlanID string `json:"plan_id" jsonschema:"plan to sync"`
}

// SyncPlanResult summarizes one delta round.
type SyncPlanResult struct {
	Changes      int  `json:"changes" jsonschema:"number of changes applied"`
	FullSnapshot bool `json:"full_snapshot" jsonschema:"whether the round restarted from a full snapshot"`
}

// SyncPlanTool defines the MCP tool schema for incremental sync.
func SyncPlanTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "sync_plan",
		Description: "Pulls changes since the last sync checkpoint and refreshes the local cache",
	}
}

// SyncPlanHandler executes one delta sync round.
func SyncPlanHandler(client PlanAdmin) mcp.ToolHandlerFor[SyncPlanInput, SyncPlanResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input SyncPlanInput) (*mcp.CallToolResult, SyncPlanResult, error) {
		runCtx, cancel := context.WithTimeout(ctx, toolTimeout)
		defer cancel()

		page, err := client.Delta(runCtx, input.UserID, input.PlanID)
		if err != nil {
			return nil, SyncPlanResult{}, toolError("sync plan", err)
		}
		return nil, SyncPlanResult{Changes: len(page.Changes), FullSnapshot: page.FullSnapshot}, nil
	}
}
