package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/taskweave/internal/planner"
	apperrors "github.com/louisbranch/taskweave/internal/platform/errors"
)

// Planner is the remote client surface the task tools call.
type Planner interface {
	ListPlans(ctx context.Context, userID string) ([]planner.Plan, error)
	ListTasks(ctx context.Context, userID, planID string) ([]planner.Task, error)
	GetTask(ctx context.Context, userID, taskID string) (planner.Task, error)
	CreateTask(ctx context.Context, userID string, input planner.CreateTaskInput, idempotencyKey string) (planner.Task, error)
	UpdateTask(ctx context.Context, userID, taskID, etag string, input planner.UpdateTaskInput) (planner.Task, error)
	DeleteTask(ctx context.Context, userID, taskID, etag, planID string) error
}

const toolTimeout = 30 * time.Second

// TaskPayload is the task shape returned by task tools.
type TaskPayload struct {
	ID              string `json:"id" jsonschema:"task identifier"`
	PlanID          string `json:"plan_id" jsonschema:"plan identifier"`
	Title           string `json:"title" jsonschema:"task title"`
	Priority        int    `json:"priority" jsonschema:"priority, lower is more urgent"`
	PercentComplete int    `json:"percent_complete" jsonschema:"completion percentage"`
	DueAt           string `json:"due_at,omitempty" jsonschema:"due timestamp, RFC 3339"`
	Completed       bool   `json:"completed" jsonschema:"whether the task is done"`
}

func taskPayload(task planner.Task) TaskPayload {
	payload := TaskPayload{
		ID:              task.ID,
		PlanID:          task.PlanID,
		Title:           task.Title,
		Priority:        task.Priority,
		PercentComplete: task.PercentComplete,
		Completed:       task.Completed(),
	}
	if task.DueAt != nil {
		payload.DueAt = task.DueAt.Format(time.RFC3339)
	}
	return payload
}

// CreateTaskInput is the MCP input for task creation.
type CreateTaskInput struct {
	UserID string `json:"user_id" jsonschema:"acting user identifier"`
	PlanID string `json:"plan_id" jsonschema:"plan to create the task in"`
	Title  string `json:"title" jsonschema:"task title"`
	DueAt  string `json:"due_at,omitempty" jsonschema:"optional due timestamp, RFC 3339"`
	// IdempotencyKey lets a caller safely retry a create it is unsure
	// landed. Omitted, a fresh key is generated.
	IdempotencyKey string `json:"idempotency_key,omitempty" jsonschema:"optional idempotency key for safe retries"`
}

// CreateTaskTool defines the MCP tool schema for task creation.
func CreateTaskTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "create_task",
		Description: "Creates a task in a plan on the remote planning service",
	}
}

// CreateTaskHandler executes a task creation request.
func CreateTaskHandler(client Planner, newKey func() string) mcp.ToolHandlerFor[CreateTaskInput, TaskPayload] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input CreateTaskInput) (*mcp.CallToolResult, TaskPayload, error) {
		runCtx, cancel := context.WithTimeout(ctx, toolTimeout)
		defer cancel()

		create := planner.CreateTaskInput{PlanID: input.PlanID, Title: input.Title}
		if input.DueAt != "" {
			due, err := time.Parse(time.RFC3339, input.DueAt)
			if err != nil {
				return nil, TaskPayload{}, fmt.Errorf("due_at must be RFC 3339: %w", err)
			}
			create.DueAt = &due
		}
		key := input.IdempotencyKey
		if key == "" {
			key = newKey()
		}

		task, err := client.CreateTask(runCtx, input.UserID, create, key)
		if err != nil {
			return nil, TaskPayload{}, toolError("create task", err)
		}
		return nil, taskPayload(task), nil
	}
}

// ListTasksInput is the MCP input for task listing.
type ListTasksInput struct {
	UserID string `json:"user_id" jsonschema:"acting user identifier"`
	PlanID string `json:"plan_id" jsonschema:"plan whose tasks to list"`
}

// ListTasksResult is the MCP output for task listing.
type ListTasksResult struct {
	Tasks []TaskPayload `json:"tasks" jsonschema:"tasks in the plan"`
}

// ListTasksTool defines the MCP tool schema for task listing.
func ListTasksTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "list_tasks",
		Description: "Lists the tasks of a plan",
	}
}

// ListTasksHandler executes a task listing request.
func ListTasksHandler(client Planner) mcp.ToolHandlerFor[ListTasksInput, ListTasksResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ListTasksInput) (*mcp.CallToolResult, ListTasksResult, error) {
		runCtx, cancel := context.WithTimeout(ctx, toolTimeout)
		defer cancel()

		tasks, err := client.ListTasks(runCtx, input.UserID, input.PlanID)
		if err != nil {
			return nil, ListTasksResult{}, toolError("list tasks", err)
		}
		result := ListTasksResult{Tasks: []TaskPayload{}}
		for _, task := range tasks {
			result.Tasks = append(result.Tasks, taskPayload(task))
		}
		return nil, result, nil
	}
}

// UpdateTaskInput is the MCP input for partial task updates.
type UpdateTaskInput struct {
	UserID          string `json:"user_id" jsonschema:"acting user identifier"`
	TaskID          string `json:"task_id" jsonschema:"task to update"`
	Title           string `json:"title,omitempty" jsonschema:"new title"`
	DueAt           string `json:"due_at,omitempty" jsonschema:"new due timestamp, RFC 3339"`
	Priority        *int   `json:"priority,omitempty" jsonschema:"new priority"`
	PercentComplete *int   `json:"percent_complete,omitempty" jsonschema:"new completion percentage"`
}

// UpdateTaskTool defines the MCP tool schema for task updates.
func UpdateTaskTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "update_task",
		Description: "Applies a partial update to a task, handling concurrency tokens internally",
	}
}

// UpdateTaskHandler executes a task update request.
func UpdateTaskHandler(client Planner) mcp.ToolHandlerFor[UpdateTaskInput, TaskPayload] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input UpdateTaskInput) (*mcp.CallToolResult, TaskPayload, error) {
		runCtx, cancel := context.WithTimeout(ctx, toolTimeout)
		defer cancel()

		var update planner.UpdateTaskInput
		if input.Title != "" {
			title := input.Title
			update.Title = &title
		}
		if input.DueAt != "" {
			due, err := time.Parse(time.RFC3339, input.DueAt)
			if err != nil {
				return nil, TaskPayload{}, fmt.Errorf("due_at must be RFC 3339: %w", err)
			}
			update.DueAt = &due
		}
		update.Priority = input.Priority
		update.PercentComplete = input.PercentComplete

		task, err := mutateTask(runCtx, client, input.UserID, input.TaskID, update)
		if err != nil {
			return nil, TaskPayload{}, toolError("update task", err)
		}
		return nil, taskPayload(task), nil
	}
}

// CompleteTaskInput is the MCP input for completing a task.
type CompleteTaskInput struct {
	UserID string `json:"user_id" jsonschema:"acting user identifier"`
	TaskID string `json:"task_id" jsonschema:"task to complete"`
}

// CompleteTaskTool defines the MCP tool schema for completing tasks.
func CompleteTaskTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "complete_task",
		Description: "Marks a task as done",
	}
}

// CompleteTaskHandler executes a completion request.
func CompleteTaskHandler(client Planner) mcp.ToolHandlerFor[CompleteTaskInput, TaskPayload] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input CompleteTaskInput) (*mcp.CallToolResult, TaskPayload, error) {
		runCtx, cancel := context.WithTimeout(ctx, toolTimeout)
		defer cancel()

		done := 100
		task, err := mutateTask(runCtx, client, input.UserID, input.TaskID,
			planner.UpdateTaskInput{PercentComplete: &done})
		if err != nil {
			return nil, TaskPayload{}, toolError("complete task", err)
		}
		return nil, taskPayload(task), nil
	}
}

// DeleteTaskInput is the MCP input for deleting a task.
type DeleteTaskInput struct {
	UserID string `json:"user_id" jsonschema:"acting user identifier"`
	TaskID string `json:"task_id" jsonschema:"task to delete"`
}

// DeleteTaskResult is the MCP output for deleting a task.
type DeleteTaskResult struct {
	Deleted bool `json:"deleted" jsonschema:"whether the task was deleted"`
}

// DeleteTaskTool defines the MCP tool schema for deleting tasks.
func DeleteTaskTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "delete_task",
		Description: "Deletes a task, handling concurrency tokens internally",
	}
}

// DeleteTaskHandler executes a delete request.
func DeleteTaskHandler(client Planner) mcp.ToolHandlerFor[DeleteTaskInput, DeleteTaskResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input DeleteTaskInput) (*mcp.CallToolResult, DeleteTaskResult, error) {
		runCtx, cancel := context.WithTimeout(ctx, toolTimeout)
		defer cancel()

		current, err := client.GetTask(runCtx, input.UserID, input.TaskID)
		if err != nil {
			return nil, DeleteTaskResult{}, toolError("delete task", err)
		}
		err = client.DeleteTask(runCtx, input.UserID, input.TaskID, current.ETag, current.PlanID)
		if apperrors.IsCode(err, apperrors.CodeConflict) {
			current, err = client.GetTask(runCtx, input.UserID, input.TaskID)
			if err != nil {
				return nil, DeleteTaskResult{}, toolError("delete task", err)
			}
			err = client.DeleteTask(runCtx, input.UserID, input.TaskID, current.ETag, current.PlanID)
		}
		if err != nil {
			return nil, DeleteTaskResult{}, toolError("delete task", err)
		}
		return nil, DeleteTaskResult{Deleted: true}, nil
	}
}

// mutateTask fetches a fresh concurrency token, applies the update, and
// retries once on a stale-token conflict.
func mutateTask(ctx context.Context, client Planner, userID, taskID string, update planner.UpdateTaskInput) (planner.Task, error) {
	current, err := client.GetTask(ctx, userID, taskID)
	if err != nil {
		return planner.Task{}, err
	}
	task, err := client.UpdateTask(ctx, userID, taskID, current.ETag, update)
	if apperrors.IsCode(err, apperrors.CodeConflict) {
		current, err = client.GetTask(ctx, userID, taskID)
		if err != nil {
			return planner.Task{}, err
		}
		return client.UpdateTask(ctx, userID, taskID, current.ETag, update)
	}
	return task, err
}

// toolError keeps the typed code visible to callers while hiding
// internal detail.
func toolError(op string, err error) error {
	return fmt.Errorf("%s failed (%s)", op, apperrors.GetCode(err))
}
