package planner

import (
	"context"
	"fmt"
	"net/url"

	apperrors "github.com/louisbranch/taskweave/internal/platform/errors"
)

// ListTasks returns the tasks of a plan.
func (c *Client) ListTasks(ctx context.Context, userID, planID string) ([]Task, error) {
	if err := c.checkPermission(ctx, userID, planID); err != nil {
		return nil, err
	}
	tasks, err := cachedGet(ctx, c, taskListKey(planID), c.config.ListTTL, func(ctx context.Context) ([]Task, error) {
		var tasks []Task
		path := fmt.Sprintf("/plans/%s/tasks", url.PathEscape(planID))
		if err := c.call(ctx, userID, "planner.list_tasks", request{method: "GET", path: path}, &tasks); err != nil {
			return nil, err
		}
		return tasks, nil
	})
	c.recordPermission(ctx, userID, planID, err)
	return tasks, err
}

// GetTask returns one task with its current concurrency token.
func (c *Client) GetTask(ctx context.Context, userID, taskID string) (Task, error) {
	return cachedGet(ctx, c, taskKey(taskID), c.config.ObjectTTL, func(ctx context.Context) (Task, error) {
		var task Task
		if err := c.call(ctx, userID, "planner.get_task", request{method: "GET", path: "/tasks/" + url.PathEscape(taskID)}, &task); err != nil {
			return Task{}, err
		}
		return task, nil
	})
}

// CreateTask creates a task. Caches are invalidated only after the
// remote service confirms the write.
func (c *Client) CreateTask(ctx context.Context, userID string, input CreateTaskInput, idempotencyKey string) (Task, error) {
	if input.PlanID == "" {
		return Task{}, apperrors.New(apperrors.CodeValidation, "plan id is required")
	}
	if input.Title == "" {
		return Task{}, apperrors.New(apperrors.CodeValidation, "task title is required")
	}
	var task Task
	err := c.call(ctx, userID, "planner.create_task", request{
		method:         "POST",
		path:           "/tasks",
		idempotencyKey: idempotencyKey,
		body:           input,
	}, &task)
	if err != nil {
		c.recordPermission(ctx, userID, input.PlanID, err)
		return Task{}, err
	}
	c.recordPermission(ctx, userID, input.PlanID, nil)
	c.invalidate(ctx, taskListKey(input.PlanID))
	return task, nil
}

// UpdateTask applies a partial update guarded by the concurrency token.
// A stale token yields a conflict error; the caller decides whether to
// re-fetch and retry.
func (c *Client) UpdateTask(ctx context.Context, userID, taskID, etag string, input UpdateTaskInput) (Task, error) {
	if etag == "" {
		return Task{}, apperrors.New(apperrors.CodeValidation, "concurrency token is required")
	}
	var task Task
	err := c.call(ctx, userID, "planner.update_task", request{
		method:  "PATCH",
		path:    "/tasks/" + url.PathEscape(taskID),
		ifMatch: etag,
		body:    input,
	}, &task)
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeConflict) {
			// The cached copy produced a stale token; drop it so the
			// caller's re-fetch sees the remote state.
			c.invalidate(ctx, taskKey(taskID))
		}
		return Task{}, err
	}
	c.invalidate(ctx, taskKey(taskID))
	if task.PlanID != "" {
		c.invalidate(ctx, taskListKey(task.PlanID))
	}
	return task, nil
}

// CompleteTask marks a task done by driving its completion to 100%.
func (c *Client) CompleteTask(ctx context.Context, userID, taskID, etag string) (Task, error) {
	done := 100
	return c.UpdateTask(ctx, userID, taskID, etag, UpdateTaskInput{PercentComplete: &done})
}

// DeleteTask removes a task, guarded by the concurrency token.
func (c *Client) DeleteTask(ctx context.Context, userID, taskID, etag, planID string) error {
	if etag == "" {
		return apperrors.New(apperrors.CodeValidation, "concurrency token is required")
	}
	err := c.call(ctx, userID, "planner.delete_task", request{
		method:  "DELETE",
		path:    "/tasks/" + url.PathEscape(taskID),
		ifMatch: etag,
	}, nil)
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeConflict) {
			c.invalidate(ctx, taskKey(taskID))
		}
		return err
	}
	c.invalidate(ctx, taskKey(taskID))
	if planID != "" {
		c.invalidate(ctx, taskListKey(planID))
	}
	return nil
}
