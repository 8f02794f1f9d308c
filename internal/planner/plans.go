package planner

import (
	"context"
	"fmt"
	"net/url"

	"github.com/louisbranch/taskweave/internal/cache"
	apperrors "github.com/louisbranch/taskweave/internal/platform/errors"
)

// checkPermission consults the cached authorization verdict for a plan
// before issuing a remote call. A cached deny short-circuits; anything
// else defers to the remote service.
func (c *Client) checkPermission(ctx context.Context, userID, planID string) error {
	verdict, ok, err := c.perms.Get(ctx, userID, planID)
	if err != nil || !ok {
		return nil
	}
	if verdict == cache.VerdictDeny {
		return apperrors.New(apperrors.CodePermissionDenied, "cached deny for plan")
	}
	return nil
}

// recordPermission caches the authorization outcome of a plan-scoped call.
func (c *Client) recordPermission(ctx context.Context, userID, planID string, err error) {
	if planID == "" {
		return
	}
	switch {
	case err == nil:
		_ = c.perms.Put(ctx, userID, planID, cache.VerdictAllow, c.config.PermissionTTL)
	case apperrors.IsCode(err, apperrors.CodePermissionDenied):
		_ = c.perms.Put(ctx, userID, planID, cache.VerdictDeny, c.config.PermissionTTL)
	}
}

// ListPlans returns the plans visible to the user.
func (c *Client) ListPlans(ctx context.Context, userID string) ([]Plan, error) {
	return cachedGet(ctx, c, planListKey(userID), c.config.ListTTL, func(ctx context.Context) ([]Plan, error) {
		var plans []Plan
		if err := c.call(ctx, userID, "planner.list_plans", request{method: "GET", path: "/plans"}, &plans); err != nil {
			return nil, err
		}
		return plans, nil
	})
}

// GetPlan returns one plan with its current concurrency token.
func (c *Client) GetPlan(ctx context.Context, userID, planID string) (Plan, error) {
	if err := c.checkPermission(ctx, userID, planID); err != nil {
		return Plan{}, err
	}
	plan, err := cachedGet(ctx, c, planKey(planID), c.config.ObjectTTL, func(ctx context.Context) (Plan, error) {
		var plan Plan
		if err := c.call(ctx, userID, "planner.get_plan", request{method: "GET", path: "/plans/" + url.PathEscape(planID)}, &plan); err != nil {
			return Plan{}, err
		}
		return plan, nil
	})
	c.recordPermission(ctx, userID, planID, err)
	return plan, err
}

// CreatePlan creates a plan. The idempotency key makes replays after a
// confirmed success return the original object instead of a duplicate.
func (c *Client) CreatePlan(ctx context.Context, userID string, input CreatePlanInput, idempotencyKey string) (Plan, error) {
	if input.Title == "" {
		return Plan{}, apperrors.New(apperrors.CodeValidation, "plan title is required")
	}
	var plan Plan
	err := c.call(ctx, userID, "planner.create_plan", request{
		method:         "POST",
		path:           "/plans",
		idempotencyKey: idempotencyKey,
		body:           input,
	}, &plan)
	if err != nil {
		return Plan{}, err
	}
	c.invalidate(ctx, planListKey(userID))
	return plan, nil
}

// ListBuckets returns the buckets of a plan.
func (c *Client) ListBuckets(ctx context.Context, userID, planID string) ([]Bucket, error) {
	if err := c.checkPermission(ctx, userID, planID); err != nil {
		return nil, err
	}
	buckets, err := cachedGet(ctx, c, bucketListKey(planID), c.config.ListTTL, func(ctx context.Context) ([]Bucket, error) {
		var buckets []Bucket
		path := fmt.Sprintf("/plans/%s/buckets", url.PathEscape(planID))
		if err := c.call(ctx, userID, "planner.list_buckets", request{method: "GET", path: path}, &buckets); err != nil {
			return nil, err
		}
		return buckets, nil
	})
	c.recordPermission(ctx, userID, planID, err)
	return buckets, err
}

// CreateBucket creates a bucket within a plan.
func (c *Client) CreateBucket(ctx context.Context, userID string, input CreateBucketInput, idempotencyKey string) (Bucket, error) {
	if input.PlanID == "" {
		return Bucket{}, apperrors.New(apperrors.CodeValidation, "plan id is required")
	}
	if input.Name == "" {
		return Bucket{}, apperrors.New(apperrors.CodeValidation, "bucket name is required")
	}
	var bucket Bucket
	err := c.call(ctx, userID, "planner.create_bucket", request{
		method:         "POST",
		path:           "/buckets",
		idempotencyKey: idempotencyKey,
		body:           input,
	}, &bucket)
	if err != nil {
		c.recordPermission(ctx, userID, input.PlanID, err)
		return Bucket{}, err
	}
	c.recordPermission(ctx, userID, input.PlanID, nil)
	c.invalidate(ctx, bucketListKey(input.PlanID))
	return bucket, nil
}
