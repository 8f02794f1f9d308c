package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	apperrors "github.com/louisbranch/taskweave/internal/platform/errors"
	"github.com/louisbranch/taskweave/internal/storage"
)

// DeltaStorage persists delta continuation tokens. The sqlite store
// satisfies it.
type DeltaStorage interface {
	GetDeltaToken(ctx context.Context, userID, scope string) (storage.DeltaTokenRecord, error)
	PutDeltaToken(ctx context.Context, record storage.DeltaTokenRecord) error
}

// deltaScope names the continuation-token scope for one plan.
func deltaScope(planID string) string { return "plan:" + planID }

// Delta fetches the changes to a plan since the last durable continuation
// token. The new token is persisted before the page is returned, so a
// crash after Delta resumes from this page's end rather than replaying
// it. A token the remote service no longer recognizes silently restarts
// the stream: the page carries a full snapshot and FullSnapshot is set.
func (c *Client) Delta(ctx context.Context, userID, planID string) (DeltaPage, error) {
	if planID == "" {
		return DeltaPage{}, apperrors.New(apperrors.CodeValidation, "plan id is required")
	}
	scope := deltaScope(planID)

	token := ""
	record, err := c.deltas.GetDeltaToken(ctx, userID, scope)
	switch {
	case err == nil:
		token = record.Token
	case errors.Is(err, storage.ErrNotFound):
		// First sync for this scope.
	default:
		return DeltaPage{}, fmt.Errorf("load delta token: %w", err)
	}

	page, err := c.fetchDelta(ctx, userID, planID, token)
	if token != "" && apperrors.IsCode(err, apperrors.CodeNotFound) {
		// The service expired our continuation token; restart from a
		// fresh snapshot instead of failing the sync.
		page, err = c.fetchDelta(ctx, userID, planID, "")
		page.FullSnapshot = true
	}
	if err != nil {
		return DeltaPage{}, err
	}
	if token == "" {
		page.FullSnapshot = true
	}

	if page.Token != "" {
		put := c.deltas.PutDeltaToken(ctx, storage.DeltaTokenRecord{
			UserID:    userID,
			Scope:     scope,
			Token:     page.Token,
			UpdatedAt: c.now(),
		})
		if put != nil {
			// Without a durable token the page would be replayed on the
			// next sync; surface that instead of pretending progress.
			return DeltaPage{}, fmt.Errorf("persist delta token: %w", put)
		}
	}

	c.applyDelta(ctx, planID, page)
	return page, nil
}

// fetchDelta performs one delta round trip.
func (c *Client) fetchDelta(ctx context.Context, userID, planID, token string) (DeltaPage, error) {
	query := url.Values{}
	if token != "" {
		query.Set("token", token)
	}
	path := fmt.Sprintf("/plans/%s/delta", url.PathEscape(planID))
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var page DeltaPage
	if err := c.call(ctx, userID, "planner.delta", request{method: "GET", path: path}, &page); err != nil {
		return DeltaPage{}, err
	}
	return page, nil
}

// applyDelta reconciles the resource cache with a page of changes.
// Objects that changed remotely are refreshed in place when the payload
// carries the new state, and dropped otherwise.
func (c *Client) applyDelta(ctx context.Context, planID string, page DeltaPage) {
	touched := false
	for _, change := range page.Changes {
		touched = true
		switch change.Resource {
		case "task":
			if change.Op != ChangeDeleted && change.Task != nil {
				c.refresh(ctx, taskKey(change.ID), change.Task)
				continue
			}
			c.invalidate(ctx, taskKey(change.ID))
		case "plan":
			if change.Op != ChangeDeleted && change.Plan != nil {
				c.refresh(ctx, planKey(change.ID), change.Plan)
				continue
			}
			c.invalidate(ctx, planKey(change.ID))
		case "bucket":
			c.invalidate(ctx, bucketListKey(planID))
		}
	}
	if touched || page.FullSnapshot {
		c.invalidate(ctx, taskListKey(planID))
	}
}

// refresh replaces a cached object with fresher remote state, falling
// back to invalidation when the payload cannot be encoded.
func (c *Client) refresh(ctx context.Context, key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.invalidate(ctx, key)
		return
	}
	_ = c.objects.Put(ctx, key, raw, c.config.ObjectTTL)
}
