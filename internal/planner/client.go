package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/taskweave/internal/cache"
	apperrors "github.com/louisbranch/taskweave/internal/platform/errors"
	"github.com/louisbranch/taskweave/internal/platform/timeouts"
	"github.com/louisbranch/taskweave/internal/resilience"
)

// TokenSource supplies live access tokens per user. The credential store
// satisfies it.
type TokenSource interface {
	ValidToken(ctx context.Context, userID string) (string, error)
	Refresh(ctx context.Context, userID string) (string, error)
}

// Default cache lifetimes. Objects live longer than listings because a
// listing changes whenever any member does.
const (
	DefaultObjectTTL     = 2 * time.Minute
	DefaultListTTL       = 30 * time.Second
	DefaultPermissionTTL = time.Minute
)

// Config holds the client's knobs.
type Config struct {
	BaseURL        string
	RequestTimeout time.Duration
	ObjectTTL      time.Duration
	ListTTL        time.Duration
	PermissionTTL  time.Duration
}

func (c Config) withDefaults() Config {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = timeouts.RemoteCall
	}
	if c.ObjectTTL <= 0 {
		c.ObjectTTL = DefaultObjectTTL
	}
	if c.ListTTL <= 0 {
		c.ListTTL = DefaultListTTL
	}
	if c.PermissionTTL <= 0 {
		c.PermissionTTL = DefaultPermissionTTL
	}
	return c
}

// Client is the typed planning-service client. All calls run through the
// resilience executor; reads consult the resource cache first and
// confirmed mutations invalidate it synchronously.
type Client struct {
	config  Config
	http    *http.Client
	tokens  TokenSource
	exec    *resilience.Executor
	objects *cache.TwoTier
	perms   *cache.PermissionCache
	deltas  DeltaStorage
	tracer  trace.Tracer
	now     func() time.Time
}

// NewClient builds a planner client. objects and perms may not be nil;
// the client depends on synchronous invalidation for correctness.
func NewClient(config Config, tokens TokenSource, exec *resilience.Executor, objects *cache.TwoTier, perms *cache.PermissionCache, deltas DeltaStorage) (*Client, error) {
	if strings.TrimSpace(config.BaseURL) == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token source is required")
	}
	if exec == nil {
		return nil, fmt.Errorf("resilience executor is required")
	}
	if objects == nil || perms == nil {
		return nil, fmt.Errorf("resource caches are required")
	}
	if deltas == nil {
		return nil, fmt.Errorf("delta storage is required")
	}
	config = config.withDefaults()
	return &Client{
		config:  config,
		http:    &http.Client{Timeout: config.RequestTimeout},
		tokens:  tokens,
		exec:    exec,
		objects: objects,
		perms:   perms,
		deltas:  deltas,
		tracer:  otel.Tracer("taskweave/planner"),
		now:     time.Now,
	}, nil
}

// request describes one remote call.
type request struct {
	method         string
	path           string
	ifMatch        string
	idempotencyKey string
	body           any
}

// call runs one request through the resilience layer, refreshing the
// access token once on a 401 before giving up.
func (c *Client) call(ctx context.Context, userID, op string, req request, out any) error {
	ctx, span := c.tracer.Start(ctx, op)
	defer span.End()

	return c.exec.Do(ctx, op, func(ctx context.Context) error {
		token, err := c.tokens.ValidToken(ctx, userID)
		if err != nil {
			return err
		}

		err = c.once(ctx, token, req, out)
		if apperrors.IsCode(err, apperrors.CodeAuthExpired) {
			// The service rejected a token the store considered live;
			// force one refresh and replay before surfacing.
			token, refreshErr := c.tokens.Refresh(ctx, userID)
			if refreshErr != nil {
				return refreshErr
			}
			return c.once(ctx, token, req, out)
		}
		return err
	})
}

// once performs a single HTTP round trip.
func (c *Client) once(ctx context.Context, token string, req request, out any) error {
	var body io.Reader
	if req.body != nil {
		encoded, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.config.BaseURL+req.path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Accept", "application/json")
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.ifMatch != "" {
		httpReq.Header.Set("If-Match", req.ifMatch)
	}
	if req.idempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.idempotencyKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return classifyTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := classifyStatus(resp); err != nil {
		return err
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Wrap(apperrors.CodeTransient, "decode response body", err)
	}
	return nil
}

// classifyTransportError maps network-level failures. Timeouts and
// connection errors are transient by definition, never silent failures.
func classifyTransportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperrors.Wrap(apperrors.CodeTransient, "remote call timed out", err)
	}
	return apperrors.Wrap(apperrors.CodeTransient, "remote call failed", err)
}

// classifyStatus maps HTTP status semantics onto the error taxonomy.
func classifyStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		return apperrors.New(apperrors.CodeAuthExpired, "access token rejected")
	case resp.StatusCode == http.StatusForbidden:
		return apperrors.New(apperrors.CodePermissionDenied, "operation forbidden")
	case resp.StatusCode == http.StatusNotFound:
		return apperrors.New(apperrors.CodeNotFound, "object not found")
	case resp.StatusCode == http.StatusGone:
		return apperrors.New(apperrors.CodeNotFound, "object no longer available")
	case resp.StatusCode == http.StatusConflict, resp.StatusCode == http.StatusPreconditionFailed:
		return apperrors.New(apperrors.CodeConflict, "concurrency token is stale")
	case resp.StatusCode == http.StatusTooManyRequests:
		metadata := map[string]string{}
		if advice := strings.TrimSpace(resp.Header.Get("Retry-After")); advice != "" {
			metadata[resilience.RetryAfterKey] = advice
		}
		return apperrors.WithMetadata(apperrors.CodeRateLimited, "rate limited by remote service", metadata)
	case resp.StatusCode >= 500:
		return apperrors.New(apperrors.CodeTransient, fmt.Sprintf("remote service error %d", resp.StatusCode))
	default:
		return apperrors.New(apperrors.CodeValidation, fmt.Sprintf("request rejected with status %d", resp.StatusCode))
	}
}

func planKey(id string) string           { return "plan:" + id }
func planListKey(userID string) string   { return "plans:" + userID }
func bucketListKey(planID string) string { return "buckets:" + planID }
func taskKey(id string) string           { return "task:" + id }
func taskListKey(planID string) string   { return "tasks:" + planID }

// cachedGet serves a read from the resource cache, falling back to the
// remote fetch and writing the result through on a miss.
func cachedGet[T any](ctx context.Context, c *Client, key string, ttl time.Duration, fetch func(context.Context) (T, error)) (T, error) {
	var zero T
	if raw, ok, err := c.objects.Get(ctx, key); err == nil && ok {
		var value T
		if unmarshalErr := json.Unmarshal(raw, &value); unmarshalErr == nil {
			return value, nil
		}
		// An undecodable entry is dropped and refetched.
		_ = c.objects.Invalidate(ctx, key)
	}

	value, err := fetch(ctx)
	if err != nil {
		return zero, err
	}
	if raw, marshalErr := json.Marshal(value); marshalErr == nil {
		_ = c.objects.Put(ctx, key, raw, ttl)
	}
	return value, nil
}

// invalidate drops cache keys after a confirmed mutation. Failed writes
// never invalidate, so a valid cached read survives a failed update.
func (c *Client) invalidate(ctx context.Context, keys ...string) {
	for _, key := range keys {
		_ = c.objects.Invalidate(ctx, key)
	}
}
