package credential

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"

	apperrors "github.com/louisbranch/taskweave/internal/platform/errors"
	"github.com/louisbranch/taskweave/internal/storage"
)

// Storage is the durable credential tier. The SQLite store satisfies it.
type Storage interface {
	PutCredential(ctx context.Context, record storage.CredentialRecord) error
	GetCredential(ctx context.Context, userID string) (storage.CredentialRecord, error)
	DeleteCredential(ctx context.Context, userID string) error
}

// Sealer encrypts token material before it reaches storage.
type Sealer interface {
	Seal(value string) (string, error)
	Open(sealed string) (string, error)
}

// refreshCall tracks one in-flight refresh so concurrent callers for the
// same user wait on it instead of racing a second request.
type refreshCall struct {
	done  chan struct{}
	token string
	err   error
}

// Store manages encrypted token bundles and proactive refresh.
type Store struct {
	storage Storage
	sealer  Sealer
	oauth   *oauth2.Config
	buffer  time.Duration
	now     func() time.Time

	mu       sync.Mutex
	inflight map[string]*refreshCall
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithRefreshBuffer overrides the proactive refresh window.
func WithRefreshBuffer(buffer time.Duration) Option {
	return func(s *Store) { s.buffer = buffer }
}

// NewStore creates a credential store. The oauth config carries the token
// endpoint and client identity used for refresh.
func NewStore(storageTier Storage, sealer Sealer, oauth *oauth2.Config, opts ...Option) (*Store, error) {
	if storageTier == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if sealer == nil {
		return nil, fmt.Errorf("sealer is required")
	}
	if oauth == nil {
		return nil, fmt.Errorf("oauth config is required")
	}
	store := &Store{
		storage:  storageTier,
		sealer:   sealer,
		oauth:    oauth,
		buffer:   RefreshBuffer,
		now:      time.Now,
		inflight: make(map[string]*refreshCall),
	}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

// Put seals and stores a token bundle, replacing any previous bundle for
// the user in one atomic write.
func (s *Store) Put(ctx context.Context, bundle Bundle) error {
	if err := bundle.Validate(); err != nil {
		return err
	}

	accessCiphertext, err := s.sealer.Seal(bundle.AccessToken)
	if err != nil {
		return fmt.Errorf("seal access token: %w", err)
	}
	refreshCiphertext, err := s.sealer.Seal(bundle.RefreshToken)
	if err != nil {
		return fmt.Errorf("seal refresh token: %w", err)
	}

	now := s.now()
	return s.storage.PutCredential(ctx, storage.CredentialRecord{
		UserID:                 bundle.UserID,
		AccessTokenCiphertext:  accessCiphertext,
		RefreshTokenCiphertext: refreshCiphertext,
		TokenType:              bundle.TokenType,
		Scopes:                 bundle.Scopes,
		ExpiresAt:              bundle.ExpiresAt,
		CreatedAt:              now,
		UpdatedAt:              now,
	})
}

// Revoke destroys the stored bundle for a user. Revoking an unknown user
// is a no-op.
func (s *Store) Revoke(ctx context.Context, userID string) error {
	return s.storage.DeleteCredential(ctx, userID)
}

// ValidToken returns a live access token for the user, refreshing it
// first when expiry is inside the buffer window. A refresh rejected by
// the identity service surfaces AUTH_EXPIRED; a network failure during
// refresh surfaces TRANSIENT so the caller may retry.
func (s *Store) ValidToken(ctx context.Context, userID string) (string, error) {
	record, err := s.storage.GetCredential(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", apperrors.New(apperrors.CodeAuthExpired, "no credential stored for user")
		}
		return "", apperrors.Wrap(apperrors.CodeTransient, "load credential", err)
	}

	if s.now().Before(record.ExpiresAt.Add(-s.buffer)) {
		token, err := s.sealer.Open(record.AccessTokenCiphertext)
		if err != nil {
			return "", fmt.Errorf("open access token: %w", err)
		}
		return token, nil
	}

	return s.refresh(ctx, userID, record)
}

// Refresh forces a token refresh regardless of expiry. The planner client
// uses it when the remote service rejects a token the store still
// considered live.
func (s *Store) Refresh(ctx context.Context, userID string) (string, error) {
	record, err := s.storage.GetCredential(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", apperrors.New(apperrors.CodeAuthExpired, "no credential stored for user")
		}
		return "", apperrors.Wrap(apperrors.CodeTransient, "load credential", err)
	}
	return s.refresh(ctx, userID, record)
}

// refresh exchanges the refresh token for a new bundle, deduplicating
// concurrent callers per user.
func (s *Store) refresh(ctx context.Context, userID string, record storage.CredentialRecord) (string, error) {
	s.mu.Lock()
	if call, ok := s.inflight[userID]; ok {
		s.mu.Unlock()
		select {
		case <-call.done:
			return call.token, call.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	call := &refreshCall{done: make(chan struct{})}
	s.inflight[userID] = call
	s.mu.Unlock()

	token, err := s.doRefresh(ctx, userID, record)
	call.token, call.err = token, err
	close(call.done)

	s.mu.Lock()
	delete(s.inflight, userID)
	s.mu.Unlock()

	return token, err
}

func (s *Store) doRefresh(ctx context.Context, userID string, record storage.CredentialRecord) (string, error) {
	refreshToken, err := s.sealer.Open(record.RefreshTokenCiphertext)
	if err != nil {
		return "", fmt.Errorf("open refresh token: %w", err)
	}

	source := s.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	fresh, err := source.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.ErrorCode == "invalid_grant" {
			return "", apperrors.Wrap(apperrors.CodeAuthExpired, "refresh rejected, reauthorization required", err)
		}
		return "", apperrors.Wrap(apperrors.CodeTransient, "token refresh failed", err)
	}

	// The identity service may rotate the refresh token; keep the old one
	// when it does not.
	nextRefresh := fresh.RefreshToken
	if nextRefresh == "" {
		nextRefresh = refreshToken
	}

	bundle := Bundle{
		UserID:       userID,
		AccessToken:  fresh.AccessToken,
		RefreshToken: nextRefresh,
		TokenType:    fresh.TokenType,
		Scopes:       record.Scopes,
		ExpiresAt:    fresh.Expiry,
	}
	if bundle.ExpiresAt.IsZero() {
		bundle.ExpiresAt = s.now().Add(time.Hour)
	}
	if err := s.Put(ctx, bundle); err != nil {
		return "", fmt.Errorf("store refreshed bundle: %w", err)
	}
	return fresh.AccessToken, nil
}
