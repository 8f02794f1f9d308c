// Package storage defines the persisted record shapes shared by the
// assistant's durable state: credentials, conversation contexts, the L2
// cache tier, delta-sync continuation tokens, task comments, and the
// user directory.
package storage

import (
	"errors"
	"time"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// CredentialRecord stores a persisted OAuth token bundle for one user.
type CredentialRecord struct {
	UserID string

	// AccessTokenCiphertext and RefreshTokenCiphertext store encrypted
	// token material only; plaintext tokens must never cross into storage
	// records.
	AccessTokenCiphertext  string
	RefreshTokenCiphertext string

	TokenType string
	Scopes    []string
	ExpiresAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ContextRecord stores a persisted conversation context for one session.
// Pending and Batch are opaque JSON documents owned by the convo package.
type ContextRecord struct {
	SessionID  string
	UserID     string
	LastPlanID string
	LastTaskID string
	Pending    []byte
	Batch      []byte
	UpdatedAt  time.Time
}

// CacheEntryRecord stores one L2 cache entry. Entries expire by TTL only;
// ExpiresAt is computed at insertion time.
type CacheEntryRecord struct {
	Namespace string
	Key       string
	Value     []byte
	ExpiresAt time.Time
}

// DeltaTokenRecord stores the last durably persisted delta-sync
// continuation token for one user and scope.
type DeltaTokenRecord struct {
	UserID    string
	Scope     string
	Token     string
	UpdatedAt time.Time
}

// CommentRecord stores one append-only task comment.
type CommentRecord struct {
	ID        string
	TaskID    string
	AuthorID  string
	Body      string
	CreatedAt time.Time
}

// UserRecord stores one directory entry mapping a display name to a
// remote user identity.
type UserRecord struct {
	ID          string
	DisplayName string
	UpdatedAt   time.Time
}
