// Package credential owns encrypted OAuth token bundles and keeps them
// fresh. Plaintext tokens exist only in memory; the storage layer sees
// sealed ciphertext and nothing in this package is ever logged.
package credential

import (
	"strings"
	"time"

	apperrors "github.com/louisbranch/taskweave/internal/platform/errors"
)

// RefreshBuffer is how close to expiry a token may get before ValidToken
// refreshes it proactively.
const RefreshBuffer = 5 * time.Minute

// Bundle is the in-memory token bundle for one user.
type Bundle struct {
	UserID       string
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scopes       []string
	ExpiresAt    time.Time
}

// Validate checks the fields required before a bundle may be stored.
func (b Bundle) Validate() error {
	if strings.TrimSpace(b.UserID) == "" {
		return apperrors.New(apperrors.CodeValidation, "user id is required")
	}
	if strings.TrimSpace(b.AccessToken) == "" {
		return apperrors.New(apperrors.CodeValidation, "access token is required")
	}
	if strings.TrimSpace(b.RefreshToken) == "" {
		return apperrors.New(apperrors.CodeValidation, "refresh token is required")
	}
	if b.ExpiresAt.IsZero() {
		return apperrors.New(apperrors.CodeValidation, "token expiry is required")
	}
	return nil
}
