package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/taskweave/internal/storage"
)

// PutCredential persists a credential record, replacing any previous bundle
// for the same user in a single statement so there is no partial-write
// window between the old and new tokens.
func (s *Store) PutCredential(ctx context.Context, record storage.CredentialRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(record.UserID) == "" {
		return fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(record.AccessTokenCiphertext) == "" {
		return fmt.Errorf("access token ciphertext is required")
	}
	if strings.TrimSpace(record.RefreshTokenCiphertext) == "" {
		return fmt.Errorf("refresh token ciphertext is required")
	}
	// Token ciphertexts are expected to already be sealed by the credential
	// service; this layer never sees plaintext tokens.
	if record.ExpiresAt.IsZero() {
		return fmt.Errorf("expiry is required")
	}

	scopes, err := encodeScopes(record.Scopes)
	if err != nil {
		return err
	}
	tokenType := record.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}

	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO credentials (
	user_id, access_token_ciphertext, refresh_token_ciphertext, token_type, scopes, expires_at, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(user_id) DO UPDATE SET
	access_token_ciphertext = excluded.access_token_ciphertext,
	refresh_token_ciphertext = excluded.refresh_token_ciphertext,
	token_type = excluded.token_type,
	scopes = excluded.scopes,
	expires_at = excluded.expires_at,
	updated_at = excluded.updated_at
`,
		record.UserID,
		record.AccessTokenCiphertext,
		record.RefreshTokenCiphertext,
		tokenType,
		scopes,
		toMillis(record.ExpiresAt),
		toMillis(record.CreatedAt),
		toMillis(record.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put credential: %w", err)
	}
	return nil
}

// GetCredential loads the credential record for a user.
func (s *Store) GetCredential(ctx context.Context, userID string) (storage.CredentialRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.CredentialRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.CredentialRecord{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(userID) == "" {
		return storage.CredentialRecord{}, fmt.Errorf("user id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT user_id, access_token_ciphertext, refresh_token_ciphertext, token_type, scopes, expires_at, created_at, updated_at
FROM credentials
WHERE user_id = ?
`, userID)

	var (
		rec       storage.CredentialRecord
		scopesRaw string
		expiresAt int64
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(
		&rec.UserID,
		&rec.AccessTokenCiphertext,
		&rec.RefreshTokenCiphertext,
		&rec.TokenType,
		&scopesRaw,
		&expiresAt,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.CredentialRecord{}, storage.ErrNotFound
		}
		return storage.CredentialRecord{}, fmt.Errorf("get credential: %w", err)
	}

	scopes, err := decodeScopes(scopesRaw)
	if err != nil {
		return storage.CredentialRecord{}, err
	}
	rec.Scopes = scopes
	rec.ExpiresAt = fromMillis(expiresAt)
	rec.CreatedAt = fromMillis(createdAt)
	rec.UpdatedAt = fromMillis(updatedAt)
	return rec, nil
}

// DeleteCredential removes the credential record for a user. Deleting a
// missing record is not an error; disconnect is idempotent.
func (s *Store) DeleteCredential(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("user id is required")
	}

	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM credentials WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}
