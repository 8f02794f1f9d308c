package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/taskweave/internal/storage"
)

// PutDeltaToken durably records the continuation token for one user and
// scope. The planner client calls this before handing changes to consumers
// so a crash resumes from the last durable token.
func (s *Store) PutDeltaToken(ctx context.Context, record storage.DeltaTokenRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(record.UserID) == "" {
		return fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(record.Scope) == "" {
		return fmt.Errorf("scope is required")
	}
	if strings.TrimSpace(record.Token) == "" {
		return fmt.Errorf("token is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO delta_tokens (user_id, scope, token, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(user_id, scope) DO UPDATE SET
	token = excluded.token,
	updated_at = excluded.updated_at
`,
		record.UserID,
		record.Scope,
		record.Token,
		toMillis(record.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put delta token: %w", err)
	}
	return nil
}

// GetDeltaToken loads the last durable continuation token for one user and scope.
func (s *Store) GetDeltaToken(ctx context.Context, userID, scope string) (storage.DeltaTokenRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.DeltaTokenRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.DeltaTokenRecord{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT user_id, scope, token, updated_at
FROM delta_tokens
WHERE user_id = ? AND scope = ?
`, userID, scope)

	var (
		rec       storage.DeltaTokenRecord
		updatedAt int64
	)
	if err := row.Scan(&rec.UserID, &rec.Scope, &rec.Token, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.DeltaTokenRecord{}, storage.ErrNotFound
		}
		return storage.DeltaTokenRecord{}, fmt.Errorf("get delta token: %w", err)
	}
	rec.UpdatedAt = fromMillis(updatedAt)
	return rec, nil
}
