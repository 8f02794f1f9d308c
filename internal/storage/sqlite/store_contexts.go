package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/taskweave/internal/storage"
)

// PutContext persists a conversation context record. Writes are
// last-writer-wins per session id.
func (s *Store) PutContext(ctx context.Context, record storage.ContextRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(record.SessionID) == "" {
		return fmt.Errorf("session id is required")
	}
	if strings.TrimSpace(record.UserID) == "" {
		return fmt.Errorf("user id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO conversation_contexts (
	session_id, user_id, last_plan_id, last_task_id, pending, batch, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(session_id) DO UPDATE SET
	user_id = excluded.user_id,
	last_plan_id = excluded.last_plan_id,
	last_task_id = excluded.last_task_id,
	pending = excluded.pending,
	batch = excluded.batch,
	updated_at = excluded.updated_at
`,
		record.SessionID,
		record.UserID,
		record.LastPlanID,
		record.LastTaskID,
		record.Pending,
		record.Batch,
		toMillis(record.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put context: %w", err)
	}
	return nil
}

// GetContext loads the conversation context record for a session.
func (s *Store) GetContext(ctx context.Context, sessionID string) (storage.ContextRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.ContextRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ContextRecord{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(sessionID) == "" {
		return storage.ContextRecord{}, fmt.Errorf("session id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT session_id, user_id, last_plan_id, last_task_id, pending, batch, updated_at
FROM conversation_contexts
WHERE session_id = ?
`, sessionID)

	var (
		rec       storage.ContextRecord
		updatedAt int64
	)
	if err := row.Scan(
		&rec.SessionID,
		&rec.UserID,
		&rec.LastPlanID,
		&rec.LastTaskID,
		&rec.Pending,
		&rec.Batch,
		&updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ContextRecord{}, storage.ErrNotFound
		}
		return storage.ContextRecord{}, fmt.Errorf("get context: %w", err)
	}
	rec.UpdatedAt = fromMillis(updatedAt)
	return rec, nil
}
