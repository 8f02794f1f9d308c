package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/louisbranch/taskweave/internal/storage"
)

// AppendComment inserts one task comment. Comments are append-only; there
// is no update or delete path.
func (s *Store) AppendComment(ctx context.Context, record storage.CommentRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("comment id is required")
	}
	if strings.TrimSpace(record.TaskID) == "" {
		return fmt.Errorf("task id is required")
	}
	if strings.TrimSpace(record.AuthorID) == "" {
		return fmt.Errorf("author id is required")
	}
	if strings.TrimSpace(record.Body) == "" {
		return fmt.Errorf("body is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO task_comments (id, task_id, author_id, body, created_at)
VALUES (?, ?, ?, ?, ?)
`,
		record.ID,
		record.TaskID,
		record.AuthorID,
		record.Body,
		toMillis(record.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("append comment: %w", err)
	}
	return nil
}

// ListComments returns the comments for a task in insertion order.
func (s *Store) ListComments(ctx context.Context, taskID string, limit int) ([]storage.CommentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(taskID) == "" {
		return nil, fmt.Errorf("task id is required")
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, task_id, author_id, body, created_at
FROM task_comments
WHERE task_id = ?
ORDER BY created_at ASC, id ASC
LIMIT ?
`, taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []storage.CommentRecord
	for rows.Next() {
		var (
			rec       storage.CommentRecord
			createdAt int64
		)
		if err := rows.Scan(&rec.ID, &rec.TaskID, &rec.AuthorID, &rec.Body, &createdAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		rec.CreatedAt = fromMillis(createdAt)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return records, nil
}
