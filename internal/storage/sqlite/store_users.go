package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/taskweave/internal/storage"
)

// PutUser upserts a directory entry keyed by user id.
func (s *Store) PutUser(ctx context.Context, record storage.UserRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(record.DisplayName) == "" {
		return fmt.Errorf("display name is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO users (id, display_name, normalized_name, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	display_name = excluded.display_name,
	normalized_name = excluded.normalized_name,
	updated_at = excluded.updated_at
`,
		record.ID,
		record.DisplayName,
		strings.ToLower(strings.TrimSpace(record.DisplayName)),
		toMillis(record.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put user: %w", err)
	}
	return nil
}

// FindUsersByName returns directory entries whose normalized display name
// equals or starts with the normalized query, exact matches first.
func (s *Store) FindUsersByName(ctx context.Context, name string) ([]storage.UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return nil, fmt.Errorf("name is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, display_name, updated_at
FROM users
WHERE normalized_name = ? OR normalized_name LIKE ? ESCAPE '\'
ORDER BY normalized_name = ? DESC, normalized_name ASC
`,
		normalized,
		escapeLike(normalized)+"%",
		normalized,
	)
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	defer rows.Close()

	var records []storage.UserRecord
	for rows.Next() {
		var record storage.UserRecord
		var updatedAt int64
		if err := rows.Scan(&record.ID, &record.DisplayName, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		record.UpdatedAt = fromMillis(updatedAt)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return records, nil
}

// GetUser returns one directory entry by id.
func (s *Store) GetUser(ctx context.Context, id string) (storage.UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.UserRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.UserRecord{}, fmt.Errorf("storage is not configured")
	}

	var record storage.UserRecord
	var updatedAt int64
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, display_name, updated_at FROM users WHERE id = ?`, id)
	if err := row.Scan(&record.ID, &record.DisplayName, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.UserRecord{}, storage.ErrNotFound
		}
		return storage.UserRecord{}, fmt.Errorf("get user: %w", err)
	}
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
