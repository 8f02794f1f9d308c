package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/taskweave/internal/storage"
)

// PutCacheEntry upserts one L2 cache entry. The expiry is computed by the
// caller at insertion time.
func (s *Store) PutCacheEntry(ctx context.Context, record storage.CacheEntryRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(record.Namespace) == "" {
		return fmt.Errorf("namespace is required")
	}
	if strings.TrimSpace(record.Key) == "" {
		return fmt.Errorf("key is required")
	}
	if record.ExpiresAt.IsZero() {
		return fmt.Errorf("expiry is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO cache_entries (namespace, key, value, expires_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(namespace, key) DO UPDATE SET
	value = excluded.value,
	expires_at = excluded.expires_at
`,
		record.Namespace,
		record.Key,
		record.Value,
		toMillis(record.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("put cache entry: %w", err)
	}
	return nil
}

// GetCacheEntry loads one live L2 cache entry. An entry at or past its
// expiry is reported as missing, never returned.
func (s *Store) GetCacheEntry(ctx context.Context, namespace, key string, now time.Time) (storage.CacheEntryRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.CacheEntryRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.CacheEntryRecord{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT namespace, key, value, expires_at
FROM cache_entries
WHERE namespace = ? AND key = ? AND expires_at > ?
`, namespace, key, toMillis(now))

	var (
		rec       storage.CacheEntryRecord
		expiresAt int64
	)
	if err := row.Scan(&rec.Namespace, &rec.Key, &rec.Value, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.CacheEntryRecord{}, storage.ErrNotFound
		}
		return storage.CacheEntryRecord{}, fmt.Errorf("get cache entry: %w", err)
	}
	rec.ExpiresAt = fromMillis(expiresAt)
	return rec, nil
}

// DeleteCacheEntry removes one L2 cache entry.
func (s *Store) DeleteCacheEntry(ctx context.Context, namespace, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	if _, err := s.sqlDB.ExecContext(ctx, `
DELETE FROM cache_entries WHERE namespace = ? AND key = ?
`, namespace, key); err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

// PruneCacheEntries removes entries that expired at or before now.
func (s *Store) PruneCacheEntries(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
DELETE FROM cache_entries WHERE expires_at <= ?
`, toMillis(now))
	if err != nil {
		return 0, fmt.Errorf("prune cache entries: %w", err)
	}
	pruned, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune cache entries rows: %w", err)
	}
	return pruned, nil
}
