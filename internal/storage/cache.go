package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

func (st *Storage) CacheClear(ctx context.Context) error {
	_, err := st.db.ExecContext(ctx, "DELETE FROM cache_keys")
	if err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	return nil
}

// CacheCleanUp removes all expired entries.
func (st *Storage) CacheCleanUp(ctx context.Context) error {
	_, err := st.db.ExecContext(
		ctx,
		"DELETE FROM cache_keys WHERE expires_at > 0 AND expires_at < ?",
		time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("cache cleanup: %w", err)
	}
	return nil
}

func (st *Storage) CacheExists(ctx context.Context, key string) (bool, error) {
	_, err := st.CacheGet(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache exists: %w", err)
	}
	return true, nil
}

// CacheGet returns the value for a key. Expired entries are reported as [ErrNotFound].
func (st *Storage) CacheGet(ctx context.Context, key string) ([]byte, error) {
	row := st.db.QueryRowContext(
		ctx,
		"SELECT value FROM cache_keys WHERE key = ? AND (expires_at = 0 OR expires_at > ?)",
		key,
		time.Now().UTC().UnixMilli(),
	)
	var v []byte
	if err := row.Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrNotFound
		}
		return nil, fmt.Errorf("cache get %s: %w", key, err)
	}
	return v, nil
}

func (st *Storage) CacheDelete(ctx context.Context, key string) error {
	_, err := st.db.ExecContext(ctx, "DELETE FROM cache_keys WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("cache delete %s: %w", key, err)
	}
	return nil
}

type CacheSetParams struct {
	Key       string
	Value     []byte
	ExpiresAt time.Time // zero value means the entry never expires
}

func (st *Storage) CacheSet(ctx context.Context, arg CacheSetParams) error {
	var expiresAt int64
	if !arg.ExpiresAt.IsZero() {
		expiresAt = arg.ExpiresAt.UTC().UnixMilli()
	}
	_, err := st.db.ExecContext(
		ctx,
		`INSERT INTO cache_keys (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		arg.Key,
		arg.Value,
		expiresAt,
	)
	if err != nil {
		return fmt.Errorf("cache set %s: %w", arg.Key, err)
	}
	return nil
}
