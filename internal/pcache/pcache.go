// Package pcache implements a persistent cache.
package pcache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cephalon-sofis/wfbuddy/internal/storage"
)

// PCache is a persistent cache.
//
// Cache failures are logged and reported as cache misses.
type PCache struct {
	st *storage.Storage
}

// New returns a new PCache.
func New(st *storage.Storage) *PCache {
	c := &PCache{st: st}
	return c
}

// CleanUp removes all expired items.
func (c *PCache) CleanUp() {
	err := c.st.CacheCleanUp(context.Background())
	if err != nil {
		slog.Error("cache failure", "error", err)
	}
}

func (c *PCache) Clear() {
	err := c.st.CacheClear(context.Background())
	if err != nil {
		slog.Error("cache failure", "error", err)
	}
}

func (c *PCache) Delete(key string) {
	err := c.st.CacheDelete(context.Background(), key)
	if err != nil {
		slog.Error("cache failure", "error", err)
	}
}

func (c *PCache) Exists(key string) bool {
	found, err := c.st.CacheExists(context.Background(), key)
	if err != nil {
		slog.Error("cache failure", "error", err)
	}
	return found
}

func (c *PCache) Get(key string) ([]byte, bool) {
	v, err := c.st.CacheGet(context.Background(), key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false
	}
	if err != nil {
		slog.Error("cache failure", "error", err)
		return nil, false
	}
	return v, true
}

// Set stores a value. A timeout of 0 means the item never expires.
func (c *PCache) Set(key string, value []byte, timeout time.Duration) {
	var expiresAt time.Time
	if timeout > 0 {
		expiresAt = time.Now().Add(timeout)
	}
	arg := storage.CacheSetParams{
		Key:       key,
		Value:     value,
		ExpiresAt: expiresAt,
	}
	err := c.st.CacheSet(context.Background(), arg)
	if err != nil {
		slog.Error("cache failure", "error", err)
	}
}
