package main

import (
	"time"

	"github.com/gohugoio/httpcache"

	"github.com/cephalon-sofis/wfbuddy/internal/pcache"
)

// cacheAdapter enables the use of pcache with httpcache.
// It stores the raw export file responses of the manifest server,
// so a refresh can revalidate them instead of downloading them again.
type cacheAdapter struct {
	c       *pcache.PCache
	prefix  string
	timeout time.Duration
}

var _ httpcache.Cache = (*cacheAdapter)(nil)

// newCacheAdapter returns a new cacheAdapter.
// The prefix is added to all cache keys to prevent conflicts.
// Keys are stored with the given cache timeout. A timeout of 0 means that keys never expire.
func newCacheAdapter(c *pcache.PCache, prefix string, timeout time.Duration) *cacheAdapter {
	ca := &cacheAdapter{c: c, prefix: prefix, timeout: timeout}
	return ca
}

func (ca *cacheAdapter) Get(key string) ([]byte, bool) {
	return ca.c.Get(ca.makeKey(key))
}

// Set stores a response. Empty responses are not stored.
func (ca *cacheAdapter) Set(key string, b []byte) {
	if len(b) == 0 {
		return
	}
	ca.c.Set(ca.makeKey(key), b, ca.timeout)
}

func (ca *cacheAdapter) Delete(key string) {
	ca.c.Delete(ca.makeKey(key))
}

func (ca *cacheAdapter) makeKey(key string) string {
	return ca.prefix + key
}
