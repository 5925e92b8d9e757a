// Package cache stores resolved videos for a limited time so repeated lookups
// of the same post do not hit the upstream API.
package cache

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ytget/twitvid/types"
)

// DefaultTTL is used when Set is called with a non-positive ttl.
const DefaultTTL = 10 * time.Minute

// Cache is implemented by MemoryCache and BadgerCache.
type Cache interface {
	Get(key string) (types.VideoInfo, bool)
	Set(key string, value types.VideoInfo, ttl time.Duration)
	Close() error
}

// KeyFromURL derives a cache key from a post URL. Scheme, host aliases,
// query and fragment do not influence the resolved media, so
// https://x.com/u/status/1?s=20 and https://twitter.com/u/status/1 share a key.
func KeyFromURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return strings.TrimSpace(raw)
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimPrefix(host, "mobile.")
	if host == "x.com" {
		host = "twitter.com"
	}
	return host + strings.TrimRight(u.EscapedPath(), "/")
}

// Open builds the cache named by kind: "memory", "badger" or "none"/"".
// A nil Cache with a nil error means caching is disabled.
func Open(kind, dir string) (Cache, error) {
	switch kind {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemoryCache(1024), nil
	case "badger":
		c, err := NewBadgerCache(dir)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown cache kind %q", kind)
	}
}
