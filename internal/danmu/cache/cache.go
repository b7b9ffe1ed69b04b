// Package cache memoizes window-query and aggregate results with explicit
// invalidation on writes. The cache is advisory: every miss must be fully
// satisfiable from the comment store.
package cache

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Cache is a namespaced key-value space with TTL expiry and explicit
// invalidation. Implementations must be safe for concurrent use.
type Cache interface {
	// Get unmarshals the cached value for key into dest and reports whether
	// a live entry was found.
	Get(ctx context.Context, key string, dest any) (bool, error)
	// Set stores value under key for ttl.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// Invalidate removes the given keys.
	Invalidate(ctx context.Context, keys ...string) error
	// InvalidatePrefix removes every key sharing the prefix.
	InvalidatePrefix(ctx context.Context, prefix string) error
}

// Key builders. Keys are namespaced by operation so a video's window entries
// can be dropped as a group without touching its aggregate entry.

// WindowKey builds the cache key for a windowed read. The center timestamp is
// rounded to whole seconds so nearby players share entries.
func WindowKey(videoID string, center, width float64) string {
	return fmt.Sprintf("window:%s:%d:%g", videoID, int64(math.Round(center)), width)
}

// FullTimelineKey builds the cache key for a full-timeline preload.
func FullTimelineKey(videoID string) string {
	return fmt.Sprintf("window:%s:full", videoID)
}

// WindowPrefix is the invalidation prefix covering every window entry of a
// video, whatever its center or width.
func WindowPrefix(videoID string) string {
	return fmt.Sprintf("window:%s:", videoID)
}

// StatsKey builds the cache key for a video's aggregate statistics.
func StatsKey(videoID string) string {
	return fmt.Sprintf("agg:%s", videoID)
}
