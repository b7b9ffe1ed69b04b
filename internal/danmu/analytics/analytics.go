// Package analytics computes per-video statistics over the full comment set:
// density over time, peak moments, style distribution and participation.
package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/example/danmu-platform/internal/danmu/cache"
	"github.com/example/danmu-platform/internal/danmu/store"
	"github.com/example/danmu-platform/internal/danmu/video"
	"github.com/example/danmu-platform/internal/platform/metrics"
)

// PeakMoment is one minute bucket ranked by comment count.
type PeakMoment struct {
	Bucket int `json:"bucket"`
	Count  int `json:"count"`
}

// Stats is the aggregate view of a video's active comments. All counters are
// derived and re-derivable; they are never a source of truth.
type Stats struct {
	VideoID           string         `json:"video_id"`
	TotalComments     int            `json:"total_comments"`
	UniqueAuthors     int            `json:"unique_authors"`
	AveragePerMinute  float64        `json:"average_per_minute"`
	Density           map[int]int    `json:"density"`
	PeakMoments       []PeakMoment   `json:"peak_moments"`
	ColorDistribution map[string]int `json:"color_distribution"`
	ComputedAt        time.Time      `json:"computed_at"`
}

// Aggregator is the batch/read-mostly statistics engine. Results are cached
// and invalidated on every write or moderation transition for the video.
type Aggregator struct {
	Store   store.CommentStore
	Cache   cache.Cache
	Video   video.MetadataProvider
	TTL     time.Duration
	Log     *zap.Logger
	Metrics *metrics.Metrics
}

const peakMomentLimit = 5

// ComputeStats scans the video's active comments and derives Stats.
func (a *Aggregator) ComputeStats(ctx context.Context, videoID string) (Stats, error) {
	key := cache.StatsKey(videoID)
	var cached Stats
	if hit, cerr := a.Cache.Get(ctx, key, &cached); cerr == nil && hit {
		a.Metrics.IncCacheHits()
		return cached, nil
	} else if cerr != nil && a.Log != nil {
		a.Log.Warn("stats cache read failed", zap.String("video_id", videoID), zap.Error(cerr))
	}
	a.Metrics.IncCacheMisses()

	duration, err := a.Video.Duration(ctx, videoID)
	if err != nil {
		return Stats{}, fmt.Errorf("video duration: %w", err)
	}

	comments, err := a.Store.QueryByVideo(ctx, videoID, store.FilterActive)
	if err != nil {
		return Stats{}, fmt.Errorf("stats scan: %w", err)
	}

	stats := derive(videoID, duration, comments)

	if cerr := a.Cache.Set(ctx, key, stats, a.TTL); cerr != nil && a.Log != nil {
		a.Log.Warn("stats cache write failed", zap.String("video_id", videoID), zap.Error(cerr))
	}
	return stats, nil
}

func derive(videoID string, duration float64, comments []store.Comment) Stats {
	bucketCount := int(math.Ceil(duration / 60))
	if bucketCount < 1 {
		bucketCount = 1
	}

	density := make(map[int]int, bucketCount)
	for b := 0; b < bucketCount; b++ {
		density[b] = 0
	}

	authors := make(map[string]struct{})
	colors := make(map[string]int)
	for _, c := range comments {
		b := int(c.Timestamp / 60)
		if b >= bucketCount {
			b = bucketCount - 1
		}
		density[b]++
		authors[c.AuthorID] = struct{}{}
		colors[c.Style.Color]++
	}

	peaks := make([]PeakMoment, 0, bucketCount)
	for b, n := range density {
		if n > 0 {
			peaks = append(peaks, PeakMoment{Bucket: b, Count: n})
		}
	}
	sort.Slice(peaks, func(i, j int) bool {
		if peaks[i].Count != peaks[j].Count {
			return peaks[i].Count > peaks[j].Count
		}
		return peaks[i].Bucket < peaks[j].Bucket
	})
	if len(peaks) > peakMomentLimit {
		peaks = peaks[:peakMomentLimit]
	}

	avg := 0.0
	if duration > 0 {
		avg = float64(len(comments)) / (duration / 60)
	}

	return Stats{
		VideoID:           videoID,
		TotalComments:     len(comments),
		UniqueAuthors:     len(authors),
		AveragePerMinute:  avg,
		Density:           density,
		PeakMoments:       peaks,
		ColorDistribution: colors,
		ComputedAt:        time.Now().UTC(),
	}
}
