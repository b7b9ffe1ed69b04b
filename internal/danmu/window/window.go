// Package window answers bounded time-window reads over a video's comments.
package window

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/example/danmu-platform/internal/danmu/cache"
	"github.com/example/danmu-platform/internal/danmu/store"
	"github.com/example/danmu-platform/internal/danmu/video"
	"github.com/example/danmu-platform/internal/platform/metrics"
)

// Engine computes clamped time windows and serves them cache-first.
type Engine struct {
	Store   store.CommentStore
	Cache   cache.Cache
	Video   video.MetadataProvider
	TTL     time.Duration
	Log     *zap.Logger
	Metrics *metrics.Metrics
}

// GetWindow returns the active comments whose timestamps fall inside
// [center-width/2, center+width/2], clamped to [0, duration]. A nil center
// returns the full ordered timeline, used for initial preloads. Windows near
// a timeline boundary are clamped, not shifted, so callers must not assume a
// fixed-width result.
func (e *Engine) GetWindow(ctx context.Context, videoID string, center *float64, width float64) ([]store.Comment, error) {
	duration, err := e.Video.Duration(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("video duration: %w", err)
	}

	var key string
	var minTS, maxTS float64
	if center == nil {
		key = cache.FullTimelineKey(videoID)
		minTS, maxTS = 0, duration
	} else {
		key = cache.WindowKey(videoID, *center, width)
		minTS = *center - width/2
		maxTS = *center + width/2
		if minTS < 0 {
			minTS = 0
		}
		if maxTS > duration {
			maxTS = duration
		}
	}

	var cached []store.Comment
	if hit, cerr := e.Cache.Get(ctx, key, &cached); cerr == nil && hit {
		e.Metrics.IncCacheHits()
		return cached, nil
	} else if cerr != nil {
		// Advisory cache: degrade to the store.
		e.logWarn("window cache read failed", videoID, cerr)
	}
	e.Metrics.IncCacheMisses()

	out, err := e.Store.QueryByVideoAndTimeRange(ctx, videoID, minTS, maxTS, store.FilterActive)
	if err != nil {
		// An empty result must mean "no comments", never "store down".
		return nil, fmt.Errorf("window query: %w", err)
	}
	if out == nil {
		out = []store.Comment{}
	}

	if cerr := e.Cache.Set(ctx, key, out, e.TTL); cerr != nil {
		e.logWarn("window cache write failed", videoID, cerr)
	}
	return out, nil
}

func (e *Engine) logWarn(msg, videoID string, err error) {
	if e.Log != nil {
		e.Log.Warn(msg, zap.String("video_id", videoID), zap.Error(err))
	}
}
