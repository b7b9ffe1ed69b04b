// Package service wires the danmu engine together: validation, persistence,
// cache invalidation, room fan-out and event publishing in one auditable
// control flow.
package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/example/danmu-platform/internal/danmu/analytics"
	"github.com/example/danmu-platform/internal/danmu/cache"
	"github.com/example/danmu-platform/internal/danmu/events"
	"github.com/example/danmu-platform/internal/danmu/moderation"
	"github.com/example/danmu-platform/internal/danmu/room"
	"github.com/example/danmu-platform/internal/danmu/store"
	"github.com/example/danmu-platform/internal/danmu/video"
	"github.com/example/danmu-platform/internal/danmu/window"
	"github.com/example/danmu-platform/internal/platform/config"
	"github.com/example/danmu-platform/internal/platform/metrics"
)

// ErrValidation marks malformed input: content, timestamp or style.
// Reported to the caller, no mutation performed.
var ErrValidation = errors.New("validation failed")

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// CreateRequest is a writer's submission.
type CreateRequest struct {
	VideoID   string
	AuthorID  string
	Content   string
	Timestamp float64
	Style     store.Style
}

// Service is the danmu engine facade used by the HTTP binding.
type Service struct {
	store     store.CommentStore
	cache     cache.Cache
	rooms     *room.Manager
	videos    video.MetadataProvider
	windows   *window.Engine
	stats     *analytics.Aggregator
	publisher *events.Publisher
	sanitizer *bluemonday.Policy
	cfg       config.DanmuConfig
	log       *zap.Logger
	metrics   *metrics.Metrics
}

type Options struct {
	Store     store.CommentStore
	Cache     cache.Cache
	Rooms     *room.Manager
	Videos    video.MetadataProvider
	Publisher *events.Publisher
	Config    config.DanmuConfig
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

func New(opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Config.MaxContentLen <= 0 {
		opts.Config.MaxContentLen = 200
	}
	if opts.Config.QueryTimeout <= 0 {
		opts.Config.QueryTimeout = 3 * time.Second
	}
	if opts.Config.WindowTTL <= 0 {
		opts.Config.WindowTTL = 30 * time.Second
	}
	if opts.Config.StatsTTL <= 0 {
		opts.Config.StatsTTL = time.Minute
	}
	if opts.Config.DefaultWindowSeconds <= 0 {
		opts.Config.DefaultWindowSeconds = 10
	}

	return &Service{
		store:     opts.Store,
		cache:     opts.Cache,
		rooms:     opts.Rooms,
		videos:    opts.Videos,
		publisher: opts.Publisher,
		sanitizer: bluemonday.StrictPolicy(),
		cfg:       opts.Config,
		log:       opts.Logger,
		metrics:   opts.Metrics,
		windows: &window.Engine{
			Store:   opts.Store,
			Cache:   opts.Cache,
			Video:   opts.Videos,
			TTL:     opts.Config.WindowTTL,
			Log:     opts.Logger,
			Metrics: opts.Metrics,
		},
		stats: &analytics.Aggregator{
			Store:   opts.Store,
			Cache:   opts.Cache,
			Video:   opts.Videos,
			TTL:     opts.Config.StatsTTL,
			Log:     opts.Logger,
			Metrics: opts.Metrics,
		},
	}
}

// DefaultWindowSeconds exposes the configured window width for the binding
// layer.
func (s *Service) DefaultWindowSeconds() float64 {
	return s.cfg.DefaultWindowSeconds
}

// Rooms exposes the broadcast room manager for the streaming binding.
func (s *Service) Rooms() *room.Manager {
	return s.rooms
}

// CreateComment validates, persists and fans out a new overlay comment.
// Fan-out runs only after the store write is acknowledged, so subscribers
// observe store-ack order.
func (s *Service) CreateComment(ctx context.Context, req CreateRequest) (store.Comment, error) {
	c, err := s.validate(ctx, req)
	if err != nil {
		return store.Comment{}, err
	}

	created, err := s.store.Insert(ctx, c)
	if err != nil {
		return store.Comment{}, err
	}
	s.metrics.IncCommentsCreated()

	s.invalidateVideo(ctx, created.VideoID)
	s.rooms.Publish(created.VideoID, room.CommentAdded(created))
	s.publisher.CommentCreated(created)

	s.log.Info("comment created",
		zap.String("video_id", created.VideoID),
		zap.String("comment_id", created.ID),
		zap.Float64("timestamp", created.Timestamp))
	return created, nil
}

// Moderate transitions a comment through the lifecycle state machine.
// Every successful transition invalidates the video's window and aggregate
// cache entries and emits a removal event to the room.
func (s *Service) Moderate(ctx context.Context, actor moderation.Actor, videoID, commentID string, target store.Status, reason string) (store.Comment, error) {
	current, err := s.store.Get(ctx, videoID, commentID)
	if err != nil {
		return store.Comment{}, err
	}

	decision, err := moderation.Decide(actor, current, target, reason)
	if err != nil {
		if errors.Is(err, moderation.ErrForbidden) {
			// Logged for abuse monitoring.
			s.metrics.IncForbiddenAttempts()
			s.log.Warn("forbidden moderation attempt",
				zap.String("actor_id", actor.ID),
				zap.String("actor_role", string(actor.Role)),
				zap.String("video_id", videoID),
				zap.String("comment_id", commentID),
				zap.String("target", string(target)))
		}
		return store.Comment{}, err
	}

	updated, err := s.store.UpdateStatus(ctx, videoID, commentID, decision.To, decision.AllowedFrom, actor.ID, decision.Reason)
	if err != nil {
		return store.Comment{}, err
	}
	s.metrics.IncModeration(string(decision.To))

	s.invalidateVideo(ctx, videoID)
	s.rooms.Publish(videoID, room.CommentRemoved(videoID, commentID))
	s.publisher.CommentRemoved(videoID, commentID)

	s.log.Info("comment moderated",
		zap.String("video_id", videoID),
		zap.String("comment_id", commentID),
		zap.String("status", string(updated.Status)),
		zap.String("moderated_by", actor.ID))
	return updated, nil
}

// GetWindow serves a bounded time-window read under the configured query
// timeout. A nil center returns the full timeline.
func (s *Service) GetWindow(ctx context.Context, videoID string, center *float64, width float64) ([]store.Comment, error) {
	if width <= 0 {
		width = s.cfg.DefaultWindowSeconds
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()
	return s.windows.GetWindow(ctx, videoID, center, width)
}

// GetStats serves the video's aggregate statistics.
func (s *Service) GetStats(ctx context.Context, videoID string) (analytics.Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()
	return s.stats.ComputeStats(ctx, videoID)
}

func (s *Service) validate(ctx context.Context, req CreateRequest) (store.Comment, error) {
	videoID := strings.TrimSpace(req.VideoID)
	if videoID == "" {
		return store.Comment{}, fmt.Errorf("%w: video id is required", ErrValidation)
	}
	if strings.TrimSpace(req.AuthorID) == "" {
		return store.Comment{}, fmt.Errorf("%w: author id is required", ErrValidation)
	}

	content := strings.TrimSpace(s.sanitizer.Sanitize(req.Content))
	if content == "" {
		return store.Comment{}, fmt.Errorf("%w: content must not be empty", ErrValidation)
	}
	if utf8.RuneCountInString(content) > s.cfg.MaxContentLen {
		return store.Comment{}, fmt.Errorf("%w: content exceeds %d characters", ErrValidation, s.cfg.MaxContentLen)
	}

	// An unknown video must reject the write rather than accept an
	// unbounded timestamp.
	duration, err := s.videos.Duration(ctx, videoID)
	if err != nil {
		if errors.Is(err, video.ErrUnknownVideo) {
			return store.Comment{}, fmt.Errorf("%w: unknown video %q", ErrValidation, videoID)
		}
		return store.Comment{}, err
	}
	if req.Timestamp < 0 || req.Timestamp > duration {
		return store.Comment{}, fmt.Errorf("%w: timestamp %.3f outside [0, %.3f]", ErrValidation, req.Timestamp, duration)
	}

	style, err := normalizeStyle(req.Style)
	if err != nil {
		return store.Comment{}, err
	}

	return store.Comment{
		VideoID:   videoID,
		AuthorID:  strings.TrimSpace(req.AuthorID),
		Content:   content,
		Timestamp: req.Timestamp,
		Style:     style,
		Status:    store.StatusActive,
	}, nil
}

func normalizeStyle(st store.Style) (store.Style, error) {
	if st.Color == "" {
		st.Color = "#FFFFFF"
	}
	if !hexColor.MatchString(st.Color) {
		return store.Style{}, fmt.Errorf("%w: color %q is not a hex code", ErrValidation, st.Color)
	}
	st.Color = strings.ToUpper(st.Color)

	if st.Size == "" {
		st.Size = store.SizeMedium
	}
	switch st.Size {
	case store.SizeSmall, store.SizeMedium, store.SizeLarge:
	default:
		return store.Style{}, fmt.Errorf("%w: size %q is not one of small/medium/large", ErrValidation, st.Size)
	}

	if st.Mode == "" {
		st.Mode = store.ModeScroll
	}
	switch st.Mode {
	case store.ModeTop, store.ModeBottom, store.ModeScroll:
	default:
		return store.Style{}, fmt.Errorf("%w: mode %q is not one of top/bottom/scroll", ErrValidation, st.Mode)
	}

	if st.Speed == 0 {
		st.Speed = 1.0
	}
	if st.Speed <= 0 {
		return store.Style{}, fmt.Errorf("%w: speed must be positive", ErrValidation)
	}
	return st, nil
}

// invalidateVideo drops every cached window and the aggregate entry for the
// video, locally and on other instances.
func (s *Service) invalidateVideo(ctx context.Context, videoID string) {
	prefix := cache.WindowPrefix(videoID)
	if err := s.cache.InvalidatePrefix(ctx, prefix); err != nil {
		s.log.Warn("window cache invalidation failed", zap.String("video_id", videoID), zap.Error(err))
	}
	if err := s.cache.Invalidate(ctx, cache.StatsKey(videoID)); err != nil {
		s.log.Warn("stats cache invalidation failed", zap.String("video_id", videoID), zap.Error(err))
	}
	s.publisher.CacheInvalidate(prefix)
	s.publisher.CacheInvalidate(cache.StatsKey(videoID))
}
