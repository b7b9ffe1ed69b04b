package events

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/danmu-platform/internal/danmu/cache"
	"github.com/example/danmu-platform/internal/danmu/room"
)

// StartBridge replays remote comment events into the local room manager and
// applies remote cache invalidation notices, so fan-out and cache coherence
// work across service instances. Subscriptions are dropped when ctx ends.
// Locally-originated events are filtered by localInstanceID; cache
// invalidation is applied unconditionally because doubling it is harmless.
func StartBridge(ctx context.Context, nc *nats.Conn, rooms *room.Manager, c cache.Cache, localInstanceID string, log *zap.Logger) error {
	createdSub, err := nc.Subscribe(SubjectCommentCreated, func(m *nats.Msg) {
		var ev CommentEvent
		if err := json.Unmarshal(m.Data, &ev); err != nil {
			log.Warn("bridge: invalid created event", zap.Error(err))
			return
		}
		if ev.Comment == nil || ev.InstanceID == localInstanceID {
			return
		}
		rooms.Publish(ev.VideoID, room.CommentAdded(*ev.Comment))
	})
	if err != nil {
		return err
	}

	removedSub, err := nc.Subscribe(SubjectCommentRemoved, func(m *nats.Msg) {
		var ev CommentEvent
		if err := json.Unmarshal(m.Data, &ev); err != nil {
			log.Warn("bridge: invalid removed event", zap.Error(err))
			return
		}
		if ev.InstanceID == localInstanceID {
			return
		}
		rooms.Publish(ev.VideoID, room.CommentRemoved(ev.VideoID, ev.CommentID))
	})
	if err != nil {
		_ = createdSub.Unsubscribe()
		return err
	}

	invalidateSub, err := nc.Subscribe(SubjectCacheInvalidate, func(m *nats.Msg) {
		prefix := string(m.Data)
		if prefix == "" {
			return
		}
		if err := c.InvalidatePrefix(context.Background(), prefix); err != nil {
			log.Warn("bridge: cache invalidate failed", zap.String("prefix", prefix), zap.Error(err))
		}
	})
	if err != nil {
		_ = createdSub.Unsubscribe()
		_ = removedSub.Unsubscribe()
		return err
	}

	go func() {
		<-ctx.Done()
		_ = createdSub.Unsubscribe()
		_ = removedSub.Unsubscribe()
		_ = invalidateSub.Unsubscribe()
	}()
	return nil
}
